package persistor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"epochcore/internal/observability"
	"epochcore/internal/persistor/binary"
)

// Session is one open Hierarchical Persistor file. All operations are
// synchronized by mu — the write-through store makes no concurrency claims
// of its own, so Session serializes access the way a single-writer file
// handle would.
type Session struct {
	mu    sync.Mutex
	store *binary.Store
	log   observability.Logger

	experiment   Experiment
	devices      map[string]*Device // keyed by deviceKey(name, manufacturer)
	sources      map[uuid.UUID]*Source
	groups       map[uuid.UUID]*EpochGroup
	blocks       map[uuid.UUID]*EpochBlock
	openStack    []uuid.UUID
	openBlockID  *uuid.UUID
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithLogger overrides the session's logger (default: a no-op logger).
func WithLogger(log observability.Logger) Option {
	return func(s *Session) { s.log = log }
}

func newSession(store *binary.Store, opts []Option) *Session {
	s := &Session{
		store:   store,
		log:     observability.NoopLogger{},
		devices: make(map[string]*Device),
		sources: make(map[uuid.UUID]*Source),
		groups:  make(map[uuid.UUID]*EpochGroup),
		blocks:  make(map[uuid.UUID]*EpochBlock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a brand-new container file, writes the version attribute and
// shared type registry, and inserts the root Experiment.
func Create(path, purpose string, startTime time.Time, opts ...Option) (*Session, error) {
	store, err := binary.Create(path)
	if err != nil {
		return nil, err
	}
	s := newSession(store, opts)

	id := uuid.New()
	s.experiment = Experiment{
		TimelineEntity: newTimelineEntity(startTime),
		Purpose:        purpose,
		Devices:        make(map[string]uuid.UUID),
	}
	s.experiment.UUID = id

	rootName := fmt.Sprintf("experiment-%s", id)
	if err := store.CreateGroup(id.String(), nil, "experiment", rootName); err != nil {
		return nil, err
	}
	if err := s.writeTimelineAttrs(id.String(), "purpose", purpose, s.experiment.TimelineEntity); err != nil {
		return nil, err
	}
	for _, sub := range []string{"devices", "sources", "epochGroups"} {
		if err := store.CreateGroup(uuid.NewString(), strPtr(id.String()), "container", sub); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Open opens an existing container file and restores the Experiment's UUID
// (see reload); devices, sources, groups and blocks already in the file are
// not loaded into the session.
func Open(path string, opts ...Option) (*Session, error) {
	store, err := binary.Open(path)
	if err != nil {
		return nil, err
	}
	s := newSession(store, opts)
	if err := s.reload(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

func strPtr(s string) *string { return &s }

func (s *Session) writeTimelineAttrs(nodeID, purposeKey, purposeVal string, t TimelineEntity) error {
	if err := s.store.SetAttribute(nodeID, "uuid", t.UUID.String()); err != nil {
		return err
	}
	if purposeKey != "" {
		if err := s.store.SetAttribute(nodeID, purposeKey, purposeVal); err != nil {
			return err
		}
	}
	if err := s.store.SetAttribute(nodeID, "startTimeDotNetDateTimeOffsetTicks", t.StartTime.UnixNano()); err != nil {
		return err
	}
	if err := s.store.SetAttribute(nodeID, "startTimeOffsetHours", offsetHours(t.StartTime)); err != nil {
		return err
	}
	if t.EndTime != nil {
		if err := s.store.SetAttribute(nodeID, "endTimeDotNetDateTimeOffsetTicks", t.EndTime.UnixNano()); err != nil {
			return err
		}
		if err := s.store.SetAttribute(nodeID, "endTimeOffsetHours", offsetHours(*t.EndTime)); err != nil {
			return err
		}
	}
	return nil
}

func offsetHours(t time.Time) float64 {
	_, offsetSeconds := t.Zone()
	return float64(offsetSeconds) / 3600.0
}

// reload reads the single top-level experiment group and restores only the
// Experiment's UUID. The device and source registries, the Experiment's
// start time, and all groups and blocks are left empty, so duplicate-device
// checks and source lookups see only what this session itself adds.
func (s *Session) reload() error {
	var rootID string
	if err := s.store.DB().QueryRow(`SELECT id FROM nodes WHERE parent_id IS NULL AND canonical_id IS NULL`).Scan(&rootID); err != nil {
		return fmt.Errorf("persistor: reload root: %w", err)
	}
	root, err := s.store.GetNode(rootID)
	if err != nil {
		return err
	}
	var idStr string
	if _, err := s.store.GetAttribute(rootID, "uuid", &idStr); err != nil {
		return err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("persistor: reload root uuid: %w", err)
	}
	s.experiment = Experiment{TimelineEntity: newTimelineEntity(time.Time{}), Devices: make(map[string]uuid.UUID)}
	s.experiment.UUID = id
	_ = root
	return nil
}

// AddDevice interns a device under the Experiment, keyed by (name,
// manufacturer).
func (s *Session) AddDevice(name, manufacturer string) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addDeviceLocked(name, manufacturer)
}

func (s *Session) addDeviceLocked(name, manufacturer string) (Device, error) {
	key := deviceKey(name, manufacturer)
	if _, ok := s.devices[key]; ok {
		return Device{}, fmt.Errorf("persistor: device (%s, %s) already exists", name, manufacturer)
	}
	d := Device{Entity: newEntity(), Name: name, Manufacturer: manufacturer}
	d.UUID = uuid.New()

	devicesGroupID, err := s.rootChild("devices")
	if err != nil {
		return Device{}, err
	}
	nodeName := fmt.Sprintf("%s-%s", name, d.UUID)
	if err := s.store.CreateGroup(d.UUID.String(), &devicesGroupID, "device", nodeName); err != nil {
		return Device{}, err
	}
	if err := s.store.SetAttribute(d.UUID.String(), "uuid", d.UUID.String()); err != nil {
		return Device{}, err
	}
	if err := s.store.SetAttribute(d.UUID.String(), "name", name); err != nil {
		return Device{}, err
	}
	if err := s.store.SetAttribute(d.UUID.String(), "manufacturer", manufacturer); err != nil {
		return Device{}, err
	}
	s.devices[key] = &d
	s.experiment.Devices[key] = d.UUID
	return d, nil
}

func (s *Session) rootChild(name string) (string, error) {
	children, err := s.store.Children(s.experiment.UUID.String())
	if err != nil {
		return "", err
	}
	for _, c := range children {
		if c.Name == name {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("persistor: root has no %q subgroup", name)
}

// AddSource inserts a Source under parent, or under the Experiment if
// parent is nil.
func (s *Session) AddSource(label string, parent *uuid.UUID) (Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := Source{Entity: newEntity(), Label: label, ParentID: parent}
	src.UUID = uuid.New()

	var parentGroupID string
	if parent == nil {
		id, err := s.rootChild("sources")
		if err != nil {
			return Source{}, err
		}
		parentGroupID = id
	} else {
		p, ok := s.sources[*parent]
		if !ok {
			return Source{}, fmt.Errorf("persistor: unknown parent source %s", *parent)
		}
		parentGroupID = p.UUID.String()
		p.Children = append(p.Children, src.UUID)
	}
	nodeName := fmt.Sprintf("%s-%s", label, src.UUID)
	if err := s.store.CreateGroup(src.UUID.String(), &parentGroupID, "source", nodeName); err != nil {
		return Source{}, err
	}
	if err := s.store.SetAttribute(src.UUID.String(), "uuid", src.UUID.String()); err != nil {
		return Source{}, err
	}
	if err := s.store.SetAttribute(src.UUID.String(), "label", label); err != nil {
		return Source{}, err
	}
	if err := s.store.CreateGroup(uuid.NewString(), strPtrOf(src.UUID.String()), "container", "epochGroups"); err != nil {
		return Source{}, err
	}
	s.sources[src.UUID] = &src
	if parent == nil {
		s.experiment.Sources = append(s.experiment.Sources, src.UUID)
	}
	return src, nil
}

func strPtrOf(s string) *string { return &s }

// BeginEpochGroup inserts a new EpochGroup under the top of the open stack,
// or under the Experiment if the stack is empty; pushes it onto the stack;
// and writes a hard-link from source's epochGroups subgroup to the new
// group.
func (s *Session) BeginEpochGroup(label string, source uuid.UUID, startTime time.Time) (EpochGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[source]
	if !ok {
		return EpochGroup{}, fmt.Errorf("persistor: unknown source %s", source)
	}

	group := EpochGroup{TimelineEntity: newTimelineEntity(startTime), Label: label, SourceID: source}
	group.UUID = uuid.New()

	var parentGroupID string
	var parentUUID *uuid.UUID
	if len(s.openStack) > 0 {
		top := s.openStack[len(s.openStack)-1]
		parentGroupID = top.String()
		parentUUID = &top
	} else {
		id, err := s.rootChild("epochGroups")
		if err != nil {
			return EpochGroup{}, err
		}
		parentGroupID = id
	}
	group.ParentID = parentUUID

	nodeName := fmt.Sprintf("%s-%s", label, group.UUID)
	if err := s.store.CreateGroup(group.UUID.String(), &parentGroupID, "epochGroup", nodeName); err != nil {
		return EpochGroup{}, err
	}
	if err := s.writeTimelineAttrs(group.UUID.String(), "label", label, group.TimelineEntity); err != nil {
		return EpochGroup{}, err
	}
	for _, sub := range []string{"epochGroups", "epochBlocks"} {
		if err := s.store.CreateGroup(uuid.NewString(), strPtrOf(group.UUID.String()), "container", sub); err != nil {
			return EpochGroup{}, err
		}
	}

	srcGroupsID, err := s.sourceEpochGroupsChild(src)
	if err != nil {
		return EpochGroup{}, err
	}
	if err := s.store.CreateHardLink(uuid.NewString(), srcGroupsID, group.UUID.String(), "epochGroup", nodeName); err != nil {
		return EpochGroup{}, err
	}
	src.EpochGroups = append(src.EpochGroups, group.UUID)

	if parentUUID != nil {
		s.groups[*parentUUID].Nested = append(s.groups[*parentUUID].Nested, group.UUID)
	} else {
		s.experiment.EpochGroups = append(s.experiment.EpochGroups, group.UUID)
	}
	s.groups[group.UUID] = &group
	s.openStack = append(s.openStack, group.UUID)
	return group, nil
}

func (s *Session) sourceEpochGroupsChild(src *Source) (string, error) {
	children, err := s.store.Children(src.UUID.String())
	if err != nil {
		return "", err
	}
	for _, c := range children {
		if c.Name == "epochGroups" {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("persistor: source %s has no epochGroups subgroup", src.UUID)
}

// EndEpochGroup stamps the top group's end time and pops it. Fails if no
// group is open or a block is open.
func (s *Session) EndEpochGroup(endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.openStack) == 0 {
		return fmt.Errorf("persistor: no epoch group open")
	}
	if s.openBlockID != nil {
		return fmt.Errorf("persistor: cannot end epoch group while a block is open")
	}
	top := s.openStack[len(s.openStack)-1]
	group := s.groups[top]
	group.SetEndTime(endTime)
	if err := s.writeTimelineAttrs(group.UUID.String(), "", "", group.TimelineEntity); err != nil {
		return err
	}
	s.openStack = s.openStack[:len(s.openStack)-1]
	return nil
}

// BeginEpochBlock records a new EpochBlock under the currently open group.
// Fails if no group is open or a block is already open.
func (s *Session) BeginEpochBlock(protocolID string, startTime time.Time) (EpochBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.openStack) == 0 {
		return EpochBlock{}, fmt.Errorf("persistor: no epoch group open")
	}
	if s.openBlockID != nil {
		return EpochBlock{}, fmt.Errorf("persistor: an epoch block is already open")
	}
	groupID := s.openStack[len(s.openStack)-1]
	group := s.groups[groupID]

	block := EpochBlock{TimelineEntity: newTimelineEntity(startTime), ProtocolID: protocolID, GroupID: groupID}
	block.UUID = uuid.New()

	blocksGroupID, err := s.groupEpochBlocksChild(group)
	if err != nil {
		return EpochBlock{}, err
	}
	nodeName := fmt.Sprintf("%s-%s", protocolID, block.UUID)
	if err := s.store.CreateGroup(block.UUID.String(), &blocksGroupID, "epochBlock", nodeName); err != nil {
		return EpochBlock{}, err
	}
	if err := s.writeTimelineAttrs(block.UUID.String(), "protocolID", protocolID, block.TimelineEntity); err != nil {
		return EpochBlock{}, err
	}
	if err := s.store.CreateGroup(uuid.NewString(), strPtrOf(block.UUID.String()), "container", "epochs"); err != nil {
		return EpochBlock{}, err
	}

	group.EpochBlockID = append(group.EpochBlockID, block.UUID)
	s.blocks[block.UUID] = &block
	id := block.UUID
	s.openBlockID = &id
	return block, nil
}

func (s *Session) groupEpochBlocksChild(group *EpochGroup) (string, error) {
	children, err := s.store.Children(group.UUID.String())
	if err != nil {
		return "", err
	}
	for _, c := range children {
		if c.Name == "epochBlocks" {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("persistor: epoch group %s has no epochBlocks subgroup", group.UUID)
}

// EndEpochBlock stamps the open block's end time. Fails if no block is
// open.
func (s *Session) EndEpochBlock(endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openBlockID == nil {
		return fmt.Errorf("persistor: no epoch block open")
	}
	block := s.blocks[*s.openBlockID]
	block.SetEndTime(endTime)
	if err := s.writeTimelineAttrs(block.UUID.String(), "", "", block.TimelineEntity); err != nil {
		return err
	}
	s.openBlockID = nil
	return nil
}

// ExperimentUUID returns the identity of the open experiment's root node.
func (s *Session) ExperimentUUID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.experiment.UUID
}
