// Package persistor implements the Hierarchical Persistor: a write-through
// tree-structured store with a strict containment schema, versioned file
// format, durable open/close lifecycle, and safe deletion rules. The tree
// types in this file build on a shared Entity base via struct embedding,
// generalized to the keyword/property/note triad every entity carries.
package persistor

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Entity is the shared base every persisted node embeds. Two entities are
// equal iff their UUIDs are equal.
type Entity struct {
	UUID       uuid.UUID
	Keywords   map[string]struct{}
	Properties map[string]any
	Notes      []Note
}

// Note is one (time, text) row in an entity's notes dataset.
type Note struct {
	Time time.Time
	Text string
}

func newEntity() Entity {
	return Entity{Keywords: make(map[string]struct{})}
}

// Equal reports whether two entities share the same UUID.
func (e Entity) Equal(other Entity) bool { return e.UUID == other.UUID }

// AddKeyword adds k to the entity's keyword set (idempotent).
func (e *Entity) AddKeyword(k string) {
	if e.Keywords == nil {
		e.Keywords = make(map[string]struct{})
	}
	e.Keywords[k] = struct{}{}
}

// RemoveKeyword removes k. The caller (Session) is responsible for dropping
// the persisted "keywords" attribute entirely once the set is empty.
func (e *Entity) RemoveKeyword(k string) { delete(e.Keywords, k) }

// SortedKeywords returns the keyword set as a sorted slice, suitable for
// comma-joined attribute serialization.
func (e Entity) SortedKeywords() []string {
	out := make([]string, 0, len(e.Keywords))
	for k := range e.Keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SetProperty sets key in the entity's in-memory property map, allocating
// the map on first write. Properties are not written to the container file.
func (e *Entity) SetProperty(key string, value any) {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	e.Properties[key] = value
}

// RemoveProperty deletes a key from the in-memory property map; the map
// itself stays allocated.
func (e *Entity) RemoveProperty(key string) { delete(e.Properties, key) }

// AddNote appends a note; iteration order is insertion order.
func (e *Entity) AddNote(at time.Time, text string) {
	e.Notes = append(e.Notes, Note{Time: at, Text: text})
}

// TimelineEntity adds start/end timestamps to Entity.
type TimelineEntity struct {
	Entity
	StartTime time.Time
	EndTime   *time.Time
}

// SetEndTime stamps the end time exactly once; a second call is a no-op.
func (t *TimelineEntity) SetEndTime(at time.Time) {
	if t.EndTime != nil {
		return
	}
	t.EndTime = &at
}

func newTimelineEntity(start time.Time) TimelineEntity {
	return TimelineEntity{Entity: newEntity(), StartTime: start}
}

// Device is a leaf entity uniquely identified by (Name, Manufacturer)
// within an Experiment.
type Device struct {
	Entity
	Name         string
	Manufacturer string
}

// Source is a recursive hierarchical identifier for the biological/physical
// origin of the data.
type Source struct {
	Entity
	Label       string
	ParentID    *uuid.UUID
	Children    []uuid.UUID
	EpochGroups []uuid.UUID // hard-links to canonical EpochGroup nodes
}

// EpochGroup is a labeled logical block of Epoch Blocks or nested Epoch
// Groups, bound to a Source.
type EpochGroup struct {
	TimelineEntity
	Label        string
	SourceID     uuid.UUID
	ParentID     *uuid.UUID // nil if directly under the Experiment
	Nested       []uuid.UUID
	EpochBlockID []uuid.UUID
}

// EpochBlock is a contiguous run of Epochs sharing one protocol id.
type EpochBlock struct {
	TimelineEntity
	ProtocolID string
	GroupID    uuid.UUID
	Epochs     []uuid.UUID
}

// IOEntity is the shared shape of Background/Stimulus/Response: a hard-link
// to the owning Device plus, for Stimulus/Response, an ordered list of
// configuration spans.
type IOEntity struct {
	Entity
	DeviceID uuid.UUID
	Spans    []ConfigSpan
}

// ConfigSpan mirrors daq.ConfigSpan for the persisted representation.
type ConfigSpan struct {
	Index            int
	StartTimeSeconds float64
	TimeSpanSeconds  float64
	Nodes            map[string]map[string]any
}

// PersistentEpoch is the persisted snapshot serialize() writes and returns.
type PersistentEpoch struct {
	TimelineEntity
	ProtocolID         string
	BlockID            uuid.UUID
	Backgrounds        map[string]IOEntity // keyed by device name
	Stimuli            map[string]IOEntity
	Responses          map[string]IOEntity
	ProtocolParameters map[string]any
}

// Experiment is the containment tree's timeline root.
type Experiment struct {
	TimelineEntity
	Purpose     string
	Devices     map[string]uuid.UUID // keyed by "name\x00manufacturer"
	Sources     []uuid.UUID
	EpochGroups []uuid.UUID
}

func deviceKey(name, manufacturer string) string { return name + "\x00" + manufacturer }
