package persistor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"epochcore/internal/persistor/binary"
	"epochcore/pkg/daq"
)

// SerializeEpoch writes a completed Epoch into the currently open block and
// returns its persisted snapshot. Fails if no block is open or the Epoch's
// protocol id does not match the open block's.
func (s *Session) SerializeEpoch(e *daq.Epoch) (PersistentEpoch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openBlockID == nil {
		return PersistentEpoch{}, fmt.Errorf("persistor: no epoch block open")
	}
	block := s.blocks[*s.openBlockID]
	if e.ProtocolID != block.ProtocolID {
		return PersistentEpoch{}, fmt.Errorf("persistor: epoch protocol %q does not match open block protocol %q", e.ProtocolID, block.ProtocolID)
	}

	epochsGroupID, err := s.blockEpochsChild(block)
	if err != nil {
		return PersistentEpoch{}, err
	}

	persisted := PersistentEpoch{
		TimelineEntity:     newTimelineEntity(startTimeOf(e)),
		ProtocolID:         e.ProtocolID,
		BlockID:            block.UUID,
		Backgrounds:        make(map[string]IOEntity),
		Stimuli:            make(map[string]IOEntity),
		Responses:          make(map[string]IOEntity),
		ProtocolParameters: e.ProtocolParameters,
	}
	persisted.UUID = uuid.New()
	if e.Duration.Indefinite {
		// indefinite epochs never complete; serialize is only reached via
		// completion detection, so this branch is defensive only.
	} else {
		end := persisted.StartTime.Add(e.Duration.Value)
		persisted.EndTime = &end
	}
	for k := range e.Keywords {
		persisted.AddKeyword(k)
	}

	nodeName := fmt.Sprintf("epoch-%s", persisted.UUID)
	if err := s.store.CreateGroup(persisted.UUID.String(), &epochsGroupID, "epoch", nodeName); err != nil {
		return PersistentEpoch{}, err
	}
	if err := s.writeTimelineAttrs(persisted.UUID.String(), "protocolID", e.ProtocolID, persisted.TimelineEntity); err != nil {
		return PersistentEpoch{}, err
	}
	if err := s.writeKeywords(persisted.UUID.String(), persisted.Entity); err != nil {
		return PersistentEpoch{}, err
	}
	if len(e.ProtocolParameters) > 0 {
		paramsID, err := s.lazyChildGroup(persisted.UUID.String(), "container", "protocolParameters")
		if err != nil {
			return PersistentEpoch{}, err
		}
		for k, v := range e.ProtocolParameters {
			if err := s.store.SetAttribute(paramsID, k, v); err != nil {
				return PersistentEpoch{}, err
			}
		}
	}

	for name, bg := range e.Backgrounds {
		io, err := s.persistIOEntity(persisted.UUID.String(), "backgrounds", name, nil)
		if err != nil {
			return PersistentEpoch{}, err
		}
		if err := s.store.SetAttribute(io.Entity.UUID.String(), "value", bg.Value.Quantity); err != nil {
			return PersistentEpoch{}, err
		}
		if err := s.store.SetAttribute(io.Entity.UUID.String(), "unit", daq.TruncatedUnit(bg.Value.DisplayUnit)); err != nil {
			return PersistentEpoch{}, err
		}
		persisted.Backgrounds[name] = io
	}
	for name, stim := range e.Stimuli {
		io, err := s.persistIOEntity(persisted.UUID.String(), "stimuli", name, toBinarySpans(stim.ConfigSpans))
		if err != nil {
			return PersistentEpoch{}, err
		}
		if err := s.store.WriteMeasurements(io.Entity.UUID.String(), toMeasurementRows(stim.Data)); err != nil {
			return PersistentEpoch{}, err
		}
		persisted.Stimuli[name] = io
	}
	for name, resp := range e.Responses {
		io, err := s.persistIOEntity(persisted.UUID.String(), "responses", name, toBinarySpans(resp.ConfigSpans))
		if err != nil {
			return PersistentEpoch{}, err
		}
		if err := s.store.WriteMeasurements(io.Entity.UUID.String(), toMeasurementRows(resp.Data)); err != nil {
			return PersistentEpoch{}, err
		}
		persisted.Responses[name] = io
	}

	block.Epochs = append(block.Epochs, persisted.UUID)
	return persisted, nil
}

// Serialize adapts SerializeEpoch to controller.Persistor's single-error
// signature.
func (s *Session) Serialize(e *daq.Epoch) error {
	_, err := s.SerializeEpoch(e)
	return err
}

func startTimeOf(e *daq.Epoch) time.Time {
	if e.StartTime != nil {
		return *e.StartTime
	}
	return time.Time{}
}

func (s *Session) blockEpochsChild(block *EpochBlock) (string, error) {
	children, err := s.store.Children(block.UUID.String())
	if err != nil {
		return "", err
	}
	for _, c := range children {
		if c.Name == "epochs" {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("persistor: epoch block %s has no epochs subgroup", block.UUID)
}

func (s *Session) lazyChildGroup(parentID, kind, name string) (string, error) {
	children, err := s.store.Children(parentID)
	if err != nil {
		return "", err
	}
	for _, c := range children {
		if c.Name == name {
			return c.ID, nil
		}
	}
	id := uuid.NewString()
	if err := s.store.CreateGroup(id, &parentID, kind, name); err != nil {
		return "", err
	}
	return id, nil
}

// persistIOEntity writes one Background/Stimulus/Response IO entity under
// epochID's subgroup, hard-linking it to the owning device (auto-interning
// the device by name under the Experiment if it has never been seen).
func (s *Session) persistIOEntity(epochID, subgroup, deviceName string, spans []binary.ConfigSpanAttrs) (IOEntity, error) {
	device, err := s.internDeviceByNameLocked(deviceName)
	if err != nil {
		return IOEntity{}, err
	}
	groupID, err := s.lazyChildGroup(epochID, "container", subgroup)
	if err != nil {
		return IOEntity{}, err
	}
	io := IOEntity{Entity: newEntity(), DeviceID: device.UUID}
	io.UUID = uuid.New()
	nodeName := fmt.Sprintf("%s-%s", deviceName, io.UUID)
	if err := s.store.CreateGroup(io.UUID.String(), &groupID, "io", nodeName); err != nil {
		return IOEntity{}, err
	}
	if err := s.store.SetAttribute(io.UUID.String(), "uuid", io.UUID.String()); err != nil {
		return IOEntity{}, err
	}
	if err := s.store.CreateHardLink(uuid.NewString(), io.UUID.String(), device.UUID.String(), "device", "device"); err != nil {
		return IOEntity{}, err
	}
	if len(spans) > 0 {
		if err := s.store.WriteSpans(io.UUID.String(), spans); err != nil {
			return IOEntity{}, err
		}
		for _, sp := range spans {
			io.Spans = append(io.Spans, ConfigSpan{Index: sp.Index, StartTimeSeconds: sp.StartTimeSeconds, TimeSpanSeconds: sp.TimeSpanSeconds, Nodes: sp.Nodes})
		}
	}
	return io, nil
}

func (s *Session) internDeviceByNameLocked(name string) (Device, error) {
	for _, d := range s.devices {
		if d.Name == name {
			return *d, nil
		}
	}
	return s.addDeviceLocked(name, "")
}

func (s *Session) writeKeywords(nodeID string, e Entity) error {
	if len(e.Keywords) == 0 {
		return s.store.DeleteAttribute(nodeID, "keywords")
	}
	joined := ""
	for i, k := range e.SortedKeywords() {
		if i > 0 {
			joined += ","
		}
		joined += k
	}
	return s.store.SetAttribute(nodeID, "keywords", joined)
}

func toBinarySpans(spans []daq.ConfigSpan) []binary.ConfigSpanAttrs {
	if len(spans) == 0 {
		return nil
	}
	out := make([]binary.ConfigSpanAttrs, len(spans))
	for i, sp := range spans {
		out[i] = binary.ConfigSpanAttrs{Index: sp.Index, StartTimeSeconds: sp.StartTimeSeconds, TimeSpanSeconds: sp.TimeSpanSeconds, Nodes: sp.Nodes}
	}
	return out
}

func toMeasurementRows(chunk daq.Chunk) []binary.MeasurementRow {
	out := make([]binary.MeasurementRow, len(chunk.Samples))
	for i, m := range chunk.Samples {
		out[i] = binary.MeasurementRow{Quantity: m.Quantity, Unit: daq.TruncatedUnit(m.DisplayUnit)}
	}
	return out
}
