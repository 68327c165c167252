package persistor

import (
	"path/filepath"
	"testing"
	"time"

	"epochcore/pkg/daq"
)

func newSessionWithOpenBlock(t *testing.T, protocolID string) (*Session, time.Time) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.epc")
	s, err := Create(path, "unit test run", time.Unix(0, 0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { s.store.Close() })

	src, err := s.AddSource("animal-1", nil)
	if err != nil {
		t.Fatalf("add source: %v", err)
	}
	start := time.Unix(1000, 0)
	if _, err := s.BeginEpochGroup("g1", src.UUID, start); err != nil {
		t.Fatalf("begin group: %v", err)
	}
	if _, err := s.BeginEpochBlock(protocolID, start); err != nil {
		t.Fatalf("begin block: %v", err)
	}
	return s, start
}

func rate(hz float64) daq.Measurement { return daq.NewMeasurement(hz, "Hz", "Hz", hz) }

func samplesOf(vals ...float64) []daq.Measurement {
	out := make([]daq.Measurement, len(vals))
	for i, v := range vals {
		out[i] = daq.NewMeasurement(v, "V", "V", v)
	}
	return out
}

func TestSerializeEpochRequiresOpenBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.epc")
	s, err := Create(path, "unit test run", time.Unix(0, 0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer s.store.Close()

	e := daq.NewEpoch("p1", daq.Definite(time.Second))
	if _, err := s.SerializeEpoch(e); err == nil {
		t.Fatal("expected serialize to fail with no open block")
	}
}

func TestSerializeEpochRejectsMismatchedProtocol(t *testing.T) {
	s, start := newSessionWithOpenBlock(t, "protocol-1")
	e := daq.NewEpoch("protocol-2", daq.Definite(time.Second))
	e.StartTime = &start
	if _, err := s.SerializeEpoch(e); err == nil {
		t.Fatal("expected serialize to reject a mismatched protocol id")
	}
}

func TestSerializeEpochPersistsStimuliResponsesAndKeywords(t *testing.T) {
	s, start := newSessionWithOpenBlock(t, "protocol-1")

	e := daq.NewEpoch("protocol-1", daq.Definite(time.Second))
	e.StartTime = &start
	e.AddKeyword("baseline")
	e.AddKeyword("aversive")
	e.AddStimulus(daq.Stimulus{
		Device:   "stim-0",
		Duration: daq.Definite(time.Second),
		Data:     daq.NewChunk(samplesOf(1, 2), rate(2)),
	})
	e.AddResponse("resp-0", rate(2))
	if err := e.AppendResponseData("resp-0", daq.NewChunk(samplesOf(3, 4), rate(2))); err != nil {
		t.Fatalf("append response data: %v", err)
	}

	persisted, err := s.SerializeEpoch(e)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if persisted.ProtocolID != "protocol-1" {
		t.Fatalf("protocol id = %q, want protocol-1", persisted.ProtocolID)
	}
	if len(persisted.Keywords) != 2 {
		t.Fatalf("got %d keywords, want 2", len(persisted.Keywords))
	}
	stimIO, ok := persisted.Stimuli["stim-0"]
	if !ok {
		t.Fatal("expected a persisted stimulus for stim-0")
	}
	measurements, err := s.store.Measurements(stimIO.Entity.UUID.String())
	if err != nil {
		t.Fatalf("measurements: %v", err)
	}
	if len(measurements) != 2 || measurements[0].Quantity != 1 || measurements[1].Quantity != 2 {
		t.Fatalf("got %+v, want [1 2]", measurements)
	}

	respIO, ok := persisted.Responses["resp-0"]
	if !ok {
		t.Fatal("expected a persisted response for resp-0")
	}
	respMeasurements, err := s.store.Measurements(respIO.Entity.UUID.String())
	if err != nil {
		t.Fatalf("response measurements: %v", err)
	}
	if len(respMeasurements) != 2 || respMeasurements[0].Quantity != 3 || respMeasurements[1].Quantity != 4 {
		t.Fatalf("got %+v, want [3 4]", respMeasurements)
	}
}

func TestSerializeEpochAutoInternsUnknownDevice(t *testing.T) {
	s, start := newSessionWithOpenBlock(t, "protocol-1")

	e := daq.NewEpoch("protocol-1", daq.Definite(time.Second))
	e.StartTime = &start
	e.AddStimulus(daq.Stimulus{
		Device:   "never-registered",
		Duration: daq.Definite(time.Second),
		Data:     daq.NewChunk(samplesOf(1), rate(1)),
	})

	if _, err := s.SerializeEpoch(e); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if _, ok := s.devices[deviceKey("never-registered", "")]; !ok {
		t.Fatal("expected the unknown device to be auto-interned")
	}
}

func TestSerializeEpochPersistsConfigSpans(t *testing.T) {
	s, start := newSessionWithOpenBlock(t, "protocol-1")

	e := daq.NewEpoch("protocol-1", daq.Definite(time.Second))
	e.StartTime = &start
	e.AddStimulus(daq.Stimulus{
		Device:   "stim-0",
		Duration: daq.Definite(time.Second),
		Data:     daq.NewChunk(samplesOf(1), rate(1)),
		ConfigSpans: []daq.ConfigSpan{
			{Index: 0, StartTimeSeconds: 0, TimeSpanSeconds: 1, Nodes: map[string]map[string]any{"gain": {"value": 2.0}}},
		},
	})

	persisted, err := s.SerializeEpoch(e)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	stimIO := persisted.Stimuli["stim-0"]
	spans, err := s.store.ReadSpans(stimIO.Entity.UUID.String())
	if err != nil {
		t.Fatalf("read spans: %v", err)
	}
	if len(spans) != 1 || spans[0].Nodes["gain"]["value"] != 2.0 {
		t.Fatalf("got %+v, want one span with gain.value=2", spans)
	}
}
