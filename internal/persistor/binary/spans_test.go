package binary

import "testing"

func TestWriteReadSpansRoundTripSortedByIndex(t *testing.T) {
	s := newTestStore(t)
	mustCreateGroup(t, s, "root", nil, "experiment", "exp")
	mustCreateGroup(t, s, "io", strPtr("root"), "io", "stim-0")

	spans := []ConfigSpanAttrs{
		{
			Index:            1,
			StartTimeSeconds: 1.5,
			TimeSpanSeconds:  0.5,
			Nodes: map[string]map[string]any{
				"filter": {"cutoffHz": 100.0},
			},
		},
		{
			Index:            0,
			StartTimeSeconds: 0,
			TimeSpanSeconds:  1.5,
			Nodes: map[string]map[string]any{
				"gain": {"value": 2.0},
			},
		},
	}

	if err := s.WriteSpans("io", spans); err != nil {
		t.Fatalf("write spans: %v", err)
	}

	got, err := s.ReadSpans("io")
	if err != nil {
		t.Fatalf("read spans: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d spans, want 2", len(got))
	}
	if got[0].Index != 0 || got[1].Index != 1 {
		t.Fatalf("expected spans sorted by index ascending, got indices %d, %d", got[0].Index, got[1].Index)
	}
	if got[0].Nodes["gain"]["value"] != 2.0 {
		t.Fatalf("span 0 node attrs = %+v, want gain.value=2", got[0].Nodes)
	}
	if got[1].Nodes["filter"]["cutoffHz"] != 100.0 {
		t.Fatalf("span 1 node attrs = %+v, want filter.cutoffHz=100", got[1].Nodes)
	}
}

func TestReadSpansEmptyWhenNeverWritten(t *testing.T) {
	s := newTestStore(t)
	mustCreateGroup(t, s, "root", nil, "experiment", "exp")
	mustCreateGroup(t, s, "io", strPtr("root"), "io", "stim-0")

	got, err := s.ReadSpans("io")
	if err != nil {
		t.Fatalf("read spans: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d spans, want 0", len(got))
	}
}

func TestWriteSpansReplacesPriorSpans(t *testing.T) {
	s := newTestStore(t)
	mustCreateGroup(t, s, "root", nil, "experiment", "exp")
	mustCreateGroup(t, s, "io", strPtr("root"), "io", "stim-0")

	if err := s.WriteSpans("io", []ConfigSpanAttrs{{Index: 0, StartTimeSeconds: 0, TimeSpanSeconds: 1}}); err != nil {
		t.Fatalf("write first: %v", err)
	}
	if err := s.WriteSpans("io", []ConfigSpanAttrs{{Index: 0, StartTimeSeconds: 5, TimeSpanSeconds: 2}}); err != nil {
		t.Fatalf("write second: %v", err)
	}

	got, err := s.ReadSpans("io")
	if err != nil {
		t.Fatalf("read spans: %v", err)
	}
	if len(got) != 1 || got[0].StartTimeSeconds != 5 {
		t.Fatalf("got %+v, want a single span with StartTimeSeconds=5", got)
	}
}
