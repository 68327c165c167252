package binary

import "testing"

func TestAppendNotePreservesInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	mustCreateGroup(t, s, "root", nil, "experiment", "exp")
	mustCreateGroup(t, s, "notes", strPtr("root"), "dataset", "notes")

	for _, text := range []string{"first", "second", "third"} {
		if err := s.AppendNote("notes", NoteRow{Text: text}); err != nil {
			t.Fatalf("append note %q: %v", text, err)
		}
	}

	rows, err := s.Notes("notes")
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, want := range []string{"first", "second", "third"} {
		if rows[i].Text != want {
			t.Fatalf("rows[%d].Text = %q, want %q", i, rows[i].Text, want)
		}
	}
}

func TestNotesEmptyDatasetReturnsNoRows(t *testing.T) {
	s := newTestStore(t)
	mustCreateGroup(t, s, "root", nil, "experiment", "exp")
	mustCreateGroup(t, s, "notes", strPtr("root"), "dataset", "notes")

	rows, err := s.Notes("notes")
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("got %d rows, want 0", len(rows))
	}
}

func TestWriteMeasurementsReplacesPriorContents(t *testing.T) {
	s := newTestStore(t)
	mustCreateGroup(t, s, "root", nil, "experiment", "exp")
	mustCreateGroup(t, s, "data", strPtr("root"), "dataset", "data")

	first := []MeasurementRow{{Quantity: 1, Unit: "V"}, {Quantity: 2, Unit: "V"}}
	if err := s.WriteMeasurements("data", first); err != nil {
		t.Fatalf("write first: %v", err)
	}

	second := []MeasurementRow{{Quantity: 9, Unit: "mV"}}
	if err := s.WriteMeasurements("data", second); err != nil {
		t.Fatalf("write second: %v", err)
	}

	got, err := s.Measurements("data")
	if err != nil {
		t.Fatalf("measurements: %v", err)
	}
	if len(got) != 1 || got[0].Quantity != 9 || got[0].Unit != "mV" {
		t.Fatalf("got %+v, want a single 9 mV row (prior contents replaced)", got)
	}
}

func TestMeasurementsPreserveStoredOrder(t *testing.T) {
	s := newTestStore(t)
	mustCreateGroup(t, s, "root", nil, "experiment", "exp")
	mustCreateGroup(t, s, "data", strPtr("root"), "dataset", "data")

	samples := []MeasurementRow{
		{Quantity: 1, Unit: "V"},
		{Quantity: 2, Unit: "V"},
		{Quantity: 3, Unit: "V"},
	}
	if err := s.WriteMeasurements("data", samples); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := s.Measurements("data")
	if err != nil {
		t.Fatalf("measurements: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d samples, want 3", len(got))
	}
	for i, want := range samples {
		if got[i].Quantity != want.Quantity {
			t.Fatalf("got[%d].Quantity = %v, want %v", i, got[i].Quantity, want.Quantity)
		}
	}
}
