package persistor

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAddThenRemoveKeywordLeavesNoKeywordsAttribute(t *testing.T) {
	s := newTestSession(t)
	src, err := s.AddSource("animal-1", nil)
	if err != nil {
		t.Fatalf("add source: %v", err)
	}

	if err := s.AddKeyword(src.UUID, "control"); err != nil {
		t.Fatalf("add keyword: %v", err)
	}
	var joined string
	ok, err := s.store.GetAttribute(src.UUID.String(), "keywords", &joined)
	if err != nil {
		t.Fatalf("get attribute: %v", err)
	}
	if !ok || joined != "control" {
		t.Fatalf("expected keywords attribute %q, got ok=%v value=%q", "control", ok, joined)
	}

	if err := s.RemoveKeyword(src.UUID, "control"); err != nil {
		t.Fatalf("remove keyword: %v", err)
	}
	ok, err = s.store.GetAttribute(src.UUID.String(), "keywords", &joined)
	if err != nil {
		t.Fatalf("get attribute after removal: %v", err)
	}
	if ok {
		t.Fatalf("expected keywords attribute to be deleted once the set is empty, got %q", joined)
	}
}

func TestAddKeywordUnknownEntityFails(t *testing.T) {
	s := newTestSession(t)
	if err := s.AddKeyword(uuid.New(), "control"); err == nil {
		t.Fatal("expected adding a keyword to an unknown entity to fail")
	}
}

func TestAddNotePersistsToStore(t *testing.T) {
	s := newTestSession(t)
	src, err := s.AddSource("animal-1", nil)
	if err != nil {
		t.Fatalf("add source: %v", err)
	}
	at := time.Unix(100, 0)
	if err := s.AddNote(src.UUID, at, "started recording"); err != nil {
		t.Fatalf("add note: %v", err)
	}

	notes, err := s.store.Notes(src.UUID.String())
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	if len(notes) != 1 || notes[0].Text != "started recording" {
		t.Fatalf("expected one persisted note, got %+v", notes)
	}
}
