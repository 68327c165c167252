package persistor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.epc")
	s, err := Create(path, "unit test run", time.Unix(0, 0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { s.store.Close() })
	return s
}

func TestAddDeviceRejectsDuplicateNameManufacturer(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.AddDevice("stim-0", "acme"); err != nil {
		t.Fatalf("add device: %v", err)
	}
	if _, err := s.AddDevice("stim-0", "acme"); err == nil {
		t.Fatal("expected a duplicate (name, manufacturer) to be rejected")
	}
	// Same name, different manufacturer is a distinct device.
	if _, err := s.AddDevice("stim-0", "other-corp"); err != nil {
		t.Fatalf("expected distinct manufacturer to be accepted, got %v", err)
	}
}

func TestAddSourceNestsUnderParent(t *testing.T) {
	s := newTestSession(t)
	parent, err := s.AddSource("animal-1", nil)
	if err != nil {
		t.Fatalf("add parent source: %v", err)
	}
	child, err := s.AddSource("session-1", &parent.UUID)
	if err != nil {
		t.Fatalf("add child source: %v", err)
	}
	if child.ParentID == nil || *child.ParentID != parent.UUID {
		t.Fatalf("expected child to be parented under %s, got %+v", parent.UUID, child.ParentID)
	}
}

func TestAddSourceUnknownParentFails(t *testing.T) {
	s := newTestSession(t)
	unknown := uuid.New()
	if _, err := s.AddSource("orphan", &unknown); err == nil {
		t.Fatal("expected an error for an unknown parent source")
	}
}

func TestBeginEndEpochGroupStackDiscipline(t *testing.T) {
	s := newTestSession(t)
	src, err := s.AddSource("animal-1", nil)
	if err != nil {
		t.Fatalf("add source: %v", err)
	}
	start := time.Unix(100, 0)
	g1, err := s.BeginEpochGroup("outer", src.UUID, start)
	if err != nil {
		t.Fatalf("begin outer group: %v", err)
	}
	g2, err := s.BeginEpochGroup("inner", src.UUID, start)
	if err != nil {
		t.Fatalf("begin inner group: %v", err)
	}
	if g2.ParentID == nil || *g2.ParentID != g1.UUID {
		t.Fatalf("expected inner group parented under outer, got %+v", g2.ParentID)
	}

	// EndEpochGroup always ends the top of the stack: the inner group first,
	// then the outer one; a third call with nothing open must fail.
	if err := s.EndEpochGroup(start.Add(time.Second)); err != nil {
		t.Fatalf("end inner group: %v", err)
	}
	if err := s.EndEpochGroup(start.Add(2 * time.Second)); err != nil {
		t.Fatalf("end outer group: %v", err)
	}
	if err := s.EndEpochGroup(start.Add(3 * time.Second)); err == nil {
		t.Fatal("expected ending a group with nothing open to fail")
	}
}

func TestEndEpochGroupFailsWhileBlockOpen(t *testing.T) {
	s := newTestSession(t)
	src, err := s.AddSource("animal-1", nil)
	if err != nil {
		t.Fatalf("add source: %v", err)
	}
	start := time.Unix(100, 0)
	if _, err := s.BeginEpochGroup("g1", src.UUID, start); err != nil {
		t.Fatalf("begin group: %v", err)
	}
	if _, err := s.BeginEpochBlock("protocol-1", start); err != nil {
		t.Fatalf("begin block: %v", err)
	}
	if err := s.EndEpochGroup(start.Add(time.Second)); err == nil {
		t.Fatal("expected ending the group to fail while a block is open")
	}
	if err := s.EndEpochBlock(start.Add(time.Second)); err != nil {
		t.Fatalf("end block: %v", err)
	}
	if err := s.EndEpochGroup(start.Add(2 * time.Second)); err != nil {
		t.Fatalf("end group after block closed: %v", err)
	}
}

func TestBeginEpochBlockRequiresOpenGroup(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.BeginEpochBlock("protocol-1", time.Unix(0, 0)); err == nil {
		t.Fatal("expected begin_epoch_block to fail with no open group")
	}
}

func TestBeginEpochBlockRejectsSecondOpenBlock(t *testing.T) {
	s := newTestSession(t)
	src, err := s.AddSource("animal-1", nil)
	if err != nil {
		t.Fatalf("add source: %v", err)
	}
	start := time.Unix(0, 0)
	if _, err := s.BeginEpochGroup("g1", src.UUID, start); err != nil {
		t.Fatalf("begin group: %v", err)
	}
	if _, err := s.BeginEpochBlock("protocol-1", start); err != nil {
		t.Fatalf("begin first block: %v", err)
	}
	if _, err := s.BeginEpochBlock("protocol-2", start); err == nil {
		t.Fatal("expected a second open block to be rejected")
	}
}
