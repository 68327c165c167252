package daq

import (
	"testing"
	"time"
)

func TestEpochPullOutputDataFallsBackToBackground(t *testing.T) {
	e := NewEpoch("p1", Definite(2*time.Second))
	e.AddStimulus(Stimulus{
		Device:   "stim",
		Duration: Definite(2 * time.Second),
		Data:     NewChunk(samplesOf(1, 1), rate(1)),
	})
	e.AddBackground(Background{Device: "stim", Value: NewMeasurement(0, "V", "V", 0)})

	chunk, ok := e.PullOutputData("stim", time.Second)
	if !ok || chunk.Duration != time.Second {
		t.Fatalf("first pull: chunk=%+v ok=%v, want 1s chunk", chunk, ok)
	}
	chunk, ok = e.PullOutputData("stim", time.Second)
	if !ok || chunk.Duration != time.Second {
		t.Fatalf("second pull: chunk=%+v ok=%v, want 1s chunk", chunk, ok)
	}
	// Stimulus now exhausted; further pulls fall back to background.
	chunk, ok = e.PullOutputData("stim", time.Second)
	if !ok || chunk.Duration != time.Second || len(chunk.Samples) != 1 {
		t.Fatalf("background fallback: chunk=%+v ok=%v, want background chunk", chunk, ok)
	}
}

func TestEpochPullOutputDataNoStimulusReturnsFalse(t *testing.T) {
	e := NewEpoch("p1", Definite(time.Second))
	if _, ok := e.PullOutputData("unknown", time.Second); ok {
		t.Fatal("expected ok=false for a device with no stimulus")
	}
}

func TestEpochIsCompleteMonotonic(t *testing.T) {
	e := NewEpoch("p1", Definite(2*time.Second))
	e.AddResponse("resp", rate(1))
	if e.IsComplete() {
		t.Fatal("epoch with an empty response should not be complete")
	}
	if err := e.AppendResponseData("resp", NewChunk(samplesOf(1), rate(1))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if e.IsComplete() {
		t.Fatal("epoch at half duration should not be complete")
	}
	if err := e.AppendResponseData("resp", NewChunk(samplesOf(1), rate(1))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if !e.IsComplete() {
		t.Fatal("epoch at full duration should be complete")
	}
}

func TestEpochIndefiniteNeverCompletes(t *testing.T) {
	e := NewEpoch("p1", Indefinite())
	if e.IsComplete() {
		t.Fatal("indefinite epoch must never report complete")
	}
}

func TestEpochValidateShapeRejectsIndefiniteWithResponses(t *testing.T) {
	e := NewEpoch("p1", Indefinite())
	e.AddResponse("resp", rate(1))
	if err := e.ValidateShape(); err == nil {
		t.Fatal("expected an error for an indefinite epoch with a response")
	}
}

func TestEpochValidateShapeRejectsMismatchedStimulusDuration(t *testing.T) {
	e := NewEpoch("p1", Definite(2*time.Second))
	e.AddStimulus(Stimulus{Device: "stim", Duration: Definite(time.Second), Data: NewChunk(samplesOf(1), rate(1))})
	if err := e.ValidateShape(); err == nil {
		t.Fatal("expected an error for a stimulus duration mismatch")
	}
}

func TestEpochKeywordsAreIdempotentAndSorted(t *testing.T) {
	e := NewEpoch("p1", Definite(time.Second))
	e.AddKeyword("zebra")
	e.AddKeyword("alpha")
	e.AddKeyword("alpha")
	got := e.SortedKeywords()
	if len(got) != 2 || got[0] != "alpha" || got[1] != "zebra" {
		t.Fatalf("got %v, want [alpha zebra]", got)
	}
}

func TestEpochRecordOutputConfigNoopAfterComplete(t *testing.T) {
	e := NewEpoch("p1", Definite(time.Second))
	e.AddResponse("resp", rate(1))
	if err := e.AppendResponseData("resp", NewChunk(samplesOf(1), rate(1))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if !e.IsComplete() {
		t.Fatal("expected epoch to be complete")
	}
	e.RecordOutputConfig("dev", time.Now(), time.Second, nil)
	if len(e.OutputLog()) != 0 {
		t.Fatal("RecordOutputConfig should be a no-op once the epoch is complete")
	}
}
