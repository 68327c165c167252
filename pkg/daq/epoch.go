package daq

import (
	"fmt"
	"sort"
	"time"
)

// Device identifies an external stimulator/recorder uniquely by name within
// a Controller's device registry. Manufacturer is carried for the
// persistor's (name, manufacturer) identity but plays no role in
// Controller-side uniqueness.
type Device struct {
	Name         string
	Manufacturer string
}

// EpochDuration distinguishes a definite (tick-counted) duration from an
// indefinite Epoch. Equality requires both the Indefinite flag and the tick
// count to match.
type EpochDuration struct {
	Indefinite bool
	Value      time.Duration
}

// Definite constructs a finite EpochDuration.
func Definite(d time.Duration) EpochDuration { return EpochDuration{Value: d} }

// Indefinite constructs the sentinel indefinite EpochDuration.
func Indefinite() EpochDuration { return EpochDuration{Indefinite: true} }

// Equal reports whether two durations match in both flag and tick count.
func (d EpochDuration) Equal(other EpochDuration) bool {
	if d.Indefinite != other.Indefinite {
		return false
	}
	return d.Indefinite || d.Value == other.Value
}

func (d EpochDuration) String() string {
	if d.Indefinite {
		return "indefinite"
	}
	return d.Value.String()
}

// ConfigSpan is a contiguous interval within a stimulus/response during which
// pipeline-node configuration is constant.
type ConfigSpan struct {
	Index            int
	StartTimeSeconds float64
	TimeSpanSeconds  float64
	Nodes            map[string]map[string]any
}

// Stimulus is the outgoing data source bound to one device for the life of
// an Epoch. Data holds the precomputed samples; once Data is exhausted,
// definite or indefinite, PullOutputData falls back to the device's
// Background (the stimulus-generation library that would synthesize
// indefinite output is an out-of-scope collaborator).
type Stimulus struct {
	Device      string
	Duration    EpochDuration
	Data        Chunk
	consumed    time.Duration
	ConfigSpans []ConfigSpan
}

// Response is the incoming data sink bound to one device for the life of an
// Epoch. Data.Duration grows monotonically as chunks are appended and must
// never exceed the owning Epoch's duration — enforced by the Controller's
// split arithmetic, not by Response itself.
type Response struct {
	Device      string
	Data        Chunk
	ConfigSpans []ConfigSpan
}

func (r *Response) append(head Chunk) {
	if len(head.Samples) > 0 {
		r.Data.Samples = append(r.Data.Samples, head.Samples...)
	}
	r.Data.Duration += head.Duration
	if r.Data.SampleRate.QuantityInBaseUnit == 0 {
		r.Data.SampleRate = head.SampleRate
	}
}

// Background is the steady-state value a device outputs in the absence of
// an active stimulus.
type Background struct {
	Device string
	Value  Measurement
}

// OutputConfigEvent records one did_output_data call.
type OutputConfigEvent struct {
	Device     string
	OutputTime time.Time
	Duration   time.Duration
	Configs    map[string]map[string]any
}

// Epoch is the per-trial container: stimuli (outgoing), responses
// (incoming buffers), backgrounds, protocol parameters, keywords, and
// timing.
type Epoch struct {
	ProtocolID         string
	StartTime          *time.Time
	Duration           EpochDuration
	Stimuli            map[string]*Stimulus
	Responses          map[string]*Response
	Backgrounds        map[string]*Background
	ProtocolParameters map[string]any
	Keywords           map[string]struct{}

	outputLog []OutputConfigEvent
}

// NewEpoch constructs an empty Epoch for the given protocol and duration.
func NewEpoch(protocolID string, duration EpochDuration) *Epoch {
	return &Epoch{
		ProtocolID:         protocolID,
		Duration:           duration,
		Stimuli:            make(map[string]*Stimulus),
		Responses:          make(map[string]*Response),
		Backgrounds:        make(map[string]*Background),
		ProtocolParameters: make(map[string]any),
		Keywords:           make(map[string]struct{}),
	}
}

// AddStimulus registers a stimulus for device.
func (e *Epoch) AddStimulus(s Stimulus) {
	cp := s
	e.Stimuli[s.Device] = &cp
}

// AddResponse registers an (initially empty) response buffer for device.
func (e *Epoch) AddResponse(device string, sampleRate Measurement) {
	e.Responses[device] = &Response{Device: device, Data: Chunk{SampleRate: sampleRate}}
}

// AddBackground registers the steady-state background value for device.
func (e *Epoch) AddBackground(b Background) {
	cp := b
	e.Backgrounds[b.Device] = &cp
}

// AddKeyword adds a keyword; repeated adds are idempotent, matching the
// persisted Entity keyword set's semantics.
func (e *Epoch) AddKeyword(k string) {
	if e.Keywords == nil {
		e.Keywords = make(map[string]struct{})
	}
	e.Keywords[k] = struct{}{}
}

// SortedKeywords returns the Epoch's keywords in sorted order.
func (e *Epoch) SortedKeywords() []string {
	out := make([]string, 0, len(e.Keywords))
	for k := range e.Keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PullOutputData consumes up to requested duration from device's stimulus.
// Returns ok=false only when no stimulus is registered for device. While
// stimulus data remains it returns a positive-duration chunk, possibly
// shorter than requested; once the precomputed stimulus is exhausted,
// output falls back to the device's Background value for the full requested
// duration. If the stimulus is exhausted and the device has no Background,
// it returns an empty, zero-duration chunk with ok=true.
func (e *Epoch) PullOutputData(device string, requested time.Duration) (Chunk, bool) {
	stim, ok := e.Stimuli[device]
	if !ok {
		return Chunk{}, false
	}
	remaining := stim.Data.Duration - stim.consumed
	if remaining > 0 {
		take := requested
		if take > remaining {
			take = remaining
		}
		_, rest := stim.Data.Split(stim.consumed)
		head, _ := rest.Split(take)
		stim.consumed += take
		if head.Duration > 0 {
			return head, true
		}
	}
	if bg, ok := e.Backgrounds[device]; ok {
		return backgroundChunk(bg.Value, requested), true
	}
	return Chunk{}, true
}

func backgroundChunk(value Measurement, duration time.Duration) Chunk {
	return Chunk{
		Samples:    []Measurement{value},
		SampleRate: value,
		Duration:   duration,
	}
}

// AppendResponseData appends head to device's response buffer. The caller
// (the Controller's input lane) is responsible for never appending past
// epoch.Duration.
func (e *Epoch) AppendResponseData(device string, head Chunk) error {
	r, ok := e.Responses[device]
	if !ok {
		return fmt.Errorf("daq: no response registered for device %q", device)
	}
	r.append(head)
	return nil
}

// RecordOutputConfig appends an output-configuration log entry
// (did_output_data). It is a no-op once the Epoch is complete.
func (e *Epoch) RecordOutputConfig(device string, outputTime time.Time, duration time.Duration, configs map[string]map[string]any) {
	if e.IsComplete() {
		return
	}
	e.outputLog = append(e.outputLog, OutputConfigEvent{
		Device:     device,
		OutputTime: outputTime,
		Duration:   duration,
		Configs:    configs,
	})
}

// OutputLog returns the recorded did_output_data events in call order.
func (e *Epoch) OutputLog() []OutputConfigEvent {
	return append([]OutputConfigEvent(nil), e.outputLog...)
}

// IsComplete reports whether every registered response has accumulated at
// least the Epoch's duration. An indefinite Epoch is never complete.
func (e *Epoch) IsComplete() bool {
	if e.Duration.Indefinite {
		return false
	}
	for _, r := range e.Responses {
		if r.Data.Duration < e.Duration.Value {
			return false
		}
	}
	return true
}

// ResponseDevices returns the set of device names with a registered response,
// in sorted order (used by validation and tests wanting a stable order).
func (e *Epoch) ResponseDevices() []string {
	out := make([]string, 0, len(e.Responses))
	for d := range e.Responses {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// ValidateShape rejects an indefinite Epoch with at least one response, and
// any stimulus whose duration does not exactly match the Epoch's duration.
func (e *Epoch) ValidateShape() error {
	if e.Duration.Indefinite && len(e.Responses) > 0 {
		return fmt.Errorf("daq: indefinite epoch %q must not declare responses", e.ProtocolID)
	}
	for device, stim := range e.Stimuli {
		if !stim.Duration.Equal(e.Duration) {
			return fmt.Errorf("daq: stimulus for device %q has duration %s, epoch duration is %s", device, stim.Duration, e.Duration)
		}
	}
	return nil
}
