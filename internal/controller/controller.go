// Package controller implements the Epoch Runtime: the Controller that
// pulls stimuli, pushes responses, manages the current/queued Epochs, fans
// out events, and dispatches completed Epochs to persistence on a serial
// worker.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"epochcore/internal/observability"
	"epochcore/pkg/daq"
)

// Persistor is the subset of the Hierarchical Persistor the Controller
// depends on: committing one completed Epoch to durable storage.
// internal/persistor's Session implements it.
type Persistor interface {
	Serialize(e *daq.Epoch) error
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithLogger overrides the controller's logger (default: a no-op logger).
func WithLogger(log observability.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithClock overrides the controller's time source (default: SystemClock).
func WithClock(clock daq.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithMetrics attaches a Prometheus recorder used to observe persist queue
// depth, persist duration, and epoch completion/discard counts.
func WithMetrics(rec *observability.PrometheusRecorder) Option {
	return func(c *Controller) { c.metrics = rec }
}

// WithExpvarMetrics attaches an expvar recorder used to observe run_epoch
// and persist_epoch outcomes and durations alongside the Prometheus
// recorder.
func WithExpvarMetrics(rec *observability.ExpvarMetricsRecorder) Option {
	return func(c *Controller) { c.expvar = rec }
}

// WithRules overrides the Epoch-shape rules engine (default: the built-in
// set registered by daq.NewDefaultEpochRulesEngine).
func WithRules(engine *daq.EpochRulesEngine) Option {
	return func(c *Controller) { c.rules = engine }
}

// WithHierarchicalBackend binds the persistor-group backend selected for
// ".hdf5"/".h5" paths by begin_epoch_group/end_epoch_group.
func WithHierarchicalBackend(backend GroupBackend) Option {
	return func(c *Controller) { c.hierarchical = backend }
}

// runState tracks the bookkeeping of exactly one in-flight run_epoch call.
// Field writes that must be visible to the goroutine observing ctx
// cancellation are made strictly before the corresponding cancel() call —
// see Controller.PushInputData — relying on the happens-before edge the
// context package guarantees between a cancel and any Done() observer.
type runState struct {
	epoch            *daq.Epoch
	cancel           context.CancelFunc
	persistSubmitted atomic.Bool
	persistResult    <-chan error
}

// Controller is the Epoch Runtime. Zero value is not usable; construct
// with New.
type Controller struct {
	log     observability.Logger
	clock   daq.Clock
	daq     DAQController
	rules   *daq.EpochRulesEngine
	metrics *observability.PrometheusRecorder
	expvar  *observability.ExpvarMetricsRecorder

	hierarchical GroupBackend

	devicesMu sync.RWMutex
	devices   map[string]daq.Device
	lanes     map[string]*inputLane

	queueMu sync.Mutex
	queue   []*daq.Epoch

	current atomic.Pointer[daq.Epoch]

	runMu sync.Mutex
	run   *runState

	bus    *eventBus
	worker *persistWorker

	// activePersistor is set for the duration of one RunEpoch call and read
	// only from the DAQ callback goroutines RunEpoch itself drives.
	activePersistor Persistor
}

// New constructs a Controller bound to daqCtrl. The persistence worker
// starts immediately and runs for the Controller's lifetime; call Close to
// stop it.
func New(daqCtrl DAQController, opts ...Option) *Controller {
	c := &Controller{
		daq:     daqCtrl,
		clock:   daq.SystemClock{},
		log:     observability.NoopLogger{},
		rules:   daq.NewDefaultEpochRulesEngine(),
		devices: make(map[string]daq.Device),
		lanes:   make(map[string]*inputLane),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.bus = newEventBus(c.log)
	c.worker = newPersistWorker(context.Background(), c.metrics)
	return c
}

// Close stops the persistence worker, waiting for any in-flight task.
func (c *Controller) Close() error {
	return c.worker.Close()
}

// Subscribe registers an observer for Controller events and returns an
// unsubscribe function.
func (c *Controller) Subscribe(o daq.Observer) (unsubscribe func()) {
	return c.bus.Subscribe(o)
}

// AddDevice registers d. Fails with DuplicateDeviceError if a device with
// the same name is already registered. Devices are never implicitly
// removed.
func (c *Controller) AddDevice(d daq.Device) error {
	c.devicesMu.Lock()
	defer c.devicesMu.Unlock()
	if _, exists := c.devices[d.Name]; exists {
		return DuplicateDeviceError{Name: d.Name}
	}
	c.devices[d.Name] = d
	c.lanes[d.Name] = newInputLane()
	return nil
}

// Validate confirms the controller is wired up: clock and DAQ present, and
// every registered device is well-formed. Device back-pointers are
// self-contained by name in this implementation, so there is nothing to
// re-bind; repeated validation has no effect once devices are addressed by
// value.
func (c *Controller) Validate() error {
	if c.clock == nil {
		return ErrClockMissing
	}
	if c.daq == nil {
		return ErrDAQMissing
	}
	c.devicesMu.RLock()
	defer c.devicesMu.RUnlock()
	for name, d := range c.devices {
		if d.Name != name {
			return fmt.Errorf("controller: device registry key %q does not match device name %q", name, d.Name)
		}
	}
	return nil
}

// EnqueueEpoch validates e's shape against the rules engine and appends it
// to the FIFO queue.
func (c *Controller) EnqueueEpoch(e *daq.Epoch) error {
	if err := e.ValidateShape(); err != nil {
		return err
	}
	if res := c.rules.Evaluate(e); res.HasBlocking() {
		return res.Error()
	}
	c.queueMu.Lock()
	c.queue = append(c.queue, e)
	c.queueMu.Unlock()
	return nil
}

func (c *Controller) popQueue() (*daq.Epoch, bool) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	e := c.queue[0]
	c.queue = c.queue[1:]
	return e, true
}

func (c *Controller) laneFor(device string) *inputLane {
	c.devicesMu.RLock()
	defer c.devicesMu.RUnlock()
	return c.lanes[device]
}

func (c *Controller) resetLanes() {
	c.devicesMu.RLock()
	defer c.devicesMu.RUnlock()
	for _, l := range c.lanes {
		l.reset()
	}
}

func (c *Controller) currentRun() *runState {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.run
}

// PullOutputData implements DAQHost. Returns ok=false if there is no
// current Epoch, or if the current Epoch has no stimulus registered for
// device.
func (c *Controller) PullOutputData(device string, requested time.Duration) (daq.Chunk, bool) {
	e := c.current.Load()
	if e == nil {
		return daq.Chunk{}, false
	}
	return e.PullOutputData(device, requested)
}

// PushInputData implements DAQHost, routing chunk through device's
// input-lane split algorithm.
func (c *Controller) PushInputData(device string, chunk daq.Chunk) {
	c.bus.Emit(daq.Event{Type: daq.EventReceivedInputData, Timestamp: c.clock.Now(), Device: device, Chunk: chunk})

	e := c.current.Load()
	if e == nil {
		return
	}
	if _, ok := e.Responses[device]; !ok {
		return
	}

	lane := c.laneFor(device)
	if lane == nil {
		return
	}
	lane.mu.Lock()
	err := lane.drain(e, device, chunk)
	lane.mu.Unlock()
	if err != nil {
		c.log.Error("input lane invariant violation", "device", device, "error", err)
		return
	}

	c.bus.Emit(daq.Event{Type: daq.EventPushedInputData, Timestamp: c.clock.Now(), Epoch: e})

	if !e.IsComplete() {
		return
	}
	rs := c.currentRun()
	if rs == nil || rs.epoch != e {
		return
	}
	if !rs.persistSubmitted.CompareAndSwap(false, true) {
		return
	}
	c.submitPersist(rs, e)
	rs.cancel()
}

func (c *Controller) submitPersist(rs *runState, e *daq.Epoch) {
	persistor := c.activePersistor
	result := c.worker.Submit(func(ctx context.Context) error {
		start := time.Now()
		err := c.runPersist(ctx, persistor, e)
		c.observe("persist_epoch", err == nil, time.Since(start))
		if err != nil {
			return err
		}
		c.incCompleted()
		return nil
	})
	rs.persistResult = result
}

func (c *Controller) runPersist(ctx context.Context, persistor Persistor, e *daq.Epoch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if persistor != nil {
		if err := persistor.Serialize(e); err != nil {
			return err
		}
	}
	now := c.clock.Now()
	c.bus.Emit(daq.Event{Type: daq.EventSavedEpoch, Timestamp: now, Epoch: e})
	c.bus.Emit(daq.Event{Type: daq.EventCompletedEpoch, Timestamp: now, Epoch: e})
	return nil
}

// incCompleted increments the completed-epoch counter if a Prometheus
// recorder is attached.
func (c *Controller) incCompleted() {
	if c.metrics != nil {
		c.metrics.EpochsCompleted.Inc()
	}
}

// incDiscarded increments the discarded-epoch counter if a Prometheus
// recorder is attached.
func (c *Controller) incDiscarded() {
	if c.metrics != nil {
		c.metrics.EpochsDiscarded.Inc()
	}
}

// observe forwards to the expvar recorder if one is attached.
func (c *Controller) observe(operation string, success bool, d time.Duration) {
	if c.expvar != nil {
		c.expvar.Observe(operation, success, d)
	}
}

// DidOutputData implements DAQHost.
func (c *Controller) DidOutputData(device string, outputTime time.Time, duration time.Duration, configs map[string]map[string]any) {
	e := c.current.Load()
	if e == nil {
		return
	}
	e.RecordOutputConfig(device, outputTime, duration, configs)
}

// RunEpoch is the blocking entry point. It validates e, swaps it in as
// current, stamps its start time, runs the DAQ to completion, and returns
// only after the DAQ stops and — if the Epoch completed — its persistence
// task has finished.
func (c *Controller) RunEpoch(ctx context.Context, e *daq.Epoch, persistor Persistor) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := e.ValidateShape(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	rs := &runState{epoch: e, cancel: cancel}

	c.runMu.Lock()
	c.run = rs
	c.runMu.Unlock()

	c.activePersistor = persistor

	now := c.clock.Now()
	e.StartTime = &now
	c.current.Store(e)

	start := time.Now()
	runErr := c.daq.Run(runCtx, c)

	c.runMu.Lock()
	c.run = nil
	c.runMu.Unlock()
	c.resetLanes()
	cancel()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		c.observe("run_epoch", false, time.Since(start))
		c.incDiscarded()
		c.bus.Emit(daq.Event{Type: daq.EventDiscardedEpoch, Timestamp: c.clock.Now(), Epoch: e})
		return ExceptionalStopError{Cause: runErr}
	}

	if rs.persistSubmitted.Load() {
		if err := <-rs.persistResult; err != nil {
			c.observe("run_epoch", false, time.Since(start))
			return fmt.Errorf("controller: persisting epoch %q: %w", e.ProtocolID, err)
		}
	}
	c.observe("run_epoch", true, time.Since(start))
	return nil
}

// NextEpoch abandons the current Epoch and advances current_epoch to the
// next queued Epoch without starting its acquisition — the caller restarts
// the DAQ by invoking RunEpoch again.
func (c *Controller) NextEpoch() error {
	next, ok := c.popQueue()
	if !ok {
		return ErrQueueEmpty
	}
	current := c.current.Load()
	if current != nil {
		c.incDiscarded()
		c.bus.Emit(daq.Event{Type: daq.EventDiscardedEpoch, Timestamp: c.clock.Now(), Epoch: current})
	}
	c.current.Store(next)
	c.bus.Emit(daq.Event{Type: daq.EventNextEpochRequested, Timestamp: c.clock.Now(), Epoch: next})

	if rs := c.currentRun(); rs != nil {
		rs.cancel()
	}
	return nil
}

// CancelEpoch abandons the current Epoch and requests the DAQ stop, without
// advancing to any queued Epoch.
func (c *Controller) CancelEpoch() error {
	current := c.current.Load()
	if current == nil {
		return ErrNoCurrentEpoch
	}
	c.incDiscarded()
	c.bus.Emit(daq.Event{Type: daq.EventDiscardedEpoch, Timestamp: c.clock.Now(), Epoch: current})
	c.current.Store(nil)

	if rs := c.currentRun(); rs != nil {
		rs.cancel()
	}
	return nil
}

// BeginEpochGroup dispatches to the persistor backend selected by path's
// suffix.
func (c *Controller) BeginEpochGroup(path, label, source string) error {
	backend, err := SelectGroupBackend(path, c.hierarchical)
	if err != nil {
		return err
	}
	return backend.BeginEpochGroup(label, source)
}

// EndEpochGroup dispatches to the persistor backend selected by path's
// suffix.
func (c *Controller) EndEpochGroup(path string) error {
	backend, err := SelectGroupBackend(path, c.hierarchical)
	if err != nil {
		return err
	}
	return backend.EndEpochGroup()
}
