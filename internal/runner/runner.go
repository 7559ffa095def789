// Package runner orchestrates strategy executions: it owns the per-run
// state machine, the ordered progress event stream, cooperative
// cancellation, and the aggregate batch summary.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/domain"
	"github.com/noah-isme/uni-timetable-api/internal/strategy"
	"github.com/noah-isme/uni-timetable-api/pkg/jobs"
)

// State is a run's lifecycle phase. Terminal states are absorbing: no
// transition ever leaves Succeeded, Failed, or Cancelled.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether the state is absorbing.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// ErrNotTerminal is returned when a result is requested before the run
// reaches a terminal state.
var ErrNotTerminal = errors.New("run has not reached a terminal state")

// Event is one ordered entry of a run's progress stream.
type Event struct {
	RunID    string `json:"run_id"`
	Sequence int    `json:"sequence"`
	strategy.ProgressEvent
}

// Handle tracks one run. Handles are independently trackable; there is no
// global in-progress flag.
type Handle struct {
	ID        string
	Algorithm string

	mu          sync.Mutex
	state       State
	startedAt   time.Time
	finishedAt  time.Time
	seq         int
	subscribers map[int]*subscriber
	nextSubID   int
	terminal    *Event
	result      *strategy.Result
	runErr      error
	cancel      context.CancelFunc
	dropped     int
	done        chan struct{}
}

type subscriber struct {
	ch   chan Event
	gone chan struct{}
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.gone) })
}

// State returns the current lifecycle phase.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// StartedAt returns the run's start timestamp, zero while pending.
func (h *Handle) StartedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startedAt
}

// FinishedAt returns the terminal timestamp, zero before termination.
func (h *Handle) FinishedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finishedAt
}

// DroppedEvents reports how many info-level events were shed under
// backpressure. Stage and terminal events are never shed.
func (h *Handle) DroppedEvents() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Result returns the run's outcome once terminal; ErrNotTerminal before.
// Cancelled runs carry their best-so-far partial result.
func (h *Handle) Result() (*strategy.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.state.Terminal() {
		return nil, ErrNotTerminal
	}
	if h.state == StateFailed {
		return nil, h.runErr
	}
	return h.result, nil
}

// Cancel requests cooperative cancellation. The run honours it at its next
// checkpoint; terminal runs ignore it.
func (h *Handle) Cancel() {
	h.mu.Lock()
	cancel := h.cancel
	terminal := h.state.Terminal()
	h.mu.Unlock()
	if !terminal && cancel != nil {
		cancel()
	}
}

// Done is closed when the run reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Subscribe attaches a consumer from the current stream position. Events
// already emitted are not replayed, except that subscribers joining after
// termination still receive the terminal event. The channel closes after
// the terminal event. Call the returned cancel func when done consuming.
func (h *Handle) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	sub := &subscriber{ch: make(chan Event, buffer), gone: make(chan struct{})}

	h.mu.Lock()
	if h.terminal != nil {
		h.mu.Unlock()
		sub.ch <- *h.terminal
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := h.nextSubID
	h.nextSubID++
	h.subscribers[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			sub.close()
		}
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// publish appends an event to the run's ordered stream and fans it out.
// Info events are dropped for slow subscribers; stage and terminal events
// block until delivered or the subscriber disconnects.
func (h *Handle) publish(ev strategy.ProgressEvent) {
	h.mu.Lock()
	h.seq++
	out := Event{RunID: h.ID, Sequence: h.seq, ProgressEvent: ev}
	if ev.Level == strategy.LevelTerminal {
		h.terminal = &out
	}
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if ev.Level == strategy.LevelInfo {
			select {
			case sub.ch <- out:
			default:
				h.mu.Lock()
				h.dropped++
				h.mu.Unlock()
			}
			continue
		}
		select {
		case sub.ch <- out:
		case <-sub.gone:
		}
	}

	if ev.Level == strategy.LevelTerminal {
		h.mu.Lock()
		for id, s := range h.subscribers {
			close(s.ch)
			s.close()
			delete(h.subscribers, id)
		}
		h.mu.Unlock()
	}
}

// transition moves the run forward, refusing any exit from a terminal
// state.
func (h *Handle) transition(next State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return false
	}
	h.state = next
	now := time.Now().UTC()
	switch next {
	case StateRunning:
		h.startedAt = now
	case StateSucceeded, StateFailed, StateCancelled:
		h.finishedAt = now
		close(h.done)
	}
	return true
}

// RunSpec describes one requested execution.
type RunSpec struct {
	Algorithm string
	Dataset   *domain.Dataset
	Params    strategy.Params
}

// Config tunes the orchestrator.
type Config struct {
	// MaxConcurrent bounds simultaneously executing runs; defaults to one
	// worker per known algorithm.
	MaxConcurrent int
	// QueueSize bounds runs waiting for a worker.
	QueueSize int
	// EventBuffer is the per-subscriber channel capacity.
	EventBuffer int
	Logger      *zap.Logger
}

// Orchestrator executes strategies on a bounded worker pool and tracks
// their handles.
type Orchestrator struct {
	logger      *zap.Logger
	queue       *jobs.Queue
	eventBuffer int

	mu   sync.RWMutex
	runs map[string]*Handle
}

type runPayload struct {
	handle *Handle
	spec   RunSpec
	strat  strategy.Strategy
	ctx    context.Context
}

// New builds an orchestrator and starts its worker pool.
func New(ctx context.Context, cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = len(strategy.Algorithms())
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.MaxConcurrent * 4
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	o := &Orchestrator{
		logger:      cfg.Logger,
		eventBuffer: cfg.EventBuffer,
		runs:        make(map[string]*Handle),
	}
	o.queue = jobs.NewQueue("optimizer-runs", o.execute, jobs.QueueConfig{
		Workers:    cfg.MaxConcurrent,
		BufferSize: cfg.QueueSize,
		Logger:     cfg.Logger,
	})
	o.queue.Start(ctx)
	return o
}

// Stop drains the worker pool.
func (o *Orchestrator) Stop() {
	o.queue.Stop()
}

// EventBuffer exposes the configured per-subscriber capacity.
func (o *Orchestrator) EventBuffer() int {
	return o.eventBuffer
}

// Start validates nothing (callers validate synchronously) and enqueues
// the run, returning its handle in Pending state.
func (o *Orchestrator) Start(ctx context.Context, spec RunSpec) (*Handle, error) {
	strat, ok := strategy.ByName(spec.Algorithm)
	if !ok {
		return nil, fmt.Errorf("unknown algorithm %q", spec.Algorithm)
	}

	runCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{
		ID:          uuid.NewString(),
		Algorithm:   spec.Algorithm,
		state:       StatePending,
		subscribers: make(map[int]*subscriber),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	o.mu.Lock()
	o.runs[handle.ID] = handle
	o.mu.Unlock()

	err := o.queue.Enqueue(jobs.Job{
		ID:      handle.ID,
		Type:    spec.Algorithm,
		Payload: &runPayload{handle: handle, spec: spec, strat: strat, ctx: runCtx},
	})
	if err != nil {
		cancel()
		o.mu.Lock()
		delete(o.runs, handle.ID)
		o.mu.Unlock()
		return nil, err
	}
	return handle, nil
}

// Get resolves a handle by run id.
func (o *Orchestrator) Get(runID string) (*Handle, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	h, ok := o.runs[runID]
	return h, ok
}

// List returns all known handles.
func (o *Orchestrator) List() []*Handle {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Handle, 0, len(o.runs))
	for _, h := range o.runs {
		out = append(out, h)
	}
	return out
}

// execute is the queue handler driving one run through its state machine.
// A strategy failure fails only its own run; sibling runs are unaffected.
func (o *Orchestrator) execute(_ context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(*runPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for job %s", job.ID)
	}
	h := payload.handle
	if !h.transition(StateRunning) {
		return nil
	}
	h.publish(strategy.ProgressEvent{
		Timestamp: time.Now().UTC(),
		Algorithm: h.Algorithm,
		Stage:     "start",
		Level:     strategy.LevelStage,
		Message:   fmt.Sprintf("run %s started", h.ID),
	})

	result, err := runStrategy(payload, h.publish)

	h.mu.Lock()
	h.result = result
	h.runErr = err
	h.mu.Unlock()

	var terminalState State
	var message string
	switch {
	case err != nil:
		terminalState = StateFailed
		message = fmt.Sprintf("run failed: %v", err)
		o.logger.Sugar().Errorw("run failed", "run_id", h.ID, "algorithm", h.Algorithm, "error", err)
	case payload.ctx.Err() != nil:
		terminalState = StateCancelled
		message = "run cancelled; best-so-far result retained"
	default:
		terminalState = StateSucceeded
		message = "run succeeded"
		if result != nil && result.Incomplete {
			message = "run succeeded (incomplete: budget exhausted)"
		}
	}
	h.transition(terminalState)

	var metrics map[string]float64
	if result != nil {
		metrics = map[string]float64{
			"hard_violations": float64(result.Evaluation.HardViolations()),
			"soft_score":      result.Evaluation.SoftScore,
			"unassigned":      float64(result.Evaluation.Unassigned),
			"iterations":      float64(result.Iterations),
		}
	}
	h.publish(strategy.ProgressEvent{
		Timestamp: time.Now().UTC(),
		Algorithm: h.Algorithm,
		Stage:     string(terminalState),
		Level:     strategy.LevelTerminal,
		Message:   message,
		Metrics:   metrics,
	})
	return err
}

// runStrategy executes one strategy, converting a panic into an error so
// the run still reaches Failed with a captured diagnostic instead of
// hanging in Running.
func runStrategy(p *runPayload, emit strategy.Emitter) (result *strategy.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()
	return p.strat.Run(p.ctx, p.spec.Dataset, p.spec.Params, emit)
}

// BatchSummary aggregates a multi-algorithm request.
type BatchSummary struct {
	Requested int      `json:"requested"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Cancelled int      `json:"cancelled"`
	RunIDs    []string `json:"run_ids"`
	Message   string   `json:"message"`
}

// StartBatch launches one run per spec. The returned channel delivers a
// single aggregate summary ("N of M algorithms succeeded") after every
// run terminates, then closes.
func (o *Orchestrator) StartBatch(ctx context.Context, specs []RunSpec) ([]*Handle, <-chan BatchSummary, error) {
	handles := make([]*Handle, 0, len(specs))
	for _, spec := range specs {
		h, err := o.Start(ctx, spec)
		if err != nil {
			for _, started := range handles {
				started.Cancel()
			}
			return nil, nil, err
		}
		handles = append(handles, h)
	}

	summaryCh := make(chan BatchSummary, 1)
	go func() {
		defer close(summaryCh)
		summary := BatchSummary{Requested: len(handles)}
		for _, h := range handles {
			<-h.Done()
			summary.RunIDs = append(summary.RunIDs, h.ID)
			switch h.State() {
			case StateSucceeded:
				summary.Succeeded++
			case StateFailed:
				summary.Failed++
			case StateCancelled:
				summary.Cancelled++
			}
		}
		summary.Message = fmt.Sprintf("%d of %d algorithms succeeded", summary.Succeeded, summary.Requested)
		o.logger.Sugar().Infow("batch complete",
			"requested", summary.Requested, "succeeded", summary.Succeeded,
			"failed", summary.Failed, "cancelled", summary.Cancelled)
		summaryCh <- summary
	}()
	return handles, summaryCh, nil
}
