package scheduler

import (
	"context"
	"sync"
	"time"

	"holders-backend/internal/cadence"
	"holders-backend/internal/epoch"
	"holders-backend/internal/fetcher"
	"holders-backend/internal/models"
	"holders-backend/internal/series"
	"holders-backend/internal/stats"
	"holders-backend/internal/utils"
)

// Config holds scheduler configuration
type Config struct {
	Cadence string `json:"cadence" yaml:"cadence"` // initial sampling timeframe (default: 1s)
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Cadence: cadence.Default,
	}
}

// Phase is the scheduler's position in its state machine
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
	PhaseStopped  Phase = "stopped"
)

// Collector runs one aggregation pass for the subject of token
type Collector interface {
	Collect(ctx context.Context, token epoch.Token) ([]models.HolderRecord, error)
}

// Epochs is the part of the epoch controller the scheduler depends on
type Epochs interface {
	Current() epoch.Token
	CommitIf(t epoch.Token, commit func()) bool
}

// Timer is a pending single-shot timer
type Timer interface {
	Stop() bool
}

// AfterFunc arms a single-shot timer calling f after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// State is a snapshot of the polling state
type State struct {
	Phase          Phase         `json:"phase"`
	InFlight       bool          `json:"inFlight"`
	InitialLoading bool          `json:"initialLoading"`
	LastKnownValue int64         `json:"lastKnownValue"`
	HasValue       bool          `json:"hasValue"`
	LastError      error         `json:"-"`
	Cycles         int64         `json:"cycles"`
	LastFetch      time.Time     `json:"lastFetch"`
	Cadence        string        `json:"cadence"`
	Interval       time.Duration `json:"interval"`
	TimerArmed     bool          `json:"timerArmed"`
}

// Event is emitted after every change to the series or polling state
type Event struct {
	SeriesChanged bool
	State         State
}

// Option customizes a Scheduler
type Option func(*Scheduler)

// WithAfterFunc replaces the timer implementation
func WithAfterFunc(f AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = f }
}

// WithNow replaces the wall clock used for LastFetch
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithOwnerSketch records every committed owner set in sketch
func WithOwnerSketch(sketch *stats.OwnerSketch) Option {
	return func(s *Scheduler) { s.owners = sketch }
}

// Scheduler runs sampling cycles (aggregate → count → timestamp → append)
// and reschedules itself from the current cadence.
//
// At most one cycle is in flight and at most one timer is pending. A cycle
// commits only if its epoch token is still current at completion; the check
// and the commit are atomic with respect to epoch bumps.
type Scheduler struct {
	config    Config
	epochs    Epochs
	collector Collector
	store     *series.Store
	clock     *series.Clock
	owners    *stats.OwnerSketch
	afterFunc AfterFunc
	now       func() time.Time

	mu             sync.Mutex
	ctx            context.Context
	cadence        string
	timer          Timer
	timerGen       uint64
	interval       time.Duration
	inFlight       bool
	pending        bool
	started        bool
	stopped        bool
	initialLoading bool
	lastKnown      int64
	hasValue       bool
	lastErr        error
	cycles         int64
	lastFetch      time.Time
	onChange       func(Event)
	stopCh         chan struct{}

	wg       sync.WaitGroup
	watching sync.WaitGroup
}

// NewScheduler creates a scheduler committing into store with timestamps
// from clock.
func NewScheduler(config Config, epochs Epochs, collector Collector, store *series.Store, clock *series.Clock, opts ...Option) *Scheduler {
	if config.Cadence == "" {
		config.Cadence = cadence.Default
	}
	s := &Scheduler{
		config:         config,
		epochs:         epochs,
		collector:      collector,
		store:          store,
		clock:          clock,
		afterFunc:      realAfterFunc,
		now:            time.Now,
		ctx:            context.Background(),
		cadence:        config.Cadence,
		initialLoading: true,
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetOnChange registers the function called after every committed change.
// It is called without the scheduler lock held.
func (s *Scheduler) SetOnChange(fn func(Event)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Start runs the first cycle immediately. The scheduler stops when ctx is
// done. In-flight provider calls are never cancelled by ctx; their results
// are discarded instead.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx = context.WithoutCancel(ctx)
	utils.SchedulerLogger.Info("Starting with cadence %s (%v)", s.cadence, cadence.Interval(s.cadence))
	s.startCycleLocked()
	s.mu.Unlock()

	s.watching.Add(1)
	go func() {
		defer s.watching.Done()
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopCh:
		}
	}()
}

// Stop cancels the pending timer. Cycles still in flight finish but their
// results are discarded. Stop is terminal.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.cancelTimerLocked()
	utils.SchedulerLogger.Info("Shutting down")
}

// Wait blocks until no cycle is in flight
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// TriggerNow cancels any pending timer and starts a cycle immediately.
// If a cycle is already in flight no second cycle is launched: the owed
// cycle starts as soon as the in-flight one completes.
func (s *Scheduler) TriggerNow() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.cancelTimerLocked()
	if s.inFlight {
		utils.SchedulerLogger.Debug("Cycle in flight, deferring forced trigger")
		s.pending = true
		return
	}
	s.startCycleLocked()
}

// SetCadence changes the timeframe used by the next reschedule. It does not
// touch the pending timer; callers trigger a fresh cycle after bumping the
// epoch.
func (s *Scheduler) SetCadence(c string) {
	s.mu.Lock()
	s.cadence = c
	s.mu.Unlock()
	utils.SchedulerLogger.Info("Cadence set to %s (%v)", c, cadence.Interval(c))
}

// Cadence returns the current timeframe
func (s *Scheduler) Cadence() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cadence
}

// Reset clears the series, the timestamp floor, the owner sketch and the
// polling state for a new subject. An in-flight cycle keeps its single-flight
// slot; its result will fail the epoch check.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.store.Reset()
	s.clock.Reset()
	if s.owners != nil {
		s.owners.Reset()
	}
	s.initialLoading = true
	s.lastKnown = 0
	s.hasValue = false
	s.lastErr = nil
	s.cycles = 0
	s.lastFetch = time.Time{}
	ev := Event{SeriesChanged: true, State: s.stateLocked()}
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(ev)
	}
}

// State returns a snapshot of the polling state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Scheduler) stateLocked() State {
	phase := PhaseIdle
	switch {
	case s.stopped:
		phase = PhaseStopped
	case s.inFlight:
		phase = PhaseFetching
	}
	return State{
		Phase:          phase,
		InFlight:       s.inFlight,
		InitialLoading: s.initialLoading,
		LastKnownValue: s.lastKnown,
		HasValue:       s.hasValue,
		LastError:      s.lastErr,
		Cycles:         s.cycles,
		LastFetch:      s.lastFetch,
		Cadence:        s.cadence,
		Interval:       s.interval,
		TimerArmed:     s.timer != nil,
	}
}

func (s *Scheduler) startCycleLocked() {
	s.cancelTimerLocked()
	s.inFlight = true
	s.cycles++
	token := s.epochs.Current()
	ctx := s.ctx

	utils.SchedulerLogger.Debug("Cycle %d starting for %s", s.cycles, token)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		records, err := s.collector.Collect(ctx, token)
		s.complete(token, records, err)
	}()
}

func (s *Scheduler) complete(token epoch.Token, records []models.HolderRecord, err error) {
	s.mu.Lock()
	s.inFlight = false

	if s.stopped {
		s.mu.Unlock()
		utils.SchedulerLogger.Debug("Discarding cycle %s after shutdown", token)
		return
	}

	seriesChanged := false
	committed := s.epochs.CommitIf(token, func() {
		seriesChanged = s.applyLocked(records, err)
	})

	if !committed {
		utils.SchedulerLogger.Debug("Discarding stale cycle %s", token)
		// the event that invalidated this cycle owns the next one
		if s.pending {
			s.pending = false
			s.startCycleLocked()
		}
		s.mu.Unlock()
		return
	}

	s.rescheduleLocked()
	ev := Event{SeriesChanged: seriesChanged, State: s.stateLocked()}
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(ev)
	}
}

// applyLocked commits a validated cycle result. Returns true if the series
// gained a sample.
func (s *Scheduler) applyLocked(records []models.HolderRecord, err error) bool {
	if err != nil {
		s.lastErr = err
		s.initialLoading = false
		utils.LogError(err, utils.SchedulerLogger, "Failed to fetch holder count")

		if !s.hasValue {
			return false
		}
		// carry the last known value forward so the chart has no gap
		return s.store.Append(models.Sample{Time: s.clock.Next(), Value: s.lastKnown})
	}

	if len(records) == 0 {
		utils.SchedulerLogger.Debug("No token accounts returned, nothing to commit")
		return false
	}

	owners := fetcher.QualifyingOwners(records)
	count := int64(len(owners))

	s.lastKnown = count
	s.hasValue = true
	s.lastErr = nil
	s.initialLoading = false
	s.lastFetch = s.now()
	if s.owners != nil {
		s.owners.Observe(owners)
	}

	utils.SchedulerLogger.Debug("Unique holders: %d", count)
	return s.store.Append(models.Sample{Time: s.clock.Next(), Value: count})
}

// rescheduleLocked reads the cadence now, not when the cycle started, so the
// latest selection always wins.
func (s *Scheduler) rescheduleLocked() {
	if s.pending {
		s.pending = false
		s.startCycleLocked()
		return
	}
	s.armLocked(cadence.Interval(s.cadence))
}

func (s *Scheduler) armLocked(d time.Duration) {
	s.cancelTimerLocked()
	gen := s.timerGen
	s.interval = d
	s.timer = s.afterFunc(d, func() { s.fire(gen) })
	utils.SchedulerLogger.Debug("Next cycle in %v (cadence %s)", d, s.cadence)
}

// cancelTimerLocked stops the pending timer and invalidates any callback
// that already fired but has not yet acquired the lock.
func (s *Scheduler) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || gen != s.timerGen {
		return
	}
	s.timer = nil
	if s.inFlight {
		s.pending = true
		return
	}
	s.startCycleLocked()
}
