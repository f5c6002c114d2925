package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holders-backend/internal/epoch"
	"holders-backend/internal/models"
	"holders-backend/internal/series"
	"holders-backend/internal/stats"
)

type fakeTimer struct {
	mu      *sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fakeTimers records every armed timer; tests fire them by hand
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{mu: &f.mu, d: d, f: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *fakeTimers) last() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.timers) == 0 {
		return nil
	}
	return f.timers[len(f.timers)-1]
}

type result struct {
	records []models.HolderRecord
	err     error
}

// scriptedCollector answers calls from a fixed script, repeating the last entry
type scriptedCollector struct {
	mu     sync.Mutex
	script []result
	tokens []epoch.Token
}

func (c *scriptedCollector) Collect(_ context.Context, token epoch.Token) ([]models.HolderRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, token)
	r := c.script[0]
	if len(c.script) > 1 {
		c.script = c.script[1:]
	}
	return r.records, r.err
}

func (c *scriptedCollector) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}

// gatedCollector blocks every call until the test releases it
type gatedCollector struct {
	mu      sync.Mutex
	tokens  []epoch.Token
	started chan epoch.Token
	release chan result
}

func newGatedCollector() *gatedCollector {
	return &gatedCollector{
		started: make(chan epoch.Token, 16),
		release: make(chan result),
	}
}

func (c *gatedCollector) Collect(_ context.Context, token epoch.Token) ([]models.HolderRecord, error) {
	c.mu.Lock()
	c.tokens = append(c.tokens, token)
	c.mu.Unlock()

	c.started <- token
	r := <-c.release
	return r.records, r.err
}

func (c *gatedCollector) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}

func (c *gatedCollector) awaitStart(t *testing.T) epoch.Token {
	t.Helper()
	select {
	case token := <-c.started:
		return token
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not start")
		return epoch.Token{}
	}
}

func owners(n int) []models.HolderRecord {
	records := make([]models.HolderRecord, n)
	for i := range records {
		records[i] = models.HolderRecord{
			Owner:  fmt.Sprintf("owner-%d", i),
			Amount: decimal.NewFromInt(1),
		}
	}
	return records
}

type harness struct {
	ctrl   *epoch.Controller
	store  *series.Store
	timers *fakeTimers
	sketch *stats.OwnerSketch
	sched  *Scheduler
}

func newHarness(collector Collector) *harness {
	fixed := time.Unix(1_700_000_000, 0)
	h := &harness{
		ctrl:   epoch.New("mint-a"),
		store:  series.NewStore(series.DefaultCapacity),
		timers: &fakeTimers{},
		sketch: stats.NewOwnerSketch(),
	}
	h.sched = NewScheduler(DefaultConfig(), h.ctrl, collector, h.store,
		series.NewClock(func() time.Time { return fixed }),
		WithAfterFunc(h.timers.AfterFunc),
		WithOwnerSketch(h.sketch),
		WithNow(func() time.Time { return fixed }),
	)
	return h
}

func TestCycleCommitsCountAndArmsTimer(t *testing.T) {
	collector := &scriptedCollector{script: []result{{records: owners(42)}}}
	h := newHarness(collector)

	h.sched.Start(context.Background())
	h.sched.Wait()

	samples := h.store.Snapshot()
	require.Len(t, samples, 1)
	assert.Equal(t, int64(42), samples[0].Value)
	assert.Equal(t, int64(1_700_000_000), samples[0].Time)

	require.Equal(t, 1, h.timers.count())
	assert.Equal(t, time.Second, h.timers.last().d)

	state := h.sched.State()
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.True(t, state.HasValue)
	assert.False(t, state.InitialLoading)
	assert.True(t, state.TimerArmed)
	assert.Equal(t, int64(42), state.LastKnownValue)
	assert.Equal(t, uint64(42), h.sketch.Estimate())
}

func TestFailedCycleCarriesLastValueForward(t *testing.T) {
	boom := errors.New("provider down")
	collector := &scriptedCollector{script: []result{
		{records: owners(42)},
		{err: boom},
	}}
	h := newHarness(collector)

	h.sched.Start(context.Background())
	h.sched.Wait()

	h.timers.last().f()
	h.sched.Wait()

	samples := h.store.Snapshot()
	require.Len(t, samples, 2)
	assert.Equal(t, int64(42), samples[1].Value)
	assert.Greater(t, samples[1].Time, samples[0].Time)

	state := h.sched.State()
	assert.ErrorIs(t, state.LastError, boom)
	assert.Equal(t, 2, h.timers.count(), "a failed cycle still reschedules")
}

func TestFailedCycleWithoutValueCommitsNothing(t *testing.T) {
	collector := &scriptedCollector{script: []result{{err: errors.New("timeout")}}}
	h := newHarness(collector)

	h.sched.Start(context.Background())
	h.sched.Wait()

	assert.Equal(t, 0, h.store.Len())
	assert.Error(t, h.sched.State().LastError)
	assert.Equal(t, 1, h.timers.count())
}

func TestEmptyResultCommitsNothingButReschedules(t *testing.T) {
	collector := &scriptedCollector{script: []result{{}}}
	h := newHarness(collector)

	h.sched.Start(context.Background())
	h.sched.Wait()

	assert.Equal(t, 0, h.store.Len())
	assert.False(t, h.sched.State().HasValue)
	assert.Equal(t, 1, h.timers.count())
}

func TestStaleCycleIsDiscarded(t *testing.T) {
	collector := newGatedCollector()
	h := newHarness(collector)

	h.sched.Start(context.Background())
	first := collector.awaitStart(t)
	assert.Equal(t, "mint-a", first.Subject)

	h.ctrl.Bump("mint-b")
	h.sched.Reset()
	h.sched.TriggerNow()
	assert.Equal(t, 1, collector.calls(), "no second cycle while one is in flight")

	collector.release <- result{records: owners(100)}

	second := collector.awaitStart(t)
	assert.Equal(t, "mint-b", second.Subject)
	collector.release <- result{records: owners(7)}
	h.sched.Wait()

	samples := h.store.Snapshot()
	require.Len(t, samples, 1, "the stale result must not reach the store")
	assert.Equal(t, int64(7), samples[0].Value)
	assert.Equal(t, uint64(7), h.sketch.Estimate())
}

func TestStaleFailureIsDiscarded(t *testing.T) {
	collector := newGatedCollector()
	h := newHarness(collector)

	h.sched.Start(context.Background())
	collector.awaitStart(t)
	collector.release <- result{records: owners(5)}
	h.sched.Wait()

	h.timers.last().f()
	collector.awaitStart(t)
	h.ctrl.Bump("")
	collector.release <- result{err: errors.New("late failure")}
	h.sched.Wait()

	assert.Equal(t, 1, h.store.Len(), "no fallback sample for a stale failure")
	assert.NoError(t, h.sched.State().LastError)
}

func TestCadenceChangeArmsNewInterval(t *testing.T) {
	collector := &scriptedCollector{script: []result{{records: owners(3)}}}
	h := newHarness(collector)

	h.sched.Start(context.Background())
	h.sched.Wait()
	firstTimer := h.timers.last()
	assert.Equal(t, time.Second, firstTimer.d)

	h.sched.SetCadence("5m")
	h.ctrl.Bump("")
	h.sched.TriggerNow()
	h.sched.Wait()

	assert.True(t, firstTimer.isStopped(), "the old timer is cancelled")
	assert.Equal(t, int64(300000), h.timers.last().d.Milliseconds())
	assert.Equal(t, "5m", h.sched.Cadence())
	assert.Equal(t, 5*time.Minute, h.sched.State().Interval)
}

func TestTriggerWhileInFlightRunsOneOwedCycle(t *testing.T) {
	collector := newGatedCollector()
	h := newHarness(collector)

	h.sched.Start(context.Background())
	collector.awaitStart(t)

	h.sched.TriggerNow()
	h.sched.TriggerNow()

	state := h.sched.State()
	assert.True(t, state.InFlight)
	assert.Equal(t, PhaseFetching, state.Phase)
	assert.Equal(t, 1, collector.calls())

	collector.release <- result{records: owners(2)}
	collector.awaitStart(t)
	assert.Equal(t, 0, h.timers.count(), "the owed cycle starts without arming a timer")

	collector.release <- result{records: owners(3)}
	h.sched.Wait()

	assert.Equal(t, 2, collector.calls())
	assert.Equal(t, 1, h.timers.count())
	assert.Equal(t, 2, h.store.Len())
}

func TestCancelledTimerCallbackIsIgnored(t *testing.T) {
	collector := &scriptedCollector{script: []result{{records: owners(1)}}}
	h := newHarness(collector)

	h.sched.Start(context.Background())
	h.sched.Wait()
	stale := h.timers.last()

	h.sched.TriggerNow()
	h.sched.Wait()
	require.Equal(t, 2, collector.calls())

	stale.f()
	h.sched.Wait()
	assert.Equal(t, 2, collector.calls())
}

func TestStopDiscardsInFlightCycle(t *testing.T) {
	collector := newGatedCollector()
	h := newHarness(collector)

	h.sched.Start(context.Background())
	collector.awaitStart(t)

	h.sched.Stop()
	collector.release <- result{records: owners(9)}
	h.sched.Wait()

	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, 0, h.timers.count())
	assert.Equal(t, PhaseStopped, h.sched.State().Phase)

	h.sched.TriggerNow()
	assert.Equal(t, 1, collector.calls())
}

func TestContextCancellationStops(t *testing.T) {
	collector := &scriptedCollector{script: []result{{records: owners(1)}}}
	h := newHarness(collector)

	ctx, cancel := context.WithCancel(context.Background())
	h.sched.Start(ctx)
	h.sched.Wait()
	timer := h.timers.last()

	cancel()
	assert.Eventually(t, func() bool {
		return h.sched.State().Phase == PhaseStopped
	}, time.Second, 5*time.Millisecond)
	assert.True(t, timer.isStopped())
}

func TestStopReleasesContextWatcher(t *testing.T) {
	collector := &scriptedCollector{script: []result{{records: owners(1)}}}
	h := newHarness(collector)

	h.sched.Start(context.Background())
	h.sched.Wait()
	h.sched.Stop()

	exited := make(chan struct{})
	go func() {
		h.sched.watching.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("context watcher still running after Stop")
	}
}

func TestResetClearsState(t *testing.T) {
	collector := &scriptedCollector{script: []result{{records: owners(4)}}}
	h := newHarness(collector)

	var events []Event
	var mu sync.Mutex
	h.sched.SetOnChange(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	h.sched.Start(context.Background())
	h.sched.Wait()
	require.Equal(t, 1, h.store.Len())

	h.sched.Reset()

	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, uint64(0), h.sketch.Estimate())
	state := h.sched.State()
	assert.False(t, state.HasValue)
	assert.True(t, state.InitialLoading)
	assert.Zero(t, state.Cycles)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.True(t, events[0].SeriesChanged)
	assert.Equal(t, int64(4), events[0].State.LastKnownValue)
	assert.True(t, events[1].SeriesChanged)
}
