package pipeline

import (
	"context"
	"strings"
	"sync"

	"holders-backend/internal/cadence"
	"holders-backend/internal/epoch"
	"holders-backend/internal/fetcher"
	"holders-backend/internal/history"
	"holders-backend/internal/models"
	"holders-backend/internal/scheduler"
	"holders-backend/internal/series"
	"holders-backend/internal/stats"
	"holders-backend/internal/utils"
)

// Renderer is the chart view the series is pushed to
type Renderer interface {
	SetSeries(samples []models.Sample) error
	ScrollToLatest() error
	PublishStatus(status models.Status) error
}

// MetadataLookup resolves display metadata; it never fails
type MetadataLookup interface {
	Lookup(ctx context.Context, id string) models.TokenMetadata
}

// Coordinator wires the epoch controller, aggregator, scheduler and store
// together and handles subject and cadence changes.
type Coordinator struct {
	config    Config
	epochs    *epoch.Controller
	store     *series.Store
	owners    *stats.OwnerSketch
	scheduler *scheduler.Scheduler
	renderer  Renderer
	metadata  MetadataLookup
	history   *history.History

	// serializes subject and cadence changes
	changeMu sync.Mutex

	mu          sync.RWMutex
	ctx         context.Context
	md          models.TokenMetadata
	viewErr     error
	seriesDirty bool
	started     bool
	wg          sync.WaitGroup

	// wake coalesces render requests for the render loop
	wake     chan struct{}
	quit     chan struct{}
	stopOnce sync.Once
	renderWg sync.WaitGroup
}

// NewCoordinator creates a coordinator reading pages from source. hist may
// be nil. opts are passed through to the scheduler.
func NewCoordinator(config Config, source fetcher.PageSource, renderer Renderer, metadata MetadataLookup, hist *history.History, opts ...scheduler.Option) *Coordinator {
	if config.Subject == "" {
		config.Subject = DefaultSubject
	}

	epochs := epoch.New(config.Subject)
	store := series.NewStore(config.Capacity)
	owners := stats.NewOwnerSketch()
	aggregator := fetcher.NewAggregator(config.Fetcher, source, epochs)

	opts = append([]scheduler.Option{scheduler.WithOwnerSketch(owners)}, opts...)
	sched := scheduler.NewScheduler(config.Scheduler, epochs, aggregator, store, series.NewClock(nil), opts...)

	c := &Coordinator{
		config:    config,
		epochs:    epochs,
		store:     store,
		owners:    owners,
		scheduler: sched,
		renderer:  renderer,
		metadata:  metadata,
		history:   hist,
		ctx:       context.Background(),
		md:        models.PlaceholderMetadata(config.Subject),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	sched.SetOnChange(c.onSchedulerEvent)
	return c
}

// Start resolves metadata for the initial subject and runs the first cycle
func (c *Coordinator) Start(ctx context.Context) {
	utils.PipelineLogger.Info("Starting pipeline for %s", utils.ShortAddress(c.epochs.Subject()))

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx = ctx
	c.mu.Unlock()

	c.renderWg.Add(1)
	go c.renderLoop(ctx)

	c.refreshMetadata(c.epochs.Current(), false)
	c.scheduler.Start(ctx)
}

// Stop shuts the scheduler and the render loop down and waits for metadata
// lookups to finish
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.scheduler.Stop()
		close(c.quit)
		c.renderWg.Wait()
		c.wg.Wait()
		utils.PipelineLogger.Info("Pipeline stopped")
	})
}

// SetSubject switches tracking to a new token. The series, the timestamp
// floor and the polling state are reset and a fresh cycle starts at once.
// Results of the previous subject still in flight are discarded.
func (c *Coordinator) SetSubject(subject string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return utils.NewAppError(utils.ErrorTypeValidation, "EMPTY_SUBJECT", "subject is required", "PIPELINE")
	}
	if c.config.ValidateSubjects && !utils.IsValidAddress(subject) {
		return utils.NewAppError(utils.ErrorTypeValidation, "BAD_SUBJECT", "subject is not a valid token address", "PIPELINE").
			WithDetails(subject)
	}

	c.changeMu.Lock()
	defer c.changeMu.Unlock()

	if subject == c.epochs.Subject() {
		return nil
	}

	utils.PipelineLogger.Info("Subject changed: %s -> %s",
		utils.ShortAddress(c.epochs.Subject()), utils.ShortAddress(subject))

	c.epochs.Bump(subject)
	token := c.epochs.Current()

	c.mu.Lock()
	c.md = models.PlaceholderMetadata(subject)
	c.mu.Unlock()

	c.scheduler.Reset()
	c.refreshMetadata(token, true)
	c.scheduler.TriggerNow()
	return nil
}

// SetCadence changes the sampling timeframe. The series is kept; any cycle
// in flight is invalidated and a fresh one starts at once.
func (c *Coordinator) SetCadence(cad string) error {
	if !cadence.IsOption(cad) {
		return utils.NewAppError(utils.ErrorTypeValidation, "BAD_CADENCE", "unsupported cadence", "PIPELINE").
			WithDetails(cad)
	}

	c.changeMu.Lock()
	defer c.changeMu.Unlock()

	if cad == c.scheduler.Cadence() {
		return nil
	}

	c.epochs.Bump("")
	c.scheduler.SetCadence(cad)
	c.scheduler.TriggerNow()
	c.requestRender(false)
	return nil
}

// Subject returns the tracked token
func (c *Coordinator) Subject() string {
	return c.epochs.Subject()
}

// Cadence returns the current timeframe
func (c *Coordinator) Cadence() string {
	return c.scheduler.Cadence()
}

// Metadata returns the current display metadata
func (c *Coordinator) Metadata() models.TokenMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.md
}

// History returns the search history, or nil if none is configured
func (c *Coordinator) History() *history.History {
	return c.history
}

// Snapshot returns a copy of the current series
func (c *Coordinator) Snapshot() []models.Sample {
	return c.store.Snapshot()
}

// Status returns the externally visible tracker state
func (c *Coordinator) Status() models.Status {
	state := c.scheduler.State()
	token := c.epochs.Current()

	c.mu.RLock()
	md := c.md
	viewErr := c.viewErr
	c.mu.RUnlock()

	status := models.Status{
		Subject:        token.Subject,
		ShortSubject:   utils.ShortAddress(token.Subject),
		Cadence:        state.Cadence,
		IntervalMs:     cadence.Interval(state.Cadence).Milliseconds(),
		Epoch:          token.Counter,
		InFlight:       state.InFlight,
		InitialLoading: state.InitialLoading,
		LastKnownValue: state.LastKnownValue,
		HasValue:       state.HasValue,
		Cycles:         state.Cycles,
		Points:         c.store.Len(),
		HoldersSeen:    c.owners.Estimate(),
		Metadata:       md,
	}
	if state.LastError != nil {
		status.Error = state.LastError.Error()
		status.ErrorKind = string(utils.GetErrorType(state.LastError))
	}
	if viewErr != nil {
		status.ViewError = viewErr.Error()
	}
	if !state.LastFetch.IsZero() {
		t := state.LastFetch
		status.LastFetch = &t
	}
	return status
}

func (c *Coordinator) onSchedulerEvent(ev scheduler.Event) {
	c.requestRender(ev.SeriesChanged)
}

// requestRender schedules a render pass without blocking the caller
func (c *Coordinator) requestRender(series bool) {
	if series {
		c.mu.Lock()
		c.seriesDirty = true
		c.mu.Unlock()
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// renderLoop is the only caller of the renderer. Each pass reads the store
// and status as they are when the pass runs, so a view update can never be
// overtaken by an older one.
func (c *Coordinator) renderLoop(ctx context.Context) {
	defer c.renderWg.Done()
	for {
		select {
		case <-c.quit:
			return
		case <-ctx.Done():
			return
		case <-c.wake:
		}

		c.mu.Lock()
		series := c.seriesDirty
		c.seriesDirty = false
		c.mu.Unlock()

		if series {
			c.render()
		}
		c.publishStatus()
	}
}

// render pushes the whole series to the view. View failures are recorded and
// never stop polling.
func (c *Coordinator) render() {
	err := c.renderer.SetSeries(c.store.Snapshot())
	if err == nil {
		err = c.renderer.ScrollToLatest()
	}

	c.mu.Lock()
	c.viewErr = err
	c.mu.Unlock()

	if err != nil {
		utils.LogError(err, utils.PipelineLogger, "Failed to render series")
	}
}

func (c *Coordinator) publishStatus() {
	if err := c.renderer.PublishStatus(c.Status()); err != nil {
		utils.PipelineLogger.Debug("Failed to publish status: %v", err)
	}
}

// refreshMetadata resolves metadata for token.Subject in the background and
// applies it only if that subject is still tracked. Cadence changes do not
// invalidate it.
func (c *Coordinator) refreshMetadata(token epoch.Token, record bool) {
	c.mu.RLock()
	ctx := c.ctx
	c.mu.RUnlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		md := c.metadata.Lookup(ctx, token.Subject)
		c.mu.Lock()
		applied := c.epochs.Subject() == token.Subject
		if applied {
			c.md = md
		}
		c.mu.Unlock()
		if !applied {
			utils.PipelineLogger.Debug("Discarding metadata for %s", token)
			return
		}
		c.requestRender(false)

		if record && c.history != nil {
			if _, err := c.history.Add(ctx, md); err != nil {
				utils.LogError(err, utils.PipelineLogger, "Failed to record history")
			}
		}
	}()
}
