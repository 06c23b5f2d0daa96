package funnel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Defaults holds the controller-level fallbacks applied when a RunConfig
// leaves a knob unset.
type Defaults struct {
	RecordLimit     int
	CompositionMode string
	Channels        []model.Channel
	Variations      []string
	DryRun          bool
	Workers         int
}

// Deps wires the controller's collaborators. Composer handles the default
// composition mode; Composers holds alternates selectable per run.
type Deps struct {
	Store     store.Store
	Source    Source
	Enricher  Enricher
	Composer  Composer
	Composers map[string]Composer
	Channels  map[model.Channel]Channel
	Limiter   *resilience.WindowLimiter
	Policy    resilience.Policy

	// AcquireTimeout bounds each limiter wait in Deliver; zero blocks
	// until a slot frees.
	AcquireTimeout time.Duration

	Defaults Defaults
}

// Controller owns run exclusivity and executes the four funnel stages in a
// single background goroutine. Start, Cancel and Status never block on
// pipeline work.
type Controller struct {
	deps Deps

	mu     sync.Mutex
	snap   model.RunSnapshot
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates a Controller. Deps.Limiter and Deps.Policy must be
// set; Defaults are normalized here.
func NewController(deps Deps) *Controller {
	if deps.Defaults.RecordLimit <= 0 {
		deps.Defaults.RecordLimit = 200
	}
	if len(deps.Defaults.Channels) == 0 {
		deps.Defaults.Channels = []model.Channel{model.ChannelEmail, model.ChannelLinkedIn}
	}
	if len(deps.Defaults.Variations) == 0 {
		deps.Defaults.Variations = []string{"A"}
	}
	if deps.Defaults.Workers <= 0 {
		deps.Defaults.Workers = 4
	}
	return &Controller{deps: deps}
}

// Start launches a run in the background and returns its ID. Exactly one
// run may be in flight: a second Start fails with ErrAlreadyRunning.
func (c *Controller) Start(cfg RunConfig) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap.Running {
		return "", ErrAlreadyRunning
	}

	cfg = c.applyDefaults(cfg)
	if _, err := c.composerFor(cfg.CompositionMode); err != nil {
		return "", err
	}
	runID := uuid.New().String()
	now := time.Now().UTC()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.snap = model.RunSnapshot{
		Running:      true,
		RunID:        runID,
		CurrentStage: model.StageCapture,
		StartedAt:    &now,
	}

	go c.execute(ctx, runID, cfg)
	return runID, nil
}

// Cancel requests a cooperative stop of the in-flight run.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.snap.Running {
		return ErrNotRunning
	}
	c.snap.Canceled = true
	c.cancel()
	return nil
}

// Status returns a copy of the current run snapshot.
func (c *Controller) Status() model.RunSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Wait blocks until the in-flight run (if any) finishes.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Metrics reads a consistent funnel snapshot from the store.
func (c *Controller) Metrics(ctx context.Context) (*model.Metrics, error) {
	return c.deps.Store.Metrics(ctx)
}

func (c *Controller) applyDefaults(cfg RunConfig) RunConfig {
	d := c.deps.Defaults
	if cfg.RecordLimit <= 0 {
		cfg.RecordLimit = d.RecordLimit
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = d.Channels
	}
	if len(cfg.Variations) == 0 {
		cfg.Variations = d.Variations
	}
	if cfg.DryRun == nil {
		dryRun := d.DryRun
		cfg.DryRun = &dryRun
	}
	if cfg.CompositionMode == "" {
		cfg.CompositionMode = d.CompositionMode
	}
	return cfg
}

// composerFor resolves a run's composition mode. The empty mode and the
// configured default both map to the default composer.
func (c *Controller) composerFor(mode string) (Composer, error) {
	if alt, ok := c.deps.Composers[mode]; ok {
		return alt, nil
	}
	if mode == "" || mode == c.deps.Defaults.CompositionMode {
		return c.deps.Composer, nil
	}
	return nil, eris.Wrapf(ErrUnknownMode, "%q", mode)
}

// execute runs the four stages in order and records the outcome in the
// snapshot. Partial mutations from a failed or canceled run are kept; the
// next run resumes them by status selection.
func (c *Controller) execute(ctx context.Context, runID string, cfg RunConfig) {
	defer func() {
		c.mu.Lock()
		now := time.Now().UTC()
		c.snap.Running = false
		c.snap.FinishedAt = &now
		c.cancel = nil
		close(c.done)
		c.mu.Unlock()
	}()

	log := zap.L().With(zap.String("run_id", runID))
	log.Info("run started",
		zap.Int("record_limit", cfg.RecordLimit),
		zap.Bool("dry_run", *cfg.DryRun),
	)

	start := time.Now()
	for _, stage := range stageOrder {
		c.setStage(stage)
		stats, err := c.runStage(ctx, stage, cfg)
		if err != nil {
			if eris.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Warn("run canceled", zap.String("stage", string(stage)))
				return
			}
			c.setError(err)
			log.Error("run aborted",
				zap.String("stage", string(stage)),
				zap.Error(err),
			)
			return
		}
		log.Info("stage complete",
			zap.String("stage", string(stage)),
			zap.Int("processed", stats.Processed),
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("failed", stats.Failed),
		)
	}

	c.setProgressDone()
	log.Info("run complete", zap.Duration("elapsed", time.Since(start)))
}

func (c *Controller) runStage(ctx context.Context, stage model.Stage, cfg RunConfig) (model.StageStats, error) {
	progress := c.progressFor(stage)
	workers := c.deps.Defaults.Workers

	switch stage {
	case model.StageCapture:
		s := &capture{store: c.deps.Store, source: c.deps.Source}
		return s.run(ctx, cfg.RecordLimit, progress)
	case model.StageEnrich:
		s := &enrich{store: c.deps.Store, enricher: c.deps.Enricher, workers: workers}
		return s.run(ctx, progress)
	case model.StageCompose:
		composer, err := c.composerFor(cfg.CompositionMode)
		if err != nil {
			return model.StageStats{}, err
		}
		s := &compose{
			store:      c.deps.Store,
			composer:   composer,
			channels:   cfg.Channels,
			variations: cfg.Variations,
			workers:    workers,
		}
		return s.run(ctx, progress)
	case model.StageDeliver:
		s := &deliver{
			store:          c.deps.Store,
			channels:       c.deps.Channels,
			limiter:        c.deps.Limiter,
			policy:         c.deps.Policy,
			acquireTimeout: c.deps.AcquireTimeout,
			workers:        workers,
			dryRun:         *cfg.DryRun,
		}
		return s.run(ctx, progress)
	}
	return model.StageStats{}, eris.Errorf("funnel: unknown stage %s", stage)
}

func (c *Controller) setStage(stage model.Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.CurrentStage = stage
	c.snap.ProgressPercent = progressBase(stage)
}

func (c *Controller) setError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Error = err.Error()
}

func (c *Controller) setProgressDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.ProgressPercent = 100
}

// progressFor returns a callback mapping a stage's batch completion onto
// the weighted overall progress scale. Pool workers bump the processed
// counter and publish separately, so reports can arrive out of order; the
// snapshot only ever moves forward.
func (c *Controller) progressFor(stage model.Stage) progressFunc {
	base := progressBase(stage)
	weight := stageWeights[stage]
	return func(processed, total int) {
		pct := base
		if total > 0 {
			pct = base + weight*processed/total
		} else {
			pct = base + weight
		}
		c.mu.Lock()
		if pct > c.snap.ProgressPercent {
			c.snap.ProgressPercent = pct
		}
		c.mu.Unlock()
	}
}

// progressBase is the cumulative weight of the stages before this one.
func progressBase(stage model.Stage) int {
	base := 0
	for _, s := range stageOrder {
		if s == stage {
			return base
		}
		base += stageWeights[s]
	}
	return base
}
