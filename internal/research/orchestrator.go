package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"reelflow/internal/analysis"
	"reelflow/internal/config"
	"reelflow/internal/logging"
	"reelflow/internal/notifications"
	"reelflow/internal/services"
	"reelflow/internal/sources"
	"reelflow/internal/store"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBase      = 2 * time.Second
	defaultRetryCap       = 30 * time.Second
	defaultStalenessLimit = 60 * time.Minute
)

// Orchestrator drives research jobs from creation to a terminal phase.
type Orchestrator struct {
	store    *store.Store
	registry *sources.Registry
	analyzer analysis.Provider
	notifier notifications.Service
	logger   *slog.Logger
	inflight singleflight.Group
	sleeper  func(context.Context, time.Duration) error

	retryAttempts  int
	retryBase      time.Duration
	retryCap       time.Duration
	stalenessLimit time.Duration
	defaultDepth   string
	maxItems       int
	workspaceID    string
	userID         string

	mu      sync.Mutex
	active  map[string]string // job key -> job id
	baseCtx context.Context
	wg      sync.WaitGroup
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithSleeper overrides how retry backoff waits are performed (for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) {
		if sleeper != nil {
			o.sleeper = sleeper
		}
	}
}

// WithStalenessLimit overrides how old a raw job without data may be before
// reconciliation fails it instead of restarting collection.
func WithStalenessLimit(limit time.Duration) Option {
	return func(o *Orchestrator) {
		if limit > 0 {
			o.stalenessLimit = limit
		}
	}
}

// WithRetryPolicy overrides the retry attempt count and backoff bounds.
func WithRetryPolicy(attempts int, base, cap time.Duration) Option {
	return func(o *Orchestrator) {
		if attempts > 0 {
			o.retryAttempts = attempts
		}
		if base > 0 {
			o.retryBase = base
		}
		if cap > 0 {
			o.retryCap = cap
		}
	}
}

// NewOrchestrator wires the orchestrator against its collaborators.
func NewOrchestrator(cfg *config.Config, st *store.Store, registry *sources.Registry, analyzer analysis.Provider, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Orchestrator {
	if notifier == nil {
		notifier = notifications.Noop()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		store:          st,
		registry:       registry,
		analyzer:       analyzer,
		notifier:       notifier,
		logger:         logging.NewComponentLogger(logger, "research"),
		sleeper:        sleepContext,
		retryAttempts:  defaultRetryAttempts,
		retryBase:      defaultRetryBase,
		retryCap:       defaultRetryCap,
		stalenessLimit: defaultStalenessLimit,
		defaultDepth:   cfg.Research.AnalysisDepth,
		maxItems:       cfg.Research.MaxItems,
		workspaceID:    cfg.Identity.WorkspaceID,
		userID:         cfg.Identity.UserID,
		active:         make(map[string]string),
		baseCtx:        context.Background(),
	}
	if cfg.Research.RetryAttempts > 0 {
		o.retryAttempts = cfg.Research.RetryAttempts
	}
	if cfg.Research.RetryBaseSeconds > 0 {
		o.retryBase = time.Duration(cfg.Research.RetryBaseSeconds) * time.Second
	}
	if cfg.Research.RetryMaxDelaySecond > 0 {
		o.retryCap = time.Duration(cfg.Research.RetryMaxDelaySecond) * time.Second
	}
	if cfg.Research.StalenessMinutes > 0 {
		o.stalenessLimit = time.Duration(cfg.Research.StalenessMinutes) * time.Minute
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start binds the orchestrator's background work to a lifecycle context and
// runs the reconciliation sweep for jobs a previous run left behind.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.baseCtx = ctx
	o.mu.Unlock()
	return o.reconcile(ctx)
}

// StartOptions carries the optional parameters for a job start.
type StartOptions struct {
	AnalysisDepth string
	MaxItems      int
}

// StartJob creates a research job and runs collect/analyze in the
// background. While a job for the same (source, query) key is in flight, a
// duplicate start returns the existing job id instead of spending a second
// round of external API calls.
func (o *Orchestrator) StartJob(ctx context.Context, source store.Source, query string, opts StartOptions) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", services.Wrap(services.ErrPermanent, "research", "start", "query required", nil)
	}
	if _, err := o.registry.Provider(source); err != nil {
		return "", services.Wrap(services.ErrPermanent, "research", "start", err.Error(), nil)
	}

	key := store.ResearchKey(source, query)
	jobID, err, _ := o.inflight.Do(key, func() (any, error) {
		o.mu.Lock()
		if existing, ok := o.active[key]; ok {
			o.mu.Unlock()
			return existing, nil
		}
		o.mu.Unlock()

		// A raw-phase row not in the registry is a job from a previous
		// daemon run awaiting reconcile. Return it instead of stacking a
		// duplicate.
		if existing, err := o.store.FindActiveResearchJob(ctx, source, query); err != nil {
			return "", err
		} else if existing != nil {
			return existing.ID, nil
		}

		depth := opts.AnalysisDepth
		if depth == "" {
			depth = o.defaultDepth
		}
		job, err := o.store.NewResearchJob(ctx, source, query, depth, o.workspaceID, o.userID)
		if err != nil {
			return "", err
		}
		o.launch(job, opts.MaxItems, false)
		return job.ID, nil
	})
	if err != nil {
		return "", err
	}
	return jobID.(string), nil
}

// launch registers a job as active and spawns its background run.
func (o *Orchestrator) launch(job *store.ResearchJob, maxItems int, resumeAnalysis bool) {
	o.mu.Lock()
	key := job.Key()
	o.active[key] = job.ID
	ctx := o.baseCtx
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.active, key)
			o.mu.Unlock()
		}()
		o.run(services.WithJobID(ctx, job.ID), job, maxItems, resumeAnalysis)
	}()
}

// run executes collect then analyze for one job and records the terminal
// phase. It never panics or propagates past the goroutine; every failure
// ends as a failed phase with a readable reason.
func (o *Orchestrator) run(ctx context.Context, job *store.ResearchJob, maxItems int, resumeAnalysis bool) {
	log := o.logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSource, string(job.Source)),
	)
	if maxItems <= 0 {
		maxItems = o.maxItems
	}

	dataset, err := o.obtainDataset(ctx, job, maxItems, resumeAnalysis, log)
	if err != nil {
		o.fail(ctx, job, fmt.Sprintf("collection failed: %v", err), log)
		return
	}

	var result *analysis.AnalysisResult
	err = o.withRetry(ctx, "analyze", log, func() error {
		var analyzeErr error
		result, analyzeErr = o.analyzer.Analyze(ctx, dataset, job.AnalysisDepth)
		return analyzeErr
	})
	if err != nil {
		o.fail(ctx, job, fmt.Sprintf("analysis failed: %v", err), log)
		return
	}

	analyzed, err := json.Marshal(result)
	if err != nil {
		o.fail(ctx, job, fmt.Sprintf("encode analysis: %v", err), log)
		return
	}
	if err := o.store.MarkResearchAnalyzed(ctx, job.ID, string(analyzed)); err != nil {
		log.Error("record analyzed phase", logging.Error(err))
		return
	}
	log.Info("research job analyzed", logging.Int("insights", len(result.Insights)))
	if notifyErr := o.notifier.NotifyResearchAnalyzed(ctx, job.Source, job.Query, len(result.Insights)); notifyErr != nil {
		log.Debug("research notification failed", logging.Error(notifyErr))
	}
}

// obtainDataset reuses persisted raw data on resume and collects fresh data
// otherwise. Collection results are persisted before analysis so a crash
// between the phases can resume without a second collector round.
func (o *Orchestrator) obtainDataset(ctx context.Context, job *store.ResearchJob, maxItems int, resumeAnalysis bool, log *slog.Logger) (*sources.RawDataset, error) {
	if resumeAnalysis && job.RawData != "" {
		var dataset sources.RawDataset
		if err := json.Unmarshal([]byte(job.RawData), &dataset); err == nil && len(dataset.Items) > 0 {
			log.Info("resuming analysis from persisted raw data")
			return &dataset, nil
		}
		log.Warn("persisted raw data unusable, collecting fresh")
	}

	provider, err := o.registry.Provider(job.Source)
	if err != nil {
		return nil, err
	}

	var dataset *sources.RawDataset
	err = o.withRetry(ctx, "collect", log, func() error {
		var collectErr error
		dataset, collectErr = provider.Collect(ctx, job.Query, maxItems)
		return collectErr
	})
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(dataset)
	if err != nil {
		return nil, fmt.Errorf("encode raw data: %w", err)
	}
	if err := o.store.SetResearchRawData(ctx, job.ID, string(encoded)); err != nil {
		return nil, err
	}
	return dataset, nil
}

// withRetry runs op up to the configured attempt count with exponential
// backoff on transient errors. Permanent errors surface immediately.
func (o *Orchestrator) withRetry(ctx context.Context, opName string, log *slog.Logger, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= o.retryAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !services.IsRetryable(lastErr) || attempt == o.retryAttempts {
			break
		}
		delay := o.backoff(attempt)
		log.Warn("retrying after transient failure",
			logging.String("op", opName),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(lastErr),
		)
		if err := o.sleeper(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// backoff computes the delay before the attempt after the given one:
// base, base*2, base*4, ..., capped.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	delay := o.retryBase
	for i := 1; i < attempt; i++ {
		if delay > o.retryCap/2 {
			return o.retryCap
		}
		delay *= 2
	}
	if delay > o.retryCap {
		return o.retryCap
	}
	return delay
}

func (o *Orchestrator) fail(ctx context.Context, job *store.ResearchJob, reason string, log *slog.Logger) {
	if err := o.store.MarkResearchFailed(ctx, job.ID, reason); err != nil {
		log.Error("record failed phase", logging.Error(err))
		return
	}
	log.Warn("research job failed", logging.String("reason", reason))
	if notifyErr := o.notifier.NotifyResearchFailed(ctx, job.Source, job.Query, reason); notifyErr != nil {
		log.Debug("failure notification failed", logging.Error(notifyErr))
	}
}

// reconcile resolves jobs left in phase raw by a previous daemon run: jobs
// with persisted raw data resume analysis, fresh jobs without data restart
// collection, and anything older than the staleness limit is failed.
func (o *Orchestrator) reconcile(ctx context.Context) error {
	jobs, err := o.store.RawResearchJobs(ctx)
	if err != nil {
		return fmt.Errorf("load raw jobs: %w", err)
	}
	now := time.Now().UTC()
	for _, job := range jobs {
		log := o.logger.With(logging.String(logging.FieldJobID, job.ID))
		age := now.Sub(job.CreatedAt)
		switch {
		case job.RawData != "":
			log.Info("reconcile: resuming analysis", logging.Duration("age", age))
			o.launch(job, 0, true)
		case age > o.stalenessLimit:
			reason := fmt.Sprintf("abandoned before collection completed (stale for %s)", age.Round(time.Minute))
			o.fail(ctx, job, reason, log)
		default:
			log.Info("reconcile: restarting collection", logging.Duration("age", age))
			o.launch(job, 0, false)
		}
	}
	return nil
}

// ActiveJobs returns the ids of jobs currently running, for status output.
func (o *Orchestrator) ActiveJobs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.active))
	for _, id := range o.active {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until all background jobs have finished. Used by shutdown and
// tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
