package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"reelflow/internal/analysis"
	"reelflow/internal/campaign"
	"reelflow/internal/config"
	"reelflow/internal/extract"
	"reelflow/internal/logging"
	"reelflow/internal/notifications"
	"reelflow/internal/publish"
	"reelflow/internal/render"
	"reelflow/internal/research"
	"reelflow/internal/services"
	"reelflow/internal/sources"
	"reelflow/internal/store"
)

// Daemon coordinates the pipeline services and enforces single-instance
// execution through a file lock.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store

	notifier     notifications.Service
	registry     *sources.Registry
	analyzer     analysis.Provider
	rules        *extract.Registry
	orchestrator *research.Orchestrator
	generator    *render.Generator
	executor     *publish.Executor
	scheduler    *campaign.Scheduler
	webhook      *webhookServer

	lockPath string
	lock     *flock.Flock
	logPath  string

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// components holds the overridable collaborators. Tests substitute stubs;
// production wiring fills the rest from configuration.
type components struct {
	notifier       notifications.Service
	registry       *sources.Registry
	analyzer       analysis.Provider
	renderProvider render.Provider
	profileAccess  render.ProfileAccess
	publisher      publish.Publisher
	researchOpts   []research.Option
	renderOpts     []render.GeneratorOption
	schedulerOpts  []campaign.Option
}

// Option customizes daemon construction.
type Option func(*components)

// WithNotifier overrides the notification service.
func WithNotifier(notifier notifications.Service) Option {
	return func(c *components) { c.notifier = notifier }
}

// WithRegistry overrides the source collector registry.
func WithRegistry(registry *sources.Registry) Option {
	return func(c *components) { c.registry = registry }
}

// WithAnalyzer overrides the analysis provider.
func WithAnalyzer(analyzer analysis.Provider) Option {
	return func(c *components) { c.analyzer = analyzer }
}

// WithRenderProvider overrides the render provider.
func WithRenderProvider(provider render.Provider) Option {
	return func(c *components) { c.renderProvider = provider }
}

// WithProfileAccess installs an entitlement check for avatar profiles.
// Without one, every profile is permitted for the configured user tier.
func WithProfileAccess(access render.ProfileAccess) Option {
	return func(c *components) { c.profileAccess = access }
}

// WithPublisher overrides the platform publisher.
func WithPublisher(publisher publish.Publisher) Option {
	return func(c *components) { c.publisher = publisher }
}

// WithResearchOptions forwards options to the research orchestrator.
func WithResearchOptions(opts ...research.Option) Option {
	return func(c *components) { c.researchOpts = append(c.researchOpts, opts...) }
}

// WithRenderOptions forwards options to the render generator.
func WithRenderOptions(opts ...render.GeneratorOption) Option {
	return func(c *components) { c.renderOpts = append(c.renderOpts, opts...) }
}

// WithSchedulerOptions forwards options to the campaign scheduler.
func WithSchedulerOptions(opts ...campaign.Option) Option {
	return func(c *components) { c.schedulerOpts = append(c.schedulerOpts, opts...) }
}

// New constructs a daemon with its pipeline services wired from
// configuration, applying any component overrides first.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var comps components
	for _, opt := range opts {
		opt(&comps)
	}
	if comps.notifier == nil {
		comps.notifier = notifications.NewService(cfg)
	}
	if comps.registry == nil {
		comps.registry = sources.NewRegistryFromConfig(cfg.Sources)
	}
	if comps.analyzer == nil {
		comps.analyzer = analysis.NewAnalyzer(analysis.NewClient(analysis.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		}))
	}
	if comps.renderProvider == nil {
		comps.renderProvider = render.NewHTTPProvider(cfg.Render)
	}
	if comps.publisher == nil && cfg.Publish.BaseURL != "" {
		comps.publisher = publish.NewHTTPPublisher(cfg.Publish)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		notifier: comps.notifier,
		registry: comps.registry,
		analyzer: comps.analyzer,
		rules:    extract.NewRegistry(),
		lockPath: filepath.Join(cfg.Paths.DataDir, "reelflowd.lock"),
		logPath:  filepath.Join(cfg.Paths.LogDir, "reelflow.log"),
	}
	d.lock = flock.New(d.lockPath)
	d.generator = render.NewGenerator(cfg, st, comps.renderProvider, comps.profileAccess, comps.notifier, logger, comps.renderOpts...)
	d.orchestrator = research.NewOrchestrator(cfg, st, comps.registry, comps.analyzer, comps.notifier, logger, comps.researchOpts...)

	var poster campaign.Poster
	if comps.publisher != nil {
		d.executor = publish.NewExecutor(st, comps.publisher, logger)
		poster = d.executor
	}
	d.scheduler = campaign.NewScheduler(cfg, st, d.generator, poster, d.rules, comps.notifier, logger, comps.schedulerOpts...)
	d.webhook = newWebhookServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock, reconciles interrupted work, and
// launches the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelflow daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.orchestrator.Start(d.ctx); err != nil {
		d.releaseStart()
		return fmt.Errorf("start research orchestrator: %w", err)
	}
	if err := d.generator.ResumePolling(d.ctx); err != nil {
		d.releaseStart()
		return fmt.Errorf("resume render polling: %w", err)
	}
	if err := d.webhook.start(d.ctx); err != nil {
		d.releaseStart()
		return fmt.Errorf("start webhook listener: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.scheduler.Run(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("campaign scheduler exited", logging.Error(err))
		}
	}()
	d.probeAnalysisHealth()

	d.running.Store(true)
	d.logger.Info("reelflow daemon started", logging.String("lock", d.lockPath))
	return nil
}

// analysisProbeTimeout bounds the startup ping against the LLM API.
const analysisProbeTimeout = 30 * time.Second

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// probeAnalysisHealth pings the analysis provider in the background so a
// bad API key or model name surfaces in the log at startup instead of on
// the first research job. Failure is logged, never fatal.
func (d *Daemon) probeAnalysisHealth() {
	checker, ok := d.analyzer.(healthChecker)
	if !ok {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		probeCtx, cancel := context.WithTimeout(d.ctx, analysisProbeTimeout)
		defer cancel()
		if err := checker.HealthCheck(probeCtx); err != nil {
			d.logger.Warn("analysis provider unhealthy", logging.Error(err))
			return
		}
		d.logger.Info("analysis provider healthy")
	}()
}

func (d *Daemon) releaseStart() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	_ = d.lock.Unlock()
}

// Stop halts background processing, waits for in-flight work, and releases
// the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.webhook.stop()
	d.wg.Wait()
	d.orchestrator.Wait()
	d.generator.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("reelflow daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// StartResearchJob launches a research job for a source/query pair and
// returns its id immediately.
func (d *Daemon) StartResearchJob(ctx context.Context, sourceName, query, depth string, maxItems int) (string, error) {
	source, ok := store.ParseSource(sourceName)
	if !ok {
		return "", services.Wrap(services.ErrPermanent, "daemon", "research", fmt.Sprintf("unknown source %q", sourceName), nil)
	}
	if depth != "" {
		depth = strings.ToLower(strings.TrimSpace(depth))
	}
	return d.orchestrator.StartJob(ctx, source, query, research.StartOptions{
		AnalysisDepth: depth,
		MaxItems:      maxItems,
	})
}

// GetResearchJob fetches one research job.
func (d *Daemon) GetResearchJob(ctx context.Context, id string) (*store.ResearchJob, error) {
	job, err := d.store.GetResearchJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "research", fmt.Sprintf("research job %s not found", id), nil)
	}
	return job, nil
}

// ListResearchJobs returns research jobs, optionally filtered by phase.
func (d *Daemon) ListResearchJobs(ctx context.Context, phaseNames []string) ([]*store.ResearchJob, error) {
	phases := make([]store.Phase, 0, len(phaseNames))
	for _, name := range phaseNames {
		if phase, ok := store.ParsePhase(name); ok {
			phases = append(phases, phase)
		}
	}
	return d.store.ListResearchJobs(ctx, phases...)
}

// CreateVideoFromScript submits a hand-written script for rendering.
func (d *Daemon) CreateVideoFromScript(ctx context.Context, title, body, avatarProfileID, aspectName string) (string, error) {
	profile, aspect, err := d.renderDefaults(avatarProfileID, aspectName)
	if err != nil {
		return "", err
	}
	return d.generator.Submit(ctx, extract.ScriptDraft{Title: title, Body: body}, profile, render.SubmitOptions{
		AspectRatio: aspect,
	})
}

// CreateVideoFromResearchJob extracts a script from an analyzed research job
// and submits it for rendering.
func (d *Daemon) CreateVideoFromResearchJob(ctx context.Context, jobID, avatarProfileID, aspectName string) (string, error) {
	job, err := d.GetResearchJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Phase != store.PhaseAnalyzed {
		return "", services.Wrap(services.ErrStateConflict, "daemon", "video", fmt.Sprintf("research job %s is %s, not analyzed", jobID, job.Phase), nil)
	}
	var result analysis.AnalysisResult
	if err := json.Unmarshal([]byte(job.AnalyzedData), &result); err != nil {
		return "", fmt.Errorf("decode analysis payload: %w", err)
	}

	draft, err := extract.Extract(extract.Input{
		Analysis: &result,
		Topic:    job.Query,
		Source:   job.Source,
	}, d.rules.Rule(job.Source))
	if err != nil {
		return "", err
	}

	profile, aspect, err := d.renderDefaults(avatarProfileID, aspectName)
	if err != nil {
		return "", err
	}
	return d.generator.Submit(ctx, draft, profile, render.SubmitOptions{
		ResearchJobID: job.ID,
		AspectRatio:   aspect,
	})
}

func (d *Daemon) renderDefaults(avatarProfileID, aspectName string) (string, store.AspectRatio, error) {
	profile := strings.TrimSpace(avatarProfileID)
	if profile == "" {
		profile = d.cfg.Render.DefaultAvatarProfile
	}
	aspectName = strings.TrimSpace(aspectName)
	if aspectName == "" {
		aspectName = d.cfg.Render.DefaultAspectRatio
	}
	aspect, ok := store.ParseAspectRatio(aspectName)
	if !ok {
		return "", "", services.Wrap(services.ErrPermanent, "daemon", "video", fmt.Sprintf("unknown aspect ratio %q", aspectName), nil)
	}
	return profile, aspect, nil
}

// GetVideo fetches one video generation.
func (d *Daemon) GetVideo(ctx context.Context, id string) (*store.VideoGeneration, error) {
	video, err := d.store.GetVideoGeneration(ctx, id)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "video", fmt.Sprintf("video %s not found", id), nil)
	}
	return video, nil
}

// ListVideos returns video generations, optionally filtered by status.
func (d *Daemon) ListVideos(ctx context.Context, statusNames []string) ([]*store.VideoGeneration, error) {
	statuses := make([]store.VideoStatus, 0, len(statusNames))
	for _, name := range statusNames {
		if status, ok := store.ParseVideoStatus(name); ok {
			statuses = append(statuses, status)
		}
	}
	return d.store.ListVideoGenerations(ctx, statuses...)
}

// HandleRenderCallback ingests an asynchronous provider completion signal.
func (d *Daemon) HandleRenderCallback(ctx context.Context, providerJobID, status, assetURL, errorMessage string) error {
	return d.generator.HandleCallback(ctx, providerJobID, status, assetURL, errorMessage)
}

// CreateCampaign registers a recurring campaign. The first run is due on the
// next scheduler tick.
func (d *Daemon) CreateCampaign(ctx context.Context, spec store.CampaignSpec) (*store.Campaign, error) {
	if spec.AvatarProfileID == "" {
		spec.AvatarProfileID = d.cfg.Render.DefaultAvatarProfile
	}
	if spec.AspectRatio == "" {
		if aspect, ok := store.ParseAspectRatio(d.cfg.Render.DefaultAspectRatio); ok {
			spec.AspectRatio = aspect
		}
	}
	if spec.UserID == "" {
		spec.UserID = d.cfg.Identity.UserID
	}
	if _, ok := store.ParseFrequency(string(spec.Frequency)); !ok {
		return nil, services.Wrap(services.ErrPermanent, "daemon", "campaign", fmt.Sprintf("unknown frequency %q", spec.Frequency), nil)
	}
	return d.store.NewCampaign(ctx, spec)
}

// ListCampaigns returns all campaigns.
func (d *Daemon) ListCampaigns(ctx context.Context) ([]*store.Campaign, error) {
	return d.store.ListCampaigns(ctx)
}

// SetCampaignActive pauses or resumes a campaign.
func (d *Daemon) SetCampaignActive(ctx context.Context, id string, active bool) error {
	return d.store.SetCampaignActive(ctx, id, active)
}

// DeleteCampaign removes a campaign.
func (d *Daemon) DeleteCampaign(ctx context.Context, id string) error {
	return d.store.DeleteCampaign(ctx, id)
}

// RunCampaignsNow triggers one scheduler sweep outside the regular tick.
func (d *Daemon) RunCampaignsNow(ctx context.Context) error {
	return d.scheduler.Tick(ctx, time.Now().UTC())
}

// PublishContent posts content to the given platforms and returns the
// aggregated result.
func (d *Daemon) PublishContent(ctx context.Context, content string, platforms []string) (*store.PublishResult, error) {
	if d.executor == nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "publish", "publish.base_url is not configured", nil)
	}
	if len(platforms) == 0 {
		platforms = d.cfg.Publish.Platforms
	}
	if len(platforms) == 0 {
		return nil, services.Wrap(services.ErrPermanent, "daemon", "publish", "no platforms requested or configured", nil)
	}
	return d.executor.PublishAndAggregate(ctx, content, platforms)
}

// ListPublishResults returns recent publish outcomes, newest first.
func (d *Daemon) ListPublishResults(ctx context.Context, limit int) ([]*store.PublishResult, error) {
	return d.store.ListPublishResults(ctx, limit)
}

// TestNotification sends a test push through the configured topic.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	PID            int
	DBPath         string
	LockFilePath   string
	WebhookAddr    string
	Health         store.HealthSummary
	HealthError    string
	ActiveResearch []string
}

// Status reports the daemon state and entity counts.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		DBPath:         d.store.Path(),
		LockFilePath:   d.lockPath,
		WebhookAddr:    d.webhook.addr(),
		ActiveResearch: d.orchestrator.ActiveJobs(),
	}
	health, err := d.store.Health(ctx)
	if err != nil {
		status.HealthError = err.Error()
	} else {
		status.Health = health
	}
	return status
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}
