package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"reelflow/internal/config"
	"reelflow/internal/extract"
	"reelflow/internal/logging"
	"reelflow/internal/notifications"
	"reelflow/internal/services"
	"reelflow/internal/store"
)

const (
	defaultPollInterval   = 5 * time.Second
	defaultTimeoutBudget  = 10 * time.Minute
	rateLimitRetryBackoff = 2 * time.Second
)

// Generator owns the VideoGeneration lifecycle: submission, status
// advancement, and terminal bookkeeping.
type Generator struct {
	store    *store.Store
	provider Provider
	access   ProfileAccess
	notifier notifications.Service
	logger   *slog.Logger

	userTier     string
	pollInterval time.Duration
	pollBudget   time.Duration
	sleeper      func(context.Context, time.Duration) error

	wg sync.WaitGroup
}

// GeneratorOption customizes the generator.
type GeneratorOption func(*Generator)

// WithPollInterval overrides the status poll interval.
func WithPollInterval(interval time.Duration) GeneratorOption {
	return func(g *Generator) {
		if interval > 0 {
			g.pollInterval = interval
		}
	}
}

// WithPollBudget overrides the total polling time budget.
func WithPollBudget(budget time.Duration) GeneratorOption {
	return func(g *Generator) {
		if budget > 0 {
			g.pollBudget = budget
		}
	}
}

// WithSleeper overrides how inter-poll waits are performed (for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) GeneratorOption {
	return func(g *Generator) {
		if sleeper != nil {
			g.sleeper = sleeper
		}
	}
}

// NewGenerator wires the generator against its collaborators.
func NewGenerator(cfg *config.Config, st *store.Store, provider Provider, access ProfileAccess, notifier notifications.Service, logger *slog.Logger, opts ...GeneratorOption) *Generator {
	if access == nil {
		access = OpenTierAccess{}
	}
	if notifier == nil {
		notifier = notifications.Noop()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	g := &Generator{
		store:        st,
		provider:     provider,
		access:       access,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "render"),
		userTier:     cfg.Identity.UserTier,
		pollInterval: defaultPollInterval,
		pollBudget:   defaultTimeoutBudget,
		sleeper:      sleepContext,
	}
	if cfg.Render.PollIntervalSeconds > 0 {
		g.pollInterval = time.Duration(cfg.Render.PollIntervalSeconds) * time.Second
	}
	if cfg.Render.TimeoutMinutes > 0 {
		g.pollBudget = time.Duration(cfg.Render.TimeoutMinutes) * time.Minute
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SubmitOptions carries the optional submission parameters.
type SubmitOptions struct {
	ResearchJobID string
	AspectRatio   store.AspectRatio
}

// Submit validates the script, checks profile entitlement, creates the
// generation row, and hands it to the provider. The returned id is live
// immediately; rendering continues in the background.
func (g *Generator) Submit(ctx context.Context, script extract.ScriptDraft, avatarProfileID string, opts SubmitOptions) (string, error) {
	if strings.TrimSpace(script.Body) == "" {
		return "", services.Wrap(services.ErrPermanent, "render", "submit", "script body is empty", nil)
	}
	if avatarProfileID == "" {
		return "", services.Wrap(services.ErrPermanent, "render", "submit", "avatar profile required", nil)
	}
	permitted, err := g.access.IsPermitted(ctx, g.userTier, avatarProfileID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "render", "submit", "profile access check", err)
	}
	if !permitted {
		return "", services.Wrap(services.ErrPermanent, "render", "submit", fmt.Sprintf("avatar profile %q not permitted for tier %q", avatarProfileID, g.userTier), nil)
	}

	aspect := opts.AspectRatio
	if aspect == "" {
		aspect = store.AspectPortrait
	}
	video, err := g.store.NewVideoGeneration(ctx, opts.ResearchJobID, script.Title, script.Body, avatarProfileID, aspect)
	if err != nil {
		return "", fmt.Errorf("create video generation: %w", err)
	}

	log := g.logger.With(logging.String(logging.FieldVideoID, video.ID))
	providerJobID, err := g.submitWithRateLimitRetry(ctx, RenderRequest{
		ScriptTitle:     script.Title,
		ScriptContent:   script.Body,
		AvatarProfileID: avatarProfileID,
		AspectRatio:     aspect,
	})
	if err != nil {
		reason := fmt.Sprintf("provider rejected render: %v", err)
		if finishErr := g.store.FinishVideo(ctx, video.ID, store.VideoFailed, "", reason); finishErr != nil {
			log.Error("record submission failure", logging.Error(finishErr))
		}
		log.Warn("render submission failed", logging.Error(err))
		return video.ID, err
	}

	if err := g.store.MarkVideoProcessing(ctx, video.ID, providerJobID); err != nil {
		// Duplicate assignment means another path already drove this row.
		if errors.Is(err, services.ErrStateConflict) {
			log.Warn("provider id already assigned", logging.String(logging.FieldProviderJobID, providerJobID))
			return video.ID, nil
		}
		return video.ID, err
	}
	log.Info("render submitted", logging.String(logging.FieldProviderJobID, providerJobID))

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.poll(services.WithVideoID(ctx, video.ID), video.ID, providerJobID, script.Title)
	}()
	return video.ID, nil
}

// submitWithRateLimitRetry retries a rate-limited submission once after a
// fixed backoff before giving up.
func (g *Generator) submitWithRateLimitRetry(ctx context.Context, req RenderRequest) (string, error) {
	providerJobID, err := g.provider.SubmitRender(ctx, req)
	if err == nil {
		return providerJobID, nil
	}
	if !services.IsRetryable(err) {
		return "", err
	}
	if sleepErr := g.sleeper(ctx, rateLimitRetryBackoff); sleepErr != nil {
		return "", sleepErr
	}
	return g.provider.SubmitRender(ctx, req)
}

// poll drives a generation to a terminal state. The budget is counted in
// attempts rather than wall-clock time so a slow provider response does not
// shrink the number of checks.
func (g *Generator) poll(ctx context.Context, videoID, providerJobID, title string) {
	log := g.logger.With(
		logging.String(logging.FieldVideoID, videoID),
		logging.String(logging.FieldProviderJobID, providerJobID),
	)
	attempts := int(g.pollBudget / g.pollInterval)
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := g.sleeper(ctx, g.pollInterval); err != nil {
			log.Debug("poll cancelled", logging.Error(err))
			return
		}
		status, err := g.provider.GetStatus(ctx, providerJobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Debug("status poll failed", logging.Int("attempt", attempt), logging.Error(err))
			continue
		}
		if !status.Status.IsTerminal() {
			continue
		}
		g.applyTerminal(ctx, videoID, title, status, log)
		return
	}

	timeoutStatus := JobStatus{
		Status: store.VideoTimeout,
		Error:  fmt.Sprintf("no terminal status after %d polls (%s budget)", attempts, g.pollBudget),
	}
	g.applyTerminal(ctx, videoID, title, timeoutStatus, log)
}

// HandleCallback ingests an asynchronous completion signal from the
// provider. Unknown provider job ids are logged and dropped; they never
// create rows. Conflicts with an already-terminal row are absorbed.
func (g *Generator) HandleCallback(ctx context.Context, providerJobID, status, assetURL, errorMessage string) error {
	log := g.logger.With(logging.String(logging.FieldProviderJobID, providerJobID))

	video, err := g.store.FindVideoByProviderJobID(ctx, providerJobID)
	if err != nil {
		return err
	}
	if video == nil {
		log.Warn("callback for unknown provider job dropped")
		return nil
	}

	mapped, ok := mapProviderStatus(status)
	if !ok {
		log.Warn("callback with unknown status dropped", logging.String("status", status))
		return nil
	}
	if !mapped.IsTerminal() {
		log.Debug("non-terminal callback ignored", logging.String("status", status))
		return nil
	}

	g.applyTerminal(ctx, video.ID, video.ScriptTitle, JobStatus{
		Status:   mapped,
		AssetURL: assetURL,
		Error:    errorMessage,
	}, log.With(logging.String(logging.FieldVideoID, video.ID)))
	return nil
}

// applyTerminal writes a terminal outcome through the store's compare-and-set
// guard. A conflict means the racing driver already won; that is the
// expected resolution of the poll/webhook race, not an error.
func (g *Generator) applyTerminal(ctx context.Context, videoID, title string, status JobStatus, log *slog.Logger) {
	assetURL := ""
	reason := ""
	switch status.Status {
	case store.VideoCompleted:
		assetURL = status.AssetURL
		if assetURL == "" {
			status.Status = store.VideoFailed
			reason = "provider reported completion without an asset"
		}
	case store.VideoFailed, store.VideoTimeout:
		reason = strings.TrimSpace(status.Error)
		if reason == "" {
			reason = "provider reported failure without detail"
		}
	}

	err := g.store.FinishVideo(ctx, videoID, status.Status, assetURL, reason)
	if err != nil {
		if errors.Is(err, services.ErrStateConflict) {
			log.Debug("terminal write lost race", logging.String("status", string(status.Status)))
			return
		}
		log.Error("record terminal state", logging.Error(err))
		return
	}

	log.Info("video reached terminal state", logging.String("status", string(status.Status)))
	switch status.Status {
	case store.VideoCompleted:
		if notifyErr := g.notifier.NotifyVideoCompleted(ctx, title, assetURL); notifyErr != nil {
			log.Debug("completion notification failed", logging.Error(notifyErr))
		}
	default:
		if notifyErr := g.notifier.NotifyVideoFailed(ctx, title, status.Status, reason); notifyErr != nil {
			log.Debug("failure notification failed", logging.Error(notifyErr))
		}
	}
}

// ResumePolling restarts polling for generations left active by a previous
// daemon run. Queued rows never reached the provider; they are failed so
// callers can resubmit.
func (g *Generator) ResumePolling(ctx context.Context) error {
	videos, err := g.store.ActiveVideoGenerations(ctx)
	if err != nil {
		return err
	}
	for _, video := range videos {
		switch {
		case video.Status == store.VideoProcessing && video.ProviderJobID != "":
			providerJobID := video.ProviderJobID
			videoID := video.ID
			title := video.ScriptTitle
			g.wg.Add(1)
			go func() {
				defer g.wg.Done()
				g.poll(services.WithVideoID(ctx, videoID), videoID, providerJobID, title)
			}()
		case video.Status == store.VideoQueued:
			reason := "interrupted before provider submission"
			if err := g.store.FinishVideo(ctx, video.ID, store.VideoFailed, "", reason); err != nil && !errors.Is(err, services.ErrStateConflict) {
				g.logger.Error("fail interrupted generation", logging.String(logging.FieldVideoID, video.ID), logging.Error(err))
			}
		}
	}
	return nil
}

// Wait blocks until all background polls have finished. Used by shutdown
// and tests.
func (g *Generator) Wait() {
	g.wg.Wait()
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
