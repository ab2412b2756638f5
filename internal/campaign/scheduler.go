// Package campaign runs recurring content campaigns: on each due run it
// picks the best recent analyzed research for the campaign's query, turns it
// into scripts, and submits them for rendering.
package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"reelflow/internal/analysis"
	"reelflow/internal/config"
	"reelflow/internal/extract"
	"reelflow/internal/logging"
	"reelflow/internal/notifications"
	"reelflow/internal/render"
	"reelflow/internal/services"
	"reelflow/internal/store"
)

const (
	defaultTickInterval    = 5 * time.Minute
	defaultFreshnessWindow = 72 * time.Hour
)

// VideoSubmitter is the slice of the render generator the scheduler needs.
type VideoSubmitter interface {
	Submit(ctx context.Context, script extract.ScriptDraft, avatarProfileID string, opts render.SubmitOptions) (string, error)
}

// Poster posts content to the campaign's platforms when auto-post is on.
type Poster interface {
	PublishAndAggregate(ctx context.Context, content string, platforms []string) (*store.PublishResult, error)
}

// Scheduler walks due campaigns on a fixed tick and executes their runs.
type Scheduler struct {
	store     *store.Store
	generator VideoSubmitter
	poster    Poster
	rules     *extract.Registry
	notifier  notifications.Service
	logger    *slog.Logger

	enabled         bool
	tickInterval    time.Duration
	freshnessWindow time.Duration
}

// Option customizes the scheduler.
type Option func(*Scheduler)

// WithFreshnessWindow overrides how far back a run looks for analyzed
// research when the campaign has never run before.
func WithFreshnessWindow(window time.Duration) Option {
	return func(s *Scheduler) {
		if window > 0 {
			s.freshnessWindow = window
		}
	}
}

// WithTickInterval overrides the interval between scheduler sweeps.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// NewScheduler wires the scheduler against its collaborators. The poster may
// be nil when publishing is not configured; auto-post campaigns then skip the
// posting step with a warning.
func NewScheduler(cfg *config.Config, st *store.Store, generator VideoSubmitter, poster Poster, rules *extract.Registry, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Scheduler {
	if notifier == nil {
		notifier = notifications.Noop()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if rules == nil {
		rules = extract.NewRegistry()
	}
	s := &Scheduler{
		store:           st,
		generator:       generator,
		poster:          poster,
		rules:           rules,
		notifier:        notifier,
		logger:          logging.NewComponentLogger(logger, "campaign"),
		enabled:         cfg.Scheduler.Enabled,
		tickInterval:    defaultTickInterval,
		freshnessWindow: defaultFreshnessWindow,
	}
	if cfg.Scheduler.TickIntervalMinutes > 0 {
		s.tickInterval = time.Duration(cfg.Scheduler.TickIntervalMinutes) * time.Minute
	}
	if cfg.Scheduler.FreshnessWindowHours > 0 {
		s.freshnessWindow = time.Duration(cfg.Scheduler.FreshnessWindowHours) * time.Hour
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps due campaigns on the tick interval until the context ends. It
// returns immediately when the scheduler is disabled by configuration.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.enabled {
		s.logger.Info("campaign scheduler disabled")
		return nil
	}
	s.logger.Info("campaign scheduler running", logging.Duration("tick", s.tickInterval))
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		if err := s.Tick(ctx, time.Now().UTC()); err != nil {
			s.logger.Error("campaign sweep failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs every campaign that is due at the given instant. A failing
// campaign never blocks the others; its error is logged and the sweep moves
// on.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	due, err := s.store.DueCampaigns(ctx, now)
	if err != nil {
		return fmt.Errorf("load due campaigns: %w", err)
	}
	for _, campaign := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.runCampaign(ctx, campaign, now); err != nil {
			s.logger.Error("campaign run failed",
				logging.String(logging.FieldCampaignID, campaign.ID),
				logging.Error(err),
			)
			if notifyErr := s.notifier.NotifyError(ctx, err, "campaign "+campaign.Query); notifyErr != nil {
				s.logger.Debug("campaign error notification failed", logging.Error(notifyErr))
			}
		}
	}
	return nil
}

// runCampaign executes one run: select candidates inside the freshness
// window, rank them, and submit up to the per-run quota. The schedule
// advances whether or not anything qualified, so a dry spell does not make
// the campaign due on every subsequent tick.
func (s *Scheduler) runCampaign(ctx context.Context, campaign *store.Campaign, now time.Time) error {
	log := s.logger.With(
		logging.String(logging.FieldCampaignID, campaign.ID),
		logging.String("query", campaign.Query),
	)

	cutoff := now.Add(-s.freshnessWindow)
	if campaign.LastRunAt != nil && campaign.LastRunAt.After(cutoff) {
		cutoff = *campaign.LastRunAt
	}
	jobs, err := s.store.AnalyzedResearchSince(ctx, campaign.Source, campaign.Query, cutoff)
	if err != nil {
		return fmt.Errorf("load analyzed research: %w", err)
	}

	candidates := rankCandidates(jobs, log)
	quota := campaign.MaxItemsPerRun
	if quota <= 0 {
		quota = 1
	}
	if len(candidates) > quota {
		candidates = candidates[:quota]
	}

	submitted, skipped := 0, 0
	for _, candidate := range candidates {
		draft, err := extract.Extract(extract.Input{
			Analysis: candidate.result,
			Topic:    campaign.Query,
			Source:   campaign.Source,
		}, s.rules.Rule(campaign.Source))
		if err != nil {
			skipped++
			if errors.Is(err, services.ErrInsufficientContent) {
				log.Info("candidate below content minimum",
					logging.String(logging.FieldJobID, candidate.job.ID))
			} else {
				log.Warn("script extraction failed",
					logging.String(logging.FieldJobID, candidate.job.ID),
					logging.Error(err))
			}
			continue
		}

		videoID, err := s.generator.Submit(ctx, draft, campaign.AvatarProfileID, render.SubmitOptions{
			ResearchJobID: candidate.job.ID,
			AspectRatio:   campaign.AspectRatio,
		})
		if err != nil {
			skipped++
			log.Warn("render submission failed",
				logging.String(logging.FieldJobID, candidate.job.ID),
				logging.Error(err))
			continue
		}
		submitted++
		log.Info("campaign video submitted",
			logging.String(logging.FieldVideoID, videoID),
			logging.String(logging.FieldJobID, candidate.job.ID))

		if campaign.AutoPostEnabled {
			s.autoPost(ctx, campaign, draft, log)
		}
	}

	if err := s.store.AdvanceCampaign(ctx, campaign.ID, now, submitted); err != nil {
		return fmt.Errorf("advance campaign: %w", err)
	}
	log.Info("campaign run complete",
		logging.Int("submitted", submitted),
		logging.Int("skipped", skipped),
		logging.Int("candidates", len(candidates)),
	)
	if notifyErr := s.notifier.NotifyCampaignRun(ctx, campaign.Query, submitted, skipped); notifyErr != nil {
		log.Debug("campaign notification failed", logging.Error(notifyErr))
	}
	return nil
}

func (s *Scheduler) autoPost(ctx context.Context, campaign *store.Campaign, draft extract.ScriptDraft, log *slog.Logger) {
	if len(campaign.PostPlatforms) == 0 {
		log.Warn("auto-post enabled but campaign has no platforms")
		return
	}
	if s.poster == nil {
		log.Warn("auto-post enabled but no publisher configured")
		return
	}
	result, err := s.poster.PublishAndAggregate(ctx, draft.Body, campaign.PostPlatforms)
	if err != nil {
		log.Warn("auto-post failed", logging.Error(err))
		return
	}
	log.Info("auto-post finished", logging.String("status", string(result.OverallStatus)))
}

type candidate struct {
	job    *store.ResearchJob
	result *analysis.AnalysisResult
}

// rankCandidates decodes analyzed payloads and orders them best first:
// higher relevance wins, ties go to the older job. Undecodable payloads are
// dropped with a warning rather than sinking the run.
func rankCandidates(jobs []*store.ResearchJob, log *slog.Logger) []candidate {
	candidates := make([]candidate, 0, len(jobs))
	for _, job := range jobs {
		var result analysis.AnalysisResult
		if err := json.Unmarshal([]byte(job.AnalyzedData), &result); err != nil {
			log.Warn("skipping undecodable analysis payload",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
			continue
		}
		candidates = append(candidates, candidate{job: job, result: &result})
	}
	// Input is oldest first, so a stable sort keeps older jobs ahead on ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].result.RelevanceScore() > candidates[j].result.RelevanceScore()
	})
	return candidates
}
