package logging

import (
	"context"
	"log/slog"

	"reelflow/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for research job identifiers.
	FieldJobID = "job_id"
	// FieldVideoID is the standardized structured logging key for video generation identifiers.
	FieldVideoID = "video_id"
	// FieldCampaignID is the standardized structured logging key for campaign identifiers.
	FieldCampaignID = "campaign_id"
	// FieldSource is the standardized structured logging key for research source names.
	FieldSource = "source"
	// FieldPlatform is the standardized structured logging key for publish platform names.
	FieldPlatform = "platform"
	// FieldProviderJobID is the standardized structured logging key for external render job identifiers.
	FieldProviderJobID = "provider_job_id"
	// FieldEventType is the standardized structured logging key for machine-searchable event labels.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator next steps.
	FieldErrorHint = "error_hint"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if id, ok := services.VideoIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldVideoID, id))
	}
	if component, ok := services.ComponentFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldComponent, component))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
