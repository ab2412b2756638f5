package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks retryable external failures: timeouts, rate
	// limits, 5xx responses.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks non-retryable external failures: bad auth,
	// invalid input, provider-side rejection.
	ErrPermanent = errors.New("permanent failure")
	// ErrInsufficientContent signals that extraction produced too little
	// material for a script. Callers skip the item; it is not a pipeline
	// fault.
	ErrInsufficientContent = errors.New("insufficient content")
	// ErrStateConflict marks duplicate submissions and stale terminal
	// overwrite attempts. Late-arriving duplicates are absorbed as no-ops.
	ErrStateConflict = errors.New("state conflict")
	ErrNotFound      = errors.New("not found")
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether an error is worth another attempt. Unclassified
// errors are treated as transient so external hiccups get their retries.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrPermanent),
		errors.Is(err, ErrInsufficientContent),
		errors.Is(err, ErrStateConflict),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConfiguration):
		return false
	}
	return true
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
