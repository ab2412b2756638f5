package services_test

import (
	"errors"
	"strings"
	"testing"

	"reelflow/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := services.Wrap(services.ErrTransient, "render", "submit", "provider call", base)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected wrapped error to match ErrTransient: %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to retain cause: %v", err)
	}
	if !strings.Contains(err.Error(), "render: submit: provider call") {
		t.Fatalf("unexpected error detail: %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "analysis", "analyze", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected nil marker to default to ErrTransient: %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", services.Wrap(services.ErrTransient, "a", "b", "", nil), true},
		{"permanent", services.Wrap(services.ErrPermanent, "a", "b", "", nil), false},
		{"insufficient content", services.ErrInsufficientContent, false},
		{"state conflict", services.ErrStateConflict, false},
		{"not found", services.ErrNotFound, false},
		{"configuration", services.ErrConfiguration, false},
		{"unclassified", errors.New("boom"), true},
	}
	for _, tc := range cases {
		if got := services.IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
