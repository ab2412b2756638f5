package render_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"reelflow/internal/config"
	"reelflow/internal/render"
	"reelflow/internal/services"
	"reelflow/internal/store"
)

func TestHTTPProviderSubmitRender(t *testing.T) {
	var gotAuth string
	var gotReq render.RenderRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/renders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_id":"rj-42"}`))
	}))
	defer server.Close()

	provider := render.NewHTTPProvider(config.Render{BaseURL: server.URL, APIKey: "render-key"})
	jobID, err := provider.SubmitRender(context.Background(), render.RenderRequest{
		ScriptTitle:     "Title",
		ScriptContent:   "Body.",
		AvatarProfileID: "avatar-1",
		AspectRatio:     store.AspectLandscape,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if jobID != "rj-42" {
		t.Fatalf("job id = %q", jobID)
	}
	if gotAuth != "Bearer render-key" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotReq.AspectRatio != store.AspectLandscape || gotReq.AvatarProfileID != "avatar-1" {
		t.Fatalf("request = %+v", gotReq)
	}
}

func TestHTTPProviderGetStatusMapsVocabulary(t *testing.T) {
	tests := []struct {
		provider string
		want     store.VideoStatus
	}{
		{"rendering", store.VideoProcessing},
		{"pending", store.VideoQueued},
		{"done", store.VideoCompleted},
		{"error", store.VideoFailed},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/renders/rj-1" {
					t.Errorf("path = %q", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]string{"status": tt.provider})
			}))
			defer server.Close()

			provider := render.NewHTTPProvider(config.Render{BaseURL: server.URL, APIKey: "k"})
			status, err := provider.GetStatus(context.Background(), "rj-1")
			if err != nil {
				t.Fatalf("get status: %v", err)
			}
			if status.Status != tt.want {
				t.Fatalf("status = %q, want %q", status.Status, tt.want)
			}
		})
	}
}

func TestHTTPProviderClassifiesRejections(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"rate limit is transient", http.StatusTooManyRequests, func(err error) bool { return errors.Is(err, services.ErrTransient) }},
		{"server error is transient", http.StatusServiceUnavailable, func(err error) bool { return errors.Is(err, services.ErrTransient) }},
		{"bad request is permanent", http.StatusUnprocessableEntity, func(err error) bool { return errors.Is(err, services.ErrPermanent) }},
		{"missing job is not found", http.StatusNotFound, func(err error) bool { return errors.Is(err, services.ErrNotFound) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "rejected", tt.status)
			}))
			defer server.Close()

			provider := render.NewHTTPProvider(config.Render{BaseURL: server.URL, APIKey: "k"})
			_, err := provider.GetStatus(context.Background(), "rj-x")
			if err == nil {
				t.Fatal("expected error")
			}
			if !tt.check(err) {
				t.Fatalf("classification wrong: %v", err)
			}
		})
	}
}
