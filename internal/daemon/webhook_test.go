package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"reelflow/internal/store"
	"reelflow/internal/testsupport"
)

func postCallback(t *testing.T, url, token string, payload renderCallback) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post callback: %v", err)
	}
	return resp
}

func TestWebhookCallbackCompletesVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Webhook.Bind = "127.0.0.1:0"
	cfg.Render.DefaultAvatarProfile = "presenter-1"

	// The provider never answers polls, so only the callback can finish the
	// video.
	provider := &stubRenderProvider{gate: make(chan struct{})}
	d := newTestDaemon(t, cfg, provider)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	videoID, err := d.CreateVideoFromScript(ctx, "Callback Test", strings.Repeat("Narration sentence here. ", 10), "", "")
	if err != nil {
		t.Fatalf("CreateVideoFromScript: %v", err)
	}
	video, err := d.GetVideo(ctx, videoID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if video.ProviderJobID == "" {
		t.Fatal("video has no provider job id")
	}

	addr := d.Status(ctx).WebhookAddr
	if addr == "" {
		t.Fatal("webhook listener did not start")
	}
	url := fmt.Sprintf("http://%s/webhooks/render", addr)

	resp := postCallback(t, url, "", renderCallback{
		JobID:    video.ProviderJobID,
		Status:   "completed",
		AssetURL: "https://cdn.example/final.mp4",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("callback status = %d", resp.StatusCode)
	}

	waitFor(t, "callback to apply", func() bool {
		reloaded, err := d.GetVideo(ctx, videoID)
		return err == nil && reloaded.Status == store.VideoCompleted
	})
	reloaded, err := d.GetVideo(ctx, videoID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if reloaded.AssetURL != "https://cdn.example/final.mp4" {
		t.Fatalf("asset url = %q", reloaded.AssetURL)
	}
}

func TestWebhookUnknownJobIsAcknowledged(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Webhook.Bind = "127.0.0.1:0"
	d := newTestDaemon(t, cfg, nil)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	url := fmt.Sprintf("http://%s/webhooks/render", d.Status(ctx).WebhookAddr)
	resp := postCallback(t, url, "", renderCallback{JobID: "never-heard-of-it", Status: "completed", AssetURL: "x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unknown job callback status = %d, want 200", resp.StatusCode)
	}
}

func TestWebhookRequiresBearerToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Webhook.Bind = "127.0.0.1:0"
	cfg.Webhook.AuthToken = "sekrit"
	d := newTestDaemon(t, cfg, nil)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	url := fmt.Sprintf("http://%s/webhooks/render", d.Status(ctx).WebhookAddr)

	resp := postCallback(t, url, "", renderCallback{JobID: "x", Status: "completed"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", resp.StatusCode)
	}

	resp = postCallback(t, url, "wrong", renderCallback{JobID: "x", Status: "completed"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", resp.StatusCode)
	}

	resp = postCallback(t, url, "sekrit", renderCallback{JobID: "x", Status: "completed"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid token status = %d, want 200", resp.StatusCode)
	}
}

func TestWebhookStatusEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Webhook.Bind = "127.0.0.1:0"
	d := newTestDaemon(t, cfg, nil)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	url := fmt.Sprintf("http://%s/api/status", d.Status(ctx).WebhookAddr)
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint = %d", resp.StatusCode)
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if running, ok := payload["running"].(bool); !ok || !running {
		t.Fatalf("payload running = %v", payload["running"])
	}
}
