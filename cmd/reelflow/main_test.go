package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelflow/internal/config"
	"reelflow/internal/daemon"
	"reelflow/internal/ipc"
	"reelflow/internal/logging"
	"reelflow/internal/render"
	"reelflow/internal/research"
	"reelflow/internal/sources"
	"reelflow/internal/store"
	"reelflow/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Render.DefaultAvatarProfile = "presenter-1"
	base := filepath.Dir(cfg.Paths.DataDir)

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	st := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, st, logging.NewNop(),
		daemon.WithRegistry(sources.NewRegistry(fakeCollector{})),
		daemon.WithAnalyzer(fakeAnalyzer{}),
		daemon.WithRenderProvider(&fakeRenderProvider{}),
		daemon.WithResearchOptions(
			research.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		),
		daemon.WithRenderOptions(
			render.WithPollInterval(time.Millisecond),
			render.WithPollBudget(100*time.Millisecond),
			render.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(base, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	env := &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    base,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q

[llm]
api_key = %q

[render]
api_key = %q
default_avatar_profile = %q
`,
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.LLM.APIKey,
		cfg.Render.APIKey,
		cfg.Render.DefaultAvatarProfile,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// lastWord pulls the trailing identifier out of lines like
// "Research job started: <id>".
func lastWord(t *testing.T, output string) string {
	t.Helper()
	trimmed := strings.TrimSpace(output)
	lines := strings.Split(trimmed, "\n")
	fields := strings.Fields(lines[0])
	if len(fields) == 0 {
		t.Fatalf("no identifier in output %q", output)
	}
	return fields[len(fields)-1]
}

func waitForCLI(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCLIResearchCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"research", "start", "developer tools fatigue", "--source", "reddit"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("research start: %v", err)
	}
	if !strings.Contains(out, "Research job started:") {
		t.Fatalf("unexpected research start output: %q", out)
	}
	jobID := lastWord(t, out)

	waitForCLI(t, "research job analysis", func() bool {
		showOut, _, showErr := runCLI(t, []string{"research", "show", jobID}, env.socketPath, env.configPath)
		return showErr == nil && strings.Contains(showOut, "analyzed")
	})

	out, _, err = runCLI(t, []string{"research", "show", jobID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("research show: %v", err)
	}
	if !strings.Contains(out, "developer tools fatigue") {
		t.Fatalf("show output missing query: %q", out)
	}
	if !strings.Contains(out, "Analysis") || !strings.Contains(out, "yes") {
		t.Fatalf("show output missing analysis flag: %q", out)
	}

	out, _, err = runCLI(t, []string{"research", "list", "--phase", "analyzed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("research list: %v", err)
	}
	if !strings.Contains(out, jobID) {
		t.Fatalf("list output missing job: %q", out)
	}

	out, _, err = runCLI(t, []string{"research", "list", "--phase", "failed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("research list failed filter: %v", err)
	}
	if !strings.Contains(out, "No research jobs found") {
		t.Fatalf("expected empty failed list, got %q", out)
	}
}

func TestCLIVideoCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	scriptPath := filepath.Join(env.baseDir, "script.txt")
	if err := os.WriteFile(scriptPath, []byte("Hook line.\nThree reasons your setup is slow.\nFollow for part two."), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	out, _, err := runCLI(t, []string{"video", "create", "--title", "Setup Speedrun", "--script", scriptPath, "--aspect", "landscape"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("video create: %v", err)
	}
	if !strings.Contains(out, "Video render submitted:") {
		t.Fatalf("unexpected video create output: %q", out)
	}
	videoID := lastWord(t, out)

	waitForCLI(t, "video completion", func() bool {
		showOut, _, showErr := runCLI(t, []string{"video", "show", videoID}, env.socketPath, env.configPath)
		return showErr == nil && strings.Contains(showOut, "completed")
	})

	out, _, err = runCLI(t, []string{"video", "show", videoID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("video show: %v", err)
	}
	if !strings.Contains(out, "Setup Speedrun") || !strings.Contains(out, "landscape") {
		t.Fatalf("video show output missing fields: %q", out)
	}
	if !strings.Contains(out, "https://cdn.example/") {
		t.Fatalf("video show output missing asset: %q", out)
	}
	if !strings.Contains(out, "presenter-1") {
		t.Fatalf("video show should use configured default avatar: %q", out)
	}

	out, _, err = runCLI(t, []string{"video", "list", "--status", "completed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("video list: %v", err)
	}
	if !strings.Contains(out, videoID) {
		t.Fatalf("video list missing video: %q", out)
	}
}

func TestCLICampaignCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{
		"campaign", "create", "weekly ai tooling roundup",
		"--source", "reddit", "--frequency", "weekly", "--max-items", "2",
	}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("campaign create: %v", err)
	}
	if !strings.Contains(out, "Campaign created:") || !strings.Contains(out, "Next run at") {
		t.Fatalf("unexpected campaign create output: %q", out)
	}
	campaignID := lastWord(t, out)

	out, _, err = runCLI(t, []string{"campaign", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("campaign list: %v", err)
	}
	if !strings.Contains(out, campaignID) || !strings.Contains(out, "weekly") || !strings.Contains(out, "active") {
		t.Fatalf("campaign list missing campaign: %q", out)
	}

	out, _, err = runCLI(t, []string{"campaign", "pause", campaignID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("campaign pause: %v", err)
	}
	if !strings.Contains(out, "paused") {
		t.Fatalf("unexpected pause output: %q", out)
	}

	out, _, err = runCLI(t, []string{"campaign", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("campaign list after pause: %v", err)
	}
	if !strings.Contains(out, "paused") {
		t.Fatalf("campaign list should show paused state: %q", out)
	}

	out, _, err = runCLI(t, []string{"campaign", "resume", campaignID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("campaign resume: %v", err)
	}
	if !strings.Contains(out, "resumed") {
		t.Fatalf("unexpected resume output: %q", out)
	}

	if _, _, err = runCLI(t, []string{"campaign", "run-now"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("campaign run-now: %v", err)
	}

	out, _, err = runCLI(t, []string{"campaign", "delete", campaignID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("campaign delete: %v", err)
	}
	if !strings.Contains(out, "deleted") {
		t.Fatalf("unexpected delete output: %q", out)
	}

	out, _, err = runCLI(t, []string{"campaign", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("campaign list after delete: %v", err)
	}
	if !strings.Contains(out, "No campaigns found") {
		t.Fatalf("expected empty campaign list, got %q", out)
	}

	_, _, err = runCLI(t, []string{"campaign", "create", "bad cadence", "--frequency", "hourly"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected invalid frequency to fail")
	}
}

func TestCLIStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "running") {
		t.Fatalf("status should report running daemon: %q", out)
	}
	if !strings.Contains(out, "Research (analyzed)") || !strings.Contains(out, "Campaigns (active)") {
		t.Fatalf("status missing pipeline rows: %q", out)
	}
}

func TestCLIStatusWhenDaemonDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := filepath.Dir(cfg.Paths.DataDir)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	socket := filepath.Join(base, "missing.sock")

	out, _, err := runCLI(t, []string{"status"}, socket, configPath)
	if err != nil {
		t.Fatalf("status against missing daemon should not error: %v", err)
	}
	if !strings.Contains(out, "not running") {
		t.Fatalf("expected not-running report, got %q", out)
	}
}

func TestCLIStopWhenDaemonDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := filepath.Dir(cfg.Paths.DataDir)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	socket := filepath.Join(base, "missing.sock")

	out, _, err := runCLI(t, []string{"stop"}, socket, configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !strings.Contains(out, "Daemon is not running") {
		t.Fatalf("unexpected stop output: %q", out)
	}
}

func TestCLIPublishWithoutConfiguration(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"publish", "launch day recap", "--platform", "twitter"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected publish to fail without publisher configuration")
	}
	if !strings.Contains(err.Error(), "publish.base_url") {
		t.Fatalf("unexpected publish error: %v", err)
	}

	out, _, err := runCLI(t, []string{"publish", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("publish list: %v", err)
	}
	if !strings.Contains(out, "No publish results found") {
		t.Fatalf("expected empty publish list, got %q", out)
	}
}

func TestCLITestNotify(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "ntfy topic not configured") {
		t.Fatalf("unexpected test-notify output: %q", out)
	}
}

func TestCLIConfigCommands(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", base)
	target := filepath.Join(base, "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration to") {
		t.Fatalf("unexpected config init output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite guard, got %v", err)
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, "", target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected config validate output: %q", out)
	}
}
