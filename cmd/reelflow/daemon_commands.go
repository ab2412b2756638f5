package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelflow/internal/daemonctl"
	"reelflow/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the reelflow daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the reelflow daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			} else {
				fmt.Fprintln(stdout, "Stopping daemon pipeline...")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			statusResp := &ipc.StatusResponse{}
			err := ctx.withClient(func(client *ipc.Client) error {
				resp, statusErr := client.Status()
				if statusErr != nil {
					return statusErr
				}
				if resp != nil {
					statusResp = resp
				}
				return nil
			})
			reachable := err == nil

			fmt.Fprintln(stdout, renderSectionHeader("Daemon", colorize))
			for _, line := range daemonStatusLines(statusResp, reachable, ctx.socketPath(), colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			fmt.Fprintln(stdout, renderSectionHeader("Pipeline", colorize))
			rows := buildPipelineRows(statusResp)
			table := renderTable([]string{"Entity", "Count"}, rows, 1)
			fmt.Fprintln(stdout, table)

			if len(statusResp.ActiveResearch) > 0 {
				fmt.Fprintln(stdout)
				fmt.Fprintln(stdout, renderSectionHeader("Active Research", colorize))
				for _, id := range statusResp.ActiveResearch {
					fmt.Fprintf(stdout, "%s%s\n", statusIndent, id)
				}
			}
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the reelflow daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			stopResult, stopErr := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			switch {
			case errors.Is(stopErr, daemonctl.ErrDaemonNotRunning):
				fmt.Fprintln(stdout, "Daemon is not running")
			case stopErr != nil:
				return stopErr
			default:
				if stopResult.ForcedKill && stopResult.PID > 0 {
					fmt.Fprintf(stdout, "Stopped daemon process (pid %d)\n", stopResult.PID)
				} else {
					fmt.Fprintln(stdout, "Daemon stopped")
				}
			}

			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), 10*time.Second)
			if err != nil {
				return err
			}
			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			fmt.Fprintln(stdout, "Daemon started")
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd, restartCmd}
}

func daemonStatusLines(resp *ipc.StatusResponse, reachable bool, socket string, colorize bool) []string {
	lines := make([]string, 0, 6)
	if !reachable {
		lines = append(lines, renderStatusLine("Daemon", statusError, "not running", colorize))
		lines = append(lines, renderStatusLine("Socket", statusInfo, socket, colorize))
		return lines
	}

	runningKind := statusOK
	runningText := "running"
	if !resp.Running {
		runningKind = statusWarn
		runningText = "idle (process alive, pipeline stopped)"
	}
	lines = append(lines, renderStatusLine("Daemon", runningKind, runningText, colorize))
	if resp.PID > 0 {
		lines = append(lines, renderStatusLine("PID", statusInfo, strconv.Itoa(resp.PID), colorize))
	}
	lines = append(lines, renderStatusLine("Socket", statusInfo, socket, colorize))
	if resp.DBPath != "" {
		lines = append(lines, renderStatusLine("Database", statusInfo, resp.DBPath, colorize))
	}
	if resp.WebhookAddr != "" {
		lines = append(lines, renderStatusLine("Webhook", statusOK, resp.WebhookAddr, colorize))
	}
	if resp.HealthError != "" {
		lines = append(lines, renderStatusLine("Health", statusError, resp.HealthError, colorize))
	}
	return lines
}

func buildPipelineRows(resp *ipc.StatusResponse) [][]string {
	return [][]string{
		{"Research (raw)", strconv.Itoa(resp.ResearchRaw)},
		{"Research (analyzed)", strconv.Itoa(resp.ResearchAnalyzed)},
		{"Research (failed)", strconv.Itoa(resp.ResearchFailed)},
		{"Videos (active)", strconv.Itoa(resp.VideosActive)},
		{"Videos (completed)", strconv.Itoa(resp.VideosCompleted)},
		{"Videos (failed)", strconv.Itoa(resp.VideosFailed)},
		{"Campaigns (active)", strconv.Itoa(resp.CampaignsActive)},
	}
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		SocketPath: ctx.socketPath(),
		ConfigPath: ctx.configPath(),
	}
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
