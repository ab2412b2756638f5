package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reelflow/internal/ipc"
)

func newResearchCommand(ctx *commandContext) *cobra.Command {
	researchCmd := &cobra.Command{
		Use:   "research",
		Short: "Manage research jobs",
	}

	var source string
	var depth string
	var maxItems int
	startCmd := &cobra.Command{
		Use:   "start <query>",
		Short: "Start a research job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ResearchStart(ipc.ResearchStartRequest{
					Source:   source,
					Query:    args[0],
					Depth:    depth,
					MaxItems: maxItems,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Research job started: %s\n", resp.JobID)
				return nil
			})
		},
	}
	startCmd.Flags().StringVarP(&source, "source", "s", "reddit", "Research source (reddit, github, hackernews, trends)")
	startCmd.Flags().StringVar(&depth, "depth", "", "Analysis depth (basic, standard, comprehensive)")
	startCmd.Flags().IntVar(&maxItems, "max-items", 0, "Maximum items to collect")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a research job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ResearchShow(args[0])
				if err != nil {
					return err
				}
				printResearchJob(cmd, resp.Job)
				return nil
			})
		},
	}

	var phases []string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List research jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ResearchList(phases)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(stdout, "No research jobs found")
					return nil
				}
				rows := make([][]string, 0, len(resp.Jobs))
				for _, job := range resp.Jobs {
					rows = append(rows, []string{
						job.ID,
						job.Source,
						truncate(job.Query, 40),
						job.Phase,
						job.CreatedAt,
					})
				}
				table := renderTable([]string{"ID", "Source", "Query", "Phase", "Created"}, rows)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
	listCmd.Flags().StringSliceVar(&phases, "phase", nil, "Filter by phase (raw, analyzed, failed)")

	researchCmd.AddCommand(startCmd)
	researchCmd.AddCommand(showCmd)
	researchCmd.AddCommand(listCmd)
	return researchCmd
}

func printResearchJob(cmd *cobra.Command, job ipc.ResearchJob) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	kind := statusInfo
	switch job.Phase {
	case "analyzed":
		kind = statusOK
	case "failed":
		kind = statusError
	}

	fmt.Fprintln(stdout, renderStatusLine("Job", statusInfo, job.ID, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Source", statusInfo, job.Source, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Query", statusInfo, job.Query, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Phase", kind, job.Phase, colorize))
	if job.AnalysisDepth != "" {
		fmt.Fprintln(stdout, renderStatusLine("Depth", statusInfo, job.AnalysisDepth, colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Raw data", statusInfo, yesNo(job.HasRawData), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Analysis", statusInfo, yesNo(job.HasAnalysis), colorize))
	if job.ErrorMessage != "" {
		fmt.Fprintln(stdout, renderStatusLine("Error", statusError, job.ErrorMessage, colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Created", statusInfo, job.CreatedAt, colorize))
	if job.CompletedAt != "" {
		fmt.Fprintln(stdout, renderStatusLine("Completed", statusInfo, job.CompletedAt, colorize))
	}
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
