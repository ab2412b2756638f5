package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelflow/internal/ipc"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var platforms []string
	publishCmd := &cobra.Command{
		Use:   "publish <content>",
		Short: "Publish content to configured platforms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Publish(ipc.PublishRequest{
					Content:   args[0],
					Platforms: platforms,
				})
				if err != nil {
					return err
				}
				printPublishResult(cmd, resp.Result)
				return nil
			})
		},
	}
	publishCmd.Flags().StringSliceVarP(&platforms, "platform", "p", nil, "Target platforms (defaults to configured list)")

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent publish results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PublishList(limit)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Results) == 0 {
					fmt.Fprintln(stdout, "No publish results found")
					return nil
				}
				rows := make([][]string, 0, len(resp.Results))
				for _, result := range resp.Results {
					rows = append(rows, []string{
						result.ID,
						result.OverallStatus,
						platformSummary(result.Platforms),
						result.CreatedAt,
					})
				}
				table := renderTable([]string{"ID", "Status", "Platforms", "Created"}, rows)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum results to show")

	publishCmd.AddCommand(listCmd)
	return publishCmd
}

func printPublishResult(cmd *cobra.Command, result ipc.PublishResult) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	kind := statusError
	switch result.OverallStatus {
	case "success":
		kind = statusOK
	case "partial":
		kind = statusWarn
	}

	fmt.Fprintln(stdout, renderStatusLine("Result", statusInfo, result.ID, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Status", kind, result.OverallStatus, colorize))
	for _, platform := range result.Platforms {
		platformKind := statusOK
		message := platform.Status
		if platform.Status != "success" {
			platformKind = statusError
			if platform.ErrorMessage != "" {
				message = fmt.Sprintf("%s (%s)", platform.Status, platform.ErrorMessage)
			}
		} else if platform.PostURL != "" {
			message = fmt.Sprintf("%s %s", platform.Status, platform.PostURL)
		}
		fmt.Fprintln(stdout, renderStatusLine(platform.Platform, platformKind, message, colorize))
	}
}

func platformSummary(platforms []ipc.PlatformResult) string {
	summary := ""
	for i, platform := range platforms {
		if i > 0 {
			summary += ", "
		}
		summary += fmt.Sprintf("%s: %s", platform.Platform, platform.Status)
	}
	return summary
}
