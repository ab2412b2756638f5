package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reelflow/internal/ipc"
)

func newCampaignCommand(ctx *commandContext) *cobra.Command {
	campaignCmd := &cobra.Command{
		Use:   "campaign",
		Short: "Manage recurring content campaigns",
	}

	var source string
	var depth string
	var avatarProfile string
	var aspectRatio string
	var frequency string
	var maxItems int
	var autoPost bool
	var platforms []string
	createCmd := &cobra.Command{
		Use:   "create <query>",
		Short: "Create a recurring campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CampaignCreate(ipc.CampaignCreateRequest{
					Source:          source,
					Query:           args[0],
					AnalysisDepth:   depth,
					AvatarProfile:   avatarProfile,
					AspectRatio:     aspectRatio,
					Frequency:       frequency,
					MaxItemsPerRun:  maxItems,
					AutoPostEnabled: autoPost,
					PostPlatforms:   platforms,
				})
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Campaign created: %s\n", resp.Campaign.ID)
				fmt.Fprintf(stdout, "Next run at %s\n", resp.Campaign.NextRunAt)
				return nil
			})
		},
	}
	createCmd.Flags().StringVarP(&source, "source", "s", "reddit", "Research source (reddit, github, hackernews, trends)")
	createCmd.Flags().StringVar(&depth, "depth", "", "Analysis depth (basic, standard, comprehensive)")
	createCmd.Flags().StringVar(&avatarProfile, "avatar", "", "Avatar profile id")
	createCmd.Flags().StringVar(&aspectRatio, "aspect", "", "Aspect ratio (portrait, landscape, square)")
	createCmd.Flags().StringVarP(&frequency, "frequency", "q", "weekly", "Run frequency (daily, weekly, biweekly, monthly)")
	createCmd.Flags().IntVar(&maxItems, "max-items", 0, "Maximum videos per run")
	createCmd.Flags().BoolVar(&autoPost, "auto-post", false, "Publish rendered videos automatically")
	createCmd.Flags().StringSliceVar(&platforms, "platform", nil, "Platforms for auto-posting")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CampaignList()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Campaigns) == 0 {
					fmt.Fprintln(stdout, "No campaigns found")
					return nil
				}
				rows := make([][]string, 0, len(resp.Campaigns))
				for _, campaign := range resp.Campaigns {
					active := "active"
					if !campaign.Active {
						active = "paused"
					}
					rows = append(rows, []string{
						campaign.ID,
						campaign.Source,
						truncate(campaign.Query, 32),
						campaign.Frequency,
						active,
						campaign.NextRunAt,
						strconv.Itoa(campaign.TotalGenerated),
					})
				}
				table := renderTable(
					[]string{"ID", "Source", "Query", "Frequency", "State", "Next Run", "Generated"},
					rows,
					6,
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}

	pauseCmd := &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.CampaignSetActive(args[0], false); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Campaign %s paused\n", args[0])
				return nil
			})
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a paused campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.CampaignSetActive(args[0], true); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Campaign %s resumed\n", args[0])
				return nil
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.CampaignDelete(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Campaign %s deleted\n", args[0])
				return nil
			})
		},
	}

	runNowCmd := &cobra.Command{
		Use:   "run-now",
		Short: "Run all due campaigns immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.CampaignRunNow(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Campaign sweep triggered")
				return nil
			})
		},
	}

	campaignCmd.AddCommand(createCmd)
	campaignCmd.AddCommand(listCmd)
	campaignCmd.AddCommand(pauseCmd)
	campaignCmd.AddCommand(resumeCmd)
	campaignCmd.AddCommand(deleteCmd)
	campaignCmd.AddCommand(runNowCmd)
	return campaignCmd
}
