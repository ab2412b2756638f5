package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"reelflow/internal/config"
	"reelflow/internal/ipc"
)

func newVideoCommand(ctx *commandContext) *cobra.Command {
	videoCmd := &cobra.Command{
		Use:   "video",
		Short: "Manage avatar video generations",
	}

	var title string
	var bodyFile string
	var avatarProfile string
	var aspectRatio string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Render a video from a hand-written script",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readScriptBody(cmd, bodyFile)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.VideoCreate(ipc.VideoCreateRequest{
					Title:         title,
					Body:          body,
					AvatarProfile: avatarProfile,
					AspectRatio:   aspectRatio,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Video render submitted: %s\n", resp.VideoID)
				return nil
			})
		},
	}
	createCmd.Flags().StringVarP(&title, "title", "t", "", "Script title")
	createCmd.Flags().StringVarP(&bodyFile, "script", "f", "", "Script file path (reads stdin when omitted)")
	createCmd.Flags().StringVar(&avatarProfile, "avatar", "", "Avatar profile id")
	createCmd.Flags().StringVar(&aspectRatio, "aspect", "", "Aspect ratio (portrait, landscape, square)")
	_ = createCmd.MarkFlagRequired("title")

	var fromAvatar string
	var fromAspect string
	fromResearchCmd := &cobra.Command{
		Use:   "from-research <job-id>",
		Short: "Render a video from an analyzed research job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.VideoFromResearch(ipc.VideoFromResearchRequest{
					ResearchJobID: args[0],
					AvatarProfile: fromAvatar,
					AspectRatio:   fromAspect,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Video render submitted: %s\n", resp.VideoID)
				return nil
			})
		},
	}
	fromResearchCmd.Flags().StringVar(&fromAvatar, "avatar", "", "Avatar profile id")
	fromResearchCmd.Flags().StringVar(&fromAspect, "aspect", "", "Aspect ratio (portrait, landscape, square)")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a video generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.VideoShow(args[0])
				if err != nil {
					return err
				}
				printVideo(cmd, resp.Video)
				return nil
			})
		},
	}

	var statuses []string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List video generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.VideoList(statuses)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Videos) == 0 {
					fmt.Fprintln(stdout, "No videos found")
					return nil
				}
				rows := make([][]string, 0, len(resp.Videos))
				for _, video := range resp.Videos {
					rows = append(rows, []string{
						video.ID,
						truncate(video.ScriptTitle, 36),
						video.AspectRatio,
						video.Status,
						video.CreatedAt,
					})
				}
				table := renderTable([]string{"ID", "Title", "Aspect", "Status", "Created"}, rows)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
	listCmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (queued, processing, completed, failed, timeout)")

	videoCmd.AddCommand(createCmd)
	videoCmd.AddCommand(fromResearchCmd)
	videoCmd.AddCommand(showCmd)
	videoCmd.AddCommand(listCmd)
	return videoCmd
}

func printVideo(cmd *cobra.Command, video ipc.Video) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	kind := statusInfo
	switch video.Status {
	case "completed":
		kind = statusOK
	case "failed":
		kind = statusError
	}

	fmt.Fprintln(stdout, renderStatusLine("Video", statusInfo, video.ID, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Title", statusInfo, video.ScriptTitle, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Status", kind, video.Status, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Avatar", statusInfo, video.AvatarProfileID, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Aspect", statusInfo, video.AspectRatio, colorize))
	if video.ResearchJobID != "" {
		fmt.Fprintln(stdout, renderStatusLine("Research job", statusInfo, video.ResearchJobID, colorize))
	}
	if video.ProviderJobID != "" {
		fmt.Fprintln(stdout, renderStatusLine("Provider job", statusInfo, video.ProviderJobID, colorize))
	}
	if video.AssetURL != "" {
		fmt.Fprintln(stdout, renderStatusLine("Asset", statusOK, video.AssetURL, colorize))
	}
	if video.ErrorReason != "" {
		fmt.Fprintln(stdout, renderStatusLine("Error", statusError, video.ErrorReason, colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Created", statusInfo, video.CreatedAt, colorize))
	if video.CompletedAt != "" {
		fmt.Fprintln(stdout, renderStatusLine("Completed", statusInfo, video.CompletedAt, colorize))
	}
}

func readScriptBody(cmd *cobra.Command, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(expanded)
		if err != nil {
			return "", fmt.Errorf("read script file: %w", err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read script from stdin: %w", err)
	}
	body := strings.TrimSpace(string(data))
	if body == "" {
		return "", errors.New("script body is required (pass --script or pipe it on stdin)")
	}
	return body, nil
}
