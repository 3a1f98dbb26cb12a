package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"postboard/internal/api"
	"postboard/internal/config"
)

func newPostCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var submission api.PostSubmission
	var imagePath string
	var autoStart bool

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Publish a post through a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if imagePath != "" {
				data, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				submission.Image = data
				submission.ImageName = filepath.Base(imagePath)
			}
			if err := submission.Validate(); err != nil {
				return err
			}

			return withClient(cfg, autoStart, func(client *api.Client) error {
				result, err := client.SubmitPost(cmd.Context(), submission)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				return writePlain(cmd.OutOrStdout(), "published (%d %s)\n", result.Status, result.Location)
			})
		},
	}

	cmd.Flags().StringVar(&submission.Body, "body", "", "post text")
	cmd.Flags().StringVar(&submission.UserName, "user", "", "display name")
	cmd.Flags().StringVar(&submission.AvatarURL, "avatar", "", "avatar image URL the server will download")
	cmd.Flags().StringVar(&imagePath, "image", "", "optional image file to attach")
	cmd.Flags().BoolVar(&autoStart, "start-server", false, "start a temporary local server when none is running")

	return cmd
}
