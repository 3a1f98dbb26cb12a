package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"postboard/internal/config"
	"postboard/internal/format"
	"postboard/internal/models"
	"postboard/internal/store"
)

// exportedPost is the on-disk shape of one post. Image payloads are only
// included with --images.
type exportedPost struct {
	ID          int64  `json:"id" yaml:"id"`
	UserName    string `json:"user_name" yaml:"user_name"`
	Body        string `json:"body" yaml:"body"`
	PublishedAt string `json:"published_at" yaml:"published_at"`
	ImageBytes  int    `json:"image_bytes" yaml:"image_bytes"`
	AvatarBytes int    `json:"avatar_bytes" yaml:"avatar_bytes"`
	Image       string `json:"image,omitempty" yaml:"image,omitempty"`
	Avatar      string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

func newExportCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var outputPath string
	var withImages bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all posts as YAML (or JSON with --json)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DBDSN == "" {
				return errDSNRequired
			}
			st, err := store.OpenExisting(cfg.DBDSN)
			if err != nil {
				return err
			}
			defer st.Close()

			var formatter format.Formatter = format.YAMLFormatter{}
			if *jsonOutput {
				formatter = format.JSONFormatter{Indent: true}
			}

			w := cmd.OutOrStdout()
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return exportPosts(cmd.Context(), st, w, formatter, withImages)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&withImages, "images", false, "include base64 image and avatar payloads")

	return cmd
}

func exportPosts(ctx context.Context, st store.PostStore, w io.Writer, formatter format.Formatter, withImages bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	posts, err := st.ListPosts(ctx)
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}
	out := make([]exportedPost, 0, len(posts))
	for _, post := range posts {
		out = append(out, toExportedPost(post, withImages))
	}
	return formatter.Write(w, out)
}

func toExportedPost(post models.Post, withImages bool) exportedPost {
	exported := exportedPost{
		ID:          post.ID,
		UserName:    post.UserName,
		Body:        post.Body,
		PublishedAt: post.PublishedAt().Format(time.RFC3339Nano),
		ImageBytes:  post.Image.Len(),
		AvatarBytes: post.Avatar.Len(),
	}
	if withImages {
		if post.Image.Present() {
			exported.Image = base64.StdEncoding.EncodeToString(post.Image.Bytes())
		}
		if post.Avatar.Present() {
			exported.Avatar = base64.StdEncoding.EncodeToString(post.Avatar.Bytes())
		}
	}
	return exported
}
