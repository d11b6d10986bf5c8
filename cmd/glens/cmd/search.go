package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/MeKo-Tech/glens/internal/imageio"
	"github.com/MeKo-Tech/glens/internal/search"
	"github.com/MeKo-Tech/glens/internal/tempfile"
	"github.com/spf13/cobra"
)

// searchCmd represents the search command.
var searchCmd = &cobra.Command{
	Use:   "search <path|url>",
	Short: "Run a reverse image search and print the results as JSON",
	Long: `Run a reverse image search for a local image or an image URL and print the
results as a JSON array of {title, url} objects.

Examples:
  glens search https://example.com/cat.jpg
  glens search photo.png --max-pages 3
  glens search photo.png --crop --strategy object`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cmd.Flags().Changed("max-pages") {
			cfg.Search.MaxPages, _ = cmd.Flags().GetInt("max-pages")
		}
		if cmd.Flags().Changed("proxy") {
			cfg.Search.Proxy, _ = cmd.Flags().GetString("proxy")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		target := args[0]
		ref := search.ImageRef{URL: target}
		if !imageio.IsRemote(target) {
			if _, err := os.Stat(target); err != nil {
				return fmt.Errorf("%w: %s", imageio.ErrFileNotFound, target)
			}
			ref = search.ImageRef{File: target}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.Server.TimeoutSec)*time.Second)
		defer cancel()

		scope := tempfile.NewScope(cfg.Server.TempDir)
		defer func() { _ = scope.Close() }()

		if doCrop, _ := cmd.Flags().GetBool("crop"); doCrop {
			kind := cfg.DefaultCropKind()
			if cmd.Flags().Changed("strategy") {
				s, _ := cmd.Flags().GetString("strategy")
				k, err := crop.ParseKind(s)
				if err != nil {
					return err
				}
				kind = k
			}

			cropper, release, err := newCropper(cfg, newImageLoader(cfg), kind, scope.Dir())
			if err != nil {
				return err
			}
			if release != nil {
				defer release()
			}

			artifact, err := cropper.Crop(ctx, target)
			if err != nil {
				return err
			}
			scope.Track(artifact.Path)
			slog.Debug("Searching cropped image", "strategy", kind.String(), "box", artifact.Box.String())
			ref = search.ImageRef{File: artifact.Path}
		}

		orchestrator, release, err := newOrchestrator(ctx, cfg)
		if err != nil {
			return err
		}
		if release != nil {
			defer release()
		}

		items, err := orchestrator.Search(ctx, ref, cfg.Search.MaxPages)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().Int("max-pages", 2, "number of result pages to fetch")
	searchCmd.Flags().Bool("crop", false, "crop the image before searching")
	searchCmd.Flags().StringP("strategy", "s", "", "crop strategy: foreground (1) or object (0); default from config")
	searchCmd.Flags().String("proxy", "", "HTTP proxy for search provider requests")
}
