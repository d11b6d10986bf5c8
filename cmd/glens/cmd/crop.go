package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/spf13/cobra"
)

type cropOutput struct {
	Path     string `json:"path"`
	Strategy string `json:"strategy"`
	Box      [4]int `json:"box"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// cropCmd represents the crop command.
var cropCmd = &cobra.Command{
	Use:   "crop <path|url>",
	Short: "Crop an image to its most salient region",
	Long: `Crop an image to its largest foreground region or largest detected object and
write the result to a new PNG file. The path of the file is printed; the file is
not removed.

Examples:
  glens crop photo.jpg
  glens crop https://example.com/cat.jpg --strategy object
  glens crop photo.jpg --threshold 40 --output-dir ./crops --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		kind := cfg.DefaultCropKind()
		if cmd.Flags().Changed("strategy") {
			s, _ := cmd.Flags().GetString("strategy")
			k, err := crop.ParseKind(s)
			if err != nil {
				return err
			}
			kind = k
		}
		if cmd.Flags().Changed("threshold") {
			cfg.Crop.ForegroundThreshold, _ = cmd.Flags().GetInt("threshold")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		outDir, _ := cmd.Flags().GetString("output-dir")
		asJSON, _ := cmd.Flags().GetBool("json")

		cropper, release, err := newCropper(cfg, newImageLoader(cfg), kind, outDir)
		if err != nil {
			return err
		}
		if release != nil {
			defer release()
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.Server.TimeoutSec)*time.Second)
		defer cancel()

		artifact, err := cropper.Crop(ctx, args[0])
		if err != nil {
			return err
		}

		if !asJSON {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), artifact.Path)
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cropOutput{
			Path:     artifact.Path,
			Strategy: artifact.Strategy.String(),
			Box:      [4]int{artifact.Box.X1, artifact.Box.Y1, artifact.Box.X2, artifact.Box.Y2},
			Width:    artifact.Width,
			Height:   artifact.Height,
		})
	},
}

func init() {
	rootCmd.AddCommand(cropCmd)
	cropCmd.Flags().StringP("strategy", "s", "", "crop strategy: foreground (1) or object (0); default from config")
	cropCmd.Flags().Int("threshold", 1, "foreground luminance threshold (0..254)")
	cropCmd.Flags().StringP("output-dir", "o", "", "directory for the cropped file (default: OS temp dir)")
	cropCmd.Flags().Bool("json", false, "print artifact details as JSON")
}
