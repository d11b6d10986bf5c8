package cmd

import (
	"bytes"
	"encoding/json"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/glens/internal/imageio"
	"github.com/MeKo-Tech/glens/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	cmd := GetRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "glens", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommandHelp(t *testing.T) {
	output, err := execute(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, output, "reverse image")
	assert.Contains(t, output, "Available Commands:")
	assert.Contains(t, output, "Usage:")
}

func TestRootCommandVersion(t *testing.T) {
	output, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, output, "glens version")
}

func TestRootCommandSubcommands(t *testing.T) {
	names := make([]string, 0, len(rootCmd.Commands()))
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, expected := range []string{"serve", "crop", "search", "config"} {
		assert.Contains(t, names, expected)
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		verbose bool
		want    slog.Level
	}{
		{"debug", "debug", false, slog.LevelDebug},
		{"info", "info", false, slog.LevelInfo},
		{"warn", "warn", false, slog.LevelWarn},
		{"error", "error", false, slog.LevelError},
		{"unknown falls back to info", "loud", false, slog.LevelInfo},
		{"verbose wins", "error", true, slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(tt.level, tt.verbose))
		})
	}
}

func TestCropCommand_Foreground(t *testing.T) {
	dir := t.TempDir()
	input := testutil.SaveImage(t, testutil.BlackWithSquare(200, 200, image.Rect(60, 60, 110, 110)), dir, "input.png")
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o750))

	output, err := execute(t, "crop", input, "--strategy", "foreground", "--output-dir", outDir, "--json")
	require.NoError(t, err)

	var got cropOutput
	require.NoError(t, json.Unmarshal([]byte(output[bytes.IndexByte([]byte(output), '{'):]), &got))
	assert.Equal(t, "foreground", got.Strategy)
	assert.Equal(t, [4]int{60, 60, 110, 110}, got.Box)
	assert.Equal(t, outDir, filepath.Dir(got.Path))

	img := testutil.LoadImage(t, got.Path)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestSearchCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "search", filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, imageio.ErrFileNotFound)
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glens.yaml")

	output, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, output, path)
	assert.True(t, testutil.FileExists(path))

	_, err = execute(t, "config", "init", path)
	require.Error(t, err, "existing files are not overwritten without --force")
}
