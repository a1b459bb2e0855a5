// Package converter turns DRM-wrapped aax files into m4b via ffmpeg.
// The audio stream is copied, not re-encoded, so conversion is I/O
// bound and lossless.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrActivationRequired is returned when an aax source is given without
// activation bytes configured.
var ErrActivationRequired = errors.New("aax conversion requires activation bytes")

// Converter produces a library-ready audio file from a raw download.
type Converter interface {
	// Convert writes the converted file into outputDir and returns its
	// path.
	Convert(ctx context.Context, sourcePath, outputDir string) (string, error)
}

// Config for the ffmpeg converter.
type Config struct {
	// Binary is the ffmpeg executable, resolved from PATH when bare.
	Binary string
	// ActivationBytes unlock Audible aax containers.
	ActivationBytes string
}

// FFmpeg shells out to ffmpeg.
type FFmpeg struct {
	binary          string
	activationBytes string
	run             func(ctx context.Context, name string, args ...string) error
	log             *slog.Logger
}

// NewFFmpeg creates the converter. An empty Binary defaults to
// "ffmpeg".
func NewFFmpeg(cfg Config, log *slog.Logger) *FFmpeg {
	if log == nil {
		log = slog.Default()
	}
	binary := cfg.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{
		binary:          binary,
		activationBytes: cfg.ActivationBytes,
		run:             runCommand,
		log:             log.With("component", "converter"),
	}
}

// Check verifies the ffmpeg binary is present.
func (f *FFmpeg) Check() error {
	if _, err := exec.LookPath(f.binary); err != nil {
		return fmt.Errorf("ffmpeg binary %q not found: %w", f.binary, err)
	}
	return nil
}

// Convert remuxes sourcePath into an m4b in outputDir. The output is
// written to a temp name first and renamed into place so a killed
// conversion never leaves a plausible-looking partial file.
func (f *FFmpeg) Convert(ctx context.Context, sourcePath, outputDir string) (string, error) {
	isAax := strings.EqualFold(filepath.Ext(sourcePath), ".aax")
	if isAax && f.activationBytes == "" {
		return "", ErrActivationRequired
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	outPath := filepath.Join(outputDir, base+".m4b")
	tmpPath := outPath + ".converting"

	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	if isAax {
		args = append(args, "-activation_bytes", f.activationBytes)
	}
	args = append(args,
		"-i", sourcePath,
		"-c", "copy",
		"-f", "mp4",
		tmpPath,
	)

	f.log.Info("conversion started", "source", filepath.Base(sourcePath), "output", filepath.Base(outPath))

	if err := f.run(ctx, f.binary, args...); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("ffmpeg convert: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename converted file: %w", err)
	}

	f.log.Info("conversion complete", "output", outPath)
	return outPath, nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
