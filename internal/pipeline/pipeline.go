// Package pipeline wraps the external yt-dlp tool for metadata resolution
// and audio extraction.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Metadata holds resolved source information
type Metadata struct {
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Uploader  string  `json:"uploader"`
	Thumbnail string  `json:"thumbnail"`
}

// Result describes a produced audio artifact
type Result struct {
	ArtifactPath string
	Title        string
	SizeBytes    int64
}

// Runner invokes yt-dlp for metadata resolution and MP3 extraction
type Runner struct {
	binPath         string
	outputDir       string
	metadataTimeout time.Duration
	encodeTimeout   time.Duration
}

// Config holds pipeline settings
type Config struct {
	BinPath         string
	OutputDir       string
	MetadataTimeout time.Duration
	EncodeTimeout   time.Duration
}

// NewRunner constructs a Runner and verifies the external tool is available
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.BinPath == "" {
		cfg.BinPath = "yt-dlp"
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = 30 * time.Second
	}
	if cfg.EncodeTimeout <= 0 {
		cfg.EncodeTimeout = 5 * time.Minute
	}

	if _, err := exec.LookPath(cfg.BinPath); err != nil {
		return nil, newError(KindToolUnavailable,
			fmt.Sprintf("%s is not installed or not in PATH", cfg.BinPath), err)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Runner{
		binPath:         cfg.BinPath,
		outputDir:       cfg.OutputDir,
		metadataTimeout: cfg.MetadataTimeout,
		encodeTimeout:   cfg.EncodeTimeout,
	}, nil
}

// OutputDir returns the directory finished artifacts are written to
func (r *Runner) OutputDir() string {
	return r.outputDir
}

// ResolveMetadata fetches structured metadata for a source URL without
// downloading any media.
func (r *Runner) ResolveMetadata(ctx context.Context, url string) (*Metadata, error) {
	if _, err := exec.LookPath(r.binPath); err != nil {
		return nil, newError(KindToolUnavailable,
			fmt.Sprintf("%s is not installed or not in PATH", r.binPath), err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.metadataTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binPath, "--dump-json", "--no-warnings", "-q", url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, newError(KindResolutionFailed, "metadata request timed out", ctx.Err())
		}
		return nil, newError(KindResolutionFailed,
			"video not found or unavailable: "+firstLine(stderr.String()), err)
	}

	meta := &Metadata{}
	if err := json.Unmarshal(stdout.Bytes(), meta); err != nil {
		return nil, newError(KindResolutionFailed, "invalid metadata response", err)
	}
	if meta.Title == "" {
		meta.Title = "Unknown"
	}
	if meta.Uploader == "" {
		meta.Uploader = "Unknown"
	}

	return meta, nil
}

// FetchAndEncode downloads the source audio and transcodes it to MP3 at the
// requested bitrate. The download id is folded into the artifact name so
// concurrent jobs with identical titles cannot collide.
func (r *Runner) FetchAndEncode(ctx context.Context, url, quality string, downloadID int64) (*Result, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, newError(KindExecFailed, "failed to create output directory", err)
	}

	meta, err := r.ResolveMetadata(ctx, url)
	if err != nil {
		return nil, err
	}

	baseName := fmt.Sprintf("%d-%s", downloadID, SanitizeTitle(meta.Title))
	outputTemplate := filepath.Join(r.outputDir, baseName+".%(ext)s")

	ctx, cancel := context.WithTimeout(ctx, r.encodeTimeout)
	defer cancel()

	args := []string{
		url,
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", quality,
		"-o", outputTemplate,
		"--quiet",
		"--no-warnings",
	}

	cmd := exec.CommandContext(ctx, r.binPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logrus.WithFields(logrus.Fields{
		"download_id": downloadID,
		"quality":     quality,
	}).Debug("Invoking audio extraction")

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, newError(KindExecFailed, "download timed out", ctx.Err())
		}
		return nil, newError(KindExecFailed,
			"audio extraction failed: "+firstLine(stderr.String()), err)
	}

	artifactPath, err := r.findArtifact(baseName)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(artifactPath)
	if err != nil {
		return nil, newError(KindArtifactNotFound, "failed to stat artifact", err)
	}

	return &Result{
		ArtifactPath: artifactPath,
		Title:        meta.Title,
		SizeBytes:    info.Size(),
	}, nil
}

// findArtifact locates the produced MP3 by prefix match against the expected
// base name. The tool may pick a slightly different final name; anything
// beyond a prefix variation is surfaced as an error.
func (r *Runner) findArtifact(baseName string) (string, error) {
	entries, err := os.ReadDir(r.outputDir)
	if err != nil {
		return "", newError(KindArtifactNotFound, "failed to read output directory", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, baseName) && strings.HasSuffix(name, ".mp3") {
			return filepath.Join(r.outputDir, name), nil
		}
	}

	return "", newError(KindArtifactNotFound, "MP3 file was not created", nil)
}

// firstLine trims tool output down to its first non-empty line
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return "no output"
}
