package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// stderrExcerptLimit caps how much engine output ends up in error messages.
const stderrExcerptLimit = 512

// EngineError reports a non-zero exit from an external engine invocation.
type EngineError struct {
	Op       string // "render" or "concat"
	ExitCode int
	Stderr   string // truncated excerpt, never the full stream
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s failed (exit %d): %s", e.Op, e.ExitCode, e.Stderr)
}

// Runner executes ffmpeg and ffprobe. Every encode invocation holds one slot
// from a process-wide pool, since each run is CPU- and memory-heavy.
type Runner struct {
	slots   *semaphore.Weighted
	timeout time.Duration
}

// NewRunner creates a runner allowing at most maxConcurrent simultaneous
// encode invocations, each bounded by timeout.
func NewRunner(maxConcurrent int, timeout time.Duration) *Runner {
	return &Runner{
		slots:   semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: timeout,
	}
}

// Run executes ffmpeg with the given args under an encode slot and timeout.
func (r *Runner) Run(ctx context.Context, op string, args []string) error {
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for encode slot: %w", err)
	}
	defer r.slots.Release(1)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &EngineError{Op: op, ExitCode: exitCode, Stderr: ExcerptStderr(stderr.String())}
	}

	return nil
}

// ProbeDuration returns the duration of a media file in seconds via ffprobe.
// Probes are cheap metadata reads and do not take an encode slot.
func (r *Runner) ProbeDuration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe error: %w", err)
	}

	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return duration, nil
}

// ExcerptStderr keeps the tail of an engine's stderr, where ffmpeg puts the
// actual failure reason.
func ExcerptStderr(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrExcerptLimit {
		s = "..." + s[len(s)-stderrExcerptLimit:]
	}
	return s
}

// RenderSpec describes one scene segment encode: a still image looped under
// an audio track with a burned-in subtitle file, scaled to a vertical canvas.
type RenderSpec struct {
	ImagePath    string
	AudioPath    string
	SubtitlePath string
	Resolution   string  // WxH
	Preset       string
	AudioBitrate string
	Duration     float64 // seconds; 0 means truncate to the shorter stream
	OutputPath   string
}

// Args validates the spec and builds the ffmpeg argument list.
func (s RenderSpec) Args() ([]string, error) {
	if s.ImagePath == "" || s.AudioPath == "" || s.SubtitlePath == "" || s.OutputPath == "" {
		return nil, errors.New("render spec: image, audio, subtitle and output paths are required")
	}
	if s.Duration < 0 {
		return nil, fmt.Errorf("render spec: negative duration %.3f", s.Duration)
	}
	scale, err := scaleFilter(s.Resolution)
	if err != nil {
		return nil, fmt.Errorf("render spec: %w", err)
	}

	args := []string{
		"-y",
		"-loop", "1",
		"-i", s.ImagePath,
		"-i", s.AudioPath,
		"-vf", fmt.Sprintf("ass=%s,%s", EscapeFilterPath(s.SubtitlePath), scale),
	}
	if s.Duration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", s.Duration))
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", s.Preset,
		"-tune", "stillimage",
		"-c:a", "aac",
		"-b:a", s.AudioBitrate,
		"-pix_fmt", "yuv420p",
		"-shortest",
		s.OutputPath,
	)

	return args, nil
}

// scaleFilter turns "1080x1920" into "scale=1080:1920".
func scaleFilter(resolution string) (string, error) {
	var w, h int
	if _, err := fmt.Sscanf(resolution, "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return "", fmt.Errorf("resolution %q is not WxH", resolution)
	}
	return fmt.Sprintf("scale=%d:%d", w, h), nil
}

// EscapeFilterPath escapes a path for use inside an ffmpeg filter argument,
// where backslashes, colons, commas and quotes are syntax.
func EscapeFilterPath(p string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`,`, `\,`,
		`'`, `\'`,
		`[`, `\[`,
		`]`, `\]`,
	)
	return replacer.Replace(p)
}

// WriteConcatManifest writes segment paths in order in concat-demuxer syntax.
func WriteConcatManifest(path string, segments []string) error {
	if len(segments) == 0 {
		return errors.New("no segments to list")
	}

	var b strings.Builder
	for i, seg := range segments {
		if seg == "" {
			return fmt.Errorf("empty segment path at index %d", i)
		}
		// Single quotes inside a quoted concat entry end the quote, escape
		// the quote character, and reopen.
		escaped := strings.ReplaceAll(seg, `'`, `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}

	return os.WriteFile(path, []byte(b.String()), 0644)
}

// ConcatArgs builds the stream-copy concat invocation for a manifest file.
func ConcatArgs(manifestPath, outputPath string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		outputPath,
	}
}
