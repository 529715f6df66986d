package services

import (
	"context"
	"fmt"

	"clipforge/utils"
)

// RenderInput describes one scene segment encode.
type RenderInput struct {
	ImagePath    string
	AudioPath    string
	SubtitlePath string
	Duration     float64 // seconds; 0 means truncate to the shorter stream
	OutputPath   string
}

// RenderService drives the external encode engine to turn one image, one
// audio clip and one caption track into a fixed-duration video segment.
type RenderService struct {
	runner       *utils.Runner
	resolution   string
	preset       string
	audioBitrate string
}

// NewRenderService creates a render service sharing the given engine runner.
func NewRenderService(runner *utils.Runner, resolution, preset, audioBitrate string) *RenderService {
	return &RenderService{
		runner:       runner,
		resolution:   resolution,
		preset:       preset,
		audioBitrate: audioBitrate,
	}
}

// RenderScene encodes one segment. A non-zero engine exit is fatal for the
// owning job; the renderer never cleans up its inputs.
func (rs *RenderService) RenderScene(ctx context.Context, in RenderInput) error {
	spec := utils.RenderSpec{
		ImagePath:    in.ImagePath,
		AudioPath:    in.AudioPath,
		SubtitlePath: in.SubtitlePath,
		Resolution:   rs.resolution,
		Preset:       rs.preset,
		AudioBitrate: rs.audioBitrate,
		Duration:     in.Duration,
		OutputPath:   in.OutputPath,
	}

	args, err := spec.Args()
	if err != nil {
		return fmt.Errorf("invalid render invocation: %w", err)
	}

	return rs.runner.Run(ctx, "render", args)
}

// ProbeDuration measures a media file's duration in seconds.
func (rs *RenderService) ProbeDuration(ctx context.Context, path string) (float64, error) {
	return rs.runner.ProbeDuration(ctx, path)
}
