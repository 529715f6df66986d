package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"clipforge/utils"
)

// ComposerService losslessly concatenates ordered segment files into one
// output file via the engine's stream-copy concat mode.
type ComposerService struct {
	runner *utils.Runner
}

// NewComposerService creates a composer sharing the given engine runner.
func NewComposerService(runner *utils.Runner) *ComposerService {
	return &ComposerService{runner: runner}
}

// Compose writes a concat manifest into workDir and stream-copies the
// segments into outputPath. A single segment is a straight copy. The output
// is staged under a temporary name and renamed on success, so outputPath is
// either fully formed or absent.
func (cs *ComposerService) Compose(ctx context.Context, segmentPaths []string, workDir, outputPath string) error {
	if len(segmentPaths) == 0 {
		return errors.New("at least one segment is required")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %s", osErrClass(err))
	}

	// The staging name is dot-prefixed so an in-progress concat never sits
	// at a name the artifact route would serve.
	staging := filepath.Join(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+".part")

	if len(segmentPaths) == 1 {
		if err := utils.CopyFile(segmentPaths[0], staging); err != nil {
			os.Remove(staging)
			return fmt.Errorf("failed to copy segment: %s", osErrClass(err))
		}
	} else {
		manifestPath := filepath.Join(workDir, "concat.txt")
		if err := utils.WriteConcatManifest(manifestPath, segmentPaths); err != nil {
			return fmt.Errorf("failed to write concat manifest: %s", osErrClass(err))
		}

		if err := cs.runner.Run(ctx, "concat", utils.ConcatArgs(manifestPath, staging)); err != nil {
			os.Remove(staging)
			return err
		}
	}

	if err := os.Rename(staging, outputPath); err != nil {
		os.Remove(staging)
		return fmt.Errorf("failed to publish output: %s", osErrClass(err))
	}

	return nil
}
