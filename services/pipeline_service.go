package services

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"clipforge/config"
	"clipforge/models"
	"clipforge/utils"
)

// Fetcher retrieves a remote asset into the workspace.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// Renderer encodes one scene segment and measures media durations.
type Renderer interface {
	RenderScene(ctx context.Context, in RenderInput) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Composer joins ordered segments into a published artifact.
type Composer interface {
	Compose(ctx context.Context, segmentPaths []string, workDir, outputPath string) error
}

// PipelineService owns the end-to-end execution of one composition job:
// per-scene fetch, caption build and render, then the compose barrier, with
// an isolated workspace reclaimed on every path out of the running state.
type PipelineService struct {
	cfg       *config.Config
	fetcher   Fetcher
	subtitles *SubtitleService
	renderer  Renderer
	composer  Composer
	registry  *JobRegistry
}

// NewPipelineService creates the orchestrator.
func NewPipelineService(cfg *config.Config, fetcher Fetcher, subtitles *SubtitleService, renderer Renderer, composer Composer, registry *JobRegistry) *PipelineService {
	return &PipelineService{
		cfg:       cfg,
		fetcher:   fetcher,
		subtitles: subtitles,
		renderer:  renderer,
		composer:  composer,
		registry:  registry,
	}
}

// ArtifactURL returns the public location of a job's output artifact.
func (ps *PipelineService) ArtifactURL(jobID string) string {
	return "/videos/" + jobID + ".mp4"
}

func (ps *PipelineService) artifactPath(jobID string) string {
	return filepath.Join(ps.cfg.OutputDir, jobID+".mp4")
}

// Run executes one composition job to a terminal state. The outcome is
// recorded in the registry and also returned for synchronous callers.
func (ps *PipelineService) Run(ctx context.Context, jobID string, scenes []models.Scene) error {
	ps.registry.MarkRunning(jobID)
	log.Printf("[Job %s] started with %d scenes", jobID, len(scenes))

	if err := ps.runScenes(ctx, jobID, scenes); err != nil {
		log.Printf("[Job %s] FAILED: %v", jobID, err)
		ps.registry.MarkFailed(jobID, err)
		return err
	}

	ps.registry.MarkSucceeded(jobID, ps.ArtifactURL(jobID))
	log.Printf("[Job %s] completed", jobID)
	return nil
}

func (ps *PipelineService) runScenes(ctx context.Context, jobID string, scenes []models.Scene) error {
	if len(scenes) == 0 {
		return fmt.Errorf("job has no scenes")
	}

	workspace, err := ps.createWorkspace(jobID)
	if err != nil {
		return err
	}
	defer ps.cleanup(jobID)

	// Scenes share no state beyond their own workspace subpaths, so they fan
	// out; the first failure cancels the rest of the group.
	segments := make([]string, len(scenes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ps.cfg.MaxConcurrentScenes)

	for i, scene := range scenes {
		i, scene := i, scene
		g.Go(func() error {
			segmentPath, err := ps.renderScene(gctx, workspace, jobID, i, scene)
			if err != nil {
				return err
			}
			segments[i] = segmentPath
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	// Compose barrier: every segment has rendered.
	if err := ps.composer.Compose(ctx, segments, workspace, ps.artifactPath(jobID)); err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	return nil
}

// renderScene runs the fetch → caption → render sequence for one scene and
// returns the segment path. pos is the scene's position in index order.
func (ps *PipelineService) renderScene(ctx context.Context, workspace, jobID string, pos int, scene models.Scene) (string, error) {
	assetsDir := filepath.Join(workspace, "assets")
	imagePath := filepath.Join(assetsDir, fmt.Sprintf("scene_%03d_image%s", pos, extFromURL(scene.ImageURL, ".jpg")))
	audioPath := filepath.Join(assetsDir, fmt.Sprintf("scene_%03d_audio%s", pos, extFromURL(scene.AudioURL, ".mp3")))
	subtitlePath := filepath.Join(assetsDir, fmt.Sprintf("scene_%03d.ass", pos))
	segmentPath := filepath.Join(workspace, "segments", fmt.Sprintf("scene_%03d.mp4", pos))

	if err := ps.fetchWithRetry(ctx, jobID, scene.ImageURL, imagePath); err != nil {
		return "", fmt.Errorf("scene %d: fetch image: %w", scene.Index, err)
	}
	if err := ps.fetchWithRetry(ctx, jobID, scene.AudioURL, audioPath); err != nil {
		return "", fmt.Errorf("scene %d: fetch audio: %w", scene.Index, err)
	}

	// The caption spans the real audio length, so measure it.
	duration, err := ps.renderer.ProbeDuration(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("scene %d: probe audio: %w", scene.Index, err)
	}

	doc := ps.subtitles.Build(scene.Caption(), duration)
	if err := os.WriteFile(subtitlePath, []byte(doc), 0644); err != nil {
		// Full detail stays in the log; callers see only the error class.
		log.Printf("[Job %s] scene %d caption write failed: %v", jobID, scene.Index, err)
		return "", fmt.Errorf("scene %d: write captions: %s", scene.Index, osErrClass(err))
	}

	err = ps.renderer.RenderScene(ctx, RenderInput{
		ImagePath:    imagePath,
		AudioPath:    audioPath,
		SubtitlePath: subtitlePath,
		Duration:     duration,
		OutputPath:   segmentPath,
	})
	if err != nil {
		return "", fmt.Errorf("scene %d: render: %w", scene.Index, err)
	}

	return segmentPath, nil
}

// RunMerge executes one merge job to a terminal state: fetch each video,
// stream-copy concat, publish.
func (ps *PipelineService) RunMerge(ctx context.Context, jobID string, videoURLs []string) error {
	ps.registry.MarkRunning(jobID)
	log.Printf("[Job %s] merging %d videos", jobID, len(videoURLs))

	if err := ps.runMerge(ctx, jobID, videoURLs); err != nil {
		log.Printf("[Job %s] FAILED: %v", jobID, err)
		ps.registry.MarkFailed(jobID, err)
		return err
	}

	ps.registry.MarkSucceeded(jobID, ps.ArtifactURL(jobID))
	log.Printf("[Job %s] completed", jobID)
	return nil
}

func (ps *PipelineService) runMerge(ctx context.Context, jobID string, videoURLs []string) error {
	workspace, err := ps.createWorkspace(jobID)
	if err != nil {
		return err
	}
	defer ps.cleanup(jobID)

	inputs := make([]string, len(videoURLs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ps.cfg.MaxConcurrentScenes)

	for i, videoURL := range videoURLs {
		i, videoURL := i, videoURL
		g.Go(func() error {
			dest := filepath.Join(workspace, "assets", fmt.Sprintf("input_%03d.mp4", i))
			if err := ps.fetchWithRetry(gctx, jobID, videoURL, dest); err != nil {
				return fmt.Errorf("video %d: %w", i, err)
			}
			inputs[i] = dest
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if err := ps.composer.Compose(ctx, inputs, workspace, ps.artifactPath(jobID)); err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	return nil
}

// fetchWithRetry attempts a fetch at most twice. Fetches are idempotent;
// encode and concat failures never retry.
func (ps *PipelineService) fetchWithRetry(ctx context.Context, jobID, url, dest string) error {
	err := ps.fetcher.Fetch(ctx, url, dest)
	if err == nil || ctx.Err() != nil {
		return err
	}

	log.Printf("[Job %s] retrying fetch %s after error: %v", jobID, url, err)
	return ps.fetcher.Fetch(ctx, url, dest)
}

// createWorkspace allocates the job's isolated directory tree, logging the
// full filesystem detail and returning only the error class.
func (ps *PipelineService) createWorkspace(jobID string) (string, error) {
	workspace, err := utils.CreateWorkspace(ps.cfg.TempDir, jobID)
	if err != nil {
		log.Printf("[Job %s] workspace creation failed: %v", jobID, err)
		return "", fmt.Errorf("failed to create workspace: %s", osErrClass(err))
	}
	return workspace, nil
}

// cleanup reclaims the workspace. It runs on every path out of the running
// state; failures are logged and never surfaced.
func (ps *PipelineService) cleanup(jobID string) {
	if err := utils.RemoveWorkspace(ps.cfg.TempDir, jobID); err != nil {
		log.Printf("[Job %s] workspace cleanup failed: %v", jobID, err)
	}
}

// extFromURL pulls a file extension out of a URL path, falling back when
// the URL has none.
func extFromURL(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	if ext := path.Ext(u.Path); ext != "" {
		return ext
	}
	return fallback
}
