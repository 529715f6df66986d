package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/config"
	"clipforge/models"
	"clipforge/utils"
)

type fakeFetcher struct {
	mu      sync.Mutex
	fetched []string
	failURL string
	failIO  bool // report the failure as an io cause instead of a 404
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dest string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()

	if f.failURL != "" && url == f.failURL {
		if f.failIO {
			pathErr := &fs.PathError{Op: "mkdir", Path: filepath.Dir(dest), Err: errors.New("not a directory")}
			return &FetchError{URL: url, Cause: FetchIO, Err: pathErr}
		}
		return &FetchError{URL: url, Cause: FetchHTTPStatus, StatusCode: 404}
	}
	return os.WriteFile(dest, []byte("asset"), 0644)
}

func (f *fakeFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

type fakeRenderer struct {
	mu       sync.Mutex
	rendered []RenderInput
	duration float64
	failOn   string // substring of the output path
}

func (f *fakeRenderer) ProbeDuration(ctx context.Context, path string) (float64, error) {
	return f.duration, nil
}

func (f *fakeRenderer) RenderScene(ctx context.Context, in RenderInput) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// The caption track must exist before the encode runs.
	if _, err := os.Stat(in.SubtitlePath); err != nil {
		return fmt.Errorf("subtitle file missing: %w", err)
	}

	f.mu.Lock()
	f.rendered = append(f.rendered, in)
	f.mu.Unlock()

	if f.failOn != "" && strings.Contains(in.OutputPath, f.failOn) {
		return &utils.EngineError{Op: "render", ExitCode: 1, Stderr: "encode failed"}
	}
	return os.WriteFile(in.OutputPath, []byte("segment"), 0644)
}

func (f *fakeRenderer) inputs() []RenderInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RenderInput(nil), f.rendered...)
}

type composeCall struct {
	segments []string
	output   string
}

type fakeComposer struct {
	mu    sync.Mutex
	calls []composeCall
	fail  bool
}

func (f *fakeComposer) Compose(ctx context.Context, segmentPaths []string, workDir, outputPath string) error {
	f.mu.Lock()
	f.calls = append(f.calls, composeCall{
		segments: append([]string(nil), segmentPaths...),
		output:   outputPath,
	})
	f.mu.Unlock()

	if f.fail {
		return &utils.EngineError{Op: "concat", ExitCode: 1, Stderr: "invalid manifest"}
	}
	return os.WriteFile(outputPath, []byte("artifact"), 0644)
}

func (f *fakeComposer) recorded() []composeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]composeCall(nil), f.calls...)
}

func newTestPipeline(t *testing.T, fetcher *fakeFetcher, renderer *fakeRenderer, composer *fakeComposer, sceneLimit int) (*PipelineService, *JobRegistry, *config.Config) {
	t.Helper()

	cfg := &config.Config{
		TempDir:              filepath.Join(t.TempDir(), "temp"),
		OutputDir:            filepath.Join(t.TempDir(), "videos"),
		VideoResolution:      "1080x1920",
		VideoPreset:          "veryfast",
		AudioBitrate:         "192k",
		SubtitleFont:         "Arial",
		SubtitleFontSize:     48,
		MaxConcurrentRenders: 2,
		MaxConcurrentScenes:  sceneLimit,
		FFmpegTimeout:        time.Minute,
		FetchTimeout:         time.Minute,
	}
	require.NoError(t, os.MkdirAll(cfg.TempDir, 0755))
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0755))

	registry := NewJobRegistry()
	subtitles := NewSubtitleService(DefaultStyle())
	ps := NewPipelineService(cfg, fetcher, subtitles, renderer, composer, registry)
	return ps, registry, cfg
}

func testScenes(n int) []models.Scene {
	scenes := make([]models.Scene, n)
	for i := range scenes {
		scenes[i] = models.Scene{
			ImageURL: fmt.Sprintf("http://assets/s%d.jpg", i),
			AudioURL: fmt.Sprintf("http://assets/s%d.mp3", i),
			Subtitle: fmt.Sprintf("Caption %d", i),
			Index:    i,
		}
	}
	return scenes
}

func workspaceAbsent(t *testing.T, cfg *config.Config, jobID string) {
	t.Helper()
	_, err := os.Stat(filepath.Join(cfg.TempDir, jobID))
	assert.True(t, os.IsNotExist(err), "workspace must be removed after the terminal transition")
}

func TestRunSuccess(t *testing.T) {
	fetcher := &fakeFetcher{}
	renderer := &fakeRenderer{duration: 7}
	composer := &fakeComposer{}
	ps, registry, cfg := newTestPipeline(t, fetcher, renderer, composer, 4)

	registry.Create("job-a")
	require.NoError(t, ps.Run(context.Background(), "job-a", testScenes(3)))

	job, _ := registry.Get("job-a")
	assert.Equal(t, models.JobSucceeded, job.Status)
	assert.Equal(t, "/videos/job-a.mp4", job.ArtifactURL)

	// Artifact survives workspace cleanup.
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "job-a.mp4"))
	workspaceAbsent(t, cfg, "job-a")

	// Segments arrive at the composer in scene index order.
	calls := composer.recorded()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].segments, 3)
	for i, seg := range calls[0].segments {
		assert.Contains(t, seg, fmt.Sprintf("scene_%03d.mp4", i))
	}

	// Captions span the measured audio duration.
	for _, in := range renderer.inputs() {
		assert.Equal(t, 7.0, in.Duration)
	}
}

func TestRunSingleSceneComposesOneSegment(t *testing.T) {
	fetcher := &fakeFetcher{}
	renderer := &fakeRenderer{duration: 3.5}
	composer := &fakeComposer{}
	ps, registry, cfg := newTestPipeline(t, fetcher, renderer, composer, 4)

	registry.Create("job-a")
	scenes := []models.Scene{{ImageURL: "http://a/a.jpg", AudioURL: "http://a/a.mp3", Subtitle: "Hi"}}
	require.NoError(t, ps.Run(context.Background(), "job-a", scenes))

	calls := composer.recorded()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].segments, 1)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "job-a.mp4"))
}

func TestRunFetchFailureAbortsJob(t *testing.T) {
	// Scene 1's audio fetch fails; scenes run sequentially so nothing past
	// the failing scene may render.
	fetcher := &fakeFetcher{failURL: "http://assets/s1.mp3"}
	renderer := &fakeRenderer{duration: 7}
	composer := &fakeComposer{}
	ps, registry, cfg := newTestPipeline(t, fetcher, renderer, composer, 1)

	registry.Create("job-a")
	err := ps.Run(context.Background(), "job-a", testScenes(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scene 1")
	assert.Contains(t, err.Error(), "fetch audio")

	job, _ := registry.Get("job-a")
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Error, "scene 1")

	// Only the scene before the failure rendered.
	inputs := renderer.inputs()
	require.Len(t, inputs, 1)
	assert.Contains(t, inputs[0].OutputPath, "scene_000.mp4")

	// No compose, no artifact, no workspace.
	assert.Empty(t, composer.recorded())
	_, statErr := os.Stat(filepath.Join(cfg.OutputDir, "job-a.mp4"))
	assert.True(t, os.IsNotExist(statErr), "failed job must not publish an artifact")
	workspaceAbsent(t, cfg, "job-a")
}

func TestRunFetchRetriesOnce(t *testing.T) {
	fetcher := &fakeFetcher{failURL: "http://assets/s0.mp3"}
	renderer := &fakeRenderer{duration: 7}
	composer := &fakeComposer{}
	ps, registry, _ := newTestPipeline(t, fetcher, renderer, composer, 1)

	registry.Create("job-a")
	require.Error(t, ps.Run(context.Background(), "job-a", testScenes(1)))

	attempts := 0
	for _, u := range fetcher.urls() {
		if u == "http://assets/s0.mp3" {
			attempts++
		}
	}
	assert.Equal(t, 2, attempts, "idempotent fetches retry exactly once")
}

func TestRunRenderFailureAbortsJob(t *testing.T) {
	fetcher := &fakeFetcher{}
	renderer := &fakeRenderer{duration: 7, failOn: "scene_001"}
	composer := &fakeComposer{}
	ps, registry, cfg := newTestPipeline(t, fetcher, renderer, composer, 1)

	registry.Create("job-a")
	err := ps.Run(context.Background(), "job-a", testScenes(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scene 1: render")

	job, _ := registry.Get("job-a")
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Empty(t, composer.recorded())
	workspaceAbsent(t, cfg, "job-a")
}

func TestRunComposeFailureAbortsJob(t *testing.T) {
	fetcher := &fakeFetcher{}
	renderer := &fakeRenderer{duration: 7}
	composer := &fakeComposer{fail: true}
	ps, registry, cfg := newTestPipeline(t, fetcher, renderer, composer, 4)

	registry.Create("job-a")
	err := ps.Run(context.Background(), "job-a", testScenes(2))
	require.Error(t, err)

	job, _ := registry.Get("job-a")
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Error, "compose")
	workspaceAbsent(t, cfg, "job-a")
}

func TestConcurrentJobsStayIsolated(t *testing.T) {
	fetcher := &fakeFetcher{}
	renderer := &fakeRenderer{duration: 7}
	composer := &fakeComposer{}
	ps, registry, cfg := newTestPipeline(t, fetcher, renderer, composer, 4)

	registry.Create("job-a")
	registry.Create("job-b")

	var wg sync.WaitGroup
	for _, jobID := range []string{"job-a", "job-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, ps.Run(context.Background(), id, testScenes(3)))
		}(jobID)
	}
	wg.Wait()

	// Every compose call saw segments from exactly one job's workspace.
	for _, call := range composer.recorded() {
		jobID := strings.TrimSuffix(filepath.Base(call.output), ".mp4")
		for _, seg := range call.segments {
			assert.Contains(t, seg, filepath.Join(cfg.TempDir, jobID)+string(filepath.Separator),
				"segment from another job's workspace")
		}
	}

	for _, jobID := range []string{"job-a", "job-b"} {
		job, _ := registry.Get(jobID)
		assert.Equal(t, models.JobSucceeded, job.Status)
		assert.FileExists(t, filepath.Join(cfg.OutputDir, jobID+".mp4"))
		workspaceAbsent(t, cfg, jobID)
	}
}

func TestRunMerge(t *testing.T) {
	fetcher := &fakeFetcher{}
	renderer := &fakeRenderer{duration: 7}
	composer := &fakeComposer{}
	ps, registry, cfg := newTestPipeline(t, fetcher, renderer, composer, 4)

	registry.Create("job-m")
	urls := []string{"http://videos/1.mp4", "http://videos/2.mp4"}
	require.NoError(t, ps.RunMerge(context.Background(), "job-m", urls))

	job, _ := registry.Get("job-m")
	assert.Equal(t, models.JobSucceeded, job.Status)
	assert.Equal(t, "/videos/job-m.mp4", job.ArtifactURL)

	calls := composer.recorded()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].segments, 2)
	assert.Contains(t, calls[0].segments[0], "input_000.mp4")
	assert.Contains(t, calls[0].segments[1], "input_001.mp4")

	assert.FileExists(t, filepath.Join(cfg.OutputDir, "job-m.mp4"))
	workspaceAbsent(t, cfg, "job-m")
}

func TestRunMergeFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{failURL: "http://videos/2.mp4"}
	renderer := &fakeRenderer{duration: 7}
	composer := &fakeComposer{}
	ps, registry, cfg := newTestPipeline(t, fetcher, renderer, composer, 1)

	registry.Create("job-m")
	err := ps.RunMerge(context.Background(), "job-m", []string{"http://videos/1.mp4", "http://videos/2.mp4"})
	require.Error(t, err)

	job, _ := registry.Get("job-m")
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Empty(t, composer.recorded())
	workspaceAbsent(t, cfg, "job-m")
}

func TestRunWorkspaceFailureOmitsLocalPath(t *testing.T) {
	fetcher := &fakeFetcher{}
	renderer := &fakeRenderer{duration: 7}
	composer := &fakeComposer{}
	ps, registry, cfg := newTestPipeline(t, fetcher, renderer, composer, 1)

	// A regular file where the temp root should be makes workspace creation
	// fail with a path-carrying error.
	require.NoError(t, os.RemoveAll(cfg.TempDir))
	require.NoError(t, os.WriteFile(cfg.TempDir, nil, 0644))

	registry.Create("job-a")
	err := ps.Run(context.Background(), "job-a", testScenes(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create workspace")
	assert.NotContains(t, err.Error(), cfg.TempDir, "workspace errors must not leak local paths")

	job, _ := registry.Get("job-a")
	assert.Equal(t, models.JobFailed, job.Status)
	assert.NotContains(t, job.Error, cfg.TempDir)
}

func TestRunSceneIOErrorsOmitLocalPaths(t *testing.T) {
	// The failing fetch reports an io cause carrying the destination path;
	// neither the returned error nor the recorded one may expose it.
	fetcher := &fakeFetcher{failURL: "http://assets/s0.mp3", failIO: true}
	renderer := &fakeRenderer{duration: 7}
	composer := &fakeComposer{}
	ps, registry, cfg := newTestPipeline(t, fetcher, renderer, composer, 1)

	registry.Create("job-a")
	err := ps.Run(context.Background(), "job-a", testScenes(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http://assets/s0.mp3")
	assert.NotContains(t, err.Error(), cfg.TempDir, "scene errors must not leak local paths")

	job, _ := registry.Get("job-a")
	assert.NotContains(t, job.Error, cfg.TempDir)
}

func TestArtifactURL(t *testing.T) {
	ps, _, _ := newTestPipeline(t, &fakeFetcher{}, &fakeRenderer{duration: 1}, &fakeComposer{}, 1)
	assert.Equal(t, "/videos/abc.mp4", ps.ArtifactURL("abc"))
}
