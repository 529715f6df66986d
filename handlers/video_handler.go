package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"clipforge/models"
	"clipforge/services"
	"clipforge/utils"
)

// Pipeline executes composition and merge jobs to a terminal state.
type Pipeline interface {
	Run(ctx context.Context, jobID string, scenes []models.Scene) error
	RunMerge(ctx context.Context, jobID string, videoURLs []string) error
	ArtifactURL(jobID string) string
}

// VideoHandler handles video composition requests
type VideoHandler struct {
	pipeline  Pipeline
	registry  *services.JobRegistry
	outputDir string
}

// NewVideoHandler creates a new video handler
func NewVideoHandler(pipeline Pipeline, registry *services.JobRegistry, outputDir string) *VideoHandler {
	return &VideoHandler{
		pipeline:  pipeline,
		registry:  registry,
		outputDir: outputDir,
	}
}

// Generate handles POST /generate-video
func (h *VideoHandler) Generate(c *gin.Context) {
	var req models.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID := uuid.New().String()
	h.registry.Create(jobID)

	if req.Async {
		// Decoupled from the request; the caller polls the registry or
		// fetches the predicted artifact location later.
		go func() {
			_ = h.pipeline.Run(context.Background(), jobID, req.Scenes)
		}()

		c.JSON(http.StatusOK, models.GenerateResponse{
			JobID:    jobID,
			Status:   string(models.JobRunning),
			VideoURL: h.pipeline.ArtifactURL(jobID),
		})
		return
	}

	// Sync mode blocks until the job reaches a terminal state. A background
	// context keeps an early client disconnect from cancelling the job.
	if err := h.pipeline.Run(context.Background(), jobID, req.Scenes); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "job_id": jobID})
		return
	}

	c.JSON(http.StatusOK, models.GenerateResponse{
		JobID:    jobID,
		Status:   string(models.JobSucceeded),
		VideoURL: h.pipeline.ArtifactURL(jobID),
	})
}

// Merge handles POST /merge-videos
func (h *VideoHandler) Merge(c *gin.Context) {
	var req models.MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID := uuid.New().String()
	h.registry.Create(jobID)

	if err := h.pipeline.RunMerge(context.Background(), jobID, req.VideoURLs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "job_id": jobID})
		return
	}

	c.JSON(http.StatusOK, models.MergeResponse{
		MergedVideoURL: h.pipeline.ArtifactURL(jobID),
	})
}

// Download handles GET /videos/:name. Only published .mp4 artifacts are
// served; staging files and anything outside the output directory are not.
func (h *VideoHandler) Download(c *gin.Context) {
	name := c.Param("name")

	if name != filepath.Base(name) || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".mp4") {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		return
	}

	path := filepath.Join(h.outputDir, name)
	if !utils.FileExists(path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		return
	}

	c.Header("Content-Type", "video/mp4")
	c.File(path)
}

// GetStatus handles GET /status/:job_id
func (h *VideoHandler) GetStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	job, exists := h.registry.Get(jobID)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	resp := models.StatusResponse{
		JobID:  job.JobID,
		Status: string(job.Status),
	}
	if job.Status == models.JobSucceeded && job.ArtifactURL != "" {
		resp.VideoURL = &job.ArtifactURL
	}
	if job.Error != "" {
		resp.Error = &job.Error
	}

	c.JSON(http.StatusOK, resp)
}
