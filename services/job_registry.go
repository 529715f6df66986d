package services

import (
	"sync"
	"time"

	"clipforge/models"
)

// JobRegistry is the process-wide map from job identity to lifecycle state.
// Entries live only as long as the process; nothing is persisted across
// restarts. Terminal states are absorbing: late writes against a finished
// job are ignored.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*models.JobRecord
}

// NewJobRegistry creates an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{
		jobs: make(map[string]*models.JobRecord),
	}
}

// Create registers a new pending job under the given id.
func (r *JobRegistry) Create(jobID string) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[jobID] = &models.JobRecord{
		JobID:     jobID,
		Status:    models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkRunning transitions a pending job to running.
func (r *JobRegistry) MarkRunning(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[jobID]
	if !exists || job.Status != models.JobPending {
		return
	}
	job.Status = models.JobRunning
	job.UpdatedAt = time.Now()
}

// MarkSucceeded records the terminal success state and the artifact location.
func (r *JobRegistry) MarkSucceeded(jobID, artifactURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[jobID]
	if !exists || job.Status.Terminal() {
		return
	}
	job.Status = models.JobSucceeded
	job.ArtifactURL = artifactURL
	job.UpdatedAt = time.Now()
}

// MarkFailed records the terminal failure state and the error detail.
func (r *JobRegistry) MarkFailed(jobID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[jobID]
	if !exists || job.Status.Terminal() {
		return
	}
	job.Status = models.JobFailed
	if err != nil {
		job.Error = err.Error()
	}
	job.UpdatedAt = time.Now()
}

// Get returns a snapshot of the job record, if it exists.
func (r *JobRegistry) Get(jobID string) (models.JobRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.jobs[jobID]
	if !exists {
		return models.JobRecord{}, false
	}
	return *job, true
}
