package models

import (
	"fmt"
	"strings"
	"time"
)

// Scene is the atomic unit of composition: one image, one audio clip, one caption.
type Scene struct {
	ImageURL string `json:"image_url"`
	AudioURL string `json:"audio_url"`
	Subtitle string `json:"subtitle"`
	Index    int    `json:"index"`
}

// Caption returns the subtitle text, or a placeholder derived from the
// scene index when the request carried none.
func (s Scene) Caption() string {
	if strings.TrimSpace(s.Subtitle) == "" {
		return fmt.Sprintf("Scene %d", s.Index+1)
	}
	return s.Subtitle
}

// JobStatus is the lifecycle state of a composition job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "processing"
	JobSucceeded JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status is absorbing.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// JobRecord tracks one composition request in memory.
type JobRecord struct {
	JobID       string
	Status      JobStatus
	ArtifactURL string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GenerateResponse is returned by POST /generate-video.
type GenerateResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
}

// MergeResponse is returned by POST /merge-videos.
type MergeResponse struct {
	MergedVideoURL string `json:"merged_video_url"`
}

// StatusResponse is returned by GET /status/:job_id.
type StatusResponse struct {
	JobID    string  `json:"job_id"`
	Status   string  `json:"status"`
	VideoURL *string `json:"video_url,omitempty"`
	Error    *string `json:"error,omitempty"`
}
