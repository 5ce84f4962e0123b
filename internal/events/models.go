package events

import (
	"time"

	"github.com/kubev2v/media-analyzer/internal/store/model"
)

const (
	JobSubmittedKind string = "media.analyzer.events.job.submitted"
	JobStartedKind   string = "media.analyzer.events.job.started"
	JobCompletedKind string = "media.analyzer.events.job.completed"
	JobFailedKind    string = "media.analyzer.events.job.failed"
	JobDeletedKind   string = "media.analyzer.events.job.deleted"
)

type JobEvent struct {
	JobID           string    `json:"job_id"`
	Status          string    `json:"status"`
	Filename        string    `json:"filename,omitempty"`
	ChunksProcessed int       `json:"chunks_processed"`
	TotalChunks     int       `json:"total_chunks"`
	Error           string    `json:"error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func NewJobEvent(job *model.Job) JobEvent {
	ev := JobEvent{
		JobID:           job.ID,
		Status:          job.Status.String(),
		Filename:        job.InputFilename,
		ChunksProcessed: job.ChunksProcessed,
		TotalChunks:     job.TotalChunks,
		UpdatedAt:       job.UpdatedAt,
	}
	if job.Error != nil {
		ev.Error = *job.Error
	}
	return ev
}

// KindForStatus returns the event kind announcing that a job reached status.
func KindForStatus(status model.JobStatus) string {
	switch status {
	case model.JobStatusProcessing:
		return JobStartedKind
	case model.JobStatusComplete:
		return JobCompletedKind
	case model.JobStatusFailed:
		return JobFailedKind
	default:
		return JobSubmittedKind
	}
}
