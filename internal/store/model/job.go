package model

import (
	"errors"
	"fmt"
	"time"
)

type JobStatus string

// Job status constants
const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusComplete   JobStatus = "COMPLETE"
	JobStatusFailed     JobStatus = "FAILED"
)

var (
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrInvalidJob        = errors.New("invalid job")
)

func (s JobStatus) String() string {
	return string(s)
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusComplete, JobStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a job in status s may be written with status next.
// Rewriting a non terminal status is allowed so progress can be recorded.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusPending || next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusProcessing || next == JobStatusComplete || next == JobStatusFailed
	default:
		return false
	}
}

// Job is one request to analyze an input media file.
type Job struct {
	ID              string    `gorm:"primaryKey;column:id;type:VARCHAR(255);"`
	Status          JobStatus `gorm:"column:status;type:VARCHAR(32);not null;index"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null"`
	InputPath       string    `gorm:"column:input_path;not null"`
	InputFilename   string    `gorm:"column:input_filename"`
	InputSize       int64     `gorm:"column:input_size;not null;default:0"`
	ChunksProcessed int       `gorm:"column:chunks_processed;not null;default:0"`
	TotalChunks     int       `gorm:"column:total_chunks;not null;default:0"`
	Report          *string   `gorm:"column:report;type:TEXT"`
	Error           *string   `gorm:"column:error_message;type:TEXT"`
}

func (Job) TableName() string {
	return "jobs"
}

func NewJob(id string, input InputRef) *Job {
	return &Job{
		ID:            id,
		Status:        JobStatusPending,
		InputPath:     input.Path,
		InputFilename: input.Filename,
		InputSize:     input.Size,
	}
}

// InputRef points at an input file already accepted by the intake.
type InputRef struct {
	Path     string
	Filename string
	Size     int64
}

func (j *Job) Input() InputRef {
	return InputRef{Path: j.InputPath, Filename: j.InputFilename, Size: j.InputSize}
}

// Validate checks the record level invariants.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidJob)
	}
	if !j.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidJob, j.Status)
	}
	if j.ChunksProcessed < 0 || j.TotalChunks < 0 {
		return fmt.Errorf("%w: negative chunk counters", ErrInvalidJob)
	}
	if j.ChunksProcessed > j.TotalChunks {
		return fmt.Errorf("%w: chunks processed %d exceeds total %d", ErrInvalidJob, j.ChunksProcessed, j.TotalChunks)
	}
	if (j.Report != nil) != (j.Status == JobStatusComplete) {
		return fmt.Errorf("%w: report must be set only on %s jobs", ErrInvalidJob, JobStatusComplete)
	}
	if (j.Error != nil) != (j.Status == JobStatusFailed) {
		return fmt.Errorf("%w: error must be set only on %s jobs", ErrInvalidJob, JobStatusFailed)
	}
	return nil
}

// ValidateUpdate checks that next is a legal successor of j.
func (j *Job) ValidateUpdate(next *Job) error {
	if next.ID != j.ID {
		return fmt.Errorf("%w: id is immutable", ErrInvalidJob)
	}
	if !next.CreatedAt.Equal(j.CreatedAt) {
		return fmt.Errorf("%w: created_at is immutable", ErrInvalidJob)
	}
	if !j.Status.CanTransition(next.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next.Status)
	}
	if next.ChunksProcessed < j.ChunksProcessed {
		return fmt.Errorf("%w: chunks processed cannot decrease", ErrInvalidJob)
	}
	if j.TotalChunks != 0 && next.TotalChunks != j.TotalChunks {
		return fmt.Errorf("%w: total chunks is set once", ErrInvalidJob)
	}
	return next.Validate()
}

func (j *Job) Complete(report string) {
	j.Status = JobStatusComplete
	j.Report = &report
	j.Error = nil
}

func (j *Job) Fail(cause string) {
	j.Status = JobStatusFailed
	j.Error = &cause
	j.Report = nil
}
