package jobs

import (
	"errors"
	"time"
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 100

	// failureTimeout bounds the write recording a failure, which runs on a fresh context.
	failureTimeout = 30 * time.Second

	defaultFailureAttempts = 5
	defaultFailureBackoff  = 2 * time.Second
)

var (
	ErrQueueClosed   = errors.New("job queue is closed")
	ErrQueueFull     = errors.New("job queue is full")
	ErrAlreadyQueued = errors.New("job is already queued or running")

	// ErrJobCancelled is the cause attached to the context of a job cancelled by a client.
	ErrJobCancelled = errors.New("job cancelled")
	// ErrShutdown is the cause attached to the context of jobs still running when the queue stops.
	ErrShutdown = errors.New("job interrupted by service shutdown")
)

// ReportKey is the artifact key under which the report of job jobID is stored.
func ReportKey(jobID string) string {
	return jobID + "_report.txt"
}
