package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kubev2v/media-analyzer/internal/analysis"
	"github.com/kubev2v/media-analyzer/internal/events"
	"github.com/kubev2v/media-analyzer/internal/report"
	"github.com/kubev2v/media-analyzer/internal/segment"
	"github.com/kubev2v/media-analyzer/internal/store"
	"github.com/kubev2v/media-analyzer/internal/store/model"
	"github.com/kubev2v/media-analyzer/pkg/artifact"
	"github.com/kubev2v/media-analyzer/pkg/metrics"
	"go.uber.org/zap"
)

var (
	errNotPending = errors.New("job is not pending")
	errTerminal   = errors.New("job already finished")
)

type Segmenter interface {
	Segment(ctx context.Context, input string, outputDir string, maxDuration time.Duration) ([]segment.Segment, error)
}

type EventWriter interface {
	WriteJob(ctx context.Context, kind string, job *model.Job)
}

type WorkerOption func(*Worker)

func WithChunksDir(dir string) WorkerOption {
	return func(w *Worker) {
		if dir != "" {
			w.chunksDir = dir
		}
	}
}

func WithSegmentDuration(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.segmentDuration = d
		}
	}
}

func WithAggregator(a *report.Aggregator) WorkerOption {
	return func(w *Worker) {
		w.aggregator = a
	}
}

// WithFailureRetry sets how many times recording a failure is attempted, waiting
// attempt*backoff between attempts.
func WithFailureRetry(attempts int, backoff time.Duration) WorkerOption {
	return func(w *Worker) {
		if attempts > 0 {
			w.failureAttempts = attempts
		}
		if backoff >= 0 {
			w.failureBackoff = backoff
		}
	}
}

func WithEvents(ew EventWriter) WorkerOption {
	return func(w *Worker) {
		w.events = ew
	}
}

// Worker runs a job from PENDING to a terminal status.
type Worker struct {
	store           store.Store
	segmenter       Segmenter
	pipeline        *analysis.Pipeline
	artifacts       artifact.Storage
	aggregator      *report.Aggregator
	events          EventWriter
	chunksDir       string
	segmentDuration time.Duration
	failureAttempts int
	failureBackoff  time.Duration
}

func NewWorker(s store.Store, segmenter Segmenter, pipeline *analysis.Pipeline, artifacts artifact.Storage, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:           s,
		segmenter:       segmenter,
		pipeline:        pipeline,
		artifacts:       artifacts,
		chunksDir:       "chunks",
		segmentDuration: segment.DefaultMaxDuration,
		failureAttempts: defaultFailureAttempts,
		failureBackoff:  defaultFailureBackoff,
	}
	for _, o := range opts {
		o(w)
	}
	if w.aggregator == nil {
		w.aggregator = report.NewAggregator(w.segmentDuration)
	}
	return w
}

// ChunkDir is the directory holding the segments of jobID while it runs.
func (w *Worker) ChunkDir(jobID string) string {
	return filepath.Join(w.chunksDir, jobID)
}

func (w *Worker) Work(ctx context.Context, jobID string) (err error) {
	logger := zap.S().Named("job_worker").With("job_id", jobID)

	if errors.Is(context.Cause(ctx), ErrShutdown) {
		logger.Infow("service stopping, job left pending")
		return nil
	}

	s := w.store.Session(ctx)

	// the claim must land even when the job was cancelled while queued, so the
	// cancellation can be recorded as a failure below
	job, err := s.Job().Update(context.WithoutCancel(ctx), jobID, func(j *model.Job) error {
		if j.Status != model.JobStatusPending {
			return errNotPending
		}
		j.Status = model.JobStatusProcessing
		return nil
	})
	switch {
	case errors.Is(err, errNotPending):
		logger.Infow("job is not pending, skipping")
		return nil
	case errors.Is(err, store.ErrRecordNotFound):
		logger.Infow("job was deleted before it started")
		return nil
	case err != nil:
		return fmt.Errorf("claiming job %s: %w", jobID, err)
	}

	logger.Infow("job started", "input", job.InputPath)
	metrics.JobStarted()
	defer metrics.JobStopped()
	w.emit(ctx, job)

	chunkDir := w.ChunkDir(jobID)
	defer func() {
		if rmErr := os.RemoveAll(chunkDir); rmErr != nil {
			logger.Warnw("failed to remove segment directory", "dir", chunkDir, "error", rmErr)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = w.fail(s, jobID, fmt.Errorf("internal error: %v", r))
		}
	}()

	completed, err := w.process(ctx, s, job, chunkDir)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, context.Cause(ctx)) {
			err = fmt.Errorf("%w: %w", context.Cause(ctx), err)
		}
		return w.fail(s, jobID, err)
	}

	logger.Infow("job completed", "segments", completed.TotalChunks)
	metrics.IncreaseJobsFinishedMetric(completed.Status.String())
	w.emit(ctx, completed)

	return nil
}

func (w *Worker) process(ctx context.Context, s store.Store, job *model.Job, chunkDir string) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}

	segments, err := w.segmenter.Segment(ctx, job.InputPath, chunkDir, w.segmentDuration)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, &segment.SegmentationError{Message: "no segments produced"}
	}

	if _, err := s.Job().Update(ctx, job.ID, func(j *model.Job) error {
		j.TotalChunks = len(segments)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("recording segment count: %w", err)
	}

	result, err := w.pipeline.Run(ctx, segments, func(ctx context.Context, processed int) error {
		_, err := s.Job().Update(ctx, job.ID, func(j *model.Job) error {
			j.ChunksProcessed = processed
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if failed := result.FailedCount(); failed > 0 {
		zap.S().Named("job_worker").Warnw("some segments could not be analyzed", "job_id", job.ID, "failed", failed, "total", len(segments))
	}

	text, err := w.aggregator.Aggregate(result.Summaries())
	if err != nil {
		return nil, err
	}

	key := ReportKey(job.ID)
	if err := w.artifacts.Put(ctx, key, strings.NewReader(text), int64(len(text))); err != nil {
		return nil, fmt.Errorf("storing report: %w", err)
	}

	completed, err := s.Job().Update(ctx, job.ID, func(j *model.Job) error {
		j.Complete(text)
		return nil
	})
	if err != nil {
		w.removeReport(key)
		return nil, fmt.Errorf("recording completion: %w", err)
	}

	return completed, nil
}

// fail records cause on the job. The write runs on a fresh context and is retried:
// the job context may already be cancelled and the job must not stay PROCESSING.
func (w *Worker) fail(s store.Store, jobID string, cause error) error {
	logger := zap.S().Named("job_worker").With("job_id", jobID)

	if errors.Is(cause, store.ErrRecordNotFound) {
		logger.Infow("job was deleted while running")
		w.removeReport(ReportKey(jobID))
		return nil
	}

	message := strings.ToValidUTF8(cause.Error(), "\uFFFD")

	var (
		failed *model.Job
		err    error
	)
	for attempt := 1; ; attempt++ {
		failed, err = w.recordFailure(s, jobID, message)
		if err == nil || errors.Is(err, store.ErrRecordNotFound) || errors.Is(err, errTerminal) || attempt >= w.failureAttempts {
			break
		}
		logger.Warnw("failed to record job failure, retrying", "attempt", attempt, "error", err)
		time.Sleep(time.Duration(attempt) * w.failureBackoff)
	}

	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		logger.Infow("job was deleted while running")
		w.removeReport(ReportKey(jobID))
		return nil
	case errors.Is(err, errTerminal):
		return nil
	case err != nil:
		return fmt.Errorf("recording failure of job %s (%v): %w", jobID, cause, err)
	}

	stage := "analysis"
	if segment.IsSegmentationError(cause) {
		stage = "segmentation"
	}
	logger.Warnw("job failed", "stage", stage, "error", cause)
	metrics.IncreaseJobsFinishedMetric(failed.Status.String())
	w.emit(context.Background(), failed)

	return nil
}

func (w *Worker) recordFailure(s store.Store, jobID string, message string) (*model.Job, error) {
	ctx, cancel := context.WithTimeout(context.Background(), failureTimeout)
	defer cancel()

	return s.Job().Update(ctx, jobID, func(j *model.Job) error {
		if j.Status.IsTerminal() {
			return errTerminal
		}
		j.Fail(message)
		return nil
	})
}

func (w *Worker) removeReport(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), failureTimeout)
	defer cancel()

	if err := w.artifacts.Delete(ctx, key); err != nil && !errors.Is(err, artifact.ErrNotFound) {
		zap.S().Named("job_worker").Warnw("failed to remove report", "key", key, "error", err)
	}
}

// emit announces the status job just reached.
func (w *Worker) emit(ctx context.Context, job *model.Job) {
	if w.events == nil {
		return
	}
	w.events.WriteJob(context.WithoutCancel(ctx), events.KindForStatus(job.Status), job)
}
