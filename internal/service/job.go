package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/media-analyzer/internal/events"
	"github.com/kubev2v/media-analyzer/internal/jobs"
	"github.com/kubev2v/media-analyzer/internal/store"
	"github.com/kubev2v/media-analyzer/internal/store/model"
	"github.com/kubev2v/media-analyzer/pkg/artifact"
	"github.com/kubev2v/media-analyzer/pkg/log"
	"github.com/kubev2v/media-analyzer/pkg/metrics"
	"github.com/lthibault/jitterbug/v2"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100

	defaultRequeueInterval = 5 * time.Second

	cancelledMessage   = "job cancelled"
	interruptedMessage = "job interrupted by service restart"
)

var errStatusChanged = errors.New("job status changed")

// JobQueue schedules background executions of jobs.
type JobQueue interface {
	Enqueue(jobID string) error
	Cancel(jobID string, cause error) bool
}

type EventWriter interface {
	WriteJob(ctx context.Context, kind string, job *model.Job)
}

type JobServiceOption func(*JobService)

func WithUploadDir(dir string) JobServiceOption {
	return func(s *JobService) {
		if dir != "" {
			s.uploadDir = dir
		}
	}
}

// ChunkLocator tells where the segments of a job are written while it runs.
type ChunkLocator interface {
	ChunkDir(jobID string) string
}

// ChunkRoot locates segments in one directory per job under the root.
type ChunkRoot string

func (r ChunkRoot) ChunkDir(jobID string) string {
	return filepath.Join(string(r), jobID)
}

func WithChunkLocator(l ChunkLocator) JobServiceOption {
	return func(s *JobService) {
		if l != nil {
			s.chunks = l
		}
	}
}

// WithRequeueInterval sets how often recovered jobs that did not fit in the queue
// are offered again.
func WithRequeueInterval(d time.Duration) JobServiceOption {
	return func(s *JobService) {
		if d > 0 {
			s.requeueInterval = d
		}
	}
}

func WithMaxUploadSize(size int64) JobServiceOption {
	return func(s *JobService) {
		s.maxUploadSize = size
	}
}

func WithEventWriter(ew EventWriter) JobServiceOption {
	return func(s *JobService) {
		s.events = ew
	}
}

type JobService struct {
	store         store.Store
	queue         JobQueue
	artifacts     artifact.Storage
	events        EventWriter
	uploadDir       string
	chunks          ChunkLocator
	maxUploadSize   int64
	requeueInterval time.Duration
	logger          *log.StructuredLogger
}

func NewJobService(s store.Store, queue JobQueue, artifacts artifact.Storage, opts ...JobServiceOption) *JobService {
	svc := &JobService{
		store:     s,
		queue:     queue,
		artifacts: artifacts,
		uploadDir:       "uploads",
		chunks:          ChunkRoot("chunks"),
		requeueInterval: defaultRequeueInterval,
		logger:          log.NewDebugLogger("job_service"),
	}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

// Submit validates and stages the upload, records a PENDING job and schedules it.
// Nothing is recorded when the upload is rejected.
func (s *JobService) Submit(ctx context.Context, upload Upload) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("submit_job").WithParam("filename", upload.Filename).Build()

	if err := ValidateUpload(upload); err != nil {
		tracer.Error(err).AsWarning().Log()
		return nil, err
	}

	id := uuid.NewString()
	path := filepath.Join(s.uploadDir, id+stagedExtension(upload))

	size, err := stage(path, upload.Content, s.maxUploadSize)
	switch {
	case errors.Is(err, errTooLarge):
		tracer.Error(err).AsWarning().Log()
		return nil, NewErrUploadTooLarge(s.maxUploadSize)
	case err != nil:
		tracer.Error(err).Log()
		return nil, err
	case size == 0:
		s.removeFile(ctx, path)
		return nil, NewErrValidation("uploaded file is empty")
	}

	tracer.Step("upload staged").WithParam("job_id", id).WithParam("path", path).WithParam("size", size).Log()

	job, err := s.store.Job().Create(ctx, *model.NewJob(id, model.InputRef{
		Path:     path,
		Filename: filepath.Base(upload.Filename),
		Size:     size,
	}))
	if err != nil {
		s.removeFile(ctx, path)
		tracer.Error(err).Log()
		return nil, fmt.Errorf("recording job: %w", err)
	}

	if err := s.queue.Enqueue(id); err != nil {
		if delErr := s.store.Job().Delete(context.WithoutCancel(ctx), id); delErr != nil {
			tracer.Error(delErr).WithParam("job_id", id).Log()
		}
		s.removeFile(ctx, path)
		tracer.Error(err).Log()
		return nil, NewErrServiceUnavailable(err)
	}

	metrics.IncreaseJobsSubmittedMetric()
	s.emit(ctx, events.JobSubmittedKind, job)

	tracer.Success().WithParam("job_id", id).Log()
	return job, nil
}

func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

type ListParams struct {
	Statuses []model.JobStatus
	Offset   int
	Limit    int
}

type JobList struct {
	Jobs   []model.Job
	Total  int64
	Offset int
	Limit  int
}

// List returns a page of jobs, newest first.
func (s *JobService) List(ctx context.Context, params ListParams) (*JobList, error) {
	tracer := s.logger.WithContext(ctx).Operation("list_jobs").
		WithParam("statuses", params.Statuses).
		WithParam("offset", params.Offset).
		WithParam("limit", params.Limit).
		Build()

	for _, st := range params.Statuses {
		if !st.IsValid() {
			return nil, NewErrValidation("unknown job status %q", st)
		}
	}
	if params.Offset < 0 {
		return nil, NewErrValidation("offset must not be negative")
	}
	if params.Limit <= 0 {
		params.Limit = DefaultListLimit
	}
	if params.Limit > MaxListLimit {
		params.Limit = MaxListLimit
	}

	filter := store.NewJobQueryFilter()
	if len(params.Statuses) > 0 {
		filter = filter.ByStatus(params.Statuses...)
	}

	total, err := s.store.Job().Count(ctx, filter)
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	list, err := s.store.Job().List(ctx, filter, store.NewJobQueryOptions().
		WithSortOrder(store.SortByCreatedTimeDesc).
		WithOffset(params.Offset).
		WithLimit(params.Limit))
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	tracer.Success().WithParam("count", len(list)).WithParam("total", total).Log()
	return &JobList{Jobs: list, Total: total, Offset: params.Offset, Limit: params.Limit}, nil
}

// Cancel stops a queued or running job. A PENDING job is failed at once; a PROCESSING
// job is failed by its worker, keeping the progress recorded so far.
func (s *JobService) Cancel(ctx context.Context, id string) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("cancel_job").WithParam("job_id", id).Build()

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, NewErrJobAlreadyTerminal(id, job.Status)
	}

	if job.Status == model.JobStatusPending {
		failed, err := s.cancelPending(ctx, id)
		switch {
		case err == nil:
			s.queue.Cancel(id, jobs.ErrJobCancelled)
			metrics.IncreaseJobsFinishedMetric(failed.Status.String())
			s.emit(ctx, events.JobFailedKind, failed)
			tracer.Success().WithParam("status", failed.Status).Log()
			return failed, nil
		case !errors.Is(err, errStatusChanged):
			tracer.Error(err).Log()
			return nil, err
		}
		// the job started meanwhile
	}

	if !s.queue.Cancel(id, jobs.ErrJobCancelled) {
		// no execution owns the job anymore, record the cancellation ourselves
		failed, err := s.failIf(ctx, id, model.JobStatusProcessing, cancelledMessage)
		if err != nil && !errors.Is(err, errStatusChanged) {
			tracer.Error(err).Log()
			return nil, err
		}
		if err == nil {
			metrics.IncreaseJobsFinishedMetric(failed.Status.String())
			s.emit(ctx, events.JobFailedKind, failed)
		}
	}

	job, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	tracer.Success().WithParam("status", job.Status).Log()
	return job, nil
}

// GetReport writes the report of a COMPLETE job to dst.
func (s *JobService) GetReport(ctx context.Context, id string, dst io.Writer) error {
	tracer := s.logger.WithContext(ctx).Operation("get_report").WithParam("job_id", id).Build()

	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusComplete {
		return NewErrReportNotReady(id, job.Status)
	}

	var buf bytes.Buffer
	err = s.artifacts.Get(ctx, jobs.ReportKey(id), &buf)
	switch {
	case errors.Is(err, artifact.ErrNotFound) && job.Report != nil:
		tracer.Step("report artifact missing, serving stored report").Log()
		buf.Reset()
		buf.WriteString(*job.Report)
	case err != nil:
		tracer.Error(err).Log()
		return fmt.Errorf("reading report: %w", err)
	}

	if _, err := buf.WriteTo(dst); err != nil {
		return err
	}

	tracer.Success().Log()
	return nil
}

// Delete removes the job record and everything produced for it. A running job is cancelled.
func (s *JobService) Delete(ctx context.Context, id string) error {
	tracer := s.logger.WithContext(ctx).Operation("delete_job").WithParam("job_id", id).Build()

	txCtx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = store.Rollback(txCtx)
	}()

	job, err := s.store.Job().Get(txCtx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrJobNotFound(id)
		}
		tracer.Error(err).Log()
		return err
	}

	if err := s.store.Job().Delete(txCtx, id); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrJobNotFound(id)
		}
		tracer.Error(err).Log()
		return err
	}

	if _, err := store.Commit(txCtx); err != nil {
		tracer.Error(err).Log()
		return err
	}

	if !job.Status.IsTerminal() {
		s.queue.Cancel(id, jobs.ErrJobCancelled)
	}

	s.removeFile(ctx, job.InputPath)
	if err := s.artifacts.Delete(ctx, jobs.ReportKey(id)); err != nil {
		tracer.Error(err).AsWarning().WithParam("artifact", jobs.ReportKey(id)).Log()
	}
	if err := os.RemoveAll(s.chunks.ChunkDir(id)); err != nil {
		tracer.Error(err).AsWarning().Log()
	}

	s.emit(ctx, events.JobDeletedKind, job)

	tracer.Success().Log()
	return nil
}

// RecoverInterrupted runs once at startup. Jobs left PROCESSING by a previous process
// are failed; PENDING jobs never started and are scheduled again.
func (s *JobService) RecoverInterrupted(ctx context.Context) error {
	tracer := s.logger.WithContext(ctx).Operation("recover_interrupted_jobs").Build()

	processing, err := s.store.Job().List(ctx, store.NewJobQueryFilter().ByStatus(model.JobStatusProcessing), nil)
	if err != nil {
		tracer.Error(err).Log()
		return err
	}
	for _, job := range processing {
		failed, err := s.failIf(ctx, job.ID, model.JobStatusProcessing, interruptedMessage)
		if err != nil {
			if errors.Is(err, errStatusChanged) || errors.Is(err, store.ErrRecordNotFound) {
				continue
			}
			tracer.Error(err).WithParam("job_id", job.ID).Log()
			return err
		}
		metrics.IncreaseJobsFinishedMetric(failed.Status.String())
		s.emit(ctx, events.JobFailedKind, failed)
		s.removeChunks(ctx, job.ID)
	}

	pending, err := s.store.Job().List(ctx, store.NewJobQueryFilter().ByStatus(model.JobStatusPending),
		store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTime))
	if err != nil {
		tracer.Error(err).Log()
		return err
	}

	ids := make([]string, 0, len(pending))
	for _, job := range pending {
		ids = append(ids, job.ID)
	}

	requeued, rest, err := s.enqueueAll(ids)
	if err != nil {
		tracer.Error(err).Log()
		return err
	}
	if len(rest) > 0 {
		go s.requeue(ctx, rest)
	}

	tracer.Success().
		WithParam("failed", len(processing)).
		WithParam("requeued", requeued).
		WithParam("deferred", len(rest)).
		Log()
	return nil
}

// enqueueAll schedules ids in order until the queue is full and returns the ids left over.
func (s *JobService) enqueueAll(ids []string) (int, []string, error) {
	requeued := 0
	for i, id := range ids {
		err := s.queue.Enqueue(id)
		switch {
		case err == nil:
			requeued++
		case errors.Is(err, jobs.ErrAlreadyQueued):
		case errors.Is(err, jobs.ErrQueueFull):
			return requeued, ids[i:], nil
		default:
			return requeued, nil, err
		}
	}
	return requeued, nil, nil
}

// requeue offers ids to the queue again on every tick until all of them are accepted,
// the queue is closed or ctx is done.
func (s *JobService) requeue(ctx context.Context, ids []string) {
	tracer := s.logger.WithContext(ctx).Operation("requeue_pending_jobs").WithParam("remaining", len(ids)).Build()
	tracer.Step("queue full, retrying later").Log()

	ticker := jitterbug.New(s.requeueInterval, &jitterbug.Norm{Stdev: s.requeueInterval / 10})
	defer ticker.Stop()

	for len(ids) > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		_, rest, err := s.enqueueAll(ids)
		if err != nil {
			if !errors.Is(err, jobs.ErrQueueClosed) {
				tracer.Error(err).Log()
			}
			return
		}
		ids = rest
	}
	tracer.Success().Log()
}

// cancelPending fails a job that never started. The job goes through PROCESSING inside
// one transaction so readers only ever see PENDING or FAILED.
func (s *JobService) cancelPending(ctx context.Context, id string) (*model.Job, error) {
	txCtx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(txCtx)
	}()

	if _, err := s.store.Job().Update(txCtx, id, func(j *model.Job) error {
		if j.Status != model.JobStatusPending {
			return errStatusChanged
		}
		j.Status = model.JobStatusProcessing
		return nil
	}); err != nil {
		return nil, err
	}

	failed, err := s.failIf(txCtx, id, model.JobStatusProcessing, cancelledMessage)
	if err != nil {
		return nil, err
	}

	if _, err := store.Commit(txCtx); err != nil {
		return nil, err
	}
	return failed, nil
}

// failIf fails the job only while it still has status from.
func (s *JobService) failIf(ctx context.Context, id string, from model.JobStatus, message string) (*model.Job, error) {
	return s.store.Job().Update(ctx, id, func(j *model.Job) error {
		if j.Status != from {
			return errStatusChanged
		}
		j.Fail(message)
		return nil
	})
}

func (s *JobService) removeFile(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.WithContext(ctx).Operation("remove_file").WithParam("path", path).Build().Error(err).AsWarning().Log()
	}
}

func (s *JobService) removeChunks(ctx context.Context, id string) {
	dir := s.chunks.ChunkDir(id)
	if err := os.RemoveAll(dir); err != nil {
		s.logger.WithContext(ctx).Operation("remove_chunks").WithParam("dir", dir).Build().Error(err).AsWarning().Log()
	}
}

func (s *JobService) emit(ctx context.Context, kind string, job *model.Job) {
	if s.events == nil {
		return
	}
	s.events.WriteJob(ctx, kind, job)
}
