package service

import (
	"fmt"

	"github.com/kubev2v/media-analyzer/internal/store/model"
)

type ErrValidation struct {
	error
}

func NewErrValidation(format string, args ...any) *ErrValidation {
	return &ErrValidation{fmt.Errorf(format, args...)}
}

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id string, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

type ErrJobAlreadyTerminal struct {
	error
}

func NewErrJobAlreadyTerminal(id string, status model.JobStatus) *ErrJobAlreadyTerminal {
	return &ErrJobAlreadyTerminal{fmt.Errorf("job %s already finished with status %s", id, status)}
}

type ErrReportNotReady struct {
	error
}

func NewErrReportNotReady(id string, status model.JobStatus) *ErrReportNotReady {
	return &ErrReportNotReady{fmt.Errorf("report of job %s is not available: job is %s", id, status)}
}

type ErrServiceUnavailable struct {
	error
}

func NewErrServiceUnavailable(reason error) *ErrServiceUnavailable {
	return &ErrServiceUnavailable{fmt.Errorf("job cannot be scheduled: %w", reason)}
}

// ErrUploadTooLarge is a validation error raised when an upload exceeds the size limit.
type ErrUploadTooLarge struct {
	error
	Limit int64
}

func NewErrUploadTooLarge(limit int64) *ErrUploadTooLarge {
	return &ErrUploadTooLarge{error: NewErrValidation("file too large: the limit is %d bytes", limit), Limit: limit}
}

func (e *ErrUploadTooLarge) Unwrap() error {
	return e.error
}
