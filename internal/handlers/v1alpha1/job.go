package v1alpha1

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/kubev2v/media-analyzer/internal/handlers/v1alpha1/mappers"
	"github.com/kubev2v/media-analyzer/internal/service"
	"github.com/kubev2v/media-analyzer/pkg/log"
)

const uploadFormField = "file"

var errNoFile = service.NewErrValidation("no file provided")

// (POST /api/v1/analyze)
func (h *ServiceHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.NewDebugLogger("job_handler").
		WithContext(ctx).
		Operation("submit_job").
		Build()

	if limit := h.uploadLimit(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		logger.Error(err).AsWarning().Log()
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("expected a multipart upload: %v", err))
		return
	}

	part, err := nextFilePart(reader)
	if err != nil {
		logger.Error(err).AsWarning().Log()
		renderServiceError(w, r, err)
		return
	}
	defer part.Close()

	job, err := h.jobSrv.Submit(ctx, service.Upload{
		Filename:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Content:     part,
	})
	if err != nil {
		status := renderServiceError(w, r, err)
		logger.Error(err).WithParam("status", status).Log()
		return
	}

	logger.Success().WithParam("job_id", job.ID).Log()

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, mappers.SubmitResponseToApi(*job, h.statusURL(job.ID)))
}

// nextFilePart skips form fields until the uploaded file.
func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoFile
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, service.NewErrValidation("malformed multipart upload: %v", err)
		}
		if part.FormName() == uploadFormField && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

// (GET /api/v1/analyze/status/{id}) and (GET /api/v1/jobs/{id})
func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.jobSrv.Get(r.Context(), id)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}

// (GET /api/v1/jobs)
func (h *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.NewDebugLogger("job_handler").
		WithContext(ctx).
		Operation("list_jobs").
		WithParam("query", r.URL.RawQuery).
		Build()

	form, err := parseListQuery(r)
	if err == nil {
		err = h.validator.Struct(form)
	}
	if err != nil {
		logger.Error(err).AsWarning().Log()
		renderServiceError(w, r, err)
		return
	}

	list, err := h.jobSrv.List(ctx, mappers.ListParamsFromForm(form))
	if err != nil {
		logger.Error(err).Log()
		renderServiceError(w, r, err)
		return
	}

	logger.Success().WithParam("count", len(list.Jobs)).WithParam("total", list.Total).Log()
	render.JSON(w, r, mappers.JobListToApi(list))
}

// parseListQuery accepts status either repeated or comma separated.
func parseListQuery(r *http.Request) (mappers.ListJobsForm, error) {
	query := r.URL.Query()
	form := mappers.ListJobsForm{}

	for _, value := range query["status"] {
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				form.Status = append(form.Status, s)
			}
		}
	}

	var err error
	if form.Offset, err = intParam(query.Get("offset")); err != nil {
		return form, service.NewErrValidation("invalid offset: %v", err)
	}
	if form.Limit, err = intParam(query.Get("limit")); err != nil {
		return form, service.NewErrValidation("invalid limit: %v", err)
	}
	return form, nil
}

func intParam(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

// (GET /api/v1/jobs/{id}/report)
func (h *ServiceHandler) GetJobReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var buf bytes.Buffer
	if err := h.jobSrv.GetReport(r.Context(), id, &buf); err != nil {
		renderServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"_report.txt"))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// (POST /api/v1/jobs/{id}/cancel)
func (h *ServiceHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	logger := log.NewDebugLogger("job_handler").
		WithContext(ctx).
		Operation("cancel_job").
		WithParam("job_id", id).
		Build()

	job, err := h.jobSrv.Cancel(ctx, id)
	if err != nil {
		status := renderServiceError(w, r, err)
		logger.Error(err).WithParam("status", status).AsWarning().Log()
		return
	}

	logger.Success().WithParam("status", job.Status).Log()
	render.JSON(w, r, mappers.JobToApi(*job))
}

// (DELETE /api/v1/jobs/{id})
func (h *ServiceHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	logger := log.NewDebugLogger("job_handler").
		WithContext(ctx).
		Operation("delete_job").
		WithParam("job_id", id).
		Build()

	if err := h.jobSrv.Delete(ctx, id); err != nil {
		status := renderServiceError(w, r, err)
		logger.Error(err).WithParam("status", status).AsWarning().Log()
		return
	}

	logger.Success().Log()
	w.WriteHeader(http.StatusNoContent)
}
