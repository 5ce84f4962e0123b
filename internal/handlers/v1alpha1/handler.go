package v1alpha1

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kubev2v/media-analyzer/internal/handlers/validator"
	"github.com/kubev2v/media-analyzer/internal/service"
)

// multipartOverhead is the allowance for form boundaries and headers on top of the file.
const multipartOverhead = 1 << 20

type ServiceHandler struct {
	jobSrv        *service.JobService
	validator     *validator.Validator
	baseURL       string
	maxUploadSize int64
}

func NewServiceHandler(jobSrv *service.JobService, baseURL string, maxUploadSize int64) *ServiceHandler {
	v := validator.NewValidator()
	v.Register(validator.NewJobValidationRules()...)

	return &ServiceHandler{
		jobSrv:        jobSrv,
		validator:     v,
		baseURL:       strings.TrimRight(baseURL, "/"),
		maxUploadSize: maxUploadSize,
	}
}

// Routes mounts the API on r.
func (h *ServiceHandler) Routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", h.SubmitJob)
		r.Get("/analyze/status/{id}", h.GetJob)

		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{id}", h.GetJob)
		r.Delete("/jobs/{id}", h.DeleteJob)
		r.Post("/jobs/{id}/cancel", h.CancelJob)
		r.Get("/jobs/{id}/report", h.GetJobReport)
	})
}

func (h *ServiceHandler) statusURL(id string) string {
	return h.baseURL + "/api/v1/analyze/status/" + id
}

func (h *ServiceHandler) uploadLimit() int64 {
	if h.maxUploadSize <= 0 {
		return 0
	}
	return h.maxUploadSize + multipartOverhead
}

