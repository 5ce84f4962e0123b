package v1alpha1

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	api "github.com/kubev2v/media-analyzer/api/v1alpha1"
	"github.com/kubev2v/media-analyzer/internal/handlers/validator"
	"github.com/kubev2v/media-analyzer/internal/service"
	"github.com/kubev2v/media-analyzer/pkg/requestid"
)

func statusFor(err error) int {
	var (
		validationErr *service.ErrValidation
		invalidErr    *validator.ErrInvalidRequest
		notFoundErr   *service.ErrResourceNotFound
		terminalErr   *service.ErrJobAlreadyTerminal
		notReadyErr   *service.ErrReportNotReady
		unavailErr    *service.ErrServiceUnavailable
		uploadErr     *service.ErrUploadTooLarge
		tooLargeErr   *http.MaxBytesError
	)

	switch {
	case errors.As(err, &uploadErr), errors.As(err, &tooLargeErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &validationErr), errors.As(err, &invalidErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &terminalErr), errors.As(err, &notReadyErr):
		return http.StatusConflict
	case errors.As(err, &unavailErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	body := api.Error{Message: message}
	if id := requestid.FromRequest(r); id != "" {
		body.RequestId = &id
	}
	render.Status(r, status)
	render.JSON(w, r, body)
}

// renderServiceError answers with the status matching err. Internal errors are not detailed.
func renderServiceError(w http.ResponseWriter, r *http.Request, err error) int {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	renderError(w, r, status, message)
	return status
}
