package mappers

import (
	"strings"

	"github.com/kubev2v/media-analyzer/internal/service"
	"github.com/kubev2v/media-analyzer/internal/store/model"
)

// ListJobsForm holds the query of a list request as received.
type ListJobsForm struct {
	Status []string `validate:"dive,job_status"`
	Offset int      `validate:"gte=0"`
	Limit  int      `validate:"gte=0,lte=100"`
}

func ListParamsFromForm(form ListJobsForm) service.ListParams {
	params := service.ListParams{Offset: form.Offset, Limit: form.Limit}
	for _, s := range form.Status {
		params.Statuses = append(params.Statuses, model.JobStatus(strings.ToUpper(s)))
	}
	return params
}
