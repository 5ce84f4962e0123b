package mappers

import (
	api "github.com/kubev2v/media-analyzer/api/v1alpha1"
	"github.com/kubev2v/media-analyzer/internal/service"
	"github.com/kubev2v/media-analyzer/internal/store/model"
)

// JobToApi maps a job to its status surface. The report is only exposed once the job
// is COMPLETE and the error only once it FAILED.
func JobToApi(job model.Job) api.Job {
	out := api.Job{
		JobId:           job.ID,
		Status:          api.JobStatus(job.Status),
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		ChunksProcessed: job.ChunksProcessed,
		TotalChunks:     job.TotalChunks,
		Filename:        job.InputFilename,
		FileSize:        job.InputSize,
	}
	if job.Status == model.JobStatusComplete {
		out.Report = job.Report
	}
	if job.Status == model.JobStatusFailed {
		out.Error = job.Error
	}
	return out
}

func JobListToApi(list *service.JobList) api.JobList {
	jobs := make([]api.Job, 0, len(list.Jobs))
	for _, j := range list.Jobs {
		jobs = append(jobs, JobToApi(j))
	}
	return api.JobList{Jobs: jobs, Total: list.Total, Offset: list.Offset, Limit: list.Limit}
}

func SubmitResponseToApi(job model.Job, statusURL string) api.SubmitResponse {
	return api.SubmitResponse{
		JobId:     job.ID,
		Status:    api.JobStatus(job.Status),
		StatusUrl: statusURL,
		Filename:  job.InputFilename,
		FileSize:  job.InputSize,
		Message:   "Video uploaded successfully. Processing started.",
	}
}
