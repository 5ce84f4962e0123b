package v1alpha1

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusComplete   JobStatus = "COMPLETE"
	JobStatusFailed     JobStatus = "FAILED"
)

// Job is the status surface of an analysis job.
type Job struct {
	JobId           string    `json:"jobId"`
	Status          JobStatus `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	ChunksProcessed int       `json:"chunksProcessed"`
	TotalChunks     int       `json:"totalChunks"`
	Filename        string    `json:"filename,omitempty"`
	FileSize        int64     `json:"fileSize,omitempty"`
	Report          *string   `json:"report,omitempty"`
	Error           *string   `json:"error,omitempty"`
}

type JobList struct {
	Jobs   []Job `json:"jobs"`
	Total  int64 `json:"total"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
}

type SubmitResponse struct {
	JobId     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	StatusUrl string    `json:"statusUrl"`
	Filename  string    `json:"filename"`
	FileSize  int64     `json:"fileSize"`
	Message   string    `json:"message,omitempty"`
}

type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type Error struct {
	Message   string  `json:"message"`
	RequestId *string `json:"requestId,omitempty"`
}
