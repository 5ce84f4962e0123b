package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	api "github.com/kubev2v/media-analyzer/api/v1alpha1"
	"github.com/kubev2v/media-analyzer/internal/client"
	"github.com/kubev2v/media-analyzer/pkg/requestid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("analyzer client", func() {
	var (
		ctx context.Context
		mux *http.ServeMux
		srv *httptest.Server
		c   *client.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		mux = http.NewServeMux()
		srv = httptest.NewServer(mux)
		c = client.New(srv.URL+"/", nil)
	})

	AfterEach(func() {
		srv.Close()
	})

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	Describe("SubmitFile", func() {
		It("streams the file as a multipart upload", func() {
			path := filepath.Join(GinkgoT().TempDir(), "clip.mov")
			Expect(os.WriteFile(path, []byte("movie"), 0o600)).To(Succeed())

			mux.HandleFunc("POST /api/v1/analyze", func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Header.Get(requestid.Header)).NotTo(BeEmpty())

				reader, err := r.MultipartReader()
				Expect(err).To(BeNil())
				part, err := reader.NextPart()
				Expect(err).To(BeNil())
				Expect(part.FormName()).To(Equal("file"))
				Expect(part.FileName()).To(Equal("clip.mov"))
				Expect(part.Header.Get("Content-Type")).To(Equal("video/quicktime"))
				content, err := io.ReadAll(part)
				Expect(err).To(BeNil())
				Expect(string(content)).To(Equal("movie"))

				writeJSON(w, http.StatusAccepted, api.SubmitResponse{JobId: "job-1", Status: api.JobStatusPending, Filename: "clip.mov", FileSize: 5})
			})

			resp, err := c.SubmitFile(ctx, path)
			Expect(err).To(BeNil())
			Expect(resp.JobId).To(Equal("job-1"))
			Expect(resp.FileSize).To(Equal(int64(5)))
		})

		It("fails on a missing file without calling the server", func() {
			_, err := c.SubmitFile(ctx, filepath.Join(GinkgoT().TempDir(), "missing.mp4"))
			Expect(err).To(MatchError(os.ErrNotExist))
		})

		It("returns the server's error", func() {
			path := filepath.Join(GinkgoT().TempDir(), "notes.txt")
			Expect(os.WriteFile(path, []byte("text"), 0o600)).To(Succeed())

			mux.HandleFunc("POST /api/v1/analyze", func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				id := "req-1"
				writeJSON(w, http.StatusBadRequest, api.Error{Message: "unsupported file type", RequestId: &id})
			})

			_, err := c.SubmitFile(ctx, path)
			var apiErr *client.APIError
			Expect(err).To(BeAssignableToTypeOf(apiErr))
			Expect(err.Error()).To(ContainSubstring("400"))
			Expect(err.Error()).To(ContainSubstring("unsupported file type"))
			Expect(err.Error()).To(ContainSubstring("req-1"))
		})
	})

	Describe("jobs", func() {
		It("gets a job", func() {
			mux.HandleFunc("GET /api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, api.Job{JobId: r.PathValue("id"), Status: api.JobStatusProcessing, TotalChunks: 3, ChunksProcessed: 1})
			})

			job, err := c.GetJob(ctx, "job-1")
			Expect(err).To(BeNil())
			Expect(job.JobId).To(Equal("job-1"))
			Expect(job.ChunksProcessed).To(Equal(1))
		})

		It("recognizes an unknown job", func() {
			mux.HandleFunc("GET /api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusNotFound, api.Error{Message: "job not found"})
			})

			_, err := c.GetJob(ctx, "missing")
			Expect(client.IsNotFound(err)).To(BeTrue())
		})

		It("sends list filters", func() {
			mux.HandleFunc("GET /api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Query()["status"]).To(Equal([]string{"PENDING", "FAILED"}))
				Expect(r.URL.Query().Get("offset")).To(Equal("5"))
				Expect(r.URL.Query().Get("limit")).To(Equal("10"))
				writeJSON(w, http.StatusOK, api.JobList{Jobs: []api.Job{{JobId: "a"}}, Total: 6, Offset: 5, Limit: 10})
			})

			list, err := c.ListJobs(ctx, client.ListOptions{Statuses: []string{"PENDING", "FAILED"}, Offset: 5, Limit: 10})
			Expect(err).To(BeNil())
			Expect(list.Total).To(Equal(int64(6)))
			Expect(list.Jobs).To(HaveLen(1))
		})

		It("cancels and deletes", func() {
			mux.HandleFunc("POST /api/v1/jobs/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, api.Job{JobId: r.PathValue("id"), Status: api.JobStatusFailed})
			})
			mux.HandleFunc("DELETE /api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})

			job, err := c.CancelJob(ctx, "job-1")
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(api.JobStatusFailed))
			Expect(c.DeleteJob(ctx, "job-1")).To(Succeed())
		})

		It("downloads a report", func() {
			mux.HandleFunc("GET /api/v1/jobs/{id}/report", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				_, _ = w.Write([]byte("SEGMENT 1 (Minutes 0-5)"))
			})

			out := new(bytes.Buffer)
			Expect(c.GetReport(ctx, "job-1", out)).To(Succeed())
			Expect(out.String()).To(Equal("SEGMENT 1 (Minutes 0-5)"))
		})

		It("reports a report that is not ready", func() {
			mux.HandleFunc("GET /api/v1/jobs/{id}/report", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusConflict, api.Error{Message: "report not ready"})
			})

			err := c.GetReport(ctx, "job-1", io.Discard)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("report not ready"))
		})
	})

	Describe("WaitForJob", func() {
		It("polls until the job finishes", func() {
			var polls atomic.Int32
			mux.HandleFunc("GET /api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
				status := api.JobStatusProcessing
				if polls.Add(1) >= 3 {
					status = api.JobStatusComplete
				}
				writeJSON(w, http.StatusOK, api.Job{JobId: "job-1", Status: status})
			})

			seen := 0
			job, err := c.WaitForJob(ctx, "job-1", 10*time.Millisecond, func(*api.Job) { seen++ })
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(api.JobStatusComplete))
			Expect(seen).To(Equal(3))
		})

		It("stops with the context", func() {
			mux.HandleFunc("GET /api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, api.Job{JobId: "job-1", Status: api.JobStatusPending})
			})

			waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()

			_, err := c.WaitForJob(waitCtx, "job-1", 10*time.Millisecond, nil)
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})
	})
})
