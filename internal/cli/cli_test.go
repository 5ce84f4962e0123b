package cli_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	api "github.com/kubev2v/media-analyzer/api/v1alpha1"
	"github.com/kubev2v/media-analyzer/internal/cli"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var _ = Describe("analyzer cli", func() {
	var (
		mux    *http.ServeMux
		srv    *httptest.Server
		jobID  string
		stdout *bytes.Buffer
	)

	BeforeEach(func() {
		mux = http.NewServeMux()
		srv = httptest.NewServer(mux)
		jobID = uuid.NewString()
		stdout = new(bytes.Buffer)
		GinkgoT().Setenv("MEDIA_ANALYZER_SERVER", "")
	})

	AfterEach(func() {
		srv.Close()
	})

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	run := func(cmd *cobra.Command, args ...string) error {
		cmd.SetArgs(append(args, "--server-url", srv.URL, "--config", filepath.Join(GinkgoT().TempDir(), "client.yaml")))
		cmd.SetOut(stdout)
		cmd.SetErr(io.Discard)
		return cmd.Execute()
	}

	job := func(status api.JobStatus) api.Job {
		return api.Job{JobId: jobID, Status: status, Filename: "clip.mp4", TotalChunks: 3, ChunksProcessed: 3, CreatedAt: time.Now()}
	}

	Context("get", func() {
		It("prints one job as json", func() {
			mux.HandleFunc("GET /api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
				Expect(r.PathValue("id")).To(Equal(jobID))
				writeJSON(w, http.StatusOK, job(api.JobStatusComplete))
			})

			Expect(run(cli.NewCmdGet(), "job/"+jobID, "-o", "json")).To(Succeed())

			var printed api.Job
			Expect(json.Unmarshal(stdout.Bytes(), &printed)).To(Succeed())
			Expect(printed.JobId).To(Equal(jobID))
		})

		It("lists jobs as a table with upper cased statuses", func() {
			mux.HandleFunc("GET /api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Query()["status"]).To(Equal([]string{"PENDING", "FAILED"}))
				writeJSON(w, http.StatusOK, api.JobList{Jobs: []api.Job{job(api.JobStatusPending)}, Total: 1, Limit: 20})
			})

			Expect(run(cli.NewCmdGet(), "jobs", "--status", "pending,failed")).To(Succeed())
			Expect(stdout.String()).To(ContainSubstring("ID"))
			Expect(stdout.String()).To(ContainSubstring(jobID))
			Expect(stdout.String()).To(ContainSubstring("showing 1 of 1"))
		})

		It("prints yaml", func() {
			mux.HandleFunc("GET /api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, job(api.JobStatusFailed))
			})

			Expect(run(cli.NewCmdGet(), "job/"+jobID, "-o", "yaml")).To(Succeed())

			var printed api.Job
			Expect(yaml.Unmarshal(stdout.Bytes(), &printed)).To(Succeed())
			Expect(printed.Status).To(Equal(api.JobStatusFailed))
		})

		DescribeTable("rejects bad arguments",
			func(args ...string) {
				Expect(run(cli.NewCmdGet(), args...)).To(HaveOccurred())
			},
			Entry("unknown kind", "sources"),
			Entry("bad id", "job/not-a-uuid"),
			Entry("unknown output", "jobs", "-o", "xml"),
			Entry("list flags on a single job", "job/"+uuid.NewString(), "--limit", "5"),
		)
	})

	Context("submit", func() {
		It("uploads and waits for the result", func() {
			path := filepath.Join(GinkgoT().TempDir(), "clip.mp4")
			Expect(os.WriteFile(path, []byte("movie"), 0o600)).To(Succeed())

			var polls atomic.Int32
			mux.HandleFunc("POST /api/v1/analyze", func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				writeJSON(w, http.StatusAccepted, api.SubmitResponse{JobId: jobID, Status: api.JobStatusPending})
			})
			mux.HandleFunc("GET /api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
				if polls.Add(1) < 2 {
					writeJSON(w, http.StatusOK, job(api.JobStatusProcessing))
					return
				}
				writeJSON(w, http.StatusOK, job(api.JobStatusComplete))
			})

			Expect(run(cli.NewCmdSubmit(), path, "--wait", "--interval", "10ms", "-o", "json")).To(Succeed())

			var printed api.Job
			Expect(json.Unmarshal(stdout.Bytes(), &printed)).To(Succeed())
			Expect(printed.Status).To(Equal(api.JobStatusComplete))
			Expect(polls.Load()).To(BeNumerically(">=", 2))
		})

		It("refuses a missing file", func() {
			Expect(run(cli.NewCmdSubmit(), filepath.Join(GinkgoT().TempDir(), "missing.mp4"))).To(HaveOccurred())
		})
	})

	Context("report, cancel and delete", func() {
		It("writes the report to a file", func() {
			mux.HandleFunc("GET /api/v1/jobs/{id}/report", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("VIDEO ANALYSIS REPORT"))
			})

			out := filepath.Join(GinkgoT().TempDir(), "report.txt")
			Expect(run(cli.NewCmdReport(), jobID, "--file", out)).To(Succeed())

			content, err := os.ReadFile(out)
			Expect(err).To(BeNil())
			Expect(string(content)).To(Equal("VIDEO ANALYSIS REPORT"))
		})

		It("cancels a job", func() {
			mux.HandleFunc("POST /api/v1/jobs/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, job(api.JobStatusFailed))
			})

			Expect(run(cli.NewCmdCancel(), "job/"+jobID)).To(Succeed())
			Expect(stdout.String()).To(ContainSubstring("FAILED"))
		})

		It("deletes a job", func() {
			mux.HandleFunc("DELETE /api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})

			Expect(run(cli.NewCmdDelete(), "job/"+jobID)).To(Succeed())
			Expect(stdout.String()).To(Equal("job/" + jobID + " deleted\n"))
		})

		It("requires an id to delete", func() {
			Expect(run(cli.NewCmdDelete(), "jobs")).To(HaveOccurred())
		})

		It("surfaces a conflict", func() {
			mux.HandleFunc("POST /api/v1/jobs/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusConflict, api.Error{Message: "job already finished"})
			})

			err := run(cli.NewCmdCancel(), jobID)
			Expect(err).To(MatchError(ContainSubstring("job already finished")))
		})
	})
})
