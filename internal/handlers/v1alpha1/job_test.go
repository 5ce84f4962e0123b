package v1alpha1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	api "github.com/kubev2v/media-analyzer/api/v1alpha1"
	"github.com/kubev2v/media-analyzer/internal/config"
	handlers "github.com/kubev2v/media-analyzer/internal/handlers/v1alpha1"
	"github.com/kubev2v/media-analyzer/internal/jobs"
	"github.com/kubev2v/media-analyzer/internal/service"
	"github.com/kubev2v/media-analyzer/internal/store"
	"github.com/kubev2v/media-analyzer/internal/store/model"
	"github.com/kubev2v/media-analyzer/pkg/artifact"
	"github.com/kubev2v/media-analyzer/pkg/requestid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("job handler", Ordered, func() {
	var (
		s         store.Store
		gormdb    *gorm.DB
		queue     *fakeQueue
		artifacts artifact.Storage
		uploadDir string
		server    *httptest.Server
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		cfg.Database.Name = filepath.Join(GinkgoT().TempDir(), "jobs.db")

		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())
		gormdb = db
		s = store.NewStore(db)
		Expect(s.InitialMigration(context.TODO())).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		queue = &fakeQueue{}
		uploadDir = GinkgoT().TempDir()

		var err error
		artifacts, err = artifact.NewLocalStorage(GinkgoT().TempDir())
		Expect(err).To(BeNil())

		srv := service.NewJobService(s, queue, artifacts,
			service.WithUploadDir(uploadDir),
			service.WithChunkLocator(service.ChunkRoot(GinkgoT().TempDir())),
			service.WithMaxUploadSize(1024),
		)

		router := chi.NewRouter()
		router.Use(requestid.Middleware)
		handlers.NewServiceHandler(srv, "http://analyzer.local/", 1024).Routes(router)
		server = httptest.NewServer(router)
	})

	AfterEach(func() {
		server.Close()
		gormdb.Exec("DELETE FROM jobs;")
	})

	upload := func(field, filename, contentType string, content []byte) *http.Response {
		body := new(bytes.Buffer)
		mw := multipart.NewWriter(body)
		Expect(mw.WriteField("note", "ignored")).To(Succeed())

		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		Expect(err).To(BeNil())
		_, err = part.Write(content)
		Expect(err).To(BeNil())
		Expect(mw.Close()).To(Succeed())

		resp, err := http.Post(server.URL+"/api/v1/analyze", mw.FormDataContentType(), body)
		Expect(err).To(BeNil())
		return resp
	}

	do := func(method, path string) *http.Response {
		req, err := http.NewRequest(method, server.URL+path, nil)
		Expect(err).To(BeNil())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).To(BeNil())
		return resp
	}

	decode := func(resp *http.Response, into any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(into)).To(Succeed())
	}

	createJob := func(status model.JobStatus) string {
		id := uuid.NewString()
		job := model.NewJob(id, model.InputRef{Path: filepath.Join(uploadDir, id+".mp4"), Filename: "clip.mp4", Size: 4})
		_, err := s.Job().Create(context.TODO(), *job)
		Expect(err).To(BeNil())
		if status != model.JobStatusPending {
			tx := gormdb.Exec("UPDATE jobs SET status = ? WHERE id = ?", status, id)
			Expect(tx.Error).To(BeNil())
		}
		return id
	}

	It("reports health", func() {
		resp := do(http.MethodGet, "/health")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var health api.Health
		decode(resp, &health)
		Expect(health.Status).To(Equal("healthy"))
		Expect(health.Timestamp).NotTo(BeZero())
	})

	Context("submit", func() {
		It("accepts a video and schedules it", func() {
			resp := upload("file", "clip.mp4", "video/mp4", []byte("data"))
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			var submitted api.SubmitResponse
			decode(resp, &submitted)
			Expect(submitted.Status).To(Equal(api.JobStatusPending))
			Expect(submitted.Filename).To(Equal("clip.mp4"))
			Expect(submitted.FileSize).To(Equal(int64(4)))
			Expect(submitted.StatusUrl).To(Equal("http://analyzer.local/api/v1/analyze/status/" + submitted.JobId))
			Expect(queue.enqueued).To(ConsistOf(submitted.JobId))

			staged, err := os.ReadFile(filepath.Join(uploadDir, submitted.JobId+".mp4"))
			Expect(err).To(BeNil())
			Expect(string(staged)).To(Equal("data"))
		})

		It("rejects a non video upload", func() {
			resp := upload("file", "notes.txt", "text/plain", []byte("data"))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var apiErr api.Error
			decode(resp, &apiErr)
			Expect(apiErr.RequestId).NotTo(BeNil())

			var count int64
			gormdb.Model(&model.Job{}).Count(&count)
			Expect(count).To(BeZero())
		})

		It("rejects a request without a file", func() {
			resp := upload("other", "clip.mp4", "video/mp4", []byte("data"))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})

		It("rejects a body that is not multipart", func() {
			resp, err := http.Post(server.URL+"/api/v1/analyze", "application/json", strings.NewReader("{}"))
			Expect(err).To(BeNil())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})

		It("answers 413 for an upload over the limit", func() {
			resp := upload("file", "clip.mp4", "video/mp4", bytes.Repeat([]byte("x"), 2048))
			Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
			resp.Body.Close()
			Expect(queue.enqueued).To(BeEmpty())
		})

		It("answers 503 when the queue is full", func() {
			queue.err = jobs.ErrQueueFull
			resp := upload("file", "clip.mp4", "video/mp4", []byte("data"))
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			resp.Body.Close()
		})
	})

	Context("status", func() {
		It("returns a pending job without report or error", func() {
			id := createJob(model.JobStatusPending)

			for _, path := range []string{"/api/v1/analyze/status/" + id, "/api/v1/jobs/" + id} {
				resp := do(http.MethodGet, path)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var job api.Job
				decode(resp, &job)
				Expect(job.JobId).To(Equal(id))
				Expect(job.Status).To(Equal(api.JobStatusPending))
				Expect(job.Report).To(BeNil())
				Expect(job.Error).To(BeNil())
			}
		})

		It("answers 404 for an unknown job", func() {
			resp := do(http.MethodGet, "/api/v1/analyze/status/"+uuid.NewString())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})

	Context("list", func() {
		It("filters by status and pages", func() {
			createJob(model.JobStatusPending)
			createJob(model.JobStatusPending)
			createJob(model.JobStatusFailed)

			resp := do(http.MethodGet, "/api/v1/jobs?status=pending&limit=1")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var list api.JobList
			decode(resp, &list)
			Expect(list.Total).To(Equal(int64(2)))
			Expect(list.Limit).To(Equal(1))
			Expect(list.Jobs).To(HaveLen(1))
			Expect(list.Jobs[0].Status).To(Equal(api.JobStatusPending))
		})

		It("accepts comma separated statuses", func() {
			createJob(model.JobStatusPending)
			createJob(model.JobStatusFailed)
			createJob(model.JobStatusComplete)

			resp := do(http.MethodGet, "/api/v1/jobs?status=PENDING,FAILED")
			var list api.JobList
			decode(resp, &list)
			Expect(list.Total).To(Equal(int64(2)))
		})

		DescribeTable("rejects a bad query",
			func(query string) {
				resp := do(http.MethodGet, "/api/v1/jobs?"+query)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			},
			Entry("unknown status", "status=RUNNING"),
			Entry("negative offset", "offset=-1"),
			Entry("limit too high", "limit=101"),
			Entry("limit not a number", "limit=ten"),
		)
	})

	Context("report", func() {
		It("serves the report of a complete job", func() {
			id := createJob(model.JobStatusComplete)
			Expect(artifacts.Put(context.TODO(), jobs.ReportKey(id), strings.NewReader("the report"), 10)).To(Succeed())

			resp := do(http.MethodGet, "/api/v1/jobs/"+id+"/report")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/plain"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring(id + "_report.txt"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).To(BeNil())
			Expect(string(body)).To(Equal("the report"))
		})

		It("answers 409 before the job completes", func() {
			id := createJob(model.JobStatusProcessing)
			resp := do(http.MethodGet, "/api/v1/jobs/"+id+"/report")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			resp.Body.Close()
		})
	})

	Context("cancel", func() {
		It("fails a pending job", func() {
			id := createJob(model.JobStatusPending)

			resp := do(http.MethodPost, "/api/v1/jobs/"+id+"/cancel")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var job api.Job
			decode(resp, &job)
			Expect(job.Status).To(Equal(api.JobStatusFailed))
			Expect(job.Error).NotTo(BeNil())
			Expect(*job.Error).To(ContainSubstring("cancelled"))
		})

		It("answers 409 for a finished job", func() {
			id := createJob(model.JobStatusComplete)
			resp := do(http.MethodPost, "/api/v1/jobs/"+id+"/cancel")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			resp.Body.Close()
		})
	})

	Context("delete", func() {
		It("removes the job", func() {
			id := createJob(model.JobStatusFailed)

			resp := do(http.MethodDelete, "/api/v1/jobs/"+id)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()

			resp = do(http.MethodGet, "/api/v1/jobs/"+id)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})

		It("answers 404 for an unknown job", func() {
			resp := do(http.MethodDelete, "/api/v1/jobs/"+uuid.NewString())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})
})
