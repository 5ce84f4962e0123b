package apiserver_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"

	apiserver "github.com/kubev2v/media-analyzer/internal/api_server"
	"github.com/kubev2v/media-analyzer/internal/config"
	"github.com/kubev2v/media-analyzer/internal/service"
	"github.com/kubev2v/media-analyzer/internal/store"
	"github.com/kubev2v/media-analyzer/pkg/artifact"
	"github.com/kubev2v/media-analyzer/pkg/metrics"
	"github.com/kubev2v/media-analyzer/pkg/requestid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type nopQueue struct{}

func (nopQueue) Enqueue(string) error       { return nil }
func (nopQueue) Cancel(string, error) bool { return false }

var _ = Describe("api server", Ordered, func() {
	var (
		s      store.Store
		server *httptest.Server
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		cfg.Database.Name = filepath.Join(GinkgoT().TempDir(), "jobs.db")

		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())
		s = store.NewStore(db)
		Expect(s.InitialMigration(context.TODO())).To(BeNil())

		artifacts, err := artifact.NewLocalStorage(GinkgoT().TempDir())
		Expect(err).To(BeNil())

		srv := service.NewJobService(s, nopQueue{}, artifacts,
			service.WithUploadDir(GinkgoT().TempDir()),
			service.WithChunkLocator(service.ChunkRoot(GinkgoT().TempDir())),
		)

		handler, err := apiserver.New(cfg, srv, nil).
			WithMetrics(metrics.NewMiddleware("api_server_test")).
			Handler()
		Expect(err).To(BeNil())
		server = httptest.NewServer(handler)
	})

	AfterAll(func() {
		server.Close()
		s.Close()
	})

	get := func(path string) *http.Response {
		resp, err := http.Get(server.URL + path)
		Expect(err).To(BeNil())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	It("serves health with a request id", func() {
		resp := get("/health")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get(requestid.Header)).NotTo(BeEmpty())
	})

	It("echoes the caller's request id", func() {
		req, err := http.NewRequest(http.MethodGet, server.URL+"/health", nil)
		Expect(err).To(BeNil())
		req.Header.Set(requestid.Header, "abc-123")

		resp, err := http.DefaultClient.Do(req)
		Expect(err).To(BeNil())
		defer resp.Body.Close()
		Expect(resp.Header.Get(requestid.Header)).To(Equal("abc-123"))
	})

	It("rejects a query outside the documented range", func() {
		Expect(get("/api/v1/jobs?limit=0").StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("rejects an unknown route", func() {
		Expect(get("/api/v1/unknown").StatusCode).To(Equal(http.StatusNotFound))
	})

	It("lets a multipart upload through to the handler", func() {
		body := new(bytes.Buffer)
		mw := multipart.NewWriter(body)
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="file"; filename="clip.mp4"`)
		header.Set("Content-Type", "video/mp4")
		part, err := mw.CreatePart(header)
		Expect(err).To(BeNil())
		_, _ = part.Write([]byte("data"))
		Expect(mw.Close()).To(Succeed())

		resp, err := http.Post(server.URL+"/api/v1/analyze", mw.FormDataContentType(), body)
		Expect(err).To(BeNil())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
	})
})
