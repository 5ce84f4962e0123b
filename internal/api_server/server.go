package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	api "github.com/kubev2v/media-analyzer/api/v1alpha1"
	"github.com/kubev2v/media-analyzer/internal/config"
	handlers "github.com/kubev2v/media-analyzer/internal/handlers/v1alpha1"
	"github.com/kubev2v/media-analyzer/internal/service"
	"github.com/kubev2v/media-analyzer/pkg/log"
	"github.com/kubev2v/media-analyzer/pkg/metrics"
	"github.com/kubev2v/media-analyzer/pkg/requestid"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	jobSrv   *service.JobService
	listener net.Listener
	metrics  *metrics.Middleware
}

// New returns a new instance of the media analyzer API server.
func New(cfg *config.Config, jobSrv *service.JobService, listener net.Listener) *Server {
	return &Server{
		cfg:      cfg,
		jobSrv:   jobSrv,
		listener: listener,
	}
}

// WithMetrics records request metrics on m. The caller registers m.
func (s *Server) WithMetrics(m *metrics.Middleware) *Server {
	s.metrics = m
	return s
}

func oapiErrorHandler(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(api.Error{Message: fmt.Sprintf("API Error: %s", message)})
}

// Handler builds the router serving the API.
func (s *Server) Handler() (http.Handler, error) {
	swagger, err := api.GetSwagger()
	if err != nil {
		return nil, fmt.Errorf("failed to load swagger spec: %w", err)
	}
	// Skip server name validation
	swagger.Servers = nil

	oapiOpts := oapimiddleware.Options{
		ErrorHandler: oapiErrorHandler,
		// uploads are streamed by the handler
		Options: openapi3filter.Options{ExcludeRequestBody: true},
	}

	router := chi.NewRouter()
	if s.metrics != nil {
		router.Use(s.metrics.Handler)
	}

	router.Use(
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{requestid.Header},
			MaxAge:         300,
		}),
		chiMiddleware.RequestID,
		requestid.Middleware,
		log.Logger(zap.L(), "api_server"),
		chiMiddleware.Recoverer,
		oapimiddleware.OapiRequestValidatorWithOptions(swagger, &oapiOpts),
	)

	handlers.NewServiceHandler(s.jobSrv, s.cfg.Service.BaseUrl, s.cfg.Service.MaxUploadSize).Routes(router)
	return router, nil
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	handler, err := s.Handler()
	if err != nil {
		return err
	}
	srv := http.Server{Addr: s.cfg.Service.Address, Handler: handler}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
