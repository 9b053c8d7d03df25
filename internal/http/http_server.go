package http

// this is entry point of the http request handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/submission"
	"gitlab.com/fcv-2025.net/codegrader/internal/handlers"
	"gitlab.com/fcv-2025.net/codegrader/internal/handlers/response"
	"gitlab.com/fcv-2025.net/codegrader/internal/handlers/submissions"
)

type ServiceProvider struct {
	submissionService submission.ISubmissionService
}

func NewServiceProvider(submissionService submission.ISubmissionService) *ServiceProvider {
	return &ServiceProvider{
		submissionService: submissionService,
	}
}

type Server struct {
	router          *mux.Router
	srv             *http.Server
	Port            string
	ServiceName     string
	ServiceProvider ServiceProvider
	middleware      *handlers.MiddlewareProvider
	logger          primary.Logger
}

func NewServer(port string, serviceName string, serviceProvider ServiceProvider, middleware *handlers.MiddlewareProvider, logger primary.Logger) *Server {
	return &Server{
		Port:            port,
		ServiceName:     serviceName,
		ServiceProvider: serviceProvider,
		middleware:      middleware,
		logger:          logger,
	}
}

func (s *Server) Init() error {
	if s.ServiceProvider.submissionService == nil {
		return errors.New("submission service is not configured")
	}
	r := mux.NewRouter()
	r.Use(s.middleware.RecoverMiddleware, s.middleware.LoggingMiddleware)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		response.WriteSuccess(w, map[string]string{"status": "ok", "service": s.ServiceName})
	}).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.middleware.JWTMiddleware)
	submissions.
		NewSubmissionHandler(s.ServiceProvider.submissionService, s.logger).
		RegisterRoutes(api)

	s.router = r
	return nil
}

// Handler returns the routed handler built by Init
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background; a listen failure is sent on the returned channel
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("Server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error", "error", err)
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down http server...")
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
