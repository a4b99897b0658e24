// Package server exposes the verification pipeline and the reference data
// maintenance endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"

	"github.com/wudi/rxverify/observability"
	"github.com/wudi/rxverify/reference"
	"github.com/wudi/rxverify/store"
	"github.com/wudi/rxverify/verify"
)

const defaultMaxUpload = 16 << 20

type Option func(*Server)

// WithHistory serves the stored verification endpoints.
func WithHistory(h store.History) Option {
	return func(s *Server) { s.history = h }
}

func WithDoctorWriter(w reference.DoctorWriter) Option {
	return func(s *Server) { s.doctors = w }
}

func WithFindingWriter(w reference.FindingWriter) Option {
	return func(s *Server) { s.findings = w }
}

func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxUploadBytes caps the request body of verification uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithHistoryLimit sets the default page size of the history endpoint.
func WithHistoryLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithSentry reports panics and internal failures to the Sentry hub
// configured by sentry.Init.
func WithSentry(enabled bool) Option {
	return func(s *Server) { s.sentry = enabled }
}

type Server struct {
	verifier     *verify.Verifier
	history      store.History
	doctors      reference.DoctorWriter
	findings     reference.FindingWriter
	logger       observability.Logger
	maxUpload    int64
	historyLimit int
	sentry       bool
	router       *gin.Engine
}

func New(v *verify.Verifier, opts ...Option) *Server {
	s := &Server{
		verifier:     v,
		logger:       observability.NopLogger{},
		maxUpload:    defaultMaxUpload,
		historyLimit: store.DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = s.maxUpload
	r.Use(gin.CustomRecovery(s.recovered), s.requestLog(), cors())
	if s.sentry {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}

	r.GET("/health", s.health)
	r.POST("/api/verify", s.verify)

	api := r.Group("/api/v1")
	{
		api.POST("/verify", s.verify)
		api.GET("/verifications/:id", s.getVerification)
		api.GET("/history", s.listHistory)
		api.POST("/doctors", s.addDoctor)
		api.PATCH("/doctors/:license/status", s.updateDoctorStatus)
		api.POST("/interactions", s.upsertInteraction)
		api.POST("/contraindications", s.upsertContraindication)
	}
	return r
}

// Run serves on addr until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", observability.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
