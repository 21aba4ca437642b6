package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/app"
	fgerrors "github.com/randalmurphal/flowhost/pkg/flowgraph/errors"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/event"
)

// Server is the administrative HTTP handler for a Manager.
type Server struct {
	mgr      *app.Manager
	logger   *slog.Logger
	router   *mux.Router
	images   *cache.Cache
	dotPath  string
	registry *prometheus.Registry
	sub      event.Subscription
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDotPath sets the graphviz binary used to render images. Defaults to
// "dot" on PATH.
func WithDotPath(path string) Option {
	return func(s *Server) {
		s.dotPath = path
	}
}

// WithImageTTL sets how long rendered images are cached.
func WithImageTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.images = cache.New(ttl, 2*ttl)
	}
}

// NewServer creates the handler and subscribes to mgr's lifecycle events
// to invalidate cached images.
func NewServer(mgr *app.Manager, opts ...Option) (*Server, error) {
	s := &Server{
		mgr:      mgr,
		logger:   slog.Default(),
		images:   cache.New(10*time.Minute, 20*time.Minute),
		dotPath:  "dot",
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := s.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	if err := s.registry.Register(newStatsCollector(mgr)); err != nil {
		return nil, err
	}

	s.sub = mgr.Bus().Subscribe(event.LifecycleTypes, event.TypedHandler(
		func(_ context.Context, l event.Lifecycle, _ event.Metadata) error {
			s.invalidate(l.Identity)
			return nil
		}))

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/validate", s.handleValidate).Methods(http.MethodPost)
	r.HandleFunc("/apps", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/apps/{identity}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/apps/{identity}", s.handleDeploy).Methods(http.MethodPost)
	r.HandleFunc("/apps/{identity}", s.handleUndeploy).Methods(http.MethodDelete)
	r.HandleFunc("/apps/{identity}/redeploy", s.handleRedeploy).Methods(http.MethodPost)
	r.HandleFunc("/apps/{identity}/visualize/{flow}", s.handleVisualize).Methods(http.MethodGet)
	r.HandleFunc("/apps/{identity}/run/{flow}", s.handleRun).Methods(http.MethodPost)
	r.Use(s.loggingMiddleware)
	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Registry returns the Prometheus registry behind /metrics.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Close stops listening for lifecycle events.
func (s *Server) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
}

// ListenAndServe serves on addr until ctx ends, then shuts down within
// the grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("stopping admin server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", float64(time.Since(start).Microseconds())/1000,
		)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		code = http.StatusInternalServerError
		response, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func respondWithError(w http.ResponseWriter, err error) {
	respondWithJSON(w, fgerrors.HTTPStatus(err), map[string]string{"error": err.Error()})
}
