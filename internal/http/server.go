// Package http exposes the service's HTTP surface: the auth flow, the
// songinfo routes and playback control, plus health and metrics endpoints.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DerGorn/RapMich/internal/core"
	"github.com/DerGorn/RapMich/internal/genres"
	"github.com/DerGorn/RapMich/internal/spotify"
	"github.com/DerGorn/RapMich/internal/store"
)

type Server struct {
	config   *core.Config
	logger   *zap.Logger
	server   *http.Server
	metrics  *Metrics
	registry *prometheus.Registry

	tokens   *spotify.TokenManager
	client   *spotify.Client
	picker   *spotify.Picker
	genres   *genres.List
	sessions *store.SessionStore
}

type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	SongsServedTotal *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	SearchDuration   *prometheus.HistogramVec
	ActiveSessions   prometheus.GaugeFunc
}

func NewServer(
	config *core.Config,
	logger *zap.Logger,
	tokens *spotify.TokenManager,
	client *spotify.Client,
	picker *spotify.Picker,
	genreList *genres.List,
	sessions *store.SessionStore,
) *Server {
	s := &Server{
		config:   config,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		tokens:   tokens,
		client:   client,
		picker:   picker,
		genres:   genreList,
		sessions: sessions,
	}

	s.metrics = &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rapmich_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
		SongsServedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rapmich_songs_served_total",
				Help: "Total number of songs served",
			},
			[]string{"source"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rapmich_errors_total",
				Help: "Total number of errors",
			},
			[]string{"component", "type"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rapmich_request_duration_seconds",
				Help:    "Time spent handling requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ActiveSessions: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "rapmich_active_sessions",
				Help: "Number of live sessions",
			},
			func() float64 { return float64(sessions.Len()) },
		),
	}
	s.registry.MustRegister(
		s.metrics.RequestsTotal,
		s.metrics.SongsServedTotal,
		s.metrics.ErrorsTotal,
		s.metrics.SearchDuration,
		s.metrics.ActiveSessions,
	)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      s.routes(),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/login", s.instrument("/auth/login", s.handleLogin))
	mux.HandleFunc("GET /auth/callback", s.instrument("/auth/callback", s.handleCallback))
	mux.HandleFunc("GET /songinfo/genre", s.instrument("/songinfo/genre", s.handleSongByGenre))
	mux.HandleFunc("GET /songinfo/playlist/{id}", s.instrument("/songinfo/playlist", s.handleSongFromPlaylist))
	mux.HandleFunc("POST /play", s.instrument("/play", s.handlePlay))
	mux.HandleFunc("POST /pause", s.instrument("/pause", s.handlePause))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"rapmich"}`))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"rapmich"}`))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	if s.config.Server.StaticDir != "" {
		mux.Handle("GET /public/", http.StripPrefix("/public/",
			http.FileServer(http.Dir(s.config.Server.StaticDir))))
		mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/public/", http.StatusSeeOther)
		})
	} else {
		mux.HandleFunc("GET /{$}", s.handleIndex)
	}

	return mux
}

// statusRecorder captures the status a handler wrote so it can be logged and
// counted.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		handler(rec, r)

		elapsed := time.Since(start)
		s.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.metrics.SearchDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		s.logger.Info("Request handled",
			zap.String("route", route),
			zap.String("method", r.Method),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed))
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>RapMich</title></head>
<body>
    <h1>RapMich</h1>
    <p>Pseudo-random song service.</p>
    <ul>
        <li><a href="/songinfo/genre">Random song</a></li>
        <li><a href="/metrics">Metrics</a></li>
        <li><a href="/healthz">Health</a></li>
    </ul>
</body>
</html>`))
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Handler exposes the routed mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
