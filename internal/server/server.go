// Package server exposes monitoring sessions, the analysis proxy and the
// archive over HTTP.
package server

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/and161185/biasmeter/internal/alerting"
	"github.com/and161185/biasmeter/internal/analysis"
	"github.com/and161185/biasmeter/internal/config"
	"github.com/and161185/biasmeter/internal/monitor"
	"github.com/and161185/biasmeter/internal/observability"
	"github.com/and161185/biasmeter/internal/server/middleware"
	"github.com/and161185/biasmeter/internal/source"
	"github.com/and161185/biasmeter/internal/stream"
	"github.com/and161185/biasmeter/model"
	"github.com/and161185/biasmeter/storage"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Analyzer is the external bias analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, up analysis.Upload) (model.AnalysisResult, error)
	Health(ctx context.Context) error
}

type Server struct {
	Archive   storage.Archive
	FileStore storage.FileStore // set when the archive snapshots to a file
	Config    *config.ServerConfig
	Monitors  *monitor.Manager
	Analyzer  Analyzer
	Hub       *stream.Hub
	Metrics   *observability.PromObs
	Recorder  *storage.Recorder

	logger     *zap.SugaredLogger
	live       source.SampleSource
	privateKey *rsa.PrivateKey
	router     http.Handler
}

type options struct {
	profiles alerting.Profiles
	sources  monitor.SourceFactory
	gate     alerting.Gate
	analyzer Analyzer
	key      *rsa.PrivateKey
	registry *prometheus.Registry
}

// Option configures a Server.
type Option func(*options)

// WithProfiles replaces the builtin alert profiles.
func WithProfiles(p alerting.Profiles) Option {
	return func(o *options) { o.profiles = p }
}

// WithSources replaces the sample source factory of new sessions.
func WithSources(f monitor.SourceFactory) Option {
	return func(o *options) { o.sources = f }
}

// WithAlertGate replaces the random gate of probabilistic alert rules.
func WithAlertGate(g alerting.Gate) Option {
	return func(o *options) { o.gate = g }
}

// WithAnalyzer replaces the analysis client built from Config.AnalyzerURL.
func WithAnalyzer(a Analyzer) Option {
	return func(o *options) { o.analyzer = a }
}

// WithPrivateKey makes the sample ingest route accept sealed batches only.
func WithPrivateKey(k *rsa.PrivateKey) Option {
	return func(o *options) { o.key = k }
}

// WithRegistry registers the Prometheus collectors on reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// NewServer wires the monitoring manager, its observers and the router.
func NewServer(archive storage.Archive, cfg *config.ServerConfig, opts ...Option) (*Server, error) {
	o := options{profiles: alerting.Builtin(), sources: monitor.DefaultSources}
	for _, opt := range opts {
		opt(&o)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	srv := &Server{
		Archive:    archive,
		Config:     cfg,
		Analyzer:   o.analyzer,
		Hub:        stream.NewHub(logger, cfg.MaxStreamClients),
		Metrics:    observability.NewPromObs(o.registry),
		Recorder:   storage.NewRecorder(archive, logger, 0),
		logger:     logger,
		live:       source.NewRandomWalk(source.LiveWalk()),
		privateKey: o.key,
	}
	if fs, ok := archive.(storage.FileStore); ok {
		srv.FileStore = fs
	}
	if srv.Analyzer == nil {
		srv.Analyzer = analysis.NewClient(cfg.AnalyzerURL, nil)
	}

	mopts := []monitor.ManagerOption{
		monitor.WithProfiles(o.profiles),
		monitor.WithSourceFactory(o.sources),
		monitor.WithSessionObservers(srv.Metrics, srv.Hub, srv.Recorder),
		monitor.WithAlertNotifier(alerting.NotifierFunc(srv.alarm)),
		monitor.WithManagerLogger(logger),
	}
	if o.gate != nil {
		mopts = append(mopts, monitor.WithAlertGate(o.gate))
	}
	srv.Monitors = monitor.NewManager(mopts...)

	router, err := srv.buildRouter()
	if err != nil {
		return nil, err
	}
	srv.router = router
	return srv, nil
}

// alarm is the notifier of high severity alerts.
func (srv *Server) alarm(_ context.Context, ev model.AlertEvent) error {
	srv.logger.Warnw("high severity alert", "title", ev.Title, "message", ev.Message, "at", ev.Timestamp)
	return nil
}

// Handler returns the HTTP handler of the server.
func (srv *Server) Handler() http.Handler {
	return srv.router
}

func (srv *Server) buildRouter() (http.Handler, error) {
	trusted, err := middleware.TrustedCIDR(srv.Config.TrustedSubnet)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(chiMiddleware.StripSlashes)
	router.Use(srv.Metrics.Middleware)
	router.Use(middleware.LogMiddleware(srv.logger))

	router.Get("/ping", srv.PingHandler)
	router.Method(http.MethodGet, "/metrics", srv.Metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.CompressMiddleware)

		r.Get("/api/bias/health", srv.HealthHandler)
		r.Get("/api/bias/format/{industry}", srv.FormatHandler)
		r.Post("/api/bias/analyze", srv.AnalyzeHandler)
		r.Get("/api/realtime/metrics", srv.RealtimeMetricsHandler)
		r.Post("/api/monitor", srv.StartHandler)
		r.Get("/api/monitor", srv.ListHandler)
	})

	router.Route("/api/monitor/{id}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.CompressMiddleware)

			r.Get("/", srv.SnapshotHandler)
			r.Delete("/", srv.StopHandler)
			r.Post("/pause", srv.PauseHandler)
			r.Post("/resume", srv.ResumeHandler)
			r.Post("/reset", srv.ResetHandler)
			r.Post("/alerts/test", srv.TestAlertHandler)
			r.Put("/window", srv.WindowHandler)
			r.Put("/smoothing", srv.SmoothingHandler)
			r.Get("/chart", srv.ChartHandler)
			r.Get("/export.csv", srv.ExportHandler)
			r.Get("/history", srv.HistoryHandler)
		})

		r.Get("/stream", srv.StreamHandler)

		r.With(
			trusted,
			middleware.DecryptMiddleware(srv.privateKey, maxIngestBody),
			middleware.VerifyHashMiddleware(srv.Config.Key),
			middleware.DecompressMiddleware,
		).Post("/samples", srv.IngestHandler)
	})

	return router, nil
}

// Run serves HTTP until ctx is done, then stops every session, flushes the
// archive and, for file backed archives, writes a final snapshot.
func (srv *Server) Run(ctx context.Context) error {
	if srv.FileStore != nil && srv.Config.Restore {
		if err := srv.FileStore.LoadFromFile(ctx, srv.Config.FileStoragePath); err != nil {
			srv.logger.Errorf("restore archive from %s: %v", srv.Config.FileStoragePath, err)
		}
	}

	recCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRecorder()

	httpSrv := &http.Server{
		Addr:              srv.Config.Addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Recorder.Run(recCtx)
	})
	g.Go(func() error {
		srv.logger.Infof("listening on %s", srv.Config.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	if srv.FileStore != nil && srv.Config.StoreInterval > 0 {
		g.Go(func() error {
			srv.storeLoop(gctx, time.Duration(srv.Config.StoreInterval)*time.Second)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		srv.Monitors.Close(shutdownCtx)
		srv.Hub.Close()
		err := httpSrv.Shutdown(shutdownCtx)
		stopRecorder()
		return err
	})

	err := g.Wait()
	srv.saveSnapshot(context.WithoutCancel(ctx))
	return err
}

func (srv *Server) storeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			srv.saveSnapshot(ctx)
		}
	}
}

func (srv *Server) saveSnapshot(ctx context.Context) {
	if srv.FileStore == nil || srv.Config.FileStoragePath == "" {
		return
	}
	if err := srv.FileStore.SaveToFile(ctx, srv.Config.FileStoragePath); err != nil {
		srv.logger.Errorf("save archive to %s: %v", srv.Config.FileStoragePath, err)
	}
}
