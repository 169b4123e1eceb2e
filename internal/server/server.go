// Package server composes the pipeline into an HTTP server: route
// resolution, action dispatch, page rendering, file watching with
// debounced rebuilds, and websocket live reload.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/glazeware/glaze/internal/config"
	"github.com/glazeware/glaze/internal/diagnostics"
	"github.com/glazeware/glaze/internal/interp"
	"github.com/glazeware/glaze/internal/logging"
	"github.com/glazeware/glaze/internal/metrics"
	"github.com/glazeware/glaze/internal/registry"
	"github.com/glazeware/glaze/internal/render"
	"github.com/glazeware/glaze/internal/router"
	"github.com/glazeware/glaze/internal/session"
	"github.com/glazeware/glaze/internal/watcher"
)

// Server owns the full pipeline for one component tree plus pages tree.
type Server struct {
	cfg    *config.Config
	logger logging.Logger

	registry *registry.Registry
	router   *router.Router
	renderer *render.Renderer
	pool     *interp.Pool
	sessions *session.Store
	metrics  *metrics.Metrics
	diag     *diagnostics.Broadcaster
	hub      *hub

	orchestrator *Orchestrator
	watcher      *watcher.FileWatcher
	httpServer   *http.Server
}

// New wires the pipeline from configuration. Call Start to begin serving.
func New(cfg *config.Config, logger logging.Logger) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		logger:   logger.WithSubsystem("server"),
		metrics:  metrics.New(),
		diag:     diagnostics.NewBroadcaster(256),
		sessions: session.NewStore(),
	}

	s.registry = registry.New(cfg.Paths.Components, logger)
	s.router = router.New(cfg.Paths.Pages, logger)

	s.pool = interp.NewPool(interp.Config{
		Workers:        cfg.Pool.Workers,
		Dispatch:       interp.DispatchPolicy(cfg.Pool.Dispatch),
		QueueDepth:     cfg.Pool.QueueDepth,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		Retries:        cfg.Pool.Retries,
		Backoff:        cfg.Pool.Backoff,
	}, logger)
	s.pool.SetObserver(func(job interp.Job, elapsed time.Duration, err error) {
		s.metrics.ObserveScript(job.Kind.String(), elapsed)
	})
	if cfg.Database.URL != "" {
		s.pool.SetDatabase(map[string]interface{}{"url": cfg.Database.URL})
	}

	s.renderer = render.NewRenderer(s.registry, s.pool, cfg.Paths.Pages, logger)
	s.hub = newHub(logger)

	var decorate func(string) string
	if cfg.Development.HotReload {
		decorate = injectReloadScript
	}
	s.orchestrator = &Orchestrator{
		router:    s.router,
		registry:  s.registry,
		renderer:  s.renderer,
		pool:      s.pool,
		sessions:  s.sessions,
		diag:      s.diag,
		metrics:   s.metrics,
		logger:    logger.WithSubsystem("orchestrator"),
		devErrors: cfg.Development.ErrorOverlay,
		timeout:   cfg.Server.RequestTimeout,
		decorate:  decorate,
	}

	return s, nil
}

// Rebuild rescans components, recompiles scripts, and reparses routes and
// templates. Per-item failures degrade to skips; only a failure to read a
// source root is returned.
func (s *Server) Rebuild() error {
	snap, err := s.registry.Rebuild()
	if err != nil {
		return fmt.Errorf("component scan: %w", err)
	}
	s.pool.RebuildModules(snap)
	if err := s.router.Rebuild(); err != nil {
		return fmt.Errorf("route table: %w", err)
	}
	for _, perr := range s.renderer.Rebuild() {
		s.diag.Publish(diagnostics.Event{
			Severity: diagnostics.SeverityWarning,
			Source:   "render",
			Message:  "template excluded from rebuild",
			Error:    perr.Error(),
		})
	}
	s.metrics.Rebuilds.Inc()
	return nil
}

// Handler returns the HTTP surface: the live-reload websocket, health and
// metrics endpoints, and the page catch-all.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/_glaze/ws", s.hub.ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.metrics.Handler())
	r.Handle("/*", s.orchestrator)
	return r
}

// Start performs the initial build, launches the pool and the watcher, and
// serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Rebuild(); err != nil {
		return err
	}
	s.pool.Start()
	go s.logDiagnostics(ctx)

	if s.cfg.Watch.Enabled {
		if err := s.startWatcher(ctx); err != nil {
			return err
		}
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "listening", "addr", s.cfg.Addr())
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops the HTTP listener, the watcher, the pool, and every
// live-reload client.
func (s *Server) Shutdown() error {
	var first error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			first = err
		}
	}
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil && first == nil {
			first = err
		}
	}
	s.hub.Close()
	s.pool.Close()
	return first
}

// startWatcher wires the debounced file watcher to rebuilds and reload
// broadcasts.
func (s *Server) startWatcher(ctx context.Context) error {
	fw, err := watcher.New(s.cfg.Watch.Debounce, s.logger)
	if err != nil {
		return err
	}
	fw.AddFilter(watcher.SourceFilter)
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddHandler(s.onChange)

	if err := fw.AddRecursive(s.cfg.Paths.Components); err != nil {
		return err
	}
	if err := fw.AddRecursive(s.cfg.Paths.Pages); err != nil {
		return err
	}

	fw.Start(ctx)
	s.watcher = fw
	return nil
}

// onChange handles one debounced change batch: a full rebuild, then one
// reload broadcast.
func (s *Server) onChange(events []watcher.ChangeEvent) {
	ctx := context.Background()
	paths := make([]string, 0, len(events))
	for _, e := range events {
		paths = append(paths, e.Path)
	}
	s.logger.Info(ctx, "source change detected", "files", len(events), "paths", strings.Join(paths, ","))

	if err := s.Rebuild(); err != nil {
		s.logger.Error(ctx, err, "rebuild after change failed")
		s.diag.Publish(diagnostics.Event{
			Severity: diagnostics.SeverityError,
			Source:   "watcher",
			Message:  "rebuild after change failed",
			Error:    err.Error(),
		})
		return
	}

	if s.cfg.Development.HotReload {
		s.hub.Broadcast([]byte(`{"type":"reload"}`))
		s.metrics.ReloadsSent.Inc()
	}
}

// logDiagnostics mirrors the diagnostic stream into the structured log.
func (s *Server) logDiagnostics(ctx context.Context) {
	ch := s.diag.Subscribe()
	defer s.diag.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Severity == diagnostics.SeverityError {
				s.logger.Error(ctx, nil, ev.Message, "source", ev.Source, "detail", ev.Error, "request_id", ev.RequestID)
			} else {
				s.logger.Warn(ctx, nil, ev.Message, "source", ev.Source, "detail", ev.Error, "request_id", ev.RequestID)
			}
		}
	}
}

// Diagnostics exposes the error event stream.
func (s *Server) Diagnostics() *diagnostics.Broadcaster { return s.diag }

// Registry exposes the component registry, used by the CLI list command.
func (s *Server) Registry() *registry.Registry { return s.registry }

// Routes exposes the current route table, used by the CLI list command.
func (s *Server) Routes() []*router.Route { return s.router.Routes() }

const reloadScript = `<script>
(function () {
  var proto = location.protocol === "https:" ? "wss" : "ws";
  function connect() {
    var ws = new WebSocket(proto + "://" + location.host + "/_glaze/ws");
    ws.onmessage = function (e) {
      try {
        if (JSON.parse(e.data).type === "reload") location.reload();
      } catch (_) {}
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
</script>`

// injectReloadScript places the live-reload client before the closing body
// tag, or appends it when the page has none.
func injectReloadScript(body string) string {
	if i := strings.LastIndex(body, "</body>"); i >= 0 {
		return body[:i] + reloadScript + "\n" + body[i:]
	}
	return body + reloadScript
}
