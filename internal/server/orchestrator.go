package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/glazeware/glaze/internal/diagnostics"
	glzerrors "github.com/glazeware/glaze/internal/errors"
	"github.com/glazeware/glaze/internal/httpx"
	"github.com/glazeware/glaze/internal/interp"
	"github.com/glazeware/glaze/internal/logging"
	"github.com/glazeware/glaze/internal/metrics"
	"github.com/glazeware/glaze/internal/registry"
	"github.com/glazeware/glaze/internal/render"
	"github.com/glazeware/glaze/internal/router"
	"github.com/glazeware/glaze/internal/session"
)

// Phase names the stages a request moves through. Terminal states are
// PhaseResponseReady and PhaseFailed.
type Phase string

const (
	PhaseRouteResolved    Phase = "route_resolved"
	PhaseActionDispatched Phase = "action_dispatched"
	PhaseRendered         Phase = "rendered"
	PhaseResponseReady    Phase = "response_ready"
	PhaseFailed           Phase = "failed"
)

// Orchestrator drives one request through route resolution, optional action
// dispatch, and the page render. It is the only layer that writes HTTP
// responses for page traffic; everything below it returns typed errors.
type Orchestrator struct {
	router    *router.Router
	registry  *registry.Registry
	renderer  *render.Renderer
	pool      *interp.Pool
	sessions  *session.Store
	diag      *diagnostics.Broadcaster
	metrics   *metrics.Metrics
	logger    logging.Logger
	devErrors bool
	timeout   time.Duration
	decorate  func(html string) string
}

// ServeHTTP handles one page request end to end.
func (o *Orchestrator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := newRequestID()

	ctx := r.Context()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var phase Phase
	status, err := o.run(ctx, w, r)
	if err != nil {
		phase = PhaseFailed
		o.fail(w, r, requestID, err)
		status = glzerrors.HTTPStatus(err)
	} else {
		phase = PhaseResponseReady
	}

	elapsed := time.Since(start)
	o.metrics.RequestsTotal.WithLabelValues(fmt.Sprintf("%d", status)).Inc()
	o.metrics.RequestDuration.Observe(elapsed.Seconds())
	o.logger.Info(ctx, "request handled",
		"request_id", requestID, "method", r.Method, "path", r.URL.Path,
		"status", status, "phase", string(phase), "elapsed", elapsed.String())
}

// run executes the happy path and returns the status written, or the typed
// error that aborted the pipeline before any body was written.
func (o *Orchestrator) run(ctx context.Context, w http.ResponseWriter, r *http.Request) (int, error) {
	route, params, ok := o.router.Match(r.URL.Path)
	if !ok {
		return 0, glzerrors.NewRouteNotFound(r.URL.Path)
	}

	req, err := httpx.FromRequest(r, params)
	if err != nil {
		return 0, glzerrors.NewBadRequest("malformed request body: " + err.Error())
	}

	sess := o.sessions.Acquire(w, r)

	overrides := render.Overrides{}
	if action := req.Form["action"]; r.Method == http.MethodPost && action != "" {
		origin := req.Form["component"]
		if origin == "" {
			return 0, glzerrors.NewBadRequest("action submission without a component field")
		}
		if _, ok := o.registry.Lookup(origin); !ok {
			return 0, glzerrors.NewComponentNotFound(origin)
		}
		data, actionErr := o.pool.Submit(ctx, interp.Job{
			ComponentID: origin,
			Kind:        interp.JobAction,
			Action:      action,
			Fields:      req.Form,
			Request:     req.ScriptValue(),
			Session:     sess,
		})
		if actionErr != nil {
			return 0, actionErr
		}
		overrides[origin] = data
	}

	renderStart := time.Now()
	body, err := o.renderer.Render(ctx, route.Template, req, sess, overrides)
	if err != nil {
		return 0, err
	}
	o.metrics.RenderDuration.Observe(time.Since(renderStart).Seconds())

	if o.decorate != nil {
		body = o.decorate(body)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
	return http.StatusOK, nil
}

// fail publishes the diagnostic event and writes the error response. The
// page render is all or nothing, so no partial body precedes this.
func (o *Orchestrator) fail(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	status := glzerrors.HTTPStatus(err)
	kind := glzerrors.KindOf(err)

	severity := diagnostics.SeverityError
	if status < http.StatusInternalServerError {
		severity = diagnostics.SeverityWarning
	}
	o.diag.Publish(diagnostics.Event{
		Severity:  severity,
		Source:    errorSource(err),
		Message:   fmt.Sprintf("%s %s failed (%s)", r.Method, r.URL.Path, kind),
		Error:     err.Error(),
		RequestID: requestID,
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if o.devErrors {
		fmt.Fprintf(w, devErrorPage, status, http.StatusText(status),
			html.EscapeString(string(kind)), html.EscapeString(err.Error()), requestID)
		return
	}
	fmt.Fprintf(w, "<!doctype html><html><body><h1>%d %s</h1></body></html>", status, http.StatusText(status))
}

func errorSource(err error) string {
	var ge *glzerrors.GlazeError
	if stderrors.As(err, &ge) && ge.Component != "" {
		return ge.Component
	}
	return "server"
}

const devErrorPage = `<!doctype html>
<html>
<head><title>glaze error</title></head>
<body style="font-family: monospace; background: #1e1e1e; color: #ddd; padding: 2rem">
<h1 style="color: #f66">%d %s</h1>
<p><strong>kind:</strong> %s</p>
<pre style="background: #2a2a2a; padding: 1rem; overflow-x: auto">%s</pre>
<p style="color: #888">request %s</p>
</body>
</html>
`

func newRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(buf)
}
