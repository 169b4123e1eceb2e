package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glazeware/glaze/internal/config"
	"github.com/glazeware/glaze/internal/logging"
)

const counterScript = `
function load(request, session, db, props) {
	return { count: 1, label: props.label || "count" };
}

function action_increment(request, session, db, fields) {
	return { count: 42, label: "count" };
}
`

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newTestServer(t *testing.T, components, pages map[string]string, opts ...func(*config.Config)) *Server {
	t.Helper()

	componentsDir := t.TempDir()
	pagesDir := t.TempDir()
	writeTree(t, componentsDir, components)
	writeTree(t, pagesDir, pages)

	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.Load(v)
	require.NoError(t, err)
	cfg.Paths.Components = componentsDir
	cfg.Paths.Pages = pagesDir
	cfg.Watch.Enabled = false
	cfg.Development.HotReload = false
	for _, opt := range opts {
		opt(cfg)
	}

	s, err := New(cfg, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Rebuild())
	s.pool.Start()
	t.Cleanup(s.pool.Close)
	return s
}

func counterFixture() (map[string]string, map[string]string) {
	components := map[string]string{
		"counter/counter.html": `<span>count={{.count}}</span>`,
		"counter/counter.js":   counterScript,
	}
	pages := map[string]string{
		"index.html": `<html><body><h1>home</h1>{{component "counter"}}</body></html>`,
	}
	return components, pages
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func postForm(s *Server, path string, form url.Values) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func TestGetRendersPageWithComponentData(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages)

	w := get(s, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h1>home</h1>")
	assert.Contains(t, w.Body.String(), "<span>count=1</span>")
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}

func TestGetSetsSessionCookie(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages)

	w := get(s, "/")
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "glaze_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestPostActionOverridesLoad(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages)

	w := postForm(s, "/", url.Values{"action": {"increment"}, "component": {"counter"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<span>count=42</span>")
}

func TestUnknownActionFailsWithoutPartialRender(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages)

	w := postForm(s, "/", url.Values{"action": {"missing"}, "component": {"counter"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NotContains(t, w.Body.String(), "<h1>home</h1>")
}

func TestActionAgainstUnknownComponentIsNotFound(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages)

	w := postForm(s, "/", url.Values{"action": {"increment"}, "component": {"ghost"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "<h1>home</h1>")
}

func TestActionAgainstScriptlessComponentIsUnprocessable(t *testing.T) {
	components, pages := counterFixture()
	components["divider/divider.html"] = `<hr>`
	s := newTestServer(t, components, pages)

	// Registered, but with no script there is no handler to run.
	w := postForm(s, "/", url.Values{"action": {"anything"}, "component": {"divider"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NotContains(t, w.Body.String(), "<h1>home</h1>")
}

func TestActionWithoutComponentIsBadRequest(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages)

	w := postForm(s, "/", url.Values{"action": {"increment"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownPathIsNotFound(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages)

	w := get(s, "/nowhere")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDynamicRouteParamsReachTemplates(t *testing.T) {
	pages := map[string]string{
		"users/[id].html": `<html><body>user {{index .params "id"}}</body></html>`,
	}
	s := newTestServer(t, map[string]string{}, pages)

	w := get(s, "/users/alice")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user alice")
}

func TestDevErrorPageNamesTheFault(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages, func(cfg *config.Config) {
		cfg.Development.ErrorOverlay = true
	})

	w := postForm(s, "/", url.Values{"action": {"missing"}, "component": {"counter"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "action_not_found")
}

func TestProdErrorPageIsTerse(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages, func(cfg *config.Config) {
		cfg.Development.ErrorOverlay = false
	})

	w := get(s, "/nowhere")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "route_not_found")
}

func TestReloadScriptInjectedInHotReloadMode(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages, func(cfg *config.Config) {
		cfg.Development.HotReload = true
	})

	body := get(s, "/").Body.String()
	assert.Contains(t, body, "/_glaze/ws")
	// The client lands inside the document, not after it.
	assert.Less(t, strings.Index(body, "/_glaze/ws"), strings.Index(body, "</body>"))
}

func TestHealthz(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages)

	w := get(s, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestMetricsEndpointReportsRequests(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages)

	get(s, "/")
	w := get(s, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "glaze_requests_total")
	assert.Contains(t, w.Body.String(), "glaze_script_in_execution")
}

func TestWebsocketReceivesBroadcast(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/_glaze/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	s.hub.Broadcast([]byte(`{"type":"reload"}`))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reload"}`, string(data))
}

func TestWatcherChangeRebuildsAndBroadcasts(t *testing.T) {
	components, pages := counterFixture()
	s := newTestServer(t, components, pages, func(cfg *config.Config) {
		cfg.Watch.Enabled = true
		cfg.Watch.Debounce = 80 * time.Millisecond
		cfg.Development.HotReload = true
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.startWatcher(ctx))

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsCtx, wsCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer wsCancel()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/_glaze/ws"
	conn, _, err := websocket.Dial(wsCtx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	// Edit the component template on disk.
	path := filepath.Join(s.cfg.Paths.Components, "counter", "counter.html")
	require.NoError(t, os.WriteFile(path, []byte(`<span>total={{.count}}</span>`), 0o644))

	_, data, err := conn.Read(wsCtx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reload"}`, string(data))

	body := get(s, "/").Body.String()
	assert.Contains(t, body, "total=1")
}

func TestComponentPropsFromCallSite(t *testing.T) {
	components := map[string]string{
		"badge/badge.html": `<em>{{.label}}: {{.count}}</em>`,
		"badge/badge.js":   counterScript,
	}
	pages := map[string]string{
		"index.html": `<html><body>{{component "badge" "label" "hits"}}</body></html>`,
	}
	s := newTestServer(t, components, pages)

	body := get(s, "/").Body.String()
	assert.Contains(t, body, "<em>hits: 1</em>")
}
