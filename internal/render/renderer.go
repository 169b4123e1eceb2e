package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	glzerrors "github.com/glazeware/glaze/internal/errors"
	"github.com/glazeware/glaze/internal/httpx"
	"github.com/glazeware/glaze/internal/interp"
	"github.com/glazeware/glaze/internal/logging"
	"github.com/glazeware/glaze/internal/registry"
)

// Renderer turns a page template plus a request into final HTML. Component
// call sites inside templates are resolved recursively: each one loads its
// data through the execution pool and renders its own template with a
// child context built from the ambient request fields and its own data.
type Renderer struct {
	registry *registry.Registry
	pool     *interp.Pool
	pagesDir string
	logger   logging.Logger
	current  atomic.Pointer[templateSet]
}

// templateSet is one immutable parse of all page and component templates.
type templateSet struct {
	root       *template.Template
	generation uint64
}

// NewRenderer creates a renderer over the registry and pool. Call Rebuild
// before the first Render.
func NewRenderer(reg *registry.Registry, pool *interp.Pool, pagesDir string, logger logging.Logger) *Renderer {
	return &Renderer{
		registry: reg,
		pool:     pool,
		pagesDir: pagesDir,
		logger:   logger.WithSubsystem("render"),
	}
}

// stubFuncs lets templates referencing component(...) parse before the
// per-render closure is installed.
func stubFuncs() template.FuncMap {
	return template.FuncMap{
		"component": func(id string, pairs ...string) (template.HTML, error) {
			return "", fmt.Errorf("component %q called outside a render", id)
		},
	}
}

// Rebuild reparses every page and component template into a fresh set and
// publishes it atomically. A template that fails to parse is skipped with
// a logged error; the rest of the set stays usable. The returned errors
// are for diagnostic publication.
func (r *Renderer) Rebuild() []error {
	snap := r.registry.Snapshot()
	root := template.New("glaze").Funcs(stubFuncs())
	var errs []error

	parse := func(name, path string) {
		src, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, glzerrors.NewRender(name, err))
			return
		}
		if _, err := root.New(name).Parse(string(src)); err != nil {
			errs = append(errs, glzerrors.NewRender(name, err))
		}
	}

	walkErr := filepath.WalkDir(r.pagesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, glzerrors.NewRender(path, err))
			return nil // keep walking siblings
		}
		if d.IsDir() || filepath.Ext(path) != ".html" {
			return nil
		}
		rel, relErr := filepath.Rel(r.pagesDir, path)
		if relErr != nil {
			return nil
		}
		parse(filepath.ToSlash(rel), path)
		return nil
	})
	if walkErr != nil {
		errs = append(errs, glzerrors.NewRender(r.pagesDir, walkErr))
	}

	for id, c := range snap.Components() {
		if c.HasTemplate() {
			parse(id, c.TemplatePath)
		}
	}

	r.current.Store(&templateSet{root: root, generation: snap.Generation()})
	for _, err := range errs {
		r.logger.Error(context.Background(), err, "template parse failed")
	}
	return errs
}

// Overrides carries per-request load-context replacements: the action
// handler's returned data becomes the originating component's load context
// for this one request, bypassing its normal load call.
type Overrides map[string]map[string]interface{}

// Render evaluates the named page template against the request. Template
// names are slash-relative page paths ("users/[id].html") or component ids.
func (r *Renderer) Render(ctx context.Context, page string, req *httpx.RequestInfo, session map[string]interface{}, overrides Overrides) (string, error) {
	set := r.current.Load()
	if set == nil {
		return "", glzerrors.NewRender(page, fmt.Errorf("renderer has no template set"))
	}

	root, err := set.root.Clone()
	if err != nil {
		return "", glzerrors.NewRender(page, err)
	}
	if root.Lookup(page) == nil {
		return "", glzerrors.NewRouteNotFound(req.Path)
	}

	state := &renderState{
		renderer:  r,
		ctx:       ctx,
		req:       req,
		session:   session,
		overrides: overrides,
	}
	state.root = root.Funcs(template.FuncMap{"component": state.component})

	pageCtx := FromMap(req.AmbientFields())

	var buf bytes.Buffer
	if err := state.root.ExecuteTemplate(&buf, page, pageCtx.Map()); err != nil {
		// Prefer the typed error raised inside a component frame over
		// the text/template wrapper around it.
		if state.firstErr != nil {
			return "", state.firstErr
		}
		return "", glzerrors.NewRender(page, err)
	}
	return buf.String(), nil
}

// renderState is the per-request evaluation state: the explicit call stack
// used for cycle detection and the first typed error raised in the tree.
type renderState struct {
	renderer  *Renderer
	root      *template.Template
	ctx       context.Context
	req       *httpx.RequestInfo
	session   map[string]interface{}
	overrides Overrides
	stack     []string
	firstErr  error
}

func (s *renderState) fail(err error) (template.HTML, error) {
	if s.firstErr == nil {
		s.firstErr = err
	}
	return "", err
}

// component is the template hook behind component(id, key, value, ...).
func (s *renderState) component(id string, pairs ...string) (template.HTML, error) {
	if len(pairs)%2 != 0 {
		return s.fail(glzerrors.NewRender(id, fmt.Errorf("component parameters must be key/value pairs")))
	}

	for _, frame := range s.stack {
		if frame == id {
			return s.fail(glzerrors.NewCycle(id, s.stack))
		}
	}

	comp, ok := s.renderer.registry.Lookup(id)
	if !ok {
		return s.fail(glzerrors.NewComponentNotFound(id))
	}

	props := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		props[pairs[i]] = pairs[i+1]
	}

	data, ok := s.overrides[id]
	if !ok {
		var err error
		data, err = s.renderer.pool.Submit(s.ctx, interp.Job{
			ComponentID: id,
			Kind:        interp.JobLoad,
			Props:       props,
			Request:     s.req.ScriptValue(),
			Session:     s.session,
		})
		if err != nil {
			return s.fail(err)
		}
	}

	// Logic-only wrapper: the load ran for its effects, nothing renders.
	if !comp.HasTemplate() {
		return template.HTML(""), nil
	}

	// Child context: ambient request fields, the call-site props, and the
	// child's own data. Parent component data stays with the parent.
	childCtx := FromMap(s.req.AmbientFields())
	childCtx.Set("props", stringMapValue(props))
	childCtx.MergeMap(data)

	s.stack = append(s.stack, id)
	defer func() { s.stack = s.stack[:len(s.stack)-1] }()

	var buf bytes.Buffer
	if err := s.root.ExecuteTemplate(&buf, id, childCtx.Map()); err != nil {
		if s.firstErr != nil {
			return "", s.firstErr
		}
		return s.fail(glzerrors.NewRender(id, err))
	}
	return template.HTML(buf.String()), nil
}

func stringMapValue(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
