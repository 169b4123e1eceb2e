// Package router maps request paths onto page templates.
//
// Routes are derived from the pages tree: pages/users/[id].html serves
// /users/{id}, bracketed segments become named path parameters, and
// index.html collapses onto its directory. The compiled table is immutable
// and swapped atomically on rebuild, so route resolution never observes a
// half-built table.
package router

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/glazeware/glaze/internal/logging"
)

// Route is one compiled page route.
type Route struct {
	// Pattern is the human-readable form, e.g. "/users/{id}".
	Pattern string

	// Template is the slash-relative page template name the renderer
	// resolves, e.g. "users/[id].html".
	Template string

	regex      *regexp.Regexp
	paramNames []string
	segments   int
	dynamic    bool
}

// table is one immutable compiled route set.
type table struct {
	routes []*Route
}

// Router owns the pages root and the current route table.
type Router struct {
	pagesDir string
	logger   logging.Logger
	current  atomic.Pointer[table]
}

// New creates a router over the pages root. Call Rebuild to compile the
// first table.
func New(pagesDir string, logger logging.Logger) *Router {
	r := &Router{pagesDir: pagesDir, logger: logger.WithSubsystem("router")}
	r.current.Store(&table{})
	return r
}

// Rebuild walks the pages tree, compiles every *.html file into a route,
// and publishes the new table atomically. Conflicting or uncompilable
// routes are logged and skipped; the walk never aborts on one bad page.
func (r *Router) Rebuild() error {
	var routes []*Route

	err := filepath.WalkDir(r.pagesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.logger.Warn(context.Background(), err, "skipping unreadable pages subtree", "path", path)
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ".html" {
			return nil
		}
		rel, relErr := filepath.Rel(r.pagesDir, path)
		if relErr != nil {
			return nil
		}
		template := filepath.ToSlash(rel)
		route, compErr := compile(template)
		if compErr != nil {
			r.logger.Warn(context.Background(), compErr, "skipping page", "template", template)
			return nil
		}
		routes = append(routes, route)
		return nil
	})
	if err != nil {
		return err
	}

	// Longer routes first, static before dynamic at equal length. The
	// first match wins, so /users/settings beats /users/{id}.
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].segments != routes[j].segments {
			return routes[i].segments > routes[j].segments
		}
		if routes[i].dynamic != routes[j].dynamic {
			return !routes[i].dynamic
		}
		return routes[i].Pattern < routes[j].Pattern
	})

	deduped := routes[:0]
	seen := make(map[string]string)
	for _, route := range routes {
		if prev, ok := seen[route.Pattern]; ok {
			r.logger.Warn(context.Background(), nil, "route conflict, keeping first",
				"pattern", route.Pattern, "kept", prev, "skipped", route.Template)
			continue
		}
		seen[route.Pattern] = route.Template
		deduped = append(deduped, route)
	}

	r.current.Store(&table{routes: deduped})
	r.logger.Info(context.Background(), "route table rebuilt", "routes", len(deduped))
	return nil
}

// Match resolves a request path to a route and its extracted path
// parameters.
func (r *Router) Match(path string) (*Route, map[string]string, bool) {
	t := r.current.Load()
	for _, route := range t.routes {
		m := route.regex.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		params := make(map[string]string, len(route.paramNames))
		for i, name := range route.paramNames {
			params[name] = m[i+1]
		}
		return route, params, true
	}
	return nil, nil, false
}

// Routes returns the current table in match order.
func (r *Router) Routes() []*Route {
	t := r.current.Load()
	out := make([]*Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// compile turns a slash-relative template path into a Route. File and
// directory underscores become hyphens in the URL; bracketed segments
// become named captures whose parameter names use underscores.
func compile(template string) (*Route, error) {
	segments := strings.Split(strings.TrimSuffix(template, ".html"), "/")
	if last := segments[len(segments)-1]; last == "index" {
		segments = segments[:len(segments)-1]
	}

	var (
		pattern    []string
		regexParts []string
		paramNames []string
		dynamic    bool
	)
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]") {
			name := strings.ReplaceAll(seg[1:len(seg)-1], "-", "_")
			if name == "" {
				return nil, fmt.Errorf("empty path parameter in %s", template)
			}
			paramNames = append(paramNames, name)
			pattern = append(pattern, "{"+name+"}")
			regexParts = append(regexParts, `([^/]+)`)
			dynamic = true
			continue
		}
		seg = strings.ReplaceAll(seg, "_", "-")
		pattern = append(pattern, seg)
		regexParts = append(regexParts, regexp.QuoteMeta(seg))
	}

	patternStr := "/" + strings.Join(pattern, "/")
	regexStr := "^/" + strings.Join(regexParts, "/") + "$"
	if len(pattern) == 0 {
		patternStr = "/"
		regexStr = "^/$"
	}

	re, err := regexp.Compile(regexStr)
	if err != nil {
		return nil, fmt.Errorf("compiling route for %s: %w", template, err)
	}

	return &Route{
		Pattern:    patternStr,
		Template:   template,
		regex:      re,
		paramNames: paramNames,
		segments:   len(pattern),
		dynamic:    dynamic,
	}, nil
}
