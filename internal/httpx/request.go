// Package httpx extracts the request metadata that seeds every render
// context and script call.
package httpx

import (
	"net/http"
	"strings"
)

// RequestInfo is the immutable, transport-agnostic snapshot of an incoming
// request. It is assembled once per request and shared by the orchestrator,
// the renderer, and every script invocation of that request.
type RequestInfo struct {
	Method     string
	Path       string
	Host       string
	Scheme     string
	RemoteAddr string
	UserAgent  string
	Query      map[string]string
	Form       map[string]string
	PathParams map[string]string
	Headers    map[string]string
	Cookies    map[string]string
}

// FromRequest builds a RequestInfo from an incoming HTTP request. pathParams
// come from the matched page route; the form body is parsed for methods
// that carry one.
func FromRequest(r *http.Request, pathParams map[string]string) (*RequestInfo, error) {
	info := &RequestInfo{
		Method:     r.Method,
		Path:       r.URL.Path,
		Host:       r.Host,
		Scheme:     scheme(r),
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Query:      make(map[string]string),
		Form:       make(map[string]string),
		PathParams: make(map[string]string),
		Headers:    make(map[string]string),
		Cookies:    make(map[string]string),
	}

	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			info.Query[k] = vs[0]
		}
	}

	if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		for k, vs := range r.PostForm {
			if len(vs) > 0 {
				info.Form[k] = vs[0]
			}
		}
	}

	for k, v := range pathParams {
		info.PathParams[k] = v
	}

	for k, vs := range r.Header {
		if len(vs) > 0 {
			info.Headers[strings.ToLower(k)] = vs[0]
		}
	}

	for _, c := range r.Cookies() {
		info.Cookies[c.Name] = c.Value
	}

	return info, nil
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}

// ScriptValue returns the request shape handed to script entry points.
// Scripts receive plain nested maps, never the Go struct.
func (i *RequestInfo) ScriptValue() map[string]interface{} {
	return map[string]interface{}{
		"method":      i.Method,
		"path":        i.Path,
		"host":        i.Host,
		"scheme":      i.Scheme,
		"remote_addr": i.RemoteAddr,
		"user_agent":  i.UserAgent,
		"query":       stringMap(i.Query),
		"form":        stringMap(i.Form),
		"path_params": stringMap(i.PathParams),
		"headers":     stringMap(i.Headers),
		"cookies":     stringMap(i.Cookies),
	}
}

// AmbientFields returns the request-derived fields visible to every
// template in the render tree. Component data is deliberately absent:
// only these fields propagate from parent to child.
func (i *RequestInfo) AmbientFields() map[string]interface{} {
	return map[string]interface{}{
		"request": i.ScriptValue(),
		"path":    i.Path,
		"method":  i.Method,
		"query":   stringMap(i.Query),
		"params":  stringMap(i.PathParams),
	}
}

func stringMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
