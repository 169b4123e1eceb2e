// Package errors defines the structured error taxonomy shared by the
// request pipeline.
//
// Every request-scoped fault bubbles up as a *GlazeError carrying a kind,
// the component it originated from, and the underlying cause. The
// orchestrator is the single place that maps kinds to HTTP status codes;
// lower layers never write responses or panic for request-scoped faults.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind categorizes a pipeline fault.
type Kind string

const (
	// KindDiscovery marks a malformed component directory. Recoverable:
	// the scanner skips the component and keeps going.
	KindDiscovery Kind = "discovery"

	// KindExecution marks a script that raised or failed inside the
	// embedded runtime. Recoverable per request.
	KindExecution Kind = "execution"

	// KindActionNotFound marks an action discriminator that resolves to
	// no handler on the target component.
	KindActionNotFound Kind = "action_not_found"

	// KindComponentNotFound marks a component id with no registry entry.
	KindComponentNotFound Kind = "component_not_found"

	// KindCycle marks a component that directly or transitively renders
	// itself.
	KindCycle Kind = "cycle"

	// KindRender marks a template evaluation failure.
	KindRender Kind = "render"

	// KindPoolExhausted marks a worker acquisition that timed out after
	// all retries.
	KindPoolExhausted Kind = "pool_exhausted"

	// KindRouteNotFound marks a request path with no matching page route.
	KindRouteNotFound Kind = "route_not_found"

	// KindBadRequest marks a structurally invalid request, such as an
	// action submission without an originating component.
	KindBadRequest Kind = "bad_request"
)

// GlazeError is the structured error type carried through the pipeline.
type GlazeError struct {
	Kind        Kind
	Component   string
	Message     string
	Cause       error
	Recoverable bool
}

// Error implements the error interface.
func (e *GlazeError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}
	parts = append(parts, e.Message)
	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying cause error.
func (e *GlazeError) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind so callers can compare against sentinel
// constructors without caring about component or message.
func (e *GlazeError) Is(target error) bool {
	var t *GlazeError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// WithComponent attaches the originating component id.
func (e *GlazeError) WithComponent(component string) *GlazeError {
	e.Component = component
	return e
}

// NewDiscovery creates a discovery error for a malformed component directory.
func NewDiscovery(component, message string) *GlazeError {
	return &GlazeError{Kind: KindDiscovery, Component: component, Message: message, Recoverable: true}
}

// NewExecution wraps a script failure.
func NewExecution(component string, cause error) *GlazeError {
	return &GlazeError{Kind: KindExecution, Component: component, Message: "script execution failed", Cause: cause, Recoverable: true}
}

// NewActionNotFound creates the typed error for an unknown action name.
func NewActionNotFound(component, action string) *GlazeError {
	return &GlazeError{Kind: KindActionNotFound, Component: component, Message: fmt.Sprintf("no handler action_%s", action), Recoverable: true}
}

// NewComponentNotFound creates the typed error for an unregistered component id.
func NewComponentNotFound(component string) *GlazeError {
	return &GlazeError{Kind: KindComponentNotFound, Component: component, Message: "component not registered", Recoverable: true}
}

// NewCycle creates the typed error for recursive component composition. The
// stack holds the component ids from the page down to the repeated id.
func NewCycle(component string, stack []string) *GlazeError {
	return &GlazeError{
		Kind:        KindCycle,
		Component:   component,
		Message:     fmt.Sprintf("component cycle: %s", strings.Join(append(append([]string{}, stack...), component), " -> ")),
		Recoverable: true,
	}
}

// NewRender wraps a template evaluation failure.
func NewRender(template string, cause error) *GlazeError {
	return &GlazeError{Kind: KindRender, Component: template, Message: "template evaluation failed", Cause: cause, Recoverable: true}
}

// NewPoolExhausted creates the typed error for worker acquisition timeout.
func NewPoolExhausted(component string) *GlazeError {
	return &GlazeError{Kind: KindPoolExhausted, Component: component, Message: "all workers busy", Recoverable: true}
}

// NewRouteNotFound creates the typed error for an unmatched request path.
func NewRouteNotFound(path string) *GlazeError {
	return &GlazeError{Kind: KindRouteNotFound, Message: "no page route for " + path, Recoverable: true}
}

// NewBadRequest creates the typed error for a structurally invalid request.
func NewBadRequest(message string) *GlazeError {
	return &GlazeError{Kind: KindBadRequest, Message: message, Recoverable: true}
}

// KindOf extracts the kind from any error in the chain, or "" when the
// error carries no taxonomy.
func KindOf(err error) Kind {
	var ge *GlazeError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// HTTPStatus maps a pipeline error to the response status the orchestrator
// writes. Untyped errors map to 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindRouteNotFound, KindComponentNotFound:
		return http.StatusNotFound
	case KindActionNotFound:
		return http.StatusUnprocessableEntity
	case KindBadRequest:
		return http.StatusBadRequest
	case KindPoolExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsRecoverable reports whether the error is a request-scoped fault rather
// than a process-level one.
func IsRecoverable(err error) bool {
	var ge *GlazeError
	if errors.As(err, &ge) {
		return ge.Recoverable
	}
	return false
}
