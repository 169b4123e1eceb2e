// Package interp executes component scripts on a fixed pool of workers.
//
// Each worker owns one goja runtime pinned to a dedicated OS thread and
// processes jobs strictly sequentially. Script execution itself serializes
// process-wide on a single exclusive lock, mirroring a runtime that allows
// only one thread to run interpreted code at a time; the pool parallelizes
// readiness around that lock and keeps per-worker state isolated so no two
// logical requests ever share runtime state.
package interp

// JobKind discriminates the two script entry point families.
type JobKind int

const (
	// JobLoad invokes the component's load entry point to produce its
	// initial template context.
	JobLoad JobKind = iota

	// JobAction invokes a named action_<name> handler resolved from the
	// submitted action discriminator.
	JobAction
)

// String returns the job kind for logs.
func (k JobKind) String() string {
	if k == JobAction {
		return "action"
	}
	return "load"
}

// Job is one unit of script work. It is created by the orchestrator or the
// renderer, consumed by exactly one worker, and its result delivered once.
type Job struct {
	ComponentID string
	Kind        JobKind

	// Action names the handler for JobAction jobs ("increment" resolves
	// action_increment). Empty for JobLoad.
	Action string

	// Props are the string-valued keyword parameters from the template
	// call site. Load jobs only.
	Props map[string]string

	// Fields is the full submitted form field set. Action jobs only.
	Fields map[string]string

	// Request is the request metadata passed through to the script.
	Request map[string]interface{}

	// Session is the opaque per-session map. Passed by reference so
	// script mutations persist; never interpreted here.
	Session map[string]interface{}
}

type jobResult struct {
	data map[string]interface{}
	err  error
}

type jobEnvelope struct {
	job   Job
	reply chan jobResult
}
