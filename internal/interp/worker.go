package interp

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/glazeware/glaze/internal/errors"
)

// The embedded runtime permits exactly one thread to execute script code
// at any instant. The lock is held for the duration of a script call and
// never across a channel operation or any other suspension point.
var (
	execLock       sync.Mutex
	inExecution    atomic.Int64
	maxInExecution atomic.Int64
)

// ExecutionCounts reports the number of script executions in flight right
// now and the highest value ever observed. The maximum exceeding one means
// the exclusive-execution invariant was broken.
func ExecutionCounts() (current, max int64) {
	return inExecution.Load(), maxInExecution.Load()
}

// ResetExecutionCounts clears the high-water mark. Test helper.
func ResetExecutionCounts() {
	inExecution.Store(0)
	maxInExecution.Store(0)
}

// instance is one worker's materialization of a module: the callables the
// wrapped script exported into this worker's runtime.
type instance struct {
	hash      string
	callables map[string]goja.Callable
}

// worker owns one runtime bound to one OS thread and processes jobs
// strictly sequentially. Worker state is never shared across jobs running
// on different workers.
type worker struct {
	id      int
	pool    *Pool
	jobs    chan jobEnvelope
	runtime *goja.Runtime

	// instances caches per-component callables, invalidated when the
	// script hash changes after a reload.
	instances map[string]*instance
}

func newWorker(id int, pool *Pool, queueDepth int) *worker {
	return &worker{
		id:        id,
		pool:      pool,
		jobs:      make(chan jobEnvelope, queueDepth),
		instances: make(map[string]*instance),
	}
}

// run is the worker loop. Blocking calls into the embedded runtime happen
// here, off the request-handling goroutines, on a dedicated OS thread.
func (w *worker) run() {
	defer w.pool.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	w.runtime = goja.New()

	for {
		select {
		case <-w.pool.quit:
			return
		case env := <-w.jobs:
			data, err := w.execute(env.job)
			// Reply channels are buffered; a caller that gave up on the
			// request simply never reads the discarded result.
			env.reply <- jobResult{data: data, err: err}
		}
	}
}

func (w *worker) execute(job Job) (map[string]interface{}, error) {
	set := w.pool.modules.Load()
	module, ok := set.Lookup(job.ComponentID)
	if !ok {
		// No script: empty context, no worker round trip needed beyond
		// this point.
		return map[string]interface{}{}, nil
	}

	inst, err := w.instantiate(module)
	if err != nil {
		return nil, errors.NewExecution(job.ComponentID, err)
	}

	var fn goja.Callable
	switch job.Kind {
	case JobAction:
		fn, ok = inst.callables["action_"+job.Action]
		if !ok {
			return nil, errors.NewActionNotFound(job.ComponentID, job.Action)
		}
	default:
		fn, ok = inst.callables["load"]
		if !ok {
			// Script with actions only. Loading it is an empty context.
			return map[string]interface{}{}, nil
		}
	}

	args := []goja.Value{
		w.runtime.ToValue(job.Request),
		w.runtime.ToValue(job.Session),
		w.toValueOrNull(w.pool.db),
	}
	if job.Kind == JobAction {
		args = append(args, w.runtime.ToValue(toInterfaceMap(job.Fields)))
	} else {
		args = append(args, w.runtime.ToValue(toInterfaceMap(job.Props)))
	}

	result, err := w.runExclusive(func() (goja.Value, error) {
		return fn(goja.Undefined(), args...)
	})
	if err != nil {
		return nil, errors.NewExecution(job.ComponentID, err)
	}

	return exportContext(job.ComponentID, result)
}

// instantiate runs the module program in this worker's runtime, caching
// the exported callables until the script changes on disk.
func (w *worker) instantiate(module *Module) (*instance, error) {
	if inst, ok := w.instances[module.ID]; ok && inst.hash == module.Hash {
		return inst, nil
	}

	value, err := w.runExclusive(func() (goja.Value, error) {
		return w.runtime.RunProgram(module.program)
	})
	if err != nil {
		return nil, err
	}

	obj := value.ToObject(w.runtime)
	inst := &instance{
		hash:      module.Hash,
		callables: make(map[string]goja.Callable),
	}
	for _, key := range obj.Keys() {
		if fn, ok := goja.AssertFunction(obj.Get(key)); ok {
			inst.callables[key] = fn
		}
	}
	w.instances[module.ID] = inst
	return inst, nil
}

// runExclusive acquires the process-wide execution lock around one script
// call and maintains the instrumented in-execution counter.
func (w *worker) runExclusive(call func() (goja.Value, error)) (goja.Value, error) {
	execLock.Lock()
	defer execLock.Unlock()

	current := inExecution.Add(1)
	if current > maxInExecution.Load() {
		maxInExecution.Store(current)
	}
	defer inExecution.Add(-1)

	return call()
}

func (w *worker) toValueOrNull(v interface{}) goja.Value {
	if v == nil {
		return goja.Null()
	}
	return w.runtime.ToValue(v)
}

// exportContext converts a script return value into the string-keyed data
// mapping the renderer consumes.
func exportContext(componentID string, value goja.Value) (map[string]interface{}, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return map[string]interface{}{}, nil
	}
	exported := value.Export()
	data, ok := exported.(map[string]interface{})
	if !ok {
		return nil, errors.NewExecution(componentID,
			fmt.Errorf("script returned %T, want an object", exported))
	}
	return data, nil
}

func toInterfaceMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
