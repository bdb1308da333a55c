// Package jsruntime executes module bundles in an embedded JavaScript VM.
//
// All bundles share one VM, the way scripts on a page share one global
// scope: a bundle defines its initializer as a global function and the
// loader calls it afterwards.
package jsruntime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/builderkit/modloader/activation"
	"github.com/builderkit/modloader/log"
)

// ErrInterrupted is returned when ctx ended while a script was running.
var ErrInterrupted = errors.New("script interrupted")

// Runner runs bundles in a goja VM. It is safe for concurrent use; scripts
// run one at a time.
type Runner struct {
	mu     sync.Mutex
	vm     *goja.Runtime
	logger *log.Logger
}

// New returns a runner with a fresh VM exposing a console object that
// writes to logger.
func New(logger *log.Logger) *Runner {
	r := &Runner{
		vm:     goja.New(),
		logger: logger,
	}
	r.vm.SetFieldNameMapper(goja.TagFieldNameMapper("js", true))

	console := r.vm.NewObject()
	_ = console.Set("log", r.consoleFunc(logger.Infof))
	_ = console.Set("warn", r.consoleFunc(logger.Warnf))
	_ = console.Set("error", r.consoleFunc(logger.Errorf))
	_ = r.vm.Set("console", console)
	_ = r.vm.Set("window", r.vm.GlobalObject())

	return r
}

func (r *Runner) consoleFunc(logf func(string, string, ...interface{})) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		logf("Bundle:console", "%s", strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// Run executes src as a script named name.
func (r *Runner) Run(ctx context.Context, name string, src []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stop := r.interruptOnDone(ctx)
	defer stop()

	if _, err := r.vm.RunScript(name, string(src)); err != nil {
		return r.scriptError(name, err)
	}
	return nil
}

// Initialize calls the global function fn with cfg. It reports false when
// no such function is defined. An exception thrown by the initializer is
// returned as an error.
func (r *Runner) Initialize(ctx context.Context, fn string, cfg activation.Config) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.vm.Get(fn)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false, nil
	}
	call, ok := goja.AssertFunction(v)
	if !ok {
		return false, nil
	}

	stop := r.interruptOnDone(ctx)
	defer stop()

	if _, err := call(goja.Undefined(), r.vm.ToValue(map[string]interface{}(cfg))); err != nil {
		return true, r.scriptError(fn, err)
	}
	return true, nil
}

// Global returns the exported value of a global variable, or nil.
func (r *Runner) Global(name string) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.vm.Get(name)
	if v == nil {
		return nil
	}
	return v.Export()
}

// interruptOnDone interrupts the VM when ctx is done before the returned
// stop func is called.
func (r *Runner) interruptOnDone(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			r.vm.Interrupt(ErrInterrupted)
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
		r.vm.ClearInterrupt()
	}
}

func (r *Runner) scriptError(name string, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("running %s: %w", name, ErrInterrupted)
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return fmt.Errorf("running %s: %s", name, exc.Error())
	}
	return fmt.Errorf("running %s: %w", name, err)
}
