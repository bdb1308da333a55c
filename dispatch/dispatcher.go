// Package dispatch reacts to host lifecycle events and activates the
// module each scene and view needs, once per activation key.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/builderkit/modloader/activation"
	"github.com/builderkit/modloader/hostevent"
	"github.com/builderkit/modloader/log"
	"github.com/builderkit/modloader/wait"
)

const (
	// DefaultReadyInterval is the host readiness polling interval.
	DefaultReadyInterval = 100 * time.Millisecond
	// DefaultReadyMaxAttempts bounds host readiness polling.
	DefaultReadyMaxAttempts = 100
)

// ErrHostNotReady is returned by Run when the host never announced its
// global context.
var ErrHostNotReady = errors.New("host not ready")

// ErrAlreadyRunning is returned when Run is called more than once.
var ErrAlreadyRunning = errors.New("dispatcher already running")

// Resolver picks the module an activation context needs.
type Resolver interface {
	Resolve(ctx context.Context, actx activation.Context) *activation.Descriptor
}

// Loader loads a module for an activation context.
type Loader interface {
	Load(ctx context.Context, desc *activation.Descriptor, actx activation.Context) activation.LoadResult
}

// Options configures a Dispatcher.
type Options struct {
	ReadyInterval    time.Duration
	ReadyMaxAttempts int
	Logger           *log.Logger
}

// completion is what a worker reports back to the dispatch goroutine.
type completion struct {
	actx       activation.Context
	generation uint64
	desc       *activation.Descriptor
	result     activation.LoadResult
}

// Dispatcher serves host events on a single goroutine. Resolution and
// loading run on worker goroutines that report back over a channel, so the
// state and the ledger have a single writer.
type Dispatcher struct {
	state    *State
	gate     *Gate
	resolver Resolver
	loader   Loader
	opts     Options
	logger   *log.Logger

	events      chan hostevent.Event
	unsubscribe context.CancelFunc
	results     chan completion
	stopped     chan struct{}
	running     atomic.Bool
	workers     sync.WaitGroup
}

// New returns a dispatcher subscribed to the lifecycle events of emitter
// until ctx is done or Run returns.
func New(
	ctx context.Context,
	emitter *hostevent.Emitter,
	state *State,
	resolver Resolver,
	loader Loader,
	opts Options,
) *Dispatcher {
	if opts.ReadyInterval <= 0 {
		opts.ReadyInterval = DefaultReadyInterval
	}
	if opts.ReadyMaxAttempts <= 0 {
		opts.ReadyMaxAttempts = DefaultReadyMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNullLogger()
	}

	d := &Dispatcher{
		state:    state,
		gate:     NewGate(state, opts.Logger),
		resolver: resolver,
		loader:   loader,
		opts:     opts,
		logger:   opts.Logger,
		events:   make(chan hostevent.Event),
		results:  make(chan completion),
		stopped:  make(chan struct{}),
	}
	var subCtx context.Context
	subCtx, d.unsubscribe = context.WithCancel(ctx)
	emitter.On(subCtx, []string{
		hostevent.EventSceneRender,
		hostevent.EventViewRender,
		hostevent.EventHashChange,
		hostevent.EventHostReady,
		hostevent.EventViewFragment,
	}, d.events)

	return d
}

// State returns the dispatcher state.
func (d *Dispatcher) State() *State {
	return d.state
}

// Snapshot returns the current ledger.
func (d *Dispatcher) Snapshot() map[string]ActivationState {
	return d.state.Ledger().Snapshot()
}

// Run waits for the host to become ready, then serves events until ctx is
// done. Events received while waiting are served once the host is ready.
// Run returns ErrHostNotReady when readiness polling gives up. A dispatcher
// runs once; it stops receiving events when Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		d.unsubscribe()
		close(d.stopped)
		d.workers.Wait()
	}()

	ctx = activation.WithSessionID(ctx, d.state.SessionID())
	d.logger.Infof("Dispatcher:Run", "session:%s waiting for host", d.state.SessionID())

	var pending []hostevent.Event
	ready, err := wait.PollUntil(ctx, func() bool {
		for {
			select {
			case ev := <-d.events:
				if ev.Name == hostevent.EventHostReady {
					d.handle(ctx, ev)
				} else {
					pending = append(pending, ev)
				}
			default:
				return d.state.Ready()
			}
		}
	}, d.opts.ReadyInterval, d.opts.ReadyMaxAttempts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return fmt.Errorf("waiting for host: %w", err)
	}
	if !ready {
		d.logger.Errorf("Dispatcher:Run", "host not ready after %d attempts every %s",
			d.opts.ReadyMaxAttempts, d.opts.ReadyInterval)
		return ErrHostNotReady
	}

	d.logger.Infof("Dispatcher:Run", "session:%s host ready, %d pending events", d.state.SessionID(), len(pending))
	for _, ev := range pending {
		d.handle(ctx, ev)
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Debugf("Dispatcher:Run", "session:%s stopping: %v", d.state.SessionID(), ctx.Err())
			return nil
		case ev := <-d.events:
			d.handle(ctx, ev)
		case c := <-d.results:
			d.complete(c)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev hostevent.Event) {
	d.logger.Tracef("Dispatcher:handle", "event:%s key:%s", ev.Name, ev.Payload.Key)

	switch ev.Name {
	case hostevent.EventHostReady:
		d.state.applyHostReady(ev.Payload)
		d.logger.Debugf("Dispatcher:handle", "host ready, config for %d modules", len(ev.Payload.Config))

	case hostevent.EventViewFragment:
		actx, ok := d.gate.viewContext(ev.Payload)
		if !ok {
			return
		}
		if err := d.state.fragments.Put(actx.Key(), ev.Payload.HTML); err != nil {
			d.logger.Warnf("Dispatcher:handle", "key:%s %v", actx.Key(), err)
		}

	case hostevent.EventSceneRender, hostevent.EventViewRender, hostevent.EventHashChange:
		if actx := d.gate.OnLifecycleEvent(ev); actx != nil {
			d.activate(ctx, *actx)
		}
	}
}

// activate starts a worker for actx unless the ledger says it is loading
// or already activated.
func (d *Dispatcher) activate(ctx context.Context, actx activation.Context) {
	key := actx.Key()
	ledger := d.state.Ledger()
	if !ledger.ShouldActivate(key) {
		d.logger.Debugf("Dispatcher:activate", "key:%s skipped, %s", key, ledger.State(key))
		return
	}
	gen := ledger.Begin(key)
	if d.state.Navigating() {
		d.logger.Debugf("Dispatcher:activate", "key:%s activating while navigating", key)
	}

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()

		wctx := activation.WithActivation(ctx, actx)
		c := completion{actx: actx, generation: gen}
		if c.desc = d.resolver.Resolve(wctx, actx); c.desc != nil {
			c.result = d.loader.Load(wctx, c.desc, actx)
		}

		select {
		case d.results <- c:
		case <-d.stopped:
		}
	}()
}

func (d *Dispatcher) complete(c completion) {
	key := c.actx.Key()
	ledger := d.state.Ledger()

	if c.desc == nil {
		ledger.Forget(key, c.generation)
		d.logger.Debugf("Dispatcher:complete", "key:%s no module", key)
		return
	}
	if !ledger.MarkActivated(key, c.generation, c.result.OK()) {
		d.logger.Debugf("Dispatcher:complete", "key:%s module:%s stale completion of gen:%d ignored",
			key, c.desc.ID, c.generation)
		return
	}
	if c.result.OK() {
		d.logger.Infof("Dispatcher:complete", "key:%s module:%s activated", key, c.desc.ID)
		return
	}
	d.logger.Errorf("Dispatcher:complete", "key:%s module:%s failed: %v", key, c.desc.ID, c.result.Err)
}
