package jailbridge

import (
	"context"
	"encoding/json"
	"sync"
)

// ExecuteHook runs the plugin's one-time setup payload carried by an
// "execute" envelope. It is invoked at most once per Dispatcher, no matter
// how many "execute" envelopes arrive — a repeat is an idempotent no-op
// that still gets its executeSuccess reply.
type ExecuteHook func(code string) error

// DisconnectHook runs when a "disconnect" envelope arrives, after the
// installed exit callable (if any) has already been invoked and its error
// discarded. Typically wired by the Lifecycle Controller to stop the
// process.
type DisconnectHook func()

// Dispatcher is the Task Dispatcher (component F): one inbound envelope
// queue drained by a fixed pool of worker-runner goroutines, fanning
// incoming work out the way a single async task queue fans out to
// coroutine workers.
type Dispatcher struct {
	session *Session
	queue   chan Envelope
	workers int

	onExecute    ExecuteHook
	onDisconnect DisconnectHook

	executeMu sync.Mutex
	executed  bool

	abortMu sync.Mutex
	aborted bool

	wg sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithExecuteHook installs the one-time "execute" payload handler.
func WithExecuteHook(hook ExecuteHook) DispatcherOption {
	return func(d *Dispatcher) { d.onExecute = hook }
}

// WithDisconnectHook installs the post-exit "disconnect" handler.
func WithDisconnectHook(hook DisconnectHook) DispatcherOption {
	return func(d *Dispatcher) { d.onDisconnect = hook }
}

// WithQueueDepth overrides the inbound envelope queue's buffer size.
func WithQueueDepth(depth int) DispatcherOption {
	return func(d *Dispatcher) { d.queue = make(chan Envelope, depth) }
}

// DefaultWorkerCount is how many worker-runner goroutines a Dispatcher
// starts when NewDispatcher is given a count <= 0 (as it is by a Lifecycle
// built without WithWorkerCount), resolving the open question on
// worker-runner fan-out.
const DefaultWorkerCount = 10

// NewDispatcher builds a Dispatcher bound to session, with workers
// worker-runner goroutines (DefaultWorkerCount if <= 0).
func NewDispatcher(session *Session, workers int, opts ...DispatcherOption) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	d := &Dispatcher{
		session: session,
		queue:   make(chan Envelope, 256),
		workers: workers,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the worker-runner pool. It returns immediately; call Wait
// or rely on ctx cancellation to know when workers have drained.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.runWorker(ctx)
	}
}

// Wait blocks until every worker-runner goroutine has exited.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Submit enqueues an inbound envelope for dispatch. It blocks if the queue
// is full, applying natural backpressure to the transport's read loop.
func (d *Dispatcher) Submit(env Envelope) {
	d.queue <- env
}

func (d *Dispatcher) runWorker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-d.queue:
			if !ok {
				return
			}
			d.dispatch(ctx, env)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, env Envelope) {
	if d.isAborted() {
		return
	}
	switch env.Type {
	case EnvSetInterface:
		d.session.BuildRemoteInterface(env.API)
	case EnvMethod:
		d.dispatchMethod(env)
	case EnvCallback:
		d.dispatchCallback(env)
	case EnvExecute:
		d.dispatchExecute(env)
	case EnvMessage:
		d.dispatchMessage(ctx, env)
	case EnvDisconnect:
		d.dispatchDisconnect()
	case EnvImport:
		d.dispatchImport(env)
	case EnvImportSuccess, EnvInitialized, EnvExecuteSuccess:
		d.session.logger.Debug("ignoring out-of-scope envelope type: " + string(env.Type))
	default:
		d.session.logger.Warn("dropping envelope of unrecognized type: " + string(env.Type))
	}
}

func (d *Dispatcher) dispatchMethod(env Envelope) {
	var fn Callable
	if env.PID != nil {
		c, ok := d.session.LookupPluginMember(*env.PID, env.Name)
		if !ok {
			d.replyError(env, NewBridgeError(ErrUnregisteredClient, "no such plugin interface member: "+env.Name))
			return
		}
		fn = c
	} else {
		v, ok := d.session.Registry.Lookup(env.Name)
		if !ok {
			d.replyError(env, NewBridgeError(ErrUnregisteredClient, "no such exported method: "+env.Name))
			return
		}
		c, ok := v.(Callable)
		if !ok {
			d.replyError(env, NewBridgeError(ErrAPIShape, "exported member is not callable: "+env.Name))
			return
		}
		fn = c
	}
	d.invokeAndReply(env, fn)
}

func (d *Dispatcher) dispatchCallback(env Envelope) {
	if env.Num == nil {
		d.session.logger.Warn("callback envelope missing num")
		return
	}
	fn, ok := d.session.Store().Fetch(*env.Num)
	if !ok {
		d.replyError(env, NewBridgeError(ErrUnregisteredClient, "unknown callback id"))
		return
	}
	d.invokeAndReply(env, fn)
}

func (d *Dispatcher) invokeAndReply(env Envelope, fn Callable) {
	dctx := DecodeContext{EnvelopeID: env.Id, WithPromise: true}
	var args []any
	if env.Args != nil {
		decoded, err := d.session.Decode(env.Args.Args, dctx)
		if err != nil {
			d.replyError(env, err)
			return
		}
		if arr, ok := decoded.([]any); ok {
			args = arr
		}
	}

	result, callErr := fn.Call(args)

	if env.Promise == nil {
		return
	}
	resolve, reject, ok := d.decodePromisePair(env)
	if !ok {
		return
	}
	if callErr != nil {
		_, _ = reject.Call([]any{callErr.Error()})
		return
	}
	_, _ = resolve.Call([]any{result})
}

func (d *Dispatcher) decodePromisePair(env Envelope) (resolve, reject Callable, ok bool) {
	decoded, err := d.session.Decode(env.Promise.Args, DecodeContext{WithPromise: false})
	if err != nil {
		d.session.logger.Error("decoding promise pair: " + err.Error())
		return nil, nil, false
	}
	pair, isArr := decoded.([]any)
	if !isArr || len(pair) < 2 {
		d.session.logger.Error("malformed promise pair")
		return nil, nil, false
	}
	resolve, ok = pair[0].(Callable)
	if !ok {
		return nil, nil, false
	}
	reject, ok = pair[1].(Callable)
	if !ok {
		return nil, nil, false
	}
	return resolve, reject, true
}

func (d *Dispatcher) replyError(env Envelope, err error) {
	if env.Promise == nil {
		d.session.logger.Error(err.Error())
		return
	}
	_, reject, ok := d.decodePromisePair(env)
	if !ok {
		return
	}
	_, _ = reject.Call([]any{err.Error()})
}

// dispatchExecute runs the execute hook at most once; every call, first or
// repeat, gets an executeSuccess reply, since a plugin's one-shot bootstrap
// code depends on that idempotence.
func (d *Dispatcher) dispatchExecute(env Envelope) {
	d.executeMu.Lock()
	alreadyRan := d.executed
	d.executed = true
	d.executeMu.Unlock()

	if !alreadyRan && d.onExecute != nil {
		if err := d.onExecute(env.Code); err != nil {
			d.session.logger.Error("execute hook failed: " + err.Error())
		}
	}
	_ = d.session.emitLocked(Envelope{Type: EnvExecuteSuccess})
}

// dispatchMessage unwraps a "message" envelope's payload and resubmits it
// to this same queue, matching the documented "enqueued verbatim on the
// worker task queue" behavior.
func (d *Dispatcher) dispatchMessage(ctx context.Context, env Envelope) {
	if len(env.Data) == 0 {
		return
	}
	var inner Envelope
	if err := json.Unmarshal(env.Data, &inner); err != nil {
		d.session.logger.Warn("dropping malformed message envelope: " + err.Error())
		return
	}
	select {
	case d.queue <- inner:
	case <-ctx.Done():
	}
}

// dispatchImport replies with an "importSuccess" envelope echoing the
// requested url. Import never executes code; it only acknowledges the
// request.
func (d *Dispatcher) dispatchImport(env Envelope) {
	_ = d.session.emitLocked(Envelope{Type: EnvImportSuccess, URL: env.URL})
}

func (d *Dispatcher) dispatchDisconnect() {
	d.abortMu.Lock()
	d.aborted = true
	d.abortMu.Unlock()

	if exit, ok := d.session.Registry.Exit(); ok {
		_, _ = exit.Call(nil)
	}
	if d.onDisconnect != nil {
		d.onDisconnect()
	}
}

func (d *Dispatcher) isAborted() bool {
	d.abortMu.Lock()
	defer d.abortMu.Unlock()
	return d.aborted
}
