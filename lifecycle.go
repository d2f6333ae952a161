package jailbridge

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Lifecycle is the Lifecycle Controller (component G): it resolves and
// enters the plugin's working directory, attaches a Transport, announces
// readiness with an "initialized" envelope, pumps inbound envelopes into
// a Dispatcher's worker-runner pool, and governs process exit on
// disconnect.
type Lifecycle struct {
	session    *Session
	dispatcher *Dispatcher
	transport  Transport

	workDir         string
	dedicatedThread bool
	daemon          bool
	workerCount     int

	exitFunc       func(code int)
	disconnectOnce sync.Once
}

// LifecycleOption configures a Lifecycle before Run.
type LifecycleOption func(*Lifecycle)

// WithLifecycleWorkDir sets the plugin's working directory. If it does
// not exist it is created; Run changes into it before announcing
// readiness.
func WithLifecycleWorkDir(dir string) LifecycleOption {
	return func(l *Lifecycle) { l.workDir = dir }
}

// WithDedicatedThread marks the "initialized" envelope's dedicatedThread
// flag, telling the peer this plugin runs its own execution thread rather
// than sharing the host's.
func WithDedicatedThread(v bool) LifecycleOption {
	return func(l *Lifecycle) { l.dedicatedThread = v }
}

// WithDaemon disables the exit(0) that otherwise follows a disconnect, and
// makes a transport receive failure end Run with nil instead of an error:
// a daemon plugin outlives any single connection.
func WithDaemon(v bool) LifecycleOption {
	return func(l *Lifecycle) { l.daemon = v }
}

// WithWorkerCount overrides the Task Dispatcher's worker-runner pool size.
func WithWorkerCount(n int) LifecycleOption {
	return func(l *Lifecycle) { l.workerCount = n }
}

// WithExitFunc overrides the function invoked to terminate the process
// (os.Exit by default). Tests substitute a recording stub.
func WithExitFunc(fn func(code int)) LifecycleOption {
	return func(l *Lifecycle) { l.exitFunc = fn }
}

// NewLifecycle builds a Lifecycle wiring session to transport. Construct
// session with NewSession(nil, ...) first; Lifecycle supplies the emit
// function once the transport is known.
func NewLifecycle(session *Session, transport Transport, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		session:   session,
		transport: transport,
		exitFunc:  os.Exit,
	}
	for _, opt := range opts {
		opt(l)
	}
	session.emit = transport.Emit
	session.SetExitHook(l.onDisconnect)

	l.dispatcher = NewDispatcher(session, l.workerCount,
		WithExecuteHook(func(string) error { return nil }),
		WithDisconnectHook(l.onDisconnect),
	)
	return l
}

// Dispatcher exposes the underlying Task Dispatcher, e.g. so callers can
// install a real ExecuteHook via WithExecuteHook before Run.
func (l *Lifecycle) Dispatcher() *Dispatcher { return l.dispatcher }

// Run enters the working directory, starts the worker-runner pool,
// announces readiness, and pumps inbound envelopes until ctx is cancelled
// or the transport reports an error.
func (l *Lifecycle) Run(ctx context.Context) error {
	if err := l.enterWorkDir(); err != nil {
		return err
	}

	l.dispatcher.Start(ctx)

	if err := l.transport.Emit(Envelope{Type: EnvInitialized, DedicatedThread: l.dedicatedThread}); err != nil {
		return WrapBridgeError(ErrTransportLost, "emitting initialized envelope", err)
	}

	for {
		env, err := l.transport.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.dispatcher.Wait()
				return ctx.Err()
			}
			l.session.logger.Error("transport receive failed: " + err.Error())
			if l.daemon {
				// A daemon plugin outlives its host connection: transport
				// loss ends the receive loop without aborting the process.
				// The worker-runner pool keeps running against ctx.
				return nil
			}
			return WrapBridgeError(ErrTransportLost, "receiving envelope", err)
		}
		l.dispatcher.Submit(env)
	}
}

func (l *Lifecycle) enterWorkDir() error {
	if l.workDir == "" {
		return nil
	}
	if err := os.MkdirAll(l.workDir, 0o755); err != nil {
		return fmt.Errorf("jailbridge: creating work dir %q: %w", l.workDir, err)
	}
	if err := os.Chdir(l.workDir); err != nil {
		return fmt.Errorf("jailbridge: entering work dir %q: %w", l.workDir, err)
	}
	return nil
}

// onDisconnect is both the Dispatcher's DisconnectHook and the Session's
// exit hook, so it runs exactly once whether triggered by an EnvDisconnect
// envelope or by a peer invoking the exported "exit" method directly. It
// terminates the process unless running as a daemon, matching default_exit's
// unconditional sys.exit(0) versus a long-lived host process that should
// survive one peer going away.
func (l *Lifecycle) onDisconnect() {
	l.disconnectOnce.Do(func() {
		_ = l.transport.Close()
		if l.daemon {
			return
		}
		l.exitFunc(0)
	})
}
