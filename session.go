package jailbridge

import "sync"

// PluginAPI marks a value, passed as an argument to a remote call, as a
// peer-held sub-interface rather than a plain mapping: every Callable
// member becomes a "plugin_interface" leaf, addressable by PID, and the
// callables are stashed in the owning Session's plugin-interface table.
// This is the Go rendering of the wire's
// {"__jailed_type__": "plugin_api", "__id__": ...} convention.
type PluginAPI struct {
	ID      string
	Members []APIEntry
}

// Session is the explicit per-connection context object threaded through
// the codec, registry and stubs in place of global state. It owns the
// Reference Store, the plugin-interface table, the Interface Registry and
// the decoded remote namespace. The session mutex guards the
// plugin-interface table, the remote namespace and the exit hook; the
// Store takes its own lock; the Registry does no locking of its own.
type Session struct {
	mu sync.Mutex

	logger  SLogger
	ndarray NDArrayProvider

	store    *Store
	Registry *Registry

	pluginInterfaces map[string]map[string]Callable
	pluginSeq        uint64

	remote map[string]remoteEntry

	// emit sends an outbound envelope to the peer. Set by the Lifecycle
	// Controller once the transport is attached.
	emit func(Envelope) error

	// onExit is invoked at the end of defaultExit. Set by the Lifecycle
	// Controller so any path that reaches defaultExit — an EnvDisconnect
	// envelope or a peer simply calling the exported "exit" method —
	// terminates the process the same way.
	onExit func()

	workDir string
}

type remoteEntry struct {
	stub  Callable
	value any // non-callable primitive members decoded from setInterface
}

// SessionOption configures a new Session.
type SessionOption func(*Session)

// WithLogger attaches an SLogger used by every component that touches this
// session (codec warnings, dispatcher activity, lifecycle transitions).
func WithLogger(logger SLogger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// WithNDArrayProvider registers the numeric-array capability the codec
// uses to reconstruct "ndarray" leaves. Without one, decoding an ndarray
// leaf fails with ErrNdarrayNoProvider rather than silently losing data.
func WithNDArrayProvider(p NDArrayProvider) SessionOption {
	return func(s *Session) { s.ndarray = p }
}

// WithWorkDir records the plugin's working directory, readable through
// Session.WorkDir. It is not added to the exported interface.
func WithWorkDir(dir string) SessionOption {
	return func(s *Session) { s.workDir = dir }
}

// NewSession builds a Session. emit is the low-level outbound-envelope
// sink; it is normally supplied by a Lifecycle Controller wrapping a
// Transport.
func NewSession(emit func(Envelope) error, opts ...SessionOption) *Session {
	s := &Session{
		logger:           DefaultSLogger(),
		store:            NewStore(),
		pluginInterfaces: make(map[string]map[string]Callable),
		remote:           make(map[string]remoteEntry),
		emit:             emit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Registry = NewRegistry(s.logger, s.defaultExit, s.emitLocked)
	return s
}

// WorkDir returns the plugin's working directory.
func (s *Session) WorkDir() string { return s.workDir }

// Store exposes the Reference Store for tests and advanced callers.
func (s *Session) Store() *Store { return s.store }

func (s *Session) emitLocked(env Envelope) error {
	if s.emit == nil {
		return nil
	}
	return s.emit(env)
}

// SetExitHook installs the action defaultExit runs after logging. The
// Lifecycle Controller calls this once it owns a transport to close, so
// that invoking "exit" — whether triggered by an EnvDisconnect envelope or
// by a peer calling the exported "exit" method directly — always reaches
// the same process-termination path.
func (s *Session) SetExitHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExit = fn
}

// defaultExit is the terminal exit action installed by the Registry when
// the user supplies none, or run after a user-supplied one. It always
// logs, then runs the hook the Lifecycle Controller installed, if any.
func (s *Session) defaultExit() {
	s.logger.Info("session exiting")
	s.mu.Lock()
	onExit := s.onExit
	s.mu.Unlock()
	if onExit != nil {
		onExit()
	}
}
