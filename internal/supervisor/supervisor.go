// Package supervisor is the Worker Supervisor (component I): it spawns
// plugin worker processes, tracks their session state, and answers the
// administrative operations (connect, reset_engine, get_engine_status,
// disconnect) a host process uses to manage the plugin workers belonging
// to one client session. Process bookkeeping and the connect/disconnect
// event names are modeled on a capability host's PluginHost/ManagedPlugin
// pattern, rebuilt around session lifecycle rather than capability-routed
// request dispatch.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/filegrind/jailbridge"
)

// SessionState is a managed plugin process's lifecycle state.
type SessionState string

const (
	StateStarting SessionState = "starting"
	StateRunning  SessionState = "running"
	StateExited   SessionState = "exited"
)

// ManagedPlugin tracks one spawned worker process. Token distinguishes
// this particular spawn from any prior or future process that reuses the
// same plugin ID (a restarted plugin gets a fresh Token).
type ManagedPlugin struct {
	ID        string
	Token     uuid.UUID
	cmd       *exec.Cmd
	state     SessionState
	startedAt time.Time
	exitErr   error
}

// State reports the plugin's current lifecycle state.
func (m *ManagedPlugin) State() SessionState { return m.state }

// ExitErr reports the error cmd.Wait returned, if the process has exited.
func (m *ManagedPlugin) ExitErr() error { return m.exitErr }

// EventType names an admin event raised by the Supervisor.
type EventType string

const (
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"
)

// Event is one admin event: a plugin connecting or disconnecting.
type Event struct {
	Type     EventType
	PluginID string
	Err      error
}

// clientSession tracks one connected client: its registration and the
// workers it owns, keyed by plugin id.
type clientSession struct {
	connected bool
	plugins   map[string]*ManagedPlugin
}

// Supervisor spawns and tracks plugin worker processes, grouped by the
// client session that owns them.
type Supervisor struct {
	mu       sync.Mutex
	plugins  map[string]*ManagedPlugin
	sessions map[string]*clientSession
	events   chan Event
}

// New builds an empty Supervisor.
func New() *Supervisor {
	return &Supervisor{
		plugins:  make(map[string]*ManagedPlugin),
		sessions: make(map[string]*clientSession),
		events:   make(chan Event, 32),
	}
}

// Events returns the channel admin events are published on. It is never
// closed; callers should select on it alongside their own shutdown signal.
func (s *Supervisor) Events() <-chan Event { return s.events }

func (s *Supervisor) sessionLocked(sid string) *clientSession {
	cs, ok := s.sessions[sid]
	if !ok {
		cs = &clientSession{plugins: make(map[string]*ManagedPlugin)}
		s.sessions[sid] = cs
	}
	return cs
}

// Connect records a client session, creating its registration if this is
// the first time sid has been seen. Idempotent: connecting an already
// connected sid just succeeds.
func (s *Supervisor) Connect(sid string) jailbridge.StatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionLocked(sid).connected = true
	return jailbridge.OK()
}

// ResetEngine kills every worker owned by sid (process-tree SIGTERM) but
// keeps sid's client registration, so a subsequent Spawn under the same
// session does not need a fresh Connect.
func (s *Supervisor) ResetEngine(sid string) jailbridge.StatusRecord {
	s.mu.Lock()
	cs, ok := s.sessions[sid]
	if !ok || !cs.connected {
		s.mu.Unlock()
		return jailbridge.Failed(fmt.Sprintf("supervisor: unknown session %s", sid))
	}
	owned := make([]*ManagedPlugin, 0, len(cs.plugins))
	for _, mp := range cs.plugins {
		owned = append(owned, mp)
	}
	cs.plugins = make(map[string]*ManagedPlugin)
	s.mu.Unlock()

	var firstErr error
	for _, mp := range owned {
		if err := s.terminate(mp); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return jailbridge.Failed(firstErr.Error())
	}
	return jailbridge.OK()
}

// GetEngineStatus reports sid's plugin count, the ids of the plugins it
// owns, and this process's own pid as the engine process.
func (s *Supervisor) GetEngineStatus(sid string) jailbridge.StatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[sid]
	if !ok || !cs.connected {
		return jailbridge.Failed(fmt.Sprintf("supervisor: unknown session %s", sid))
	}
	ids := make([]string, 0, len(cs.plugins))
	for id := range cs.plugins {
		ids = append(ids, id)
	}
	return jailbridge.OKWithData(map[string]any{
		"plugin_num":       len(ids),
		"plugin_processes": ids,
		"engine_process":   os.Getpid(),
	})
}

// Disconnect tears down every worker owned by sid and drops its client
// registration entirely.
func (s *Supervisor) Disconnect(sid string) jailbridge.StatusRecord {
	s.mu.Lock()
	cs, ok := s.sessions[sid]
	if !ok {
		s.mu.Unlock()
		return jailbridge.Failed(fmt.Sprintf("supervisor: unknown session %s", sid))
	}
	owned := make([]*ManagedPlugin, 0, len(cs.plugins))
	for _, mp := range cs.plugins {
		owned = append(owned, mp)
	}
	delete(s.sessions, sid)
	s.mu.Unlock()

	var firstErr error
	for _, mp := range owned {
		if err := s.terminate(mp); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return jailbridge.Failed(firstErr.Error())
	}
	return jailbridge.OK()
}

// Spawn starts a worker process for pluginID under session sid and tracks
// it until it exits. The process runs in its own process group so
// Terminate can kill its whole tree, not just the immediate child.
func (s *Supervisor) Spawn(ctx context.Context, sid, pluginID, command string, args, env []string) (*ManagedPlugin, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	if len(env) > 0 {
		cmd.Env = env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	mp := &ManagedPlugin{ID: pluginID, Token: uuid.New(), cmd: cmd, state: StateStarting, startedAt: time.Now()}
	s.mu.Lock()
	s.plugins[pluginID] = mp
	s.sessionLocked(sid).plugins[pluginID] = mp
	s.mu.Unlock()

	if err := cmd.Start(); err != nil {
		s.mu.Lock()
		mp.state = StateExited
		mp.exitErr = err
		s.mu.Unlock()
		return nil, fmt.Errorf("supervisor: starting plugin %s: %w", pluginID, err)
	}

	s.mu.Lock()
	mp.state = StateRunning
	s.mu.Unlock()
	s.emit(Event{Type: EventConnect, PluginID: pluginID})

	go s.awaitExit(mp)
	return mp, nil
}

func (s *Supervisor) awaitExit(mp *ManagedPlugin) {
	err := mp.cmd.Wait()
	s.mu.Lock()
	mp.state = StateExited
	mp.exitErr = err
	s.mu.Unlock()
	s.emit(Event{Type: EventDisconnect, PluginID: mp.ID, Err: err})
}

func (s *Supervisor) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// A full event channel means nobody is listening; admin events
		// are advisory, so this drops rather than blocks process exit.
	}
}

// Terminate sends SIGTERM to a plugin's whole process group. The core
// bridge package never launches processes itself, so process-tree
// termination only exists here, where a supervisor that actually spawned
// the process can do it.
func (s *Supervisor) Terminate(pluginID string) error {
	s.mu.Lock()
	mp, ok := s.plugins[pluginID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: unknown plugin %s", pluginID)
	}
	return s.terminate(mp)
}

func (s *Supervisor) terminate(mp *ManagedPlugin) error {
	if mp.cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(mp.cmd.Process.Pid)
	if err != nil {
		return mp.cmd.Process.Kill()
	}
	return syscall.Kill(-pgid, syscall.SIGTERM)
}

// Status reports a plugin's current lifecycle state.
func (s *Supervisor) Status(pluginID string) (SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mp, ok := s.plugins[pluginID]
	if !ok {
		return "", false
	}
	return mp.state, true
}

// Plugins lists the ids of every plugin this Supervisor has spawned.
func (s *Supervisor) Plugins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.plugins))
	for id := range s.plugins {
		ids = append(ids, id)
	}
	return ids
}
