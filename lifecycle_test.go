package jailbridge

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanTransport is an in-memory Transport for tests: Emit pushes onto out,
// Recv pulls from in.
type chanTransport struct {
	in  chan Envelope
	out chan Envelope

	mu     sync.Mutex
	closed bool
}

func newChanTransport() *chanTransport {
	return &chanTransport{in: make(chan Envelope, 16), out: make(chan Envelope, 16)}
}

func (c *chanTransport) Emit(env Envelope) error {
	c.out <- env
	return nil
}

func (c *chanTransport) Recv(ctx context.Context) (Envelope, error) {
	select {
	case env, ok := <-c.in:
		if !ok {
			return Envelope{}, context.Canceled
		}
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (c *chanTransport) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.in)
	}
	return nil
}

func TestLifecycleEmitsInitializedAndExitsOnDisconnect(t *testing.T) {
	transport := newChanTransport()
	session := NewSession(nil)

	exitCode := -1
	exitCh := make(chan int, 1)
	lifecycle := NewLifecycle(session, transport, WithExitFunc(func(code int) {
		exitCode = code
		exitCh <- code
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = lifecycle.Run(ctx) }()

	select {
	case env := <-transport.out:
		assert.Equal(t, EnvInitialized, env.Type)
	case <-time.After(time.Second):
		t.Fatal("initialized envelope never sent")
	}

	transport.in <- Envelope{Type: EnvDisconnect}

	select {
	case code := <-exitCh:
		assert.Equal(t, 0, code)
	case <-time.After(time.Second):
		t.Fatal("exit func never called")
	}
	assert.Equal(t, 0, exitCode)
}

func TestLifecycleDaemonSurvivesDisconnect(t *testing.T) {
	transport := newChanTransport()
	session := NewSession(nil)

	exitCalled := false
	lifecycle := NewLifecycle(session, transport,
		WithDaemon(true),
		WithExitFunc(func(code int) { exitCalled = true }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = lifecycle.Run(ctx) }()

	select {
	case <-transport.out:
	case <-time.After(time.Second):
		t.Fatal("initialized envelope never sent")
	}

	transport.in <- Envelope{Type: EnvDisconnect}
	time.Sleep(50 * time.Millisecond)
	assert.False(t, exitCalled)
}

func TestLifecycleExitMethodTerminatesProcess(t *testing.T) {
	transport := newChanTransport()
	session := NewSession(nil)
	require.NoError(t, session.Registry.SetInterface([]APIEntry{}))

	exitCh := make(chan int, 1)
	lifecycle := NewLifecycle(session, transport, WithExitFunc(func(code int) { exitCh <- code }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = lifecycle.Run(ctx) }()

	select {
	case <-transport.out:
	case <-time.After(time.Second):
		t.Fatal("initialized envelope never sent")
	}

	lifecycle.Dispatcher().Submit(Envelope{Type: EnvMethod, Name: "exit"})

	select {
	case code := <-exitCh:
		assert.Equal(t, 0, code)
	case <-time.After(time.Second):
		t.Fatal("calling exit directly never terminated the process")
	}
}

func TestLifecycleDaemonSurvivesTransportError(t *testing.T) {
	transport := newChanTransport()
	session := NewSession(nil)

	exitCalled := false
	lifecycle := NewLifecycle(session, transport,
		WithDaemon(true),
		WithExitFunc(func(code int) { exitCalled = true }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- lifecycle.Run(ctx) }()

	select {
	case <-transport.out:
	case <-time.After(time.Second):
		t.Fatal("initialized envelope never sent")
	}

	// Simulate a real transport failure, not an EnvDisconnect envelope:
	// closing the peer's read side out from under Recv.
	close(transport.in)

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run never returned after transport loss")
	}
	assert.False(t, exitCalled)
}

func TestLifecycleWorkDirCreatedAndEntered(t *testing.T) {
	dir := t.TempDir() + "/plugin-work"
	transport := newChanTransport()
	session := NewSession(nil)
	lifecycle := NewLifecycle(session, transport, WithLifecycleWorkDir(dir), WithExitFunc(func(int) {}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = lifecycle.Run(ctx) }()
	defer cancel()

	select {
	case <-transport.out:
	case <-time.After(time.Second):
		t.Fatal("initialized envelope never sent")
	}

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Contains(t, wd, "plugin-work")
}
