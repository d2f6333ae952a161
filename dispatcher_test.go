package jailbridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureTransport struct {
	mu  sync.Mutex
	out []Envelope
}

func (c *captureTransport) record(env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, env)
}

func (c *captureTransport) last() (Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.out) == 0 {
		return Envelope{}, false
	}
	return c.out[len(c.out)-1], true
}

func newDispatchedSession(capture *captureTransport) (*Session, *Dispatcher, context.CancelFunc) {
	session := NewSession(capture.record)
	dispatcher := NewDispatcher(session, 2)
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher.Start(ctx)
	return session, dispatcher, cancel
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestDispatcherMethodCallResolves(t *testing.T) {
	capture := &captureTransport{}
	session, dispatcher, cancel := newDispatchedSession(capture)
	defer cancel()

	require.NoError(t, session.Registry.SetInterface([]APIEntry{
		{Name: "add", Value: NewCallable(func(args []any) (any, error) {
			a := args[0].(float64)
			b := args[1].(float64)
			return a + b, nil
		})},
	}))

	argsEnc, err := session.Encode([]any{float64(2), float64(3)})
	require.NoError(t, err)

	var resolved any
	var resolveMu sync.Mutex
	resolve := NewCallable(func(args []any) (any, error) {
		resolveMu.Lock()
		defer resolveMu.Unlock()
		if len(args) > 0 {
			resolved = args[0]
		}
		return nil, nil
	})
	resolveID := session.Store().Put(resolve)
	rejectID := session.Store().Put(NewCallable(func(args []any) (any, error) { return nil, nil }))

	dispatcher.Submit(Envelope{
		Type: EnvMethod,
		Name: "add",
		Args: &Wrapped{Args: argsEnc},
		Promise: &Wrapped{Args: Encoded{Array: []Encoded{
			{Leaf: &Leaf{Kind: JailCallback, Value: "f", Num: &resolveID}},
			{Leaf: &Leaf{Kind: JailCallback, Value: "f", Num: &rejectID}},
		}}},
	})

	// The promise pair names the caller's callables, so the reply is an
	// outbound "callback" envelope addressed to the resolve id.
	waitForCondition(t, time.Second, func() bool {
		env, ok := capture.last()
		return ok && env.Type == EnvCallback
	})
	env, _ := capture.last()
	require.NotNil(t, env.Num)
	assert.Equal(t, resolveID, *env.Num)
	require.NotNil(t, env.Args)
	resolved, err = session.Decode(env.Args.Args, DecodeContext{})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(5)}, resolved)
}

func TestDispatcherExecuteIsIdempotent(t *testing.T) {
	capture := &captureTransport{}
	session := NewSession(capture.record)
	runCount := 0
	dispatcher := NewDispatcher(session, 1, WithExecuteHook(func(code string) error {
		runCount++
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	dispatcher.Submit(Envelope{Type: EnvExecute, Code: "setup()"})
	dispatcher.Submit(Envelope{Type: EnvExecute, Code: "setup()"})

	waitForCondition(t, time.Second, func() bool {
		capture.mu.Lock()
		defer capture.mu.Unlock()
		return len(capture.out) >= 2
	})
	assert.Equal(t, 1, runCount)

	capture.mu.Lock()
	defer capture.mu.Unlock()
	for _, env := range capture.out {
		assert.Equal(t, EnvExecuteSuccess, env.Type)
	}
}

func TestDispatcherDisconnectRunsExitAndHook(t *testing.T) {
	capture := &captureTransport{}
	session := NewSession(capture.record)
	exitRan := false
	require.NoError(t, session.Registry.SetInterface([]APIEntry{
		{Name: "exit", Value: NewCallable(func(args []any) (any, error) {
			exitRan = true
			return nil, nil
		})},
	}))

	disconnected := make(chan struct{})
	dispatcher := NewDispatcher(session, 1, WithDisconnectHook(func() { close(disconnected) }))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	dispatcher.Submit(Envelope{Type: EnvDisconnect})

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("disconnect hook never ran")
	}
	assert.True(t, exitRan)
}

func TestDispatcherImportRepliesWithImportSuccess(t *testing.T) {
	capture := &captureTransport{}
	_, dispatcher, cancel := newDispatchedSession(capture)
	defer cancel()

	dispatcher.Submit(Envelope{Type: EnvImport, URL: "https://example.com/plugin.js"})

	waitForCondition(t, time.Second, func() bool {
		env, ok := capture.last()
		return ok && env.Type == EnvImportSuccess
	})
	env, ok := capture.last()
	require.True(t, ok)
	assert.Equal(t, EnvImportSuccess, env.Type)
	assert.Equal(t, "https://example.com/plugin.js", env.URL)
}

func TestDispatcherUnregisteredMethodRejectsPromise(t *testing.T) {
	capture := &captureTransport{}
	session, dispatcher, cancel := newDispatchedSession(capture)
	defer cancel()

	rejectID := session.Store().Put(NewCallable(func(args []any) (any, error) { return nil, nil }))
	resolveID := session.Store().Put(NewCallable(func(args []any) (any, error) { return nil, nil }))

	dispatcher.Submit(Envelope{
		Type: EnvMethod,
		Name: "does_not_exist",
		Promise: &Wrapped{Args: Encoded{Array: []Encoded{
			{Leaf: &Leaf{Kind: JailCallback, Value: "f", Num: &resolveID}},
			{Leaf: &Leaf{Kind: JailCallback, Value: "f", Num: &rejectID}},
		}}},
	})

	// The reject half of the caller's promise pair is invoked through an
	// outbound "callback" envelope addressed to the reject id.
	waitForCondition(t, time.Second, func() bool {
		env, ok := capture.last()
		return ok && env.Type == EnvCallback
	})
	env, _ := capture.last()
	require.NotNil(t, env.Num)
	assert.Equal(t, rejectID, *env.Num)
	require.NotNil(t, env.Args)
	decoded, err := session.Decode(env.Args.Args, DecodeContext{})
	require.NoError(t, err)
	rejected, ok := decoded.([]any)
	require.True(t, ok)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].(string), "does_not_exist")
}
