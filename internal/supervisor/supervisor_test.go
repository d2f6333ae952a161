package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnTracksLifecycleAndEmitsEvents(t *testing.T) {
	s := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mp, err := s.Spawn(ctx, "session-a", "plugin-a", "sh", []string{"-c", "exit 0"}, nil)
	require.NoError(t, err)
	require.NotNil(t, mp)
	assert.NotEqual(t, uuid.Nil, mp.Token)

	var sawConnect, sawDisconnect bool
	deadline := time.After(2 * time.Second)
	for !sawConnect || !sawDisconnect {
		select {
		case ev := <-s.Events():
			switch ev.Type {
			case EventConnect:
				sawConnect = true
			case EventDisconnect:
				sawDisconnect = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for lifecycle events")
		}
	}

	state, ok := s.Status("plugin-a")
	require.True(t, ok)
	assert.Equal(t, StateExited, state)
}

func TestStatusUnknownPlugin(t *testing.T) {
	s := New()
	_, ok := s.Status("missing")
	assert.False(t, ok)
}

func TestTerminateUnknownPluginErrors(t *testing.T) {
	s := New()
	err := s.Terminate("missing")
	assert.Error(t, err)
}

func TestConnectIsIdempotent(t *testing.T) {
	s := New()
	assert.True(t, s.Connect("session-a").Success)
	assert.True(t, s.Connect("session-a").Success)
}

func TestGetEngineStatusUnknownSessionFails(t *testing.T) {
	s := New()
	rec := s.GetEngineStatus("missing")
	assert.False(t, rec.Success)
	assert.NotEmpty(t, rec.Error)
}

func TestGetEngineStatusReportsOwnedPlugins(t *testing.T) {
	s := New()
	s.Connect("session-a")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.Spawn(ctx, "session-a", "plugin-a", "sh", []string{"-c", "sleep 5"}, nil)
	require.NoError(t, err)

	rec := s.GetEngineStatus("session-a")
	require.True(t, rec.Success)
	assert.EqualValues(t, 1, rec.Data["plugin_num"])
	assert.Contains(t, rec.Data["plugin_processes"], "plugin-a")
	assert.NotZero(t, rec.Data["engine_process"])

	require.True(t, s.Disconnect("session-a").Success)
}

func TestResetEngineKillsWorkersButKeepsSession(t *testing.T) {
	s := New()
	s.Connect("session-a")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.Spawn(ctx, "session-a", "plugin-a", "sh", []string{"-c", "sleep 5"}, nil)
	require.NoError(t, err)

	rec := s.ResetEngine("session-a")
	assert.True(t, rec.Success)

	status := s.GetEngineStatus("session-a")
	require.True(t, status.Success)
	assert.EqualValues(t, 0, status.Data["plugin_num"])
}

func TestDisconnectDropsSessionRegistration(t *testing.T) {
	s := New()
	s.Connect("session-a")
	require.True(t, s.Disconnect("session-a").Success)

	rec := s.GetEngineStatus("session-a")
	assert.False(t, rec.Success)
}

func TestResetEngineUnknownSessionFails(t *testing.T) {
	s := New()
	rec := s.ResetEngine("missing")
	assert.False(t, rec.Success)
}
