package jailbridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromiseResolve(t *testing.T) {
	p, resolve, _ := NewPromisePair()
	assert.False(t, p.Fulfilled())

	_, err := resolve.Call([]any{"ok"})
	require.NoError(t, err)
	assert.True(t, p.Fulfilled())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	val, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
}

func TestPromiseReject(t *testing.T) {
	p, _, reject := NewPromisePair()
	_, err := reject.Call([]any{"boom"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, waitErr := p.Wait(ctx)
	assert.EqualError(t, waitErr, "boom")
}

func TestPromiseSecondFulfillmentIgnored(t *testing.T) {
	p, resolve, reject := NewPromisePair()
	_, _ = resolve.Call([]any{"first"})
	_, _ = reject.Call([]any{"second"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	val, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", val)
}

func TestPromiseWaitCancelled(t *testing.T) {
	p, _, _ := NewPromisePair()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
