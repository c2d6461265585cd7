package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff() BackoffConfig {
	return BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}
}

func TestReconnectorRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	reconnected := make(chan struct{})

	r := NewReconnector(func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("refused")
		}
		return nil
	}, ReconnectConfig{
		Backoff:       fastBackoff(),
		OnReconnected: func() { close(reconnected) },
	})
	defer r.Close()

	r.Trigger()

	select {
	case <-reconnected:
	case <-time.After(time.Second):
		t.Fatal("never reconnected")
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Eventually(t, func() bool { return !r.Running() }, time.Second, time.Millisecond)
	assert.Equal(t, 0, r.Attempts())
}

func TestReconnectorGivesUp(t *testing.T) {
	var calls atomic.Int32
	gaveUp := make(chan error, 1)
	cause := errors.New("refused")

	r := NewReconnector(func(ctx context.Context) error {
		calls.Add(1)
		return cause
	}, ReconnectConfig{
		Backoff:     fastBackoff(),
		MaxAttempts: 3,
		OnGiveUp:    func(err error) { gaveUp <- err },
	})
	defer r.Close()

	r.Trigger()

	select {
	case err := <-gaveUp:
		assert.ErrorIs(t, err, ErrGaveUp)
		assert.ErrorIs(t, err, cause)
	case <-time.After(time.Second):
		t.Fatal("never gave up")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestReconnectorTriggerCoalesces(t *testing.T) {
	var attempts atomic.Int32
	r := NewReconnector(func(ctx context.Context) error {
		return nil
	}, ReconnectConfig{
		Backoff:   BackoffConfig{Initial: 50 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2},
		OnAttempt: func(int, time.Duration) { attempts.Add(1) },
	})
	defer r.Close()

	r.Trigger()
	r.Trigger()
	r.Trigger()
	require.True(t, r.Running())

	assert.Eventually(t, func() bool { return !r.Running() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestReconnectorCancelAndClose(t *testing.T) {
	var calls atomic.Int32
	r := NewReconnector(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, ReconnectConfig{
		Backoff: BackoffConfig{Initial: time.Hour, Max: time.Hour, Multiplier: 2},
	})

	r.Trigger()
	r.Cancel()
	assert.Eventually(t, func() bool { return !r.Running() }, time.Second, time.Millisecond)

	r.Trigger()
	done := make(chan struct{})
	go func() {
		r.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}

	r.Trigger()
	assert.False(t, r.Running())
	assert.Equal(t, int32(0), calls.Load())
}
