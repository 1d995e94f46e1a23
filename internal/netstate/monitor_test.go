package netstate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetNotifiesOnTransitionOnly(t *testing.T) {
	m := NewMonitor(true, nil)
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Set(true)
	select {
	case v := <-ch:
		t.Fatalf("unexpected notification %v", v)
	default:
	}

	m.Set(false)
	assert.False(t, <-ch)
	assert.False(t, m.Online())

	m.Set(true)
	assert.True(t, <-ch)
}

func TestSlowSubscriberSeesLatest(t *testing.T) {
	m := NewMonitor(true, nil)
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Set(false)
	m.Set(true)
	m.Set(false)

	assert.False(t, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("expected a single pending transition, got extra %v", v)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := NewMonitor(false, nil)
	ch, cancel := m.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	m.Set(true) // must not panic on the closed channel
}

type flakyProber struct {
	fail atomic.Bool
}

func (p *flakyProber) Ping(context.Context) error {
	if p.fail.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestRunProbes(t *testing.T) {
	m := NewMonitor(true, nil)
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	p := &flakyProber{}
	p.fail.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, p, 10*time.Millisecond)
		close(done)
	}()

	select {
	case v := <-ch:
		assert.False(t, v)
	case <-time.After(time.Second):
		t.Fatal("no offline transition")
	}

	p.fail.Store(false)
	select {
	case v := <-ch:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("no online transition")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "Run did not return after cancel")
	}
}
