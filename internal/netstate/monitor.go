// Package netstate tracks whether the remote service is reachable and
// broadcasts transitions to subscribers.
package netstate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultProbeInterval = 30 * time.Second

// Prober checks reachability. remote.Client satisfies it via Ping.
type Prober interface {
	Ping(ctx context.Context) error
}

type Monitor struct {
	logger *zap.Logger

	mu     sync.Mutex
	online bool
	subs   map[int]chan bool
	nextID int
}

// NewMonitor starts in the given state.
func NewMonitor(online bool, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{logger: logger, online: online, subs: make(map[int]chan bool)}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the current state and notifies subscribers if it changed.
// A subscriber that has not consumed the previous transition only sees the
// latest one.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return
	}
	m.online = online
	m.logger.Info("network reachability changed", zap.Bool("online", online))

	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
}

// Subscribe returns a channel that receives reachability transitions and a
// func that unsubscribes and closes it.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	ch := make(chan bool, 1)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

// Run probes p every interval until ctx is cancelled, starting immediately.
func (m *Monitor) Run(ctx context.Context, p Prober, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	m.probe(ctx, p, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx, p, interval)
		}
	}
}

func (m *Monitor) probe(ctx context.Context, p Prober, timeout time.Duration) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := p.Ping(pctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.logger.Debug("reachability probe failed", zap.Error(err))
	}
	m.Set(err == nil)
}
