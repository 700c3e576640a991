// Package network tracks whether the remote side is reachable.
package network

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// Listener is called with the new state on every online/offline transition
type Listener func(online bool)

// Config holds configuration for the connectivity probe
type Config struct {
	ProbeURL      string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	// InitialOnline is the state assumed before the first probe
	InitialOnline bool
}

// Monitor holds the current connectivity flag
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	listeners []Listener

	probeURL string
	interval time.Duration
	client   *http.Client

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a new Monitor
func NewMonitor(config Config) *Monitor {
	interval := config.ProbeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := config.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Monitor{
		online:   config.InitialOnline,
		probeURL: config.ProbeURL,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		stopCh:   make(chan struct{}),
	}
}

// Online reports the current connectivity state
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// OnChange registers a listener for transitions
func (m *Monitor) OnChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// SetOnline updates the state and notifies listeners when it changed.
// It returns true when the call caused a transition.
func (m *Monitor) SetOnline(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if online {
		log.Println("[network] connection restored")
	} else {
		log.Println("[network] connection lost, working offline")
	}

	for _, l := range listeners {
		l(online)
	}
	return true
}

// Start probes the configured URL periodically. Without a probe URL the state
// only changes through SetOnline.
func (m *Monitor) Start(ctx context.Context) {
	if m.probeURL == "" {
		return
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.SetOnline(m.Probe(ctx))

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.SetOnline(m.Probe(ctx))
			}
		}
	}()
}

// Stop stops the probe loop
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
}

// Probe sends a HEAD request to the probe URL; any response below 500 counts as online
func (m *Monitor) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		log.Printf("[network] invalid probe URL %q: %v", m.probeURL, err)
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
