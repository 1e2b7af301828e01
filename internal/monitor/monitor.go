// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package monitor tracks reachability of the active Ollama backend.
//
// The monitor probes the backend on a fixed interval and on demand, and
// pushes state transitions to a subscriber callback. The chat pipeline can
// flip the state to disconnected immediately when a request fails, so the
// UI never waits a full poll cycle to learn the backend is gone.
package monitor

import (
	"context"
	"sync"
	"time"
)

// State is the connectivity state of the active backend.
type State int

const (
	// StateUnknown means no probe has completed yet, or there is no
	// active backend to probe.
	StateUnknown State = iota
	StateConnected
	StateDisconnected
)

// String returns a display name for the state.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// DefaultInterval is the poll period between background probes.
const DefaultInterval = 30 * time.Second

// ProbeFunc checks the backend, returning nil when it is reachable. The
// probe is expected to bound its own timeout.
type ProbeFunc func(ctx context.Context) error

// Monitor polls the active backend and reports state changes. Safe for
// concurrent use.
type Monitor struct {
	mu       sync.Mutex
	state    State
	probe    ProbeFunc
	onChange func(State)

	interval time.Duration
	checkCh  chan struct{}
}

// New creates a monitor. onChange is invoked on every state transition
// (never for a repeat of the current state); it may be nil.
func New(onChange func(State)) *Monitor {
	return &Monitor{
		state:    StateUnknown,
		onChange: onChange,
		interval: DefaultInterval,
		checkCh:  make(chan struct{}, 1),
	}
}

// NewWithInterval creates a monitor with a custom poll period, used by
// tests and by config overrides.
func NewWithInterval(onChange func(State), interval time.Duration) *Monitor {
	m := New(onChange)
	if interval > 0 {
		m.interval = interval
	}
	return m
}

// State returns the current connectivity state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetProbe swaps the probe, typically on backend-config change, and
// schedules an immediate re-check. A nil probe means no active backend
// and resets the state to unknown.
func (m *Monitor) SetProbe(probe ProbeFunc) {
	m.mu.Lock()
	m.probe = probe
	m.mu.Unlock()

	if probe == nil {
		m.setState(StateUnknown)
		return
	}
	m.requestCheck()
}

// ForceCheck schedules an immediate probe outside the regular poll cycle.
// Non-blocking; coalesces with an already pending request.
func (m *Monitor) ForceCheck() {
	m.requestCheck()
}

// MarkDisconnected flips the state to disconnected immediately, used when
// a chat request fails at the connection level.
func (m *Monitor) MarkDisconnected() {
	m.setState(StateDisconnected)
}

// Run polls until the context is cancelled. Call in a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		case <-m.checkCh:
			m.check(ctx)
		}
	}
}

// check runs one probe and applies the result.
func (m *Monitor) check(ctx context.Context) {
	m.mu.Lock()
	probe := m.probe
	m.mu.Unlock()

	if probe == nil {
		m.setState(StateUnknown)
		return
	}

	if err := probe(ctx); err != nil {
		m.setState(StateDisconnected)
		return
	}
	m.setState(StateConnected)
}

// requestCheck queues a probe without blocking the caller.
func (m *Monitor) requestCheck() {
	select {
	case m.checkCh <- struct{}{}:
	default:
	}
}

// setState applies a transition and notifies the subscriber.
func (m *Monitor) setState(next State) {
	m.mu.Lock()
	if m.state == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
}
