// Package profile keeps a player's cumulative win/loss/tie counters.
package profile

import (
	"context"
	"sync"

	"github.com/DoyleJ11/rps-lan/internal/engine"
)

// Memory is a process-local profile. Counters are lost on exit.
type Memory struct {
	username string

	mu    sync.Mutex
	tally engine.Tally
}

func NewMemory(username string) *Memory {
	return &Memory{username: username}
}

func (m *Memory) CurrentUsername() string { return m.username }

func (m *Memory) RecordOutcome(_ context.Context, delta engine.Tally) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tally = m.tally.Add(delta)
	return nil
}

func (m *Memory) Tally(_ context.Context) (engine.Tally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tally, nil
}
