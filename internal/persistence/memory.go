package persistence

import (
	"context"
	"encoding/json"
	"sync"

	"roleplay-chat/core/internal/models"
)

// MemorySlot is an in-process slot used by tests and ephemeral sessions.
// State is deep-copied through JSON on both paths so callers never share
// slices with the slot.
type MemorySlot struct {
	mu        sync.Mutex
	data      []byte
	saveCalls int
	failWith  error
}

// NewMemorySlot creates an empty in-memory slot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

// FailWith makes every subsequent Save return err. Pass nil to heal.
func (s *MemorySlot) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// SaveCalls reports how many times Save has been invoked.
func (s *MemorySlot) SaveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCalls
}

func (s *MemorySlot) Load(_ context.Context) (*models.StoreState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, nil
	}
	var state models.StoreState
	if err := json.Unmarshal(s.data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *MemorySlot) Save(_ context.Context, state *models.StoreState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.failWith != nil {
		return s.failWith
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.data = data
	return nil
}
