package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"certexport/internal/certificate/models"
	"certexport/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded token store for tests and single-node runs.
type InMemory struct {
	mu     sync.RWMutex
	tokens map[string]models.Token
}

// NewInMemory creates an empty in-memory certificate store.
func NewInMemory() *InMemory {
	return &InMemory{tokens: make(map[string]models.Token)}
}

// Save inserts or replaces the token under its UVCI.
func (s *InMemory) Save(_ context.Context, tok models.Token) error {
	id := tok.ID()
	if id == "" {
		return fmt.Errorf("save certificate: %w", sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[id] = tok
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id string) (models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[id]
	if !ok {
		return models.Token{}, sentinel.ErrNotFound
	}
	return tok, nil
}

func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.tokens, id)
	return nil
}

// ListByTemplateType returns the sorted IDs of tokens with at least one
// entry of the given type.
func (s *InMemory) ListByTemplateType(_ context.Context, t models.TemplateType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, tok := range s.tokens {
		if slices.Contains(entryTypes(tok), string(t)) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}
