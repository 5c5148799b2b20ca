// Package draft keeps each terminal session's unfinished sale so it survives a
// page reload or a moved terminal.
package draft

import (
	"context"
	"sync"

	"bakerypos/backend/internal/domain"
)

type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]domain.Draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: map[string]domain.Draft{}}
}

func (s *MemoryStore) Load(_ context.Context, session string) (domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return normalize(cloneDraft(s.drafts[session])), nil
}

func (s *MemoryStore) Save(_ context.Context, session string, d domain.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drafts[session] = cloneDraft(d)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.drafts, session)
	return nil
}

func cloneDraft(d domain.Draft) domain.Draft {
	d.Cart = append([]domain.CartLine(nil), d.Cart...)
	return d
}

// normalize fills the defaults a fresh terminal starts with.
func normalize(d domain.Draft) domain.Draft {
	if d.Cart == nil {
		d.Cart = []domain.CartLine{}
	}
	if d.Mode == "" {
		d.Mode = domain.ModeQuick
	}
	if d.Handover == "" {
		d.Handover = domain.HandoverNow
	}
	if d.Payment.Type == "" {
		d.Payment.Type = domain.PaymentCash
	}
	return d
}
