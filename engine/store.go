package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ortelius/vulnprio/model"
)

// ErrNoSnapshot is returned before the first snapshot has been prepared.
var ErrNoSnapshot = errors.New("no snapshot loaded")

// Source fetches a fresh snapshot of assets and findings.
type Source interface {
	LoadSnapshot(ctx context.Context) (model.Snapshot, error)
}

// Store holds the current prepared snapshot. Readers get whichever snapshot was
// current when they asked and keep using it even if a refresh swaps it out.
type Store struct {
	current atomic.Pointer[Prepared]
}

// Current returns the current prepared snapshot.
func (s *Store) Current() (*Prepared, error) {
	p := s.current.Load()
	if p == nil {
		return nil, ErrNoSnapshot
	}
	return p, nil
}

// Swap installs p and returns the snapshot it replaced, nil on first use.
func (s *Store) Swap(p *Prepared) *Prepared {
	return s.current.Swap(p)
}

// Refresh loads a snapshot from src, prepares it and swaps it in. On error the
// current snapshot stays in place.
func (e *Engine) Refresh(ctx context.Context, src Source, store *Store) (*Prepared, error) {
	snap, err := src.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	p, err := e.Prepare(ctx, snap)
	if err != nil {
		return nil, err
	}
	store.Swap(p)
	return p, nil
}
