package scanmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"

	"attendance/entity"
	"attendance/metrics"
)

// DefaultKey names the persisted set. Bump the version suffix when the
// stored format changes.
const DefaultKey = "scan-memory.v1"

type Persister interface {
	Load(ctx context.Context) ([]string, error)
	// Save persists the set after added joined it. all is the full set.
	Save(ctx context.Context, added string, all []string) error
	Clear(ctx context.Context) error
}

// Store remembers purchases that were seen checked in. The set only grows;
// entries disappear only through Invalidate.
type Store struct {
	persister Persister

	mu  sync.RWMutex
	ids map[string]struct{}

	// flushMu orders writes to the persister so the last flush always
	// carries the full set.
	flushMu sync.Mutex

	now func() time.Time
}

// NewStore loads the persisted set once.
func NewStore(ctx context.Context, persister Persister) (*Store, error) {
	if persister == nil {
		panic("missing persister")
	}

	ids, err := persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load scan memory: %w", err)
	}

	s := &Store{
		persister: persister,
		ids:       make(map[string]struct{}, len(ids)),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}

	log.FromContext(ctx).WithField("entries", len(ids)).Debug("Scan memory loaded")

	return s, nil
}

func (s *Store) Has(purchaseID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.ids[purchaseID]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.ids)
}

// Record adds the purchase to the set and flushes it. It reports whether the
// purchase was new. A failed flush keeps the in-memory entry.
func (s *Store) Record(ctx context.Context, purchaseID string) (bool, error) {
	if purchaseID == "" {
		return false, nil
	}

	s.mu.Lock()
	if _, ok := s.ids[purchaseID]; ok {
		s.mu.Unlock()
		return false, nil
	}
	s.ids[purchaseID] = struct{}{}
	s.mu.Unlock()

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if err := s.persister.Save(ctx, purchaseID, s.snapshot()); err != nil {
		metrics.ScanMemoryFlushFailures.Inc()
		return true, fmt.Errorf("could not persist scan memory entry %s: %w", purchaseID, err)
	}

	return true, nil
}

// Reconcile forces every remembered purchase of the view to checked in,
// whatever the authoritative read returned for it.
func (s *Store) Reconcile(view entity.EventView) entity.EventView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	for id, purchase := range view.Purchases {
		if _, ok := s.ids[id]; !ok {
			continue
		}
		purchase.MarkCheckedIn(now)
		view.Purchases[id] = purchase
	}

	return view
}

// Invalidate drops every entry, in memory and persisted.
func (s *Store) Invalidate(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	s.ids = map[string]struct{}{}
	s.mu.Unlock()

	if err := s.persister.Clear(ctx); err != nil {
		return fmt.Errorf("could not clear scan memory: %w", err)
	}

	log.FromContext(ctx).Info("Scan memory invalidated")
	return nil
}

func (s *Store) snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
