package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"attendance/entity"
)

// EventsRepository keeps events in memory.
type EventsRepository struct {
	mu     sync.Mutex
	events map[string]entity.Event

	GetFunc func(ctx context.Context, eventID string) (entity.Event, error)
}

func NewEventsRepository(events ...entity.Event) *EventsRepository {
	r := &EventsRepository{events: make(map[string]entity.Event)}
	for _, e := range events {
		r.events[e.ID] = e
	}
	return r
}

func (r *EventsRepository) Add(_ context.Context, event entity.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.ID]; !ok {
		r.events[event.ID] = event
	}
	return nil
}

func (r *EventsRepository) Get(ctx context.Context, eventID string) (entity.Event, error) {
	if r.GetFunc != nil {
		return r.GetFunc(ctx, eventID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok {
		return entity.Event{}, fmt.Errorf("event %s: %w", eventID, entity.ErrNotFound)
	}
	return e, nil
}

// CountersRepository keeps event counters in memory.
type CountersRepository struct {
	mu       sync.Mutex
	counters map[string]entity.EventCounter

	GetFunc func(ctx context.Context, eventID string) (entity.EventCounter, error)
}

func NewCountersRepository() *CountersRepository {
	return &CountersRepository{counters: make(map[string]entity.EventCounter)}
}

func (r *CountersRepository) Set(_ context.Context, counter entity.EventCounter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[counter.EventID] = counter
	return nil
}

func (r *CountersRepository) Get(ctx context.Context, eventID string) (entity.EventCounter, error) {
	if r.GetFunc != nil {
		return r.GetFunc(ctx, eventID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[eventID]
	if !ok {
		return entity.EventCounter{}, fmt.Errorf("counter of event %s: %w", eventID, entity.ErrNotFound)
	}
	return c, nil
}

// TiersRepository keeps ticket tiers in memory.
type TiersRepository struct {
	mu    sync.Mutex
	tiers map[string]entity.TicketTier

	ListByEventFunc func(ctx context.Context, eventID string) ([]entity.TicketTier, error)
	OnChange        func(change entity.RowChange)
}

func NewTiersRepository(tiers ...entity.TicketTier) *TiersRepository {
	r := &TiersRepository{tiers: make(map[string]entity.TicketTier)}
	for _, t := range tiers {
		r.tiers[t.ID] = t
	}
	return r
}

func (r *TiersRepository) Upsert(_ context.Context, tier entity.TicketTier) error {
	r.mu.Lock()
	_, exists := r.tiers[tier.ID]
	r.tiers[tier.ID] = tier
	onChange := r.OnChange
	r.mu.Unlock()

	op := entity.OperationInsert
	if exists {
		op = entity.OperationUpdate
	}
	if onChange != nil {
		onChange(entity.NewTicketTierChange(op, tier))
	}
	return nil
}

func (r *TiersRepository) Get(_ context.Context, tierID string) (entity.TicketTier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tiers[tierID]
	if !ok {
		return entity.TicketTier{}, fmt.Errorf("tier %s: %w", tierID, entity.ErrNotFound)
	}
	return t, nil
}

func (r *TiersRepository) ListByEvent(ctx context.Context, eventID string) ([]entity.TicketTier, error) {
	if r.ListByEventFunc != nil {
		return r.ListByEventFunc(ctx, eventID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var tiers []entity.TicketTier
	for _, t := range r.tiers {
		if t.EventID == eventID {
			tiers = append(tiers, t)
		}
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].ID < tiers[j].ID })
	return tiers, nil
}

// PurchasesRepository keeps purchases in memory.
type PurchasesRepository struct {
	mu        sync.Mutex
	purchases map[string]entity.Purchase

	ListByEventFunc func(ctx context.Context, eventID string) ([]entity.Purchase, error)
	OnChange        func(change entity.RowChange)
}

func NewPurchasesRepository(purchases ...entity.Purchase) *PurchasesRepository {
	r := &PurchasesRepository{purchases: make(map[string]entity.Purchase)}
	for _, p := range purchases {
		r.purchases[p.ID] = p
	}
	return r
}

func (r *PurchasesRepository) Add(_ context.Context, purchase entity.Purchase) error {
	r.mu.Lock()
	if _, ok := r.purchases[purchase.ID]; ok {
		r.mu.Unlock()
		return nil
	}
	r.purchases[purchase.ID] = purchase
	onChange := r.OnChange
	r.mu.Unlock()

	if onChange != nil {
		onChange(entity.NewPurchaseChange(entity.OperationInsert, purchase))
	}
	return nil
}

func (r *PurchasesRepository) Get(_ context.Context, purchaseID string) (entity.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[purchaseID]
	if !ok {
		return entity.Purchase{}, fmt.Errorf("purchase %s: %w", purchaseID, entity.ErrNotFound)
	}
	return p, nil
}

func (r *PurchasesRepository) ListByEvent(ctx context.Context, eventID string) ([]entity.Purchase, error) {
	if r.ListByEventFunc != nil {
		return r.ListByEventFunc(ctx, eventID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var purchases []entity.Purchase
	for _, p := range r.purchases {
		if p.EventID == eventID {
			purchases = append(purchases, p)
		}
	}
	sort.Slice(purchases, func(i, j int) bool { return purchases[i].ID < purchases[j].ID })
	return purchases, nil
}
