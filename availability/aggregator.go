package availability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"attendance/entity"
	"attendance/metrics"
)

type EventsRepository interface {
	Get(ctx context.Context, eventID string) (entity.Event, error)
}

type TicketTiersRepository interface {
	ListByEvent(ctx context.Context, eventID string) ([]entity.TicketTier, error)
}

type CountersRepository interface {
	Get(ctx context.Context, eventID string) (entity.EventCounter, error)
}

// Aggregator reads every availability source of an event independently. A
// failed or slow source is skipped, it never fails the whole read.
type Aggregator struct {
	eventsRepo   EventsRepository
	tiersRepo    TicketTiersRepository
	countersRepo CountersRepository
	timeout      time.Duration
}

func NewAggregator(
	eventsRepo EventsRepository,
	tiersRepo TicketTiersRepository,
	countersRepo CountersRepository,
	timeout time.Duration,
) *Aggregator {
	if eventsRepo == nil {
		panic("missing eventsRepo")
	}
	if tiersRepo == nil {
		panic("missing tiersRepo")
	}
	if countersRepo == nil {
		panic("missing countersRepo")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Aggregator{
		eventsRepo:   eventsRepo,
		tiersRepo:    tiersRepo,
		countersRepo: countersRepo,
		timeout:      timeout,
	}
}

// Collect returns whatever sources could be read. The error wraps
// entity.ErrSourceUnavailable and is only returned when no source at all
// could be read.
func (a *Aggregator) Collect(ctx context.Context, eventID string) (entity.AvailabilitySources, error) {
	ctx, span := otel.Tracer("availability").Start(ctx, "availability.Collect")
	span.SetAttributes(attribute.String("event_id", eventID))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		sources entity.AvailabilitySources
		mu      sync.Mutex
		errs    []error
		g       errgroup.Group
	)

	failed := func(source string, err error) {
		metrics.SourceReadFailures.WithLabelValues(source).Inc()
		log.FromContext(ctx).WithError(err).WithFields(logrus.Fields{
			"event_id": eventID,
			"source":   source,
		}).Warn("Availability source unavailable, skipping")

		mu.Lock()
		errs = append(errs, fmt.Errorf("%s: %w", source, err))
		mu.Unlock()
	}

	g.Go(func() error {
		event, err := a.eventsRepo.Get(ctx, eventID)
		if err != nil {
			failed("event", err)
			return nil
		}
		mu.Lock()
		sources.Event = &event
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		tiers, err := a.tiersRepo.ListByEvent(ctx, eventID)
		if err != nil {
			failed("tiers", err)
			return nil
		}
		mu.Lock()
		sources.Tiers = tiers
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		counter, err := a.countersRepo.Get(ctx, eventID)
		if errors.Is(err, entity.ErrNotFound) {
			// most events have no organizer override
			return nil
		}
		if err != nil {
			failed("counter", err)
			return nil
		}
		mu.Lock()
		sources.Counter = &counter
		mu.Unlock()
		return nil
	})

	_ = g.Wait()

	if sources.Empty() && len(errs) > 0 {
		return sources, fmt.Errorf("%w: %w", entity.ErrSourceUnavailable, errors.Join(errs...))
	}

	return sources, nil
}

// Snapshot always returns a snapshot, falling back to an empty one when no
// source could be read.
func (a *Aggregator) Snapshot(ctx context.Context, eventID string) entity.AvailabilitySnapshot {
	sources, err := a.Collect(ctx, eventID)
	if err != nil {
		log.FromContext(ctx).WithError(err).WithField("event_id", eventID).Warn("No availability source readable")
	}

	ReportInconsistencies(ctx, eventID, sources)
	return Compute(sources)
}

func ReportInconsistencies(ctx context.Context, eventID string, sources entity.AvailabilitySources) {
	for _, problem := range Inconsistencies(sources) {
		metrics.CapacityInconsistencies.Inc()
		log.FromContext(ctx).WithFields(logrus.Fields{
			"event_id": eventID,
			"problem":  problem,
		}).Warn("Capacity inconsistent")
	}
}
