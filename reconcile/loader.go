package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"attendance/availability"
	"attendance/entity"
	"attendance/metrics"
)

const (
	SourceCredentials    = "credentials"
	SourceCheckInRecords = "check_in_records"
)

type AvailabilityCollector interface {
	Collect(ctx context.Context, eventID string) (entity.AvailabilitySources, error)
}

type PurchasesRepository interface {
	ListByEvent(ctx context.Context, eventID string) ([]entity.Purchase, error)
}

type CredentialsRepository interface {
	ListByEvent(ctx context.Context, eventID string) ([]entity.Credential, error)
}

type CheckInRecordsRepository interface {
	ListByEvent(ctx context.Context, eventID string) ([]entity.CheckInRecord, error)
}

type ScanMemory interface {
	Record(ctx context.Context, purchaseID string) (bool, error)
	Reconcile(view entity.EventView) entity.EventView
}

// Loader builds the authoritative view of an event. Credentials and check-in
// records may be unreadable for the current actor; the view is then built
// without them and scan memory fills in known check-ins.
type Loader struct {
	availability AvailabilityCollector
	purchases    PurchasesRepository
	credentials  CredentialsRepository
	records      CheckInRecordsRepository
	scanMemory   ScanMemory
	timeout      time.Duration
}

func NewLoader(
	availability AvailabilityCollector,
	purchases PurchasesRepository,
	credentials CredentialsRepository,
	records CheckInRecordsRepository,
	scanMemory ScanMemory,
	timeout time.Duration,
) *Loader {
	if availability == nil {
		panic("missing availability")
	}
	if purchases == nil {
		panic("missing purchases")
	}
	if credentials == nil {
		panic("missing credentials")
	}
	if records == nil {
		panic("missing records")
	}
	if scanMemory == nil {
		panic("missing scanMemory")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Loader{
		availability: availability,
		purchases:    purchases,
		credentials:  credentials,
		records:      records,
		scanMemory:   scanMemory,
		timeout:      timeout,
	}
}

// Load fails when neither availability nor purchases could be read; callers
// keep their previous view in that case.
func (l *Loader) Load(ctx context.Context, eventID string) (entity.EventView, error) {
	ctx, span := otel.Tracer("").Start(ctx, "reconcile.Load")
	span.SetAttributes(attribute.String("event_id", eventID))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var (
		sources     entity.AvailabilitySources
		purchases   []entity.Purchase
		credentials []entity.Credential
		records     []entity.CheckInRecord

		mu         sync.Mutex
		unreadable []string
	)
	skip := func(source string, err error) {
		log.FromContext(ctx).WithError(err).WithField("source", source).Warn("Refresh continues without source")
		metrics.SourceReadFailures.WithLabelValues(source).Inc()

		mu.Lock()
		unreadable = append(unreadable, source)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sources, err = l.availability.Collect(gctx, eventID)
		if err != nil {
			return fmt.Errorf("could not collect availability: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		purchases, err = l.purchases.ListByEvent(gctx, eventID)
		if err != nil {
			return fmt.Errorf("could not list purchases: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		credentials, err = l.credentials.ListByEvent(gctx, eventID)
		if err != nil {
			skip(SourceCredentials, err)
			credentials = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = l.records.ListByEvent(gctx, eventID)
		if err != nil {
			skip(SourceCheckInRecords, err)
			records = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return entity.EventView{}, err
	}

	availability.ReportInconsistencies(ctx, eventID, sources)

	view := entity.NewEventView(eventID)
	view.Sources = sources
	view.Availability = availability.Compute(sources)
	view.Unreadable = unreadable
	view.RefreshedAt = time.Now().UTC()

	credentialsByPurchase := lo.GroupBy(credentials, func(c entity.Credential) string { return c.PurchaseID })
	recordsByPurchase := lo.GroupBy(records, func(r entity.CheckInRecord) string { return r.PurchaseID })

	for _, p := range purchases {
		view.Purchases[p.ID] = entity.NewPurchaseView(p, credentialsByPurchase[p.ID], recordsByPurchase[p.ID])
	}

	return l.scanMemory.Reconcile(view), nil
}
