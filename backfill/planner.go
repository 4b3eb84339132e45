package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"attendance/entity"
	"attendance/metrics"
	"attendance/pkg"
)

type PurchasesRepository interface {
	Get(ctx context.Context, purchaseID string) (entity.Purchase, error)
}

type EventsRepository interface {
	Get(ctx context.Context, eventID string) (entity.Event, error)
}

type TiersRepository interface {
	Get(ctx context.Context, tierID string) (entity.TicketTier, error)
}

type CredentialsRepository interface {
	ListByPurchase(ctx context.Context, purchaseID string) ([]entity.Credential, error)
	Add(ctx context.Context, credential entity.Credential) error
}

type CredentialIssuer interface {
	Mint(ctx context.Context, request entity.MintRequest) (entity.MintedCredential, error)
}

// Planner issues the credentials a purchase is missing. It may be called any
// number of times, concurrently, for the same purchase.
type Planner struct {
	purchases   PurchasesRepository
	events      EventsRepository
	tiers       TiersRepository
	credentials CredentialsRepository
	issuer      CredentialIssuer

	locks *pkg.KeyedMutex
	now   func() time.Time
}

func NewPlanner(
	purchases PurchasesRepository,
	events EventsRepository,
	tiers TiersRepository,
	credentials CredentialsRepository,
	issuer CredentialIssuer,
) *Planner {
	if purchases == nil {
		panic("missing purchases")
	}
	if events == nil {
		panic("missing events")
	}
	if tiers == nil {
		panic("missing tiers")
	}
	if credentials == nil {
		panic("missing credentials")
	}
	if issuer == nil {
		panic("missing issuer")
	}

	return &Planner{
		purchases:   purchases,
		events:      events,
		tiers:       tiers,
		credentials: credentials,
		issuer:      issuer,
		locks:       pkg.NewKeyedMutex(),
		now:         time.Now,
	}
}

// EnsureCredentials mints every missing sequence number of the purchase and
// returns how many were issued. Minting stops at the first failure; the
// returned *entity.PartialBackfillError lists what a later call still has to
// issue.
func (p *Planner) EnsureCredentials(ctx context.Context, purchaseID string) (int, error) {
	ctx, span := otel.Tracer("").Start(ctx, "backfill.EnsureCredentials")
	span.SetAttributes(attribute.String("purchase_id", purchaseID))
	defer span.End()

	unlock := p.locks.Lock(purchaseID)
	defer unlock()

	purchase, err := p.purchases.Get(ctx, purchaseID)
	if err != nil {
		return 0, fmt.Errorf("could not get purchase: %w", err)
	}

	existing, err := p.credentials.ListByPurchase(ctx, purchaseID)
	if err != nil {
		return 0, fmt.Errorf("could not list credentials of purchase %s: %w", purchaseID, err)
	}

	missing := MissingSequences(purchase.Quantity, existing)
	if len(missing) == 0 {
		return 0, nil
	}

	logger := log.FromContext(ctx).WithField("purchase_id", purchaseID)
	logger.WithField("missing", missing).Info("Backfilling credentials")

	template := p.credentialTemplate(ctx, purchase)

	issued := 0
	for i, seq := range missing {
		err := p.issue(ctx, template, seq)
		if errors.Is(err, entity.ErrConflict) {
			logger.WithField("sequence_number", seq).Debug("Credential already issued by another backfill")
			continue
		}
		if err != nil {
			metrics.CredentialsIssued.Add(float64(issued))
			metrics.PartialBackfills.Inc()
			span.RecordError(err)

			return issued, &entity.PartialBackfillError{
				PurchaseID: purchaseID,
				Issued:     issued,
				Missing:    missing[i:],
				Err:        err,
			}
		}
		issued++
	}

	metrics.CredentialsIssued.Add(float64(issued))
	span.SetAttributes(attribute.Int("issued", issued))

	return issued, nil
}

// MissingSequences returns the sequence numbers in 1..quantity without a
// credential, in ascending order.
func MissingSequences(quantity int, existing []entity.Credential) []int {
	taken := lo.Associate(existing, func(c entity.Credential) (int, struct{}) {
		return c.SequenceNumber, struct{}{}
	})

	var missing []int
	for seq := 1; seq <= quantity; seq++ {
		if _, ok := taken[seq]; !ok {
			missing = append(missing, seq)
		}
	}
	return missing
}

func (p *Planner) issue(ctx context.Context, template entity.Credential, seq int) error {
	minted, err := p.issuer.Mint(ctx, entity.MintRequest{
		PurchaseID:     template.PurchaseID,
		SequenceNumber: seq,
		Quantity:       template.Quantity,
		EventID:        template.EventID,
		EventName:      template.EventName,
		TierID:         template.TierID,
		TierName:       template.TierName,
		BuyerID:        template.BuyerID,
	})
	if err != nil {
		return fmt.Errorf("could not mint credential %d: %w", seq, err)
	}

	credential := template
	credential.ID = minted.CredentialID
	credential.Token = minted.Token
	credential.SequenceNumber = seq
	credential.IssuedAt = p.now().UTC()

	if err := p.credentials.Add(ctx, credential); err != nil {
		return fmt.Errorf("could not store credential %d: %w", seq, err)
	}

	return nil
}

// credentialTemplate carries the denormalized display data of the purchase.
// Names are best effort: credentials are still issued without them.
func (p *Planner) credentialTemplate(ctx context.Context, purchase entity.Purchase) entity.Credential {
	template := entity.Credential{
		PurchaseID: purchase.ID,
		EventID:    purchase.EventID,
		TierID:     purchase.TierID,
		BuyerID:    purchase.BuyerID,
		Quantity:   purchase.Quantity,
		Status:     entity.CredentialActive,
	}

	logger := log.FromContext(ctx).WithField("purchase_id", purchase.ID)

	if event, err := p.events.Get(ctx, purchase.EventID); err != nil {
		logger.WithError(err).Warn("Could not read event name for credentials")
	} else {
		template.EventName = event.Name
	}

	if tier, err := p.tiers.Get(ctx, purchase.TierID); err != nil {
		logger.WithError(err).Warn("Could not read tier name for credentials")
	} else {
		template.TierName = tier.Name
	}

	return template
}
