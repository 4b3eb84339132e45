package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"attendance/db"
	"attendance/entity"
)

const credentialColumns = `
	credential_id, purchase_id, event_id, event_name, tier_id, tier_name, buyer_id,
	sequence_number, quantity, token, status, issued_at, used_at, used_by
`

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) PostgresRepository {
	if db == nil {
		panic("missing db")
	}

	return PostgresRepository{db: db}
}

// Add stores a freshly minted credential. A credential with the same
// (purchase, sequence number) already stored results in entity.ErrConflict.
func (r PostgresRepository) Add(ctx context.Context, credential entity.Credential) error {
	return db.UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO
				credentials (`+credentialColumns+`)
			VALUES
				(:credential_id, :purchase_id, :event_id, :event_name, :tier_id, :tier_name, :buyer_id,
				:sequence_number, :quantity, :token, :status, :issued_at, :used_at, :used_by)
		`, credential)
		if db.IsUniqueViolation(err) {
			return fmt.Errorf(
				"credential %d of purchase %s: %w",
				credential.SequenceNumber,
				credential.PurchaseID,
				entity.ErrConflict,
			)
		}
		if err != nil {
			return fmt.Errorf("could not add credential %s: %w", credential.ID, err)
		}

		return db.PublishChanges(ctx, tx, entity.NewCredentialChange(entity.OperationInsert, credential))
	})
}

func (r PostgresRepository) Get(ctx context.Context, credentialID string) (entity.Credential, error) {
	return getCredential(ctx, r.db, credentialID, false)
}

func (r PostgresRepository) ListByPurchase(ctx context.Context, purchaseID string) ([]entity.Credential, error) {
	var credentials []entity.Credential
	err := r.db.SelectContext(ctx, &credentials, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE purchase_id = $1
		ORDER BY sequence_number
	`, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("could not list credentials of purchase %s: %w", purchaseID, err)
	}

	return credentials, nil
}

func (r PostgresRepository) ListByEvent(ctx context.Context, eventID string) ([]entity.Credential, error) {
	var credentials []entity.Credential
	err := r.db.SelectContext(ctx, &credentials, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE event_id = $1
		ORDER BY purchase_id, sequence_number
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("could not list credentials of event %s: %w", eventID, err)
	}

	return credentials, nil
}

// FirstActiveByPurchase returns the active credential with the lowest
// sequence number.
func (r PostgresRepository) FirstActiveByPurchase(ctx context.Context, purchaseID string) (entity.Credential, error) {
	var credential entity.Credential
	err := r.db.GetContext(ctx, &credential, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE purchase_id = $1 AND status = $2
		ORDER BY sequence_number
		LIMIT 1
	`, purchaseID, entity.CredentialActive)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Credential{}, fmt.Errorf("active credential of purchase %s: %w", purchaseID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Credential{}, fmt.Errorf("could not get active credential of purchase %s: %w", purchaseID, err)
	}

	return credential, nil
}

// MarkUsed moves an active credential to used and writes the check-in
// record in the same transaction. When the credential is no longer active it
// returns the stored credential together with entity.ErrCredentialNotActive;
// of concurrent callers exactly one succeeds.
func (r PostgresRepository) MarkUsed(
	ctx context.Context,
	credentialID string,
	actorID string,
	usedAt time.Time,
) (entity.Credential, entity.CheckInRecord, error) {
	var (
		credential entity.Credential
		record     entity.CheckInRecord
	)

	err := db.UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &credential, `
			UPDATE credentials
			SET status = $2, used_at = $3, used_by = $4
			WHERE credential_id = $1 AND status = $5
			RETURNING `+credentialColumns,
			credentialID,
			entity.CredentialUsed,
			usedAt,
			actorID,
			entity.CredentialActive,
		)
		if errors.Is(err, sql.ErrNoRows) {
			credential, err = getCredential(ctx, tx, credentialID, true)
			if err != nil {
				return err
			}
			return fmt.Errorf("credential %s is %s: %w", credentialID, credential.Status, entity.ErrCredentialNotActive)
		}
		if err != nil {
			return fmt.Errorf("could not mark credential %s as used: %w", credentialID, err)
		}

		record = entity.CheckInRecord{
			ID:           uuid.NewString(),
			PurchaseID:   credential.PurchaseID,
			EventID:      credential.EventID,
			CredentialID: credential.ID,
			ActorID:      actorID,
			Status:       entity.CheckInCheckedIn,
			RecordedAt:   usedAt,
		}
		if err := db.InsertCheckInRecord(ctx, tx, record); err != nil {
			return err
		}

		return db.PublishChanges(
			ctx,
			tx,
			entity.NewCredentialChange(entity.OperationUpdate, credential),
			entity.NewCheckInRecordChange(record),
		)
	})

	return credential, record, err
}

func getCredential(ctx context.Context, q sqlx.QueryerContext, credentialID string, forUpdate bool) (entity.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE credential_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var credential entity.Credential
	err := sqlx.GetContext(ctx, q, &credential, query, credentialID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Credential{}, fmt.Errorf("credential %s: %w", credentialID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Credential{}, fmt.Errorf("could not get credential %s: %w", credentialID, err)
	}

	return credential, nil
}
