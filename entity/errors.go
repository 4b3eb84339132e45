package entity

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrSourceUnavailable   = errors.New("source unavailable")
	ErrCredentialNotActive = errors.New("credential is not active")
	ErrCheckInClosed       = errors.New("check-in is closed for this event")
	ErrAlreadyCheckedIn    = errors.New("already checked in")
	ErrNoCredentials       = errors.New("purchase has no credentials")
	ErrSubscriptionLost    = errors.New("change subscription lost")
)

// PartialBackfillError is returned when only a prefix of the missing
// credentials could be minted. Missing lists the sequence numbers a later
// call still has to issue.
type PartialBackfillError struct {
	PurchaseID string
	Issued     int
	Missing    []int
	Err        error
}

func (e *PartialBackfillError) Error() string {
	return fmt.Sprintf(
		"backfill of purchase %s issued %d credentials, %d still missing: %s",
		e.PurchaseID, e.Issued, len(e.Missing), e.Err,
	)
}

func (e *PartialBackfillError) Unwrap() error {
	return e.Err
}
