package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"attendance/entity"
)

type CredentialIssuerMock struct {
	mock sync.Mutex

	Minted []entity.MintRequest

	// FailFor makes minting of the given sequence numbers fail.
	FailFor map[int]error
}

func (c *CredentialIssuerMock) Mint(ctx context.Context, request entity.MintRequest) (entity.MintedCredential, error) {
	c.mock.Lock()
	defer c.mock.Unlock()

	if err, ok := c.FailFor[request.SequenceNumber]; ok {
		return entity.MintedCredential{}, err
	}

	c.Minted = append(c.Minted, request)

	id := uuid.NewString()
	return entity.MintedCredential{
		CredentialID: id,
		Token:        fmt.Sprintf("mock_%s_%d", request.PurchaseID, request.SequenceNumber),
	}, nil
}

// Heal makes every sequence number mintable again.
func (c *CredentialIssuerMock) Heal() {
	c.mock.Lock()
	defer c.mock.Unlock()
	c.FailFor = nil
}

func (c *CredentialIssuerMock) MintedSequences(purchaseID string) []int {
	c.mock.Lock()
	defer c.mock.Unlock()

	var seqs []int
	for _, r := range c.Minted {
		if r.PurchaseID == purchaseID {
			seqs = append(seqs, r.SequenceNumber)
		}
	}
	return seqs
}
