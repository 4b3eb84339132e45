package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v3"

	"attendance/entity"
)

// TokenIssuer mints opaque scannable tokens. The token carries no ticket
// data; scanners resolve it through the credential record.
type TokenIssuer struct {
	prefix string
}

func NewTokenIssuer(prefix string) TokenIssuer {
	if prefix == "" {
		panic("missing prefix")
	}

	return TokenIssuer{prefix: prefix}
}

func (i TokenIssuer) Mint(ctx context.Context, request entity.MintRequest) (entity.MintedCredential, error) {
	if err := ctx.Err(); err != nil {
		return entity.MintedCredential{}, err
	}
	if request.PurchaseID == "" {
		return entity.MintedCredential{}, fmt.Errorf("missing purchase id")
	}
	if request.SequenceNumber < 1 || request.SequenceNumber > request.Quantity {
		return entity.MintedCredential{}, fmt.Errorf(
			"sequence number %d out of range 1..%d",
			request.SequenceNumber,
			request.Quantity,
		)
	}

	return entity.MintedCredential{
		CredentialID: uuid.NewString(),
		Token:        i.prefix + "_" + shortuuid.New(),
	}, nil
}
