package interfaces

import (
	"context"

	"digitlotto/domain/entities"

	"github.com/shopspring/decimal"
)

// IdentityResolver maps a user handle to the public key that receives value
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, handle string) (string, error)
}

// PaymentRequester asks a payer to send value to the house wallet
type PaymentRequester interface {
	// RequestPayment returns the correlation id echoed by matching receipts
	RequestPayment(ctx context.Context, payerIdentity string, amount decimal.Decimal, coinID, message string) (string, error)
}

// ValueSender moves value out of the house wallet
type ValueSender interface {
	SendValue(ctx context.Context, recipient string, amount decimal.Decimal, coinID string) (*entities.TransferResult, error)
}

// TokenLedger submits token commitments to the ledger.
// Every method returns entities.ErrCommitmentExists when the commitment was already accepted.
type TokenLedger interface {
	BurnToken(ctx context.Context, token *entities.Token) error

	// MintSplit mints the prepared pair from a burned token. On ErrCommitmentExists the
	// returned pair, if non-nil, is the one the ledger already holds.
	MintSplit(ctx context.Context, burned *entities.Token, pair *entities.MintedPair) (*entities.MintedPair, error)

	// TransferToken sends a whole token and returns the ledger transaction id
	TransferToken(ctx context.Context, token *entities.Token, recipient string) (string, error)
}

// TokenInventory is the on-disk set of spendable tokens
type TokenInventory interface {
	Append(ctx context.Context, token *entities.Token) error
	List(ctx context.Context, coinID string) ([]*entities.Token, error)
	Delete(ctx context.Context, tokenID string) error
}
