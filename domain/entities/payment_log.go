package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentDirection is relative to the house wallet
type PaymentDirection string

const (
	PaymentDirectionIncoming PaymentDirection = "incoming"
	PaymentDirectionOutgoing PaymentDirection = "outgoing"
)

// PaymentPurpose explains why value moved
type PaymentPurpose string

const (
	PaymentPurposeBetPayment           PaymentPurpose = "bet_payment"
	PaymentPurposePayout               PaymentPurpose = "payout"
	PaymentPurposeRefund               PaymentPurpose = "refund"
	PaymentPurposeCommissionWithdrawal PaymentPurpose = "commission_withdrawal"
)

// PaymentLogEntry is an immutable audit record of a value movement
type PaymentLogEntry struct {
	ID           int64            `db:"id"`
	Direction    PaymentDirection `db:"direction"`
	Amount       decimal.Decimal  `db:"amount"`
	Counterparty string           `db:"counterparty"`
	TxID         string           `db:"tx_id"`
	Purpose      PaymentPurpose   `db:"purpose"`
	Metadata     map[string]any   `db:"metadata"`
	CreatedAt    time.Time        `db:"created_at"`
}
