package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayloadKind tags the variants of TransferPayload
type PayloadKind string

const (
	PayloadKindValueReceived   PayloadKind = "value_received"
	PayloadKindPaymentResponse PayloadKind = "payment_response"
)

// TransferPayload is a decoded, validated message from the ledger.
// Only the types in this package implement it.
type TransferPayload interface {
	Kind() PayloadKind
	isTransferPayload()
}

// ValueReceived reports value that arrived in the house wallet
type ValueReceived struct {
	CorrelationID string // empty when the sender paid without a request
	Sender        string
	Amount        decimal.Decimal
	CoinID        string
	TxID          string
	ReceivedAt    time.Time
}

func (ValueReceived) Kind() PayloadKind { return PayloadKindValueReceived }
func (ValueReceived) isTransferPayload() {}

// PaymentResponse reports the payer's answer to a payment request
type PaymentResponse struct {
	CorrelationID string
	Payer         string
	Accepted      bool
	Reason        string
}

func (PaymentResponse) Kind() PayloadKind { return PayloadKindPaymentResponse }
func (PaymentResponse) isTransferPayload() {}

// TransferResult describes value that left the wallet. A failed send returns
// the parts that were delivered before the failure, if any.
type TransferResult struct {
	TransferID string
	PartsSent  []decimal.Decimal
	TxIDs      []string // one ledger transaction per part
}

// Total sums the delivered parts; zero for a nil result
func (r *TransferResult) Total() decimal.Decimal {
	total := decimal.Zero
	if r == nil {
		return total
	}
	for _, part := range r.PartsSent {
		total = total.Add(part)
	}
	return total
}

// Delivered reports whether any value reached the recipient
func (r *TransferResult) Delivered() bool {
	return r != nil && len(r.PartsSent) > 0
}

// PaymentConfirmation is emitted once per invoice when accumulated receipts cover it
type PaymentConfirmation struct {
	InvoiceID     string
	Sender        string
	TotalReceived decimal.Decimal
	ReceiptCount  int
	Amounts       []decimal.Decimal
	TxIDs         []string
}

// PrimaryTxID returns the first receipt's transaction id
func (c *PaymentConfirmation) PrimaryTxID() string {
	if len(c.TxIDs) == 0 {
		return ""
	}
	return c.TxIDs[0]
}

// PaymentExpiry is reported when an invoice is not covered within its window
type PaymentExpiry struct {
	InvoiceID   string
	Accumulated decimal.Decimal
}
