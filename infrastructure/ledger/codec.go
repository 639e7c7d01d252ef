package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"digitlotto/domain/entities"

	"github.com/shopspring/decimal"
)

// Envelope is the wire shape of an asynchronous ledger notification
type Envelope struct {
	Kind          string          `json:"kind"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Sender        string          `json:"sender,omitempty"`
	Payer         string          `json:"payer,omitempty"`
	Amount        json.RawMessage `json:"amount,omitempty"`
	CoinID        string          `json:"coin_id,omitempty"`
	TxID          string          `json:"tx_id,omitempty"`
	ReceivedAt    *time.Time      `json:"received_at,omitempty"`
	Accepted      *bool           `json:"accepted,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// DecodeEnvelope validates a raw notification and returns its typed payload.
// Anything malformed is rejected here so the settlement core only sees known shapes.
func DecodeEnvelope(data []byte) (entities.TransferPayload, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode ledger envelope: %w", err)
	}

	switch entities.PayloadKind(envelope.Kind) {
	case entities.PayloadKindValueReceived:
		return decodeValueReceived(&envelope)
	case entities.PayloadKindPaymentResponse:
		return decodePaymentResponse(&envelope)
	case "":
		return nil, fmt.Errorf("ledger envelope has no kind")
	default:
		return nil, fmt.Errorf("unsupported ledger envelope kind %q", envelope.Kind)
	}
}

func decodeValueReceived(envelope *Envelope) (entities.TransferPayload, error) {
	if envelope.TxID == "" {
		return nil, fmt.Errorf("value_received without tx_id")
	}
	if envelope.CorrelationID == "" && envelope.Sender == "" {
		return nil, fmt.Errorf("value_received %s has neither correlation id nor sender", envelope.TxID)
	}
	if envelope.CoinID == "" {
		return nil, fmt.Errorf("value_received %s without coin_id", envelope.TxID)
	}

	amount, err := decodeAmount(envelope.Amount)
	if err != nil {
		return nil, fmt.Errorf("value_received %s: %w", envelope.TxID, err)
	}

	receivedAt := time.Now().UTC()
	if envelope.ReceivedAt != nil {
		receivedAt = envelope.ReceivedAt.UTC()
	}

	return entities.ValueReceived{
		CorrelationID: envelope.CorrelationID,
		Sender:        envelope.Sender,
		Amount:        amount,
		CoinID:        envelope.CoinID,
		TxID:          envelope.TxID,
		ReceivedAt:    receivedAt,
	}, nil
}

func decodePaymentResponse(envelope *Envelope) (entities.TransferPayload, error) {
	if envelope.CorrelationID == "" {
		return nil, fmt.Errorf("payment_response without correlation_id")
	}
	if envelope.Accepted == nil {
		return nil, fmt.Errorf("payment_response %s without accepted flag", envelope.CorrelationID)
	}
	return entities.PaymentResponse{
		CorrelationID: envelope.CorrelationID,
		Payer:         envelope.Payer,
		Accepted:      *envelope.Accepted,
		Reason:        envelope.Reason,
	}, nil
}

// decodeAmount accepts a JSON string or integer and requires positive whole smallest units
func decodeAmount(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 {
		return decimal.Zero, fmt.Errorf("amount is required")
	}

	var amount decimal.Decimal
	if err := amount.UnmarshalJSON(raw); err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %s: %w", string(raw), err)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount %s must be positive", amount.String())
	}
	if !amount.IsInteger() {
		return decimal.Zero, fmt.Errorf("amount %s must be whole smallest units", amount.String())
	}
	return amount, nil
}
