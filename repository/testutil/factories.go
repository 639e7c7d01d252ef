package testutil

import (
	"fmt"
	"sync/atomic"

	"digitlotto/domain/entities"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var userSeq atomic.Int64

// CreateTestBet builds an unsaved pending bet in the given round
func CreateTestBet(roundID int64, items ...entities.BetItem) *entities.Bet {
	if len(items) == 0 {
		items = []entities.BetItem{{Digit: 5, Amount: decimal.NewFromInt(100)}}
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}

	n := userSeq.Add(1)
	return &entities.Bet{
		RoundID:       roundID,
		UserID:        fmt.Sprintf("user-%d", n),
		UserIdentity:  fmt.Sprintf("02%062d", n),
		Items:         items,
		TotalAmount:   total,
		InvoiceID:     uuid.NewString(),
		PaymentStatus: entities.PaymentStatusPending,
		Winnings:      decimal.Zero,
		PayoutStatus:  entities.PayoutStatusNone,
	}
}

// Stake is shorthand for a single bet item
func Stake(digit int, amount int64) entities.BetItem {
	return entities.BetItem{Digit: digit, Amount: decimal.NewFromInt(amount)}
}

// CreateTestPaymentLog builds an unsaved payment log entry
func CreateTestPaymentLog(purpose entities.PaymentPurpose, amount int64) *entities.PaymentLogEntry {
	direction := entities.PaymentDirectionOutgoing
	if purpose == entities.PaymentPurposeBetPayment {
		direction = entities.PaymentDirectionIncoming
	}
	return &entities.PaymentLogEntry{
		Direction:    direction,
		Amount:       decimal.NewFromInt(amount),
		Counterparty: fmt.Sprintf("02%062d", userSeq.Add(1)),
		TxID:         uuid.NewString(),
		Purpose:      purpose,
	}
}
