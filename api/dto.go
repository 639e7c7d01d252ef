package api

import (
	"time"

	"digitlotto/application"
	"digitlotto/domain/entities"
	"digitlotto/domain/services"

	"github.com/shopspring/decimal"
)

// Response wraps every reply. Data is set only when OK is true.
type Response[T any] struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
	Data  T      `json:"data,omitempty"`
}

// PlaceBetRequest asks for a new bet in the open round
type PlaceBetRequest struct {
	UserID string             `json:"user_id"`
	Items  []entities.BetItem `json:"items"`
}

// RoundRequest addresses a round by number
type RoundRequest struct {
	RoundNumber int64 `json:"round_number"`
}

// ListRequest pages a query
type ListRequest struct {
	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// WithdrawRequest withdraws Amount, or everything available when nil
type WithdrawRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// RoundDTO is the wire view of a round
type RoundDTO struct {
	RoundNumber  int64           `json:"round_number"`
	Status       string          `json:"status"`
	WinningDigit *int            `json:"winning_digit,omitempty"`
	TotalPool    decimal.Decimal `json:"total_pool"`
	TotalPayout  decimal.Decimal `json:"total_payout"`
	HouseFee     decimal.Decimal `json:"house_fee"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	DrawTime     *time.Time      `json:"draw_time,omitempty"`
	BetCount     *int            `json:"bet_count,omitempty"`
}

// BetDTO is the wire view of a bet
type BetDTO struct {
	ID            int64              `json:"id"`
	RoundNumber   int64              `json:"round_number"`
	UserID        string             `json:"user_id"`
	Items         []entities.BetItem `json:"items"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	InvoiceID     string             `json:"invoice_id"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	PaymentStatus string             `json:"payment_status"`
	Winnings      decimal.Decimal    `json:"winnings"`
	PayoutStatus  string             `json:"payout_status"`
	CreatedAt     time.Time          `json:"created_at"`
}

// CommissionDTO is the wire view of the commission ledger
type CommissionDTO struct {
	TotalAccumulated decimal.Decimal `json:"total_accumulated"`
	TotalWithdrawn   decimal.Decimal `json:"total_withdrawn"`
	Available        decimal.Decimal `json:"available"`
	LastWithdrawalAt *time.Time      `json:"last_withdrawal_at,omitempty"`
}

// TransferDTO reports a completed outgoing transfer
type TransferDTO struct {
	TransferID string            `json:"transfer_id"`
	PartsSent  []decimal.Decimal `json:"parts_sent"`
	TxIDs      []string          `json:"tx_ids"`
}

// DispatchDTO reports a payout dispatch pass
type DispatchDTO struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// PaymentLogDTO is the wire view of an audit entry
type PaymentLogDTO struct {
	ID           int64           `json:"id"`
	Direction    string          `json:"direction"`
	Amount       decimal.Decimal `json:"amount"`
	Counterparty string          `json:"counterparty"`
	TxID         string          `json:"tx_id"`
	Purpose      string          `json:"purpose"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PlacedBetDTO is returned by bet placement
type PlacedBetDTO struct {
	Bet   BetDTO   `json:"bet"`
	Round RoundDTO `json:"round"`
}

func toRoundDTO(round *entities.Round) RoundDTO {
	return RoundDTO{
		RoundNumber:  round.RoundNumber,
		Status:       string(round.Status),
		WinningDigit: round.WinningDigit,
		TotalPool:    round.TotalPool,
		TotalPayout:  round.TotalPayout,
		HouseFee:     round.HouseFee,
		StartTime:    round.StartTime,
		EndTime:      round.EndTime,
		DrawTime:     round.DrawTime,
	}
}

func toRoundSummaryDTO(summary *services.RoundSummary) RoundDTO {
	dto := toRoundDTO(summary.Round)
	count := summary.BetCount
	dto.BetCount = &count
	return dto
}

func toRoundDTOs(rounds []*entities.Round) []RoundDTO {
	dtos := make([]RoundDTO, len(rounds))
	for i, round := range rounds {
		dtos[i] = toRoundDTO(round)
	}
	return dtos
}

func toBetDTO(bet *entities.Bet) BetDTO {
	dto := BetDTO{
		ID:            bet.ID,
		RoundNumber:   bet.RoundNumber,
		UserID:        bet.UserID,
		Items:         bet.Items,
		TotalAmount:   bet.TotalAmount,
		InvoiceID:     bet.InvoiceID,
		PaymentStatus: string(bet.PaymentStatus),
		Winnings:      bet.Winnings,
		PayoutStatus:  string(bet.PayoutStatus),
		CreatedAt:     bet.CreatedAt,
	}
	if bet.CorrelationID != nil {
		dto.CorrelationID = *bet.CorrelationID
	}
	return dto
}

func toBetDTOs(bets []*entities.Bet) []BetDTO {
	dtos := make([]BetDTO, len(bets))
	for i, bet := range bets {
		dtos[i] = toBetDTO(bet)
	}
	return dtos
}

func toCommissionDTO(commission *entities.Commission) CommissionDTO {
	return CommissionDTO{
		TotalAccumulated: commission.TotalAccumulated,
		TotalWithdrawn:   commission.TotalWithdrawn,
		Available:        commission.Available(),
		LastWithdrawalAt: commission.LastWithdrawalAt,
	}
}

func toTransferDTO(result *entities.TransferResult) TransferDTO {
	return TransferDTO{
		TransferID: result.TransferID,
		PartsSent:  result.PartsSent,
		TxIDs:      result.TxIDs,
	}
}

func toDispatchDTO(summary *application.DispatchSummary) DispatchDTO {
	return DispatchDTO{
		Sent:    summary.Sent,
		Failed:  summary.Failed,
		Skipped: summary.Skipped,
	}
}

func toPaymentLogDTOs(entries []*entities.PaymentLogEntry) []PaymentLogDTO {
	dtos := make([]PaymentLogDTO, len(entries))
	for i, entry := range entries {
		dtos[i] = PaymentLogDTO{
			ID:           entry.ID,
			Direction:    string(entry.Direction),
			Amount:       entry.Amount,
			Counterparty: entry.Counterparty,
			TxID:         entry.TxID,
			Purpose:      string(entry.Purpose),
			Metadata:     entry.Metadata,
			CreatedAt:    entry.CreatedAt,
		}
	}
	return dtos
}
