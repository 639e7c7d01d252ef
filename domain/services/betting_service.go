package services

import (
	"context"
	"fmt"
	"time"

	"digitlotto/domain/entities"
	"digitlotto/domain/interfaces"
	"digitlotto/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// PaymentOutcome is the decision taken for a confirmed payment
type PaymentOutcome int

const (
	// PaymentAccepted means the bet is paid and counted in its round
	PaymentAccepted PaymentOutcome = iota
	// PaymentRefundRequired means the round closed first and the funds must go back
	PaymentRefundRequired
	// PaymentAlreadySettled means the invoice was handled before
	PaymentAlreadySettled
)

func (o PaymentOutcome) String() string {
	switch o {
	case PaymentAccepted:
		return "accepted"
	case PaymentRefundRequired:
		return "refund_required"
	case PaymentAlreadySettled:
		return "already_settled"
	default:
		return "unknown"
	}
}

// PaymentDecision reports what ConfirmPayment did with a confirmation
type PaymentDecision struct {
	Outcome      PaymentOutcome
	Bet          *entities.Bet
	RefundAmount decimal.Decimal
	Reason       string
}

// PlacedBet is returned to the caller after a bet is recorded. CorrelationID is
// set once the payment request went out.
type PlacedBet struct {
	Bet           *entities.Bet
	Round         *entities.Round
	CorrelationID string
}

// BettingService handles bet placement and payment reconciliation
type BettingService struct {
	roundRepo      interfaces.RoundRepository
	betRepo        interfaces.BetRepository
	eventPublisher interfaces.EventPublisher
	identities     interfaces.IdentityResolver
}

// NewBettingService creates a new betting service
func NewBettingService(
	roundRepo interfaces.RoundRepository,
	betRepo interfaces.BetRepository,
	eventPublisher interfaces.EventPublisher,
	identities interfaces.IdentityResolver,
) *BettingService {
	return &BettingService{
		roundRepo:      roundRepo,
		betRepo:        betRepo,
		eventPublisher: eventPublisher,
		identities:     identities,
	}
}

// PaymentRequests asks the ledger to collect bet totals. It holds no
// repository, so requests never run inside a settlement transaction.
type PaymentRequests struct {
	payments interfaces.PaymentRequester
	coinID   string
}

// NewPaymentRequests creates a payment requester for coinID
func NewPaymentRequests(payments interfaces.PaymentRequester, coinID string) *PaymentRequests {
	return &PaymentRequests{payments: payments, coinID: coinID}
}

// Request asks the bet's owner for its total and returns the request's correlation id
func (r *PaymentRequests) Request(ctx context.Context, bet *entities.Bet) (string, error) {
	message := fmt.Sprintf("Round %d bet %s", bet.RoundNumber, bet.InvoiceID)
	correlationID, err := r.payments.RequestPayment(ctx, bet.UserIdentity, bet.TotalAmount, r.coinID, message)
	if err != nil {
		return "", entities.WrapLedgerFailure("failed to request payment", err)
	}
	if correlationID == "" {
		return "", entities.WrapLedgerFailure("payment request returned no correlation id", nil)
	}
	return correlationID, nil
}

// PlaceBet validates the items and records a pending bet in the open round.
// The payment request is sent separately, once the bet is committed and its
// invoice is being watched.
func (s *BettingService) PlaceBet(ctx context.Context, userID string, items []entities.BetItem, now time.Time) (*PlacedBet, error) {
	if userID == "" {
		return nil, entities.NewValidationError("user id is required")
	}

	total, err := entities.ValidateBetItems(items)
	if err != nil {
		return nil, err
	}

	identity, err := s.identities.ResolveIdentity(ctx, userID)
	if err != nil {
		if entities.IsCode(err, entities.ErrCodeNotFound) {
			return nil, err
		}
		return nil, entities.WrapLedgerFailure("failed to resolve identity for "+userID, err)
	}

	round, err := getOrCreateOpenRound(ctx, s.roundRepo, s.eventPublisher, now)
	if err != nil {
		return nil, err
	}

	bet := &entities.Bet{
		RoundID:       round.ID,
		RoundNumber:   round.RoundNumber,
		UserID:        userID,
		UserIdentity:  identity,
		Items:         items,
		TotalAmount:   total,
		InvoiceID:     uuid.New().String(),
		PaymentStatus: entities.PaymentStatusPending,
		Winnings:      decimal.Zero,
		PayoutStatus:  entities.PayoutStatusNone,
	}

	if err := s.betRepo.Create(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to create bet: %w", err)
	}

	log.WithFields(log.Fields{
		"bet_id":       bet.ID,
		"user_id":      userID,
		"round_number": round.RoundNumber,
		"invoice_id":   bet.InvoiceID,
		"total":        total.String(),
	}).Info("Bet recorded")

	return &PlacedBet{Bet: bet, Round: round}, nil
}

// AttachCorrelation stores the payment request id on the bet
func (s *BettingService) AttachCorrelation(ctx context.Context, bet *entities.Bet, correlationID string) error {
	if err := s.betRepo.SetCorrelationID(ctx, bet.ID, correlationID); err != nil {
		return fmt.Errorf("failed to store correlation id: %w", err)
	}
	bet.CorrelationID = &correlationID

	log.WithFields(log.Fields{
		"bet_id":         bet.ID,
		"invoice_id":     bet.InvoiceID,
		"correlation_id": correlationID,
	}).Info("Payment requested, awaiting payment")
	return nil
}

// FailPaymentRequest closes a bet whose payment request never reached the ledger
func (s *BettingService) FailPaymentRequest(ctx context.Context, bet *entities.Bet, cause error) error {
	reason := "payment request failed"
	if cause != nil {
		reason = "payment request failed: " + cause.Error()
	}

	if _, err := s.betRepo.MarkPaymentFailed(ctx, bet.ID, reason); err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	bet.PaymentStatus = entities.PaymentStatusFailed
	return nil
}

// ConfirmPayment applies a matched payment to its bet. The bet joins the pool
// only while its round is still open; otherwise a refund is prepared.
func (s *BettingService) ConfirmPayment(ctx context.Context, confirmation *entities.PaymentConfirmation) (*PaymentDecision, error) {
	bet, err := s.betRepo.GetByInvoiceIDForUpdate(ctx, confirmation.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, entities.NewNotFoundError("no bet for invoice %s", confirmation.InvoiceID)
	}
	if bet.PaymentStatus != entities.PaymentStatusPending || bet.IsRefundInFlight() {
		return &PaymentDecision{Outcome: PaymentAlreadySettled, Bet: bet}, nil
	}

	round, err := s.roundRepo.GetByID(ctx, bet.RoundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	if round == nil {
		return nil, entities.NewNotFoundError("round %d not found", bet.RoundID)
	}

	txID := confirmation.PrimaryTxID()

	if round.IsOpen() {
		counted, err := s.roundRepo.IncrementPool(ctx, round.ID, bet.TotalAmount)
		if err != nil {
			return nil, fmt.Errorf("failed to increment pool: %w", err)
		}
		if counted {
			paid, err := s.betRepo.MarkPaid(ctx, bet.ID, txID)
			if err != nil {
				return nil, fmt.Errorf("failed to mark bet paid: %w", err)
			}
			if !paid {
				return nil, entities.NewStateConflictError("bet %d left %s while locked", bet.ID, entities.PaymentStatusPending)
			}

			bet.PaymentStatus = entities.PaymentStatusPaid
			bet.PaymentTxID = &txID

			if err := s.eventPublisher.Publish(events.PaymentConfirmedEvent{
				BetID:         bet.ID,
				InvoiceID:     bet.InvoiceID,
				RoundNumber:   bet.RoundNumber,
				TotalReceived: confirmation.TotalReceived,
				ReceiptCount:  confirmation.ReceiptCount,
			}); err != nil {
				return nil, fmt.Errorf("failed to publish payment confirmed event: %w", err)
			}

			log.WithFields(log.Fields{
				"bet_id":       bet.ID,
				"round_number": bet.RoundNumber,
				"received":     confirmation.TotalReceived.String(),
				"receipts":     confirmation.ReceiptCount,
			}).Info("Payment confirmed")

			return &PaymentDecision{Outcome: PaymentAccepted, Bet: bet}, nil
		}
	}

	reason := fmt.Sprintf("round %d closed before payment was received", bet.RoundNumber)
	marked, err := s.betRepo.MarkRefundPending(ctx, bet.ID, txID, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to mark refund pending: %w", err)
	}
	if !marked {
		return nil, entities.NewStateConflictError("bet %d left %s while locked", bet.ID, entities.PaymentStatusPending)
	}

	bet.PaymentTxID = &txID
	bet.RefundReason = &reason

	log.WithFields(log.Fields{
		"bet_id":       bet.ID,
		"round_number": bet.RoundNumber,
		"received":     confirmation.TotalReceived.String(),
	}).Warn("Payment arrived after round closed, refund required")

	return &PaymentDecision{
		Outcome:      PaymentRefundRequired,
		Bet:          bet,
		RefundAmount: confirmation.TotalReceived,
		Reason:       reason,
	}, nil
}

// RecordRefund marks a refunded bet after the value went back to the user
func (s *BettingService) RecordRefund(ctx context.Context, bet *entities.Bet, amount decimal.Decimal, result *entities.TransferResult) error {
	refunded, err := s.betRepo.MarkRefunded(ctx, bet.ID, result.TransferID)
	if err != nil {
		return fmt.Errorf("failed to mark bet refunded: %w", err)
	}
	if !refunded {
		return entities.NewStateConflictError("bet %d is no longer awaiting refund", bet.ID)
	}

	reason := ""
	if bet.RefundReason != nil {
		reason = *bet.RefundReason
	}

	if err := s.eventPublisher.Publish(events.BetRefundedEvent{
		BetID:       bet.ID,
		RoundNumber: bet.RoundNumber,
		Amount:      amount,
		TxID:        result.TransferID,
		Reason:      reason,
	}); err != nil {
		return fmt.Errorf("failed to publish bet refunded event: %w", err)
	}

	return nil
}

// RecordRefundFailure marks the payment failed so an operator can settle it by
// hand. Parts in partial already reached the user and are recorded on the bet.
func (s *BettingService) RecordRefundFailure(ctx context.Context, bet *entities.Bet, partial *entities.TransferResult, cause error) error {
	reason := "refund failed"
	if cause != nil {
		reason = "refund failed: " + cause.Error()
	}
	if partial.Delivered() {
		total := partial.Total()
		if err := s.betRepo.AddAmountSent(ctx, bet.ID, total); err != nil {
			return fmt.Errorf("failed to record amount refunded: %w", err)
		}
		bet.AmountSent = bet.AmountSent.Add(total)
		reason += " (" + total.String() + " delivered)"
	}

	if _, err := s.betRepo.MarkPaymentFailed(ctx, bet.ID, reason); err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}

	log.WithFields(log.Fields{
		"bet_id":  bet.ID,
		"user_id": bet.UserID,
		"reason":  reason,
	}).Error("Refund failed, manual settlement required")

	return nil
}

// ExpirePayment marks an unpaid bet expired. Returns nil when the bet was already settled.
func (s *BettingService) ExpirePayment(ctx context.Context, invoiceID string) (*entities.Bet, error) {
	bet, err := s.betRepo.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, entities.NewNotFoundError("no bet for invoice %s", invoiceID)
	}

	expired, err := s.betRepo.MarkExpired(ctx, bet.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark bet expired: %w", err)
	}
	if !expired {
		return nil, nil
	}
	bet.PaymentStatus = entities.PaymentStatusExpired

	if err := s.eventPublisher.Publish(events.PaymentExpiredEvent{
		BetID:     bet.ID,
		InvoiceID: invoiceID,
	}); err != nil {
		return nil, fmt.Errorf("failed to publish payment expired event: %w", err)
	}

	log.WithFields(log.Fields{
		"bet_id":     bet.ID,
		"invoice_id": invoiceID,
	}).Info("Payment window expired")

	return bet, nil
}

// FailRefundsInFlight marks refunds whose outcome was lost in a restart as failed
func (s *BettingService) FailRefundsInFlight(ctx context.Context) ([]*entities.Bet, error) {
	bets, err := s.betRepo.GetRefundsInFlight(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get refunds in flight: %w", err)
	}

	for _, bet := range bets {
		if err := s.RecordRefundFailure(ctx, bet, nil, fmt.Errorf("outcome unknown after restart")); err != nil {
			return nil, err
		}
	}
	return bets, nil
}

// GetAwaitingPayment returns bets still waiting on their payment
func (s *BettingService) GetAwaitingPayment(ctx context.Context) ([]*entities.Bet, error) {
	bets, err := s.betRepo.GetAwaitingPayment(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets awaiting payment: %w", err)
	}
	return bets, nil
}

// GetUserBets returns a user's most recent bets
func (s *BettingService) GetUserBets(ctx context.Context, userID string, limit int) ([]*entities.Bet, error) {
	if limit <= 0 {
		limit = 20
	}
	bets, err := s.betRepo.GetByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets for %s: %w", userID, err)
	}
	return bets, nil
}
