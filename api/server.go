package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"digitlotto/application"
	"digitlotto/domain/entities"
	"digitlotto/domain/services"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// SubjectPrefix is prepended to every route
const SubjectPrefix = "lotto.api."

// QueueGroup spreads requests across serving instances
const QueueGroup = "digitlotto-api"

// Routes
const (
	RoutePlaceBet           = "bet.place"
	RouteCurrentRound       = "round.current"
	RouteRoundHistory       = "round.history"
	RouteCloseRound         = "round.close"
	RouteDrawWinner         = "round.draw"
	RouteProcessPayouts     = "round.payouts"
	RouteReprocessPayouts   = "payouts.reprocess"
	RouteUserBets           = "bets.user"
	RouteCommission         = "commission.get"
	RouteWithdrawCommission = "commission.withdraw"
	RoutePaymentLog         = "payments.log"
)

// codeInternal is reported for failures that are not settlement errors
const codeInternal = "INTERNAL"

// Backend is the operations surface the server exposes
type Backend interface {
	PlaceBet(ctx context.Context, userID string, items []entities.BetItem) (*services.PlacedBet, error)
	CloseRound(ctx context.Context, roundNumber int64) (*entities.Round, error)
	DrawWinner(ctx context.Context, roundNumber int64) (*entities.Round, error)
	ProcessPayouts(ctx context.Context, roundNumber int64) (*entities.Round, error)
	ReprocessPayouts(ctx context.Context, roundNumber int64) (*application.DispatchSummary, error)
	WithdrawCommission(ctx context.Context, requested *decimal.Decimal) (*entities.TransferResult, error)
	GetCurrentRound(ctx context.Context) (*services.RoundSummary, error)
	GetRoundHistory(ctx context.Context, limit int) ([]*entities.Round, error)
	GetUserBets(ctx context.Context, userID string, limit int) ([]*entities.Bet, error)
	GetCommission(ctx context.Context) (*entities.Commission, error)
	GetPaymentLog(ctx context.Context, limit int) ([]*entities.PaymentLogEntry, error)
}

// Responder serves request/reply subjects
type Responder interface {
	Respond(subject, queue string, handler func([]byte) []byte) error
}

type handlerFunc func(ctx context.Context, data []byte) (any, error)

// Server answers API requests over NATS request/reply
type Server struct {
	backend  Backend
	timeout  time.Duration
	handlers map[string]handlerFunc
}

// NewServer creates a server whose requests each run under timeout
func NewServer(backend Backend, timeout time.Duration) *Server {
	s := &Server{
		backend: backend,
		timeout: timeout,
	}
	s.handlers = map[string]handlerFunc{
		RoutePlaceBet:           s.placeBet,
		RouteCurrentRound:       s.currentRound,
		RouteRoundHistory:       s.roundHistory,
		RouteCloseRound:         s.closeRound,
		RouteDrawWinner:         s.drawWinner,
		RouteProcessPayouts:     s.processPayouts,
		RouteReprocessPayouts:   s.reprocessPayouts,
		RouteUserBets:           s.userBets,
		RouteCommission:         s.commission,
		RouteWithdrawCommission: s.withdrawCommission,
		RoutePaymentLog:         s.paymentLog,
	}
	return s
}

// Start registers every route with the responder
func (s *Server) Start(responder Responder) error {
	for route := range s.handlers {
		if err := responder.Respond(SubjectPrefix+route, QueueGroup, func(data []byte) []byte {
			return s.Handle(route, data)
		}); err != nil {
			return fmt.Errorf("failed to register route %s: %w", route, err)
		}
	}
	log.WithField("routes", len(s.handlers)).Info("API server started")
	return nil
}

// Handle runs one request and encodes the reply
func (s *Server) Handle(route string, data []byte) []byte {
	handler, ok := s.handlers[route]
	if !ok {
		return encodeError(entities.NewNotFoundError("unknown route %s", route))
	}

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := handler(ctx, data)
	if err != nil {
		logger := log.WithFields(log.Fields{"route": route}).WithError(err)
		var settlementErr *entities.SettlementError
		if errors.As(err, &settlementErr) {
			logger.Info("API request rejected")
		} else {
			logger.Error("API request failed")
		}
		return encodeError(err)
	}

	reply, err := json.Marshal(Response[any]{OK: true, Data: result})
	if err != nil {
		log.WithField("route", route).WithError(err).Error("Failed to encode API reply")
		return encodeError(err)
	}
	return reply
}

func encodeError(err error) []byte {
	response := Response[any]{Code: codeInternal, Error: "internal error"}

	var settlementErr *entities.SettlementError
	if errors.As(err, &settlementErr) {
		response.Code = string(settlementErr.Code)
		response.Error = settlementErr.Message
	}

	reply, _ := json.Marshal(response)
	return reply
}

func decode[T any](data []byte) (T, error) {
	var req T
	if len(data) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, entities.NewValidationError("malformed request: %v", err)
	}
	return req, nil
}

func (s *Server) placeBet(ctx context.Context, data []byte) (any, error) {
	req, err := decode[PlaceBetRequest](data)
	if err != nil {
		return nil, err
	}
	placed, err := s.backend.PlaceBet(ctx, req.UserID, req.Items)
	if err != nil {
		return nil, err
	}
	return PlacedBetDTO{Bet: toBetDTO(placed.Bet), Round: toRoundDTO(placed.Round)}, nil
}

func (s *Server) currentRound(ctx context.Context, _ []byte) (any, error) {
	summary, err := s.backend.GetCurrentRound(ctx)
	if err != nil {
		return nil, err
	}
	return toRoundSummaryDTO(summary), nil
}

func (s *Server) roundHistory(ctx context.Context, data []byte) (any, error) {
	req, err := decode[ListRequest](data)
	if err != nil {
		return nil, err
	}
	rounds, err := s.backend.GetRoundHistory(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	return toRoundDTOs(rounds), nil
}

func (s *Server) closeRound(ctx context.Context, data []byte) (any, error) {
	return s.roundCommand(ctx, data, s.backend.CloseRound)
}

func (s *Server) drawWinner(ctx context.Context, data []byte) (any, error) {
	return s.roundCommand(ctx, data, s.backend.DrawWinner)
}

func (s *Server) processPayouts(ctx context.Context, data []byte) (any, error) {
	return s.roundCommand(ctx, data, s.backend.ProcessPayouts)
}

func (s *Server) roundCommand(ctx context.Context, data []byte, fn func(context.Context, int64) (*entities.Round, error)) (any, error) {
	req, err := decode[RoundRequest](data)
	if err != nil {
		return nil, err
	}
	if req.RoundNumber <= 0 {
		return nil, entities.NewValidationError("round_number is required")
	}
	round, err := fn(ctx, req.RoundNumber)
	if err != nil {
		return nil, err
	}
	return toRoundDTO(round), nil
}

func (s *Server) reprocessPayouts(ctx context.Context, data []byte) (any, error) {
	req, err := decode[RoundRequest](data)
	if err != nil {
		return nil, err
	}
	if req.RoundNumber <= 0 {
		return nil, entities.NewValidationError("round_number is required")
	}
	summary, err := s.backend.ReprocessPayouts(ctx, req.RoundNumber)
	if err != nil {
		return nil, err
	}
	return toDispatchDTO(summary), nil
}

func (s *Server) userBets(ctx context.Context, data []byte) (any, error) {
	req, err := decode[ListRequest](data)
	if err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, entities.NewValidationError("user_id is required")
	}
	bets, err := s.backend.GetUserBets(ctx, req.UserID, req.Limit)
	if err != nil {
		return nil, err
	}
	return toBetDTOs(bets), nil
}

func (s *Server) commission(ctx context.Context, _ []byte) (any, error) {
	commission, err := s.backend.GetCommission(ctx)
	if err != nil {
		return nil, err
	}
	return toCommissionDTO(commission), nil
}

func (s *Server) withdrawCommission(ctx context.Context, data []byte) (any, error) {
	req, err := decode[WithdrawRequest](data)
	if err != nil {
		return nil, err
	}
	if req.Amount != nil && (!req.Amount.IsPositive() || !req.Amount.IsInteger()) {
		return nil, entities.NewValidationError("amount must be a positive whole number of smallest units")
	}
	result, err := s.backend.WithdrawCommission(ctx, req.Amount)
	if err != nil {
		return nil, err
	}
	return toTransferDTO(result), nil
}

func (s *Server) paymentLog(ctx context.Context, data []byte) (any, error) {
	req, err := decode[ListRequest](data)
	if err != nil {
		return nil, err
	}
	entries, err := s.backend.GetPaymentLog(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	return toPaymentLogDTOs(entries), nil
}
