package api

import (
	"context"
	"encoding/json"
	"fmt"

	"digitlotto/domain/entities"

	"github.com/shopspring/decimal"
)

// Requester sends a request and waits for one reply
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// Client calls a running server. Rejections come back as *entities.SettlementError.
type Client struct {
	requester Requester
}

// NewClient creates a new API client
func NewClient(requester Requester) *Client {
	return &Client{requester: requester}
}

func call[T any](ctx context.Context, c *Client, route string, req any) (T, error) {
	var zero T

	var payload []byte
	if req != nil {
		var err error
		if payload, err = json.Marshal(req); err != nil {
			return zero, fmt.Errorf("failed to encode %s request: %w", route, err)
		}
	}

	data, err := c.requester.Request(ctx, SubjectPrefix+route, payload)
	if err != nil {
		return zero, fmt.Errorf("failed to call %s: %w", route, err)
	}

	var response Response[T]
	if err := json.Unmarshal(data, &response); err != nil {
		return zero, fmt.Errorf("failed to decode %s reply: %w", route, err)
	}
	if !response.OK {
		return zero, &entities.SettlementError{Code: entities.ErrorCode(response.Code), Message: response.Error}
	}
	return response.Data, nil
}

func (c *Client) PlaceBet(ctx context.Context, userID string, items []entities.BetItem) (PlacedBetDTO, error) {
	return call[PlacedBetDTO](ctx, c, RoutePlaceBet, PlaceBetRequest{UserID: userID, Items: items})
}

func (c *Client) GetCurrentRound(ctx context.Context) (RoundDTO, error) {
	return call[RoundDTO](ctx, c, RouteCurrentRound, nil)
}

func (c *Client) GetRoundHistory(ctx context.Context, limit int) ([]RoundDTO, error) {
	return call[[]RoundDTO](ctx, c, RouteRoundHistory, ListRequest{Limit: limit})
}

func (c *Client) CloseRound(ctx context.Context, roundNumber int64) (RoundDTO, error) {
	return call[RoundDTO](ctx, c, RouteCloseRound, RoundRequest{RoundNumber: roundNumber})
}

func (c *Client) DrawWinner(ctx context.Context, roundNumber int64) (RoundDTO, error) {
	return call[RoundDTO](ctx, c, RouteDrawWinner, RoundRequest{RoundNumber: roundNumber})
}

func (c *Client) ProcessPayouts(ctx context.Context, roundNumber int64) (RoundDTO, error) {
	return call[RoundDTO](ctx, c, RouteProcessPayouts, RoundRequest{RoundNumber: roundNumber})
}

func (c *Client) ReprocessPayouts(ctx context.Context, roundNumber int64) (DispatchDTO, error) {
	return call[DispatchDTO](ctx, c, RouteReprocessPayouts, RoundRequest{RoundNumber: roundNumber})
}

func (c *Client) GetUserBets(ctx context.Context, userID string, limit int) ([]BetDTO, error) {
	return call[[]BetDTO](ctx, c, RouteUserBets, ListRequest{UserID: userID, Limit: limit})
}

func (c *Client) GetCommission(ctx context.Context) (CommissionDTO, error) {
	return call[CommissionDTO](ctx, c, RouteCommission, nil)
}

// WithdrawCommission withdraws amount, or everything available when amount is nil
func (c *Client) WithdrawCommission(ctx context.Context, amount *decimal.Decimal) (TransferDTO, error) {
	return call[TransferDTO](ctx, c, RouteWithdrawCommission, WithdrawRequest{Amount: amount})
}

func (c *Client) GetPaymentLog(ctx context.Context, limit int) ([]PaymentLogDTO, error) {
	return call[[]PaymentLogDTO](ctx, c, RoutePaymentLog, ListRequest{Limit: limit})
}
