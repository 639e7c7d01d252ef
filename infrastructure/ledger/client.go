package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"digitlotto/domain/entities"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Request subjects served by the ledger gateway
const (
	SubjectResolveIdentity = "ledger.identity.resolve"
	SubjectRequestPayment  = "ledger.payment.request"
	SubjectBurnToken       = "ledger.token.burn"
	SubjectMintSplit       = "ledger.token.mint"
	SubjectTransferToken   = "ledger.token.transfer"
)

// Reply error codes
const (
	codeExists   = "exists"
	codeNotFound = "not_found"
)

// Requester sends a request and waits for one reply
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// replyError is embedded in every gateway reply
type replyError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"error,omitempty"`
}

func (r replyError) err() error {
	switch {
	case r.Code == "" && r.Message == "":
		return nil
	case r.Code == codeExists:
		return entities.ErrCommitmentExists
	case r.Code == codeNotFound:
		return entities.NewNotFoundError("%s", r.Message)
	default:
		return fmt.Errorf("ledger rejected request: %s (%s)", r.Message, r.Code)
	}
}

type resolveRequest struct {
	Handle string `json:"handle"`
}

type resolveReply struct {
	replyError
	PublicKey string `json:"public_key"`
}

type paymentRequest struct {
	Payer   string          `json:"payer"`
	Amount  decimal.Decimal `json:"amount"`
	CoinID  string          `json:"coin_id"`
	Message string          `json:"message"`
}

type paymentReply struct {
	replyError
	CorrelationID string `json:"correlation_id"`
}

type burnRequest struct {
	Token *entities.Token `json:"token"`
}

type burnReply struct {
	replyError
}

type mintRequest struct {
	Burned   *entities.Token `json:"burned"`
	Outgoing *entities.Token `json:"outgoing"`
	Change   *entities.Token `json:"change"`
}

type mintReply struct {
	replyError
	Outgoing *entities.Token `json:"outgoing,omitempty"`
	Change   *entities.Token `json:"change,omitempty"`
}

type transferRequest struct {
	Token     *entities.Token `json:"token"`
	Recipient string          `json:"recipient"`
}

type transferReply struct {
	replyError
	TxID string `json:"tx_id"`
}

// Client talks to the ledger gateway over NATS request/reply. It implements
// IdentityResolver, PaymentRequester and TokenLedger.
type Client struct {
	requester Requester
	timeout   time.Duration
}

// NewClient creates a ledger client; timeout bounds each request
func NewClient(requester Requester, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{requester: requester, timeout: timeout}
}

// call marshals req, sends it on subject and decodes the reply into reply
func (c *Client) call(ctx context.Context, subject string, req any, reply interface{ err() error }) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", subject, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.requester.Request(ctx, subject, data)
	if err != nil {
		if isUnavailable(err) {
			return fmt.Errorf("%w: %s: %v", entities.ErrLedgerUnavailable, subject, err)
		}
		return fmt.Errorf("failed to call %s: %w", subject, err)
	}

	if err := json.Unmarshal(raw, reply); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", subject, err)
	}
	return reply.err()
}

func isUnavailable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionReconnecting)
}

// ResolveIdentity maps a user handle to its public key
func (c *Client) ResolveIdentity(ctx context.Context, handle string) (string, error) {
	var reply resolveReply
	if err := c.call(ctx, SubjectResolveIdentity, resolveRequest{Handle: handle}, &reply); err != nil {
		return "", err
	}
	if reply.PublicKey == "" {
		return "", entities.NewNotFoundError("identity %s not found", handle)
	}
	return reply.PublicKey, nil
}

// RequestPayment asks payer to send amount and returns the correlation id
func (c *Client) RequestPayment(ctx context.Context, payerIdentity string, amount decimal.Decimal, coinID, message string) (string, error) {
	var reply paymentReply
	req := paymentRequest{Payer: payerIdentity, Amount: amount, CoinID: coinID, Message: message}
	if err := c.call(ctx, SubjectRequestPayment, req, &reply); err != nil {
		return "", err
	}
	if reply.CorrelationID == "" {
		return "", fmt.Errorf("ledger returned no correlation id for payment request")
	}

	log.WithFields(log.Fields{
		"payer":          payerIdentity,
		"amount":         amount.String(),
		"correlation_id": reply.CorrelationID,
	}).Debug("Payment requested")
	return reply.CorrelationID, nil
}

// BurnToken retires a token
func (c *Client) BurnToken(ctx context.Context, token *entities.Token) error {
	var reply burnReply
	return c.call(ctx, SubjectBurnToken, burnRequest{Token: token}, &reply)
}

// MintSplit mints the outgoing and change tokens carved from a burned token
func (c *Client) MintSplit(ctx context.Context, burned *entities.Token, pair *entities.MintedPair) (*entities.MintedPair, error) {
	var reply mintReply
	req := mintRequest{Burned: burned, Outgoing: pair.Outgoing, Change: pair.Change}
	err := c.call(ctx, SubjectMintSplit, req, &reply)

	var minted *entities.MintedPair
	if reply.Outgoing != nil && reply.Change != nil {
		minted = &entities.MintedPair{Outgoing: reply.Outgoing, Change: reply.Change}
	}
	if err != nil {
		return minted, err
	}
	if minted == nil {
		minted = pair
	}
	return minted, nil
}

// TransferToken sends a whole token to recipient
func (c *Client) TransferToken(ctx context.Context, token *entities.Token, recipient string) (string, error) {
	var reply transferReply
	err := c.call(ctx, SubjectTransferToken, transferRequest{Token: token, Recipient: recipient}, &reply)
	return reply.TxID, err
}
