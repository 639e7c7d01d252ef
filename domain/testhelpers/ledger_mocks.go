package testhelpers

import (
	"context"
	"sort"
	"sync"

	"digitlotto/domain/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockIdentityResolver is a mock implementation of IdentityResolver
type MockIdentityResolver struct {
	mock.Mock
}

func (m *MockIdentityResolver) ResolveIdentity(ctx context.Context, handle string) (string, error) {
	args := m.Called(ctx, handle)
	return args.String(0), args.Error(1)
}

// MockPaymentRequester is a mock implementation of PaymentRequester
type MockPaymentRequester struct {
	mock.Mock
}

func (m *MockPaymentRequester) RequestPayment(ctx context.Context, payerIdentity string, amount decimal.Decimal, coinID, message string) (string, error) {
	args := m.Called(ctx, payerIdentity, amount, coinID, message)
	return args.String(0), args.Error(1)
}

// MockValueSender is a mock implementation of ValueSender
type MockValueSender struct {
	mock.Mock
}

func (m *MockValueSender) SendValue(ctx context.Context, recipient string, amount decimal.Decimal, coinID string) (*entities.TransferResult, error) {
	args := m.Called(ctx, recipient, amount, coinID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.TransferResult), args.Error(1)
}

// MockTokenLedger is a mock implementation of TokenLedger
type MockTokenLedger struct {
	mock.Mock
}

func (m *MockTokenLedger) BurnToken(ctx context.Context, token *entities.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenLedger) MintSplit(ctx context.Context, burned *entities.Token, pair *entities.MintedPair) (*entities.MintedPair, error) {
	args := m.Called(ctx, burned, pair)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.MintedPair), args.Error(1)
}

func (m *MockTokenLedger) TransferToken(ctx context.Context, token *entities.Token, recipient string) (string, error) {
	args := m.Called(ctx, token, recipient)
	return args.String(0), args.Error(1)
}

// MemoryTokenInventory is an in-memory TokenInventory recording the order of writes
type MemoryTokenInventory struct {
	mu     sync.Mutex
	tokens map[string]*entities.Token
	Ops    []string // "append:<id>" and "delete:<id>" in call order

	// FailAppend makes Append return this error when set
	FailAppend error
}

// NewMemoryTokenInventory creates an inventory holding the given tokens
func NewMemoryTokenInventory(tokens ...*entities.Token) *MemoryTokenInventory {
	inv := &MemoryTokenInventory{tokens: make(map[string]*entities.Token)}
	for _, token := range tokens {
		inv.tokens[token.ID] = token
	}
	return inv
}

func (m *MemoryTokenInventory) Append(ctx context.Context, token *entities.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAppend != nil {
		return m.FailAppend
	}
	m.tokens[token.ID] = token
	m.Ops = append(m.Ops, "append:"+token.ID)
	return nil
}

func (m *MemoryTokenInventory) List(ctx context.Context, coinID string) ([]*entities.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tokens []*entities.Token
	for _, token := range m.tokens {
		if coinID == "" || token.CoinID == coinID {
			tokens = append(tokens, token)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID < tokens[j].ID })
	return tokens, nil
}

func (m *MemoryTokenInventory) Delete(ctx context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, tokenID)
	m.Ops = append(m.Ops, "delete:"+tokenID)
	return nil
}

// Has reports whether a token is currently held
func (m *MemoryTokenInventory) Has(tokenID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tokens[tokenID]
	return ok
}
