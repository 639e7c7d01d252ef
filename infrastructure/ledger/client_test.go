package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"digitlotto/domain/entities"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRequester struct {
	mock.Mock
}

func (m *MockRequester) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	args := m.Called(ctx, subject, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func requestWith(field, value string) any {
	return mock.MatchedBy(func(data []byte) bool {
		var body map[string]any
		if err := json.Unmarshal(data, &body); err != nil {
			return false
		}
		return body[field] == value
	})
}

func TestClient_ResolveIdentity(t *testing.T) {
	t.Parallel()

	requester := new(MockRequester)
	client := NewClient(requester, time.Second)
	ctx := context.Background()

	requester.On("Request", mock.Anything, SubjectResolveIdentity, requestWith("handle", "@alice")).
		Return([]byte(`{"public_key":"02alice"}`), nil).Once()
	requester.On("Request", mock.Anything, SubjectResolveIdentity, requestWith("handle", "@nobody")).
		Return([]byte(`{"code":"not_found","error":"no such nametag"}`), nil).Once()

	key, err := client.ResolveIdentity(ctx, "@alice")
	require.NoError(t, err)
	assert.Equal(t, "02alice", key)

	_, err = client.ResolveIdentity(ctx, "@nobody")
	require.Error(t, err)
	assert.True(t, entities.IsCode(err, entities.ErrCodeNotFound))

	requester.AssertExpectations(t)
}

func TestClient_RequestPayment(t *testing.T) {
	t.Parallel()

	requester := new(MockRequester)
	client := NewClient(requester, time.Second)

	requester.On("Request", mock.Anything, SubjectRequestPayment, requestWith("amount", "300")).
		Return([]byte(`{"correlation_id":"req-7"}`), nil).Once()

	correlationID, err := client.RequestPayment(context.Background(), "02alice", decimal.NewFromInt(300), "coin", "Round 1 bet x")
	require.NoError(t, err)
	assert.Equal(t, "req-7", correlationID)
	requester.AssertExpectations(t)
}

func TestClient_ErrorMapping(t *testing.T) {
	t.Parallel()

	token := &entities.Token{ID: "tok-1", CoinID: "coin", Amount: decimal.NewFromInt(10)}

	tests := []struct {
		name      string
		reply     []byte
		replyErr  error
		wantIs    error
		wantOther bool
	}{
		{name: "exists", reply: []byte(`{"code":"exists","error":"already burned"}`), wantIs: entities.ErrCommitmentExists},
		{name: "timeout", replyErr: nats.ErrTimeout, wantIs: entities.ErrLedgerUnavailable},
		{name: "no responders", replyErr: nats.ErrNoResponders, wantIs: entities.ErrLedgerUnavailable},
		{name: "deadline", replyErr: context.DeadlineExceeded, wantIs: entities.ErrLedgerUnavailable},
		{name: "rejected", reply: []byte(`{"code":"invalid_proof","error":"bad proof"}`), wantOther: true},
		{name: "garbage reply", reply: []byte(`not json`), wantOther: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			requester := new(MockRequester)
			requester.On("Request", mock.Anything, SubjectBurnToken, mock.Anything).Return(tt.reply, tt.replyErr)

			err := NewClient(requester, time.Second).BurnToken(context.Background(), token)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantOther {
				assert.False(t, errors.Is(err, entities.ErrCommitmentExists))
				assert.False(t, errors.Is(err, entities.ErrLedgerUnavailable))
			}
		})
	}
}

func TestClient_MintSplitReturnsExistingPair(t *testing.T) {
	t.Parallel()

	requester := new(MockRequester)
	client := NewClient(requester, time.Second)

	burned := &entities.Token{ID: "tok-1", CoinID: "coin", Amount: decimal.NewFromInt(1000)}
	prepared := &entities.MintedPair{
		Outgoing: &entities.Token{ID: "out-new", Amount: decimal.NewFromInt(200)},
		Change:   &entities.Token{ID: "chg-new", Amount: decimal.NewFromInt(800)},
	}

	requester.On("Request", mock.Anything, SubjectMintSplit, mock.Anything).Return(
		[]byte(`{"code":"exists","outgoing":{"id":"out-old","amount":"200"},"change":{"id":"chg-old","amount":"800"}}`), nil).Once()

	minted, err := client.MintSplit(context.Background(), burned, prepared)
	assert.ErrorIs(t, err, entities.ErrCommitmentExists)
	require.NotNil(t, minted)
	assert.Equal(t, "out-old", minted.Outgoing.ID)
	assert.Equal(t, "chg-old", minted.Change.ID)

	requester.On("Request", mock.Anything, SubjectMintSplit, mock.Anything).Return([]byte(`{}`), nil).Once()
	minted, err = client.MintSplit(context.Background(), burned, prepared)
	require.NoError(t, err)
	assert.Same(t, prepared, minted)
}

func TestClient_TransferToken(t *testing.T) {
	t.Parallel()

	requester := new(MockRequester)
	client := NewClient(requester, time.Second)
	token := &entities.Token{ID: "tok-9", Amount: decimal.NewFromInt(50)}

	requester.On("Request", mock.Anything, SubjectTransferToken, requestWith("recipient", "02bob")).
		Return([]byte(`{"tx_id":"ltx-1"}`), nil).Once()

	txID, err := client.TransferToken(context.Background(), token, "02bob")
	require.NoError(t, err)
	assert.Equal(t, "ltx-1", txID)
}
