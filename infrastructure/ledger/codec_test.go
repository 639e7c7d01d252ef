package ledger

import (
	"testing"

	"digitlotto/domain/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope_ValueReceived(t *testing.T) {
	t.Parallel()

	payload, err := DecodeEnvelope([]byte(`{
		"kind": "value_received",
		"correlation_id": "req-1",
		"sender": "02aa",
		"amount": "5000000000000000000",
		"coin_id": "coin",
		"tx_id": "tx-1",
		"received_at": "2024-03-01T12:00:00Z"
	}`))
	require.NoError(t, err)

	receipt, ok := payload.(entities.ValueReceived)
	require.True(t, ok)
	assert.Equal(t, entities.PayloadKindValueReceived, receipt.Kind())
	assert.Equal(t, "req-1", receipt.CorrelationID)
	assert.True(t, receipt.Amount.Equal(decimal.RequireFromString("5000000000000000000")))
	assert.Equal(t, 2024, receipt.ReceivedAt.Year())
}

func TestDecodeEnvelope_NumericAmount(t *testing.T) {
	t.Parallel()

	payload, err := DecodeEnvelope([]byte(`{"kind":"value_received","sender":"02aa","amount":250,"coin_id":"c","tx_id":"t"}`))
	require.NoError(t, err)
	assert.True(t, payload.(entities.ValueReceived).Amount.Equal(decimal.NewFromInt(250)))
}

func TestDecodeEnvelope_PaymentResponse(t *testing.T) {
	t.Parallel()

	payload, err := DecodeEnvelope([]byte(`{"kind":"payment_response","correlation_id":"req-2","payer":"02bb","accepted":false,"reason":"declined"}`))
	require.NoError(t, err)

	response, ok := payload.(entities.PaymentResponse)
	require.True(t, ok)
	assert.False(t, response.Accepted)
	assert.Equal(t, "declined", response.Reason)
}

func TestDecodeEnvelope_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing kind", `{"tx_id":"t"}`},
		{"unknown kind", `{"kind":"token_minted"}`},
		{"receipt without tx", `{"kind":"value_received","sender":"s","amount":"1","coin_id":"c"}`},
		{"receipt without origin", `{"kind":"value_received","amount":"1","coin_id":"c","tx_id":"t"}`},
		{"receipt without coin", `{"kind":"value_received","sender":"s","amount":"1","tx_id":"t"}`},
		{"missing amount", `{"kind":"value_received","sender":"s","coin_id":"c","tx_id":"t"}`},
		{"zero amount", `{"kind":"value_received","sender":"s","amount":"0","coin_id":"c","tx_id":"t"}`},
		{"fractional amount", `{"kind":"value_received","sender":"s","amount":"1.5","coin_id":"c","tx_id":"t"}`},
		{"non numeric amount", `{"kind":"value_received","sender":"s","amount":"lots","coin_id":"c","tx_id":"t"}`},
		{"response without correlation", `{"kind":"payment_response","accepted":true}`},
		{"response without flag", `{"kind":"payment_response","correlation_id":"r"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			payload, err := DecodeEnvelope([]byte(tt.data))
			assert.Error(t, err)
			assert.Nil(t, payload)
		})
	}
}
