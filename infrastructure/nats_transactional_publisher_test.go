package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"digitlotto/events"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu              sync.Mutex
	PublishedEvents []events.Event
	PublishError    error
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishError != nil {
		return m.PublishError
	}
	m.PublishedEvents = append(m.PublishedEvents, event)
	return nil
}

func TestNATSTransactionalPublisher_FlushPublishesInOrder(t *testing.T) {
	t.Parallel()

	mockPublisher := &MockEventPublisher{}
	transPublisher := NewNATSTransactionalPublisher(mockPublisher)

	closed := events.RoundClosedEvent{RoundID: 1, RoundNumber: 1, TotalPool: decimal.NewFromInt(300)}
	drawn := events.RoundDrawnEvent{RoundID: 1, RoundNumber: 1, WinningDigit: 4}

	require.NoError(t, transPublisher.Publish(closed))
	require.NoError(t, transPublisher.Publish(drawn))

	// Nothing leaves before the commit
	assert.Empty(t, mockPublisher.PublishedEvents)
	assert.Equal(t, 2, transPublisher.PendingCount())

	require.NoError(t, transPublisher.Flush(context.Background()))

	require.Len(t, mockPublisher.PublishedEvents, 2)
	assert.Equal(t, closed, mockPublisher.PublishedEvents[0])
	assert.Equal(t, drawn, mockPublisher.PublishedEvents[1])
	assert.Zero(t, transPublisher.PendingCount())
}

func TestNATSTransactionalPublisher_Discard(t *testing.T) {
	t.Parallel()

	mockPublisher := &MockEventPublisher{}
	transPublisher := NewNATSTransactionalPublisher(mockPublisher)

	require.NoError(t, transPublisher.Publish(events.PaymentExpiredEvent{BetID: 9, InvoiceID: "inv"}))
	transPublisher.Discard()

	require.NoError(t, transPublisher.Flush(context.Background()))
	assert.Empty(t, mockPublisher.PublishedEvents)
}

func TestNATSTransactionalPublisher_FlushContinuesPastErrors(t *testing.T) {
	t.Parallel()

	mockPublisher := &MockEventPublisher{PublishError: errors.New("nats down")}
	transPublisher := NewNATSTransactionalPublisher(mockPublisher)

	require.NoError(t, transPublisher.Publish(events.RoundOpenedEvent{RoundID: 2, RoundNumber: 2}))
	require.NoError(t, transPublisher.Publish(events.RoundOpenedEvent{RoundID: 3, RoundNumber: 3}))

	assert.NoError(t, transPublisher.Flush(context.Background()))
	assert.Zero(t, transPublisher.PendingCount())
}

func TestEventSubjectMapper(t *testing.T) {
	t.Parallel()

	mapper := NewEventSubjectMapper()

	tests := []struct {
		event   events.Event
		subject string
	}{
		{events.RoundOpenedEvent{}, "lotto.round.opened"},
		{events.PaymentConfirmedEvent{}, "lotto.payment.confirmed"},
		{events.PayoutFailedEvent{}, "lotto.payout.failed"},
		{events.CommissionWithdrawnEvent{}, "lotto.commission.withdrawn"},
	}

	for _, tt := range tests {
		subject := mapper.MapEventToSubject(tt.event)
		assert.Equal(t, tt.subject, subject)
		assert.Equal(t, tt.event.Type(), mapper.MapSubjectToEventType(subject))
	}

	subjects := mapper.GetAllSubjects()
	assert.Len(t, subjects, len(events.AllEventTypes))
	assert.Contains(t, subjects, "lotto.bet.refunded")
}

type recordingClient struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingClient) Publish(ctx context.Context, subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func TestNATSEventPublisher_EnvelopeAndLocalBus(t *testing.T) {
	t.Parallel()

	client := &recordingClient{}
	bus := events.NewBus()
	delivered := make(chan events.Event, 1)
	bus.Subscribe(events.EventTypePayoutSent, func(ctx context.Context, event events.Event) {
		delivered <- event
	})

	publisher := NewNATSEventPublisher(client, NewEventSubjectMapper(), bus)
	event := events.PayoutSentEvent{BetID: 5, RoundNumber: 2, Recipient: "02ab", Amount: decimal.NewFromInt(195), TxID: "tx-1"}

	require.NoError(t, publisher.Publish(event))

	require.Len(t, client.subjects, 1)
	assert.Equal(t, "lotto.payout.sent", client.subjects[0])

	var envelope EventEnvelope
	require.NoError(t, json.Unmarshal(client.payloads[0], &envelope))
	assert.Equal(t, "payout.sent", envelope.EventType)
	assert.Equal(t, "digitlotto", envelope.SourceService)
	assert.NotEmpty(t, envelope.EventID)

	var payload events.PayoutSentEvent
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, int64(5), payload.BetID)
	assert.True(t, payload.Amount.Equal(decimal.NewFromInt(195)))

	assert.Equal(t, event, <-delivered)
}

func TestNATSEventPublisher_NoStreamIsNotAnError(t *testing.T) {
	t.Parallel()

	client := &recordingClient{err: errors.New("nats: no response from stream")}
	publisher := NewNATSEventPublisher(client, NewEventSubjectMapper(), nil)
	assert.NoError(t, publisher.Publish(events.RoundOpenedEvent{RoundID: 1, RoundNumber: 1}))

	client.err = errors.New("connection closed")
	assert.Error(t, publisher.Publish(events.RoundOpenedEvent{RoundID: 1, RoundNumber: 1}))
}
