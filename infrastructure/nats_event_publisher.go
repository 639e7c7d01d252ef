package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"digitlotto/events"
	"digitlotto/infrastructure/observability"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventEnvelope wraps every domain event published to NATS
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

// messagePublisher is the slice of NATSClient the event publisher needs
type messagePublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSEventPublisher delivers events to the in-process bus and then to NATS
type NATSEventPublisher struct {
	client        messagePublisher
	subjectMapper *EventSubjectMapper
	localBus      *events.Bus
}

// NewNATSEventPublisher creates a new NATS event publisher. localBus may be nil.
func NewNATSEventPublisher(client messagePublisher, subjectMapper *EventSubjectMapper, localBus *events.Bus) *NATSEventPublisher {
	return &NATSEventPublisher{
		client:        client,
		subjectMapper: subjectMapper,
		localBus:      localBus,
	}
}

// Publish publishes an event to NATS using the appropriate subject
func (p *NATSEventPublisher) Publish(event events.Event) error {
	ctx := context.Background()

	if p.localBus != nil {
		p.localBus.Emit(ctx, event)
	}

	subject := p.subjectMapper.MapEventToSubject(event)

	envelope, err := newEnvelope(event)
	if err != nil {
		return err
	}

	envelopeData, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := p.client.Publish(ctx, subject, envelopeData); err != nil {
		// No stream bound to the subject; nobody is listening
		if strings.Contains(err.Error(), "no response from stream") {
			return nil
		}
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	observability.GetMetrics().RecordNATSMessagePublished(string(event.Type()))

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Successfully published event to NATS")

	return nil
}

func newEnvelope(event events.Event) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     time.Now().UTC(),
		SourceService: "digitlotto",
		Payload:       payload,
	}, nil
}

// EnsureDomainEventStream ensures the domain event stream exists with the correct subjects
func EnsureDomainEventStream(client *NATSClient, subjectMapper *EventSubjectMapper) error {
	return client.EnsureStream(DomainEventStream, subjectMapper.GetAllSubjects(), "Lottery settlement domain events")
}
