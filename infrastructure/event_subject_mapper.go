package infrastructure

import (
	"strings"

	"digitlotto/events"
)

// SubjectPrefix namespaces every domain event subject
const SubjectPrefix = "lotto"

// DomainEventStream is the JetStream stream holding domain events
const DomainEventStream = "lotto_events"

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its NATS subject, e.g. lotto.round.closed
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	return SubjectPrefix + "." + string(event.Type())
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	return events.EventType(strings.TrimPrefix(subject, SubjectPrefix+"."))
}

// GetAllSubjects returns all subjects that this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	subjects := make([]string, 0, len(events.AllEventTypes))
	for _, eventType := range events.AllEventTypes {
		subjects = append(subjects, SubjectPrefix+"."+string(eventType))
	}
	return subjects
}
