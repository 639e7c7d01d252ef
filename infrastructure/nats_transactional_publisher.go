package infrastructure

import (
	"context"
	"sync"

	"digitlotto/domain/interfaces"
	"digitlotto/events"

	log "github.com/sirupsen/logrus"
)

// NATSTransactionalPublisher holds events until flush, then publishes them.
// Flush follows a database commit, Discard a rollback.
type NATSTransactionalPublisher struct {
	mu            sync.Mutex
	realPublisher interfaces.EventPublisher
	pending       []events.Event
}

// NewNATSTransactionalPublisher creates a new transactional publisher
func NewNATSTransactionalPublisher(realPublisher interfaces.EventPublisher) *NATSTransactionalPublisher {
	return &NATSTransactionalPublisher{
		realPublisher: realPublisher,
		pending:       make([]events.Event, 0),
	}
}

// Publish stores an event in the pending queue without immediately publishing
func (p *NATSTransactionalPublisher) Publish(event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = append(p.pending, event)
	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"pendingCount": len(p.pending),
	}).Debug("Queued event until commit")
	return nil
}

// Flush publishes all pending events. Individual failures are logged and skipped.
func (p *NATSTransactionalPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.pending
	p.pending = make([]events.Event, 0)
	p.mu.Unlock()

	for _, event := range pending {
		if err := p.realPublisher.Publish(event); err != nil {
			log.WithFields(log.Fields{
				"eventType": event.Type(),
				"error":     err,
			}).Error("Failed to publish event during flush")
		}
	}

	log.WithField("flushedCount", len(pending)).Debug("Flushed pending events")
	return nil
}

// Discard clears all pending events without publishing them
func (p *NATSTransactionalPublisher) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()

	log.WithField("discardedEventCount", len(p.pending)).Debug("Discarding pending events")
	p.pending = make([]events.Event, 0)
}

// PendingCount returns the number of queued events
func (p *NATSTransactionalPublisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
