package application

import (
	"context"

	"digitlotto/domain/interfaces"
)

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and releases held events
	Commit() error

	// Rollback rolls back the transaction and drops held events
	Rollback() error

	// Repository getters
	RoundRepository() interfaces.RoundRepository
	BetRepository() interfaces.BetRepository
	CommissionRepository() interfaces.CommissionRepository
	EventBus() interfaces.EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
