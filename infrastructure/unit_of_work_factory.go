package infrastructure

import (
	"digitlotto/application"
	"digitlotto/database"
	"digitlotto/domain/interfaces"
	"digitlotto/repository"
)

// UnitOfWorkFactory gives every unit of work its own transactional publisher
type UnitOfWorkFactory struct {
	repoFactory interface {
		CreateWithPublisher(transactionalPublisher interfaces.TransactionalEventPublisher) application.UnitOfWork
	}
	eventPublisher interfaces.EventPublisher
}

// NewUnitOfWorkFactory creates a factory implementing application.UnitOfWorkFactory
func NewUnitOfWorkFactory(db *database.DB, eventPublisher interfaces.EventPublisher) application.UnitOfWorkFactory {
	return &UnitOfWorkFactory{
		repoFactory:    repository.NewUnitOfWorkFactory(db),
		eventPublisher: eventPublisher,
	}
}

// Create creates a new UnitOfWork whose events are released on commit
func (f *UnitOfWorkFactory) Create() application.UnitOfWork {
	return f.repoFactory.CreateWithPublisher(NewNATSTransactionalPublisher(f.eventPublisher))
}
