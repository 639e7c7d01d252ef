package repository

import (
	"context"
	"errors"
	"fmt"

	"digitlotto/application"
	"digitlotto/database"
	"digitlotto/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the application.UnitOfWork interface
type unitOfWork struct {
	db                     *database.DB
	tx                     pgx.Tx
	ctx                    context.Context
	transactionalPublisher interfaces.TransactionalEventPublisher
	roundRepo              interfaces.RoundRepository
	betRepo                interfaces.BetRepository
	commissionRepo         interfaces.CommissionRepository
}

// UnitOfWorkFactory creates database units of work
type UnitOfWorkFactory struct {
	db *database.DB
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{db: db}
}

// CreateWithPublisher creates a new UnitOfWork whose events are released on commit
func (f *UnitOfWorkFactory) CreateWithPublisher(transactionalPublisher interfaces.TransactionalEventPublisher) application.UnitOfWork {
	return &unitOfWork{
		db:                     f.db,
		transactionalPublisher: transactionalPublisher,
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.roundRepo = newRoundRepositoryWithTx(tx)
	u.betRepo = newBetRepositoryWithTx(tx)
	u.commissionRepo = newCommissionRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	// Events are best-effort once the transaction is durable
	if u.transactionalPublisher != nil {
		_ = u.transactionalPublisher.Flush(u.ctx)
	}

	return nil
}

// Rollback rolls back the transaction. Safe to call after Commit.
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	if u.transactionalPublisher != nil {
		u.transactionalPublisher.Discard()
	}

	return nil
}

// RoundRepository returns the round repository for this unit of work
func (u *unitOfWork) RoundRepository() interfaces.RoundRepository {
	if u.roundRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.roundRepo
}

// BetRepository returns the bet repository for this unit of work
func (u *unitOfWork) BetRepository() interfaces.BetRepository {
	if u.betRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.betRepo
}

// CommissionRepository returns the commission repository for this unit of work
func (u *unitOfWork) CommissionRepository() interfaces.CommissionRepository {
	if u.commissionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.commissionRepo
}

// EventBus returns the transactional event publisher for this unit of work
func (u *unitOfWork) EventBus() interfaces.EventPublisher {
	if u.transactionalPublisher == nil {
		panic("unit of work has no event publisher")
	}
	return u.transactionalPublisher
}
