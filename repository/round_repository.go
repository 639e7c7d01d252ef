package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"digitlotto/database"
	"digitlotto/domain/entities"
	"digitlotto/domain/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const roundColumns = `id, round_number, status, winning_digit, total_pool, total_payout,
	house_fee, start_time, end_time, draw_time, created_at`

type roundRepository struct {
	q Queryable
}

// NewRoundRepository creates a new round repository
func NewRoundRepository(db *database.DB) interfaces.RoundRepository {
	return &roundRepository{q: db.Pool}
}

// newRoundRepositoryWithTx creates a new round repository with a transaction
func newRoundRepositoryWithTx(tx Queryable) interfaces.RoundRepository {
	return &roundRepository{q: tx}
}

func scanRound(row rowScanner) (*entities.Round, error) {
	var round entities.Round
	err := row.Scan(
		&round.ID,
		&round.RoundNumber,
		&round.Status,
		&round.WinningDigit,
		&round.TotalPool,
		&round.TotalPayout,
		&round.HouseFee,
		&round.StartTime,
		&round.EndTime,
		&round.DrawTime,
		&round.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &round, nil
}

func (r *roundRepository) getOne(ctx context.Context, query string, args ...any) (*entities.Round, error) {
	round, err := scanRound(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return round, nil
}

func (r *roundRepository) getMany(ctx context.Context, query string, args ...any) ([]*entities.Round, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []*entities.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, round)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rounds: %w", err)
	}

	return rounds, nil
}

// Create numbers the new round after the highest existing one. The unique
// round number and the single-open index turn a concurrent create into a
// no-op, so numbering stays gapless.
func (r *roundRepository) Create(ctx context.Context, startTime time.Time) (*entities.Round, error) {
	query := `
		INSERT INTO rounds (round_number, status, start_time)
		SELECT COALESCE(MAX(round_number), 0) + 1, 'open', $1
		FROM rounds
		ON CONFLICT DO NOTHING
		RETURNING ` + roundColumns

	round, err := r.getOne(ctx, query, startTime)
	if err != nil {
		return nil, fmt.Errorf("failed to create round: %w", err)
	}
	return round, nil
}

func (r *roundRepository) GetByID(ctx context.Context, id int64) (*entities.Round, error) {
	round, err := r.getOne(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get round by ID %d: %w", id, err)
	}
	return round, nil
}

// GetByIDForUpdate retrieves a round by ID with row lock for update
func (r *roundRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.Round, error) {
	round, err := r.getOne(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get round for update by ID %d: %w", id, err)
	}
	return round, nil
}

func (r *roundRepository) GetByNumber(ctx context.Context, roundNumber int64) (*entities.Round, error) {
	round, err := r.getOne(ctx, `SELECT `+roundColumns+` FROM rounds WHERE round_number = $1`, roundNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get round %d: %w", roundNumber, err)
	}
	return round, nil
}

func (r *roundRepository) GetCurrentOpen(ctx context.Context) (*entities.Round, error) {
	round, err := r.getOne(ctx, `SELECT `+roundColumns+` FROM rounds WHERE status = 'open'`)
	if err != nil {
		return nil, fmt.Errorf("failed to get open round: %w", err)
	}
	return round, nil
}

func (r *roundRepository) GetUnsettled(ctx context.Context) ([]*entities.Round, error) {
	query := `
		SELECT ` + roundColumns + `
		FROM rounds
		WHERE status IN ('closed', 'drawing', 'paying')
		ORDER BY round_number ASC
	`
	rounds, err := r.getMany(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get unsettled rounds: %w", err)
	}
	return rounds, nil
}

func (r *roundRepository) GetHistory(ctx context.Context, limit int) ([]*entities.Round, error) {
	query := `
		SELECT ` + roundColumns + `
		FROM rounds
		ORDER BY round_number DESC
		LIMIT $1
	`
	rounds, err := r.getMany(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get round history: %w", err)
	}
	return rounds, nil
}

func (r *roundRepository) Close(ctx context.Context, id int64, endTime time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE rounds
		SET status = 'closed', end_time = $2
		WHERE id = $1 AND status = 'open'
	`, id, endTime)
	if err != nil {
		return false, fmt.Errorf("failed to close round %d: %w", id, err)
	}
	return applied(tag), nil
}

func (r *roundRepository) RecordDraw(ctx context.Context, id int64, digit int, drawTime time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE rounds
		SET status = 'drawing', winning_digit = $2, draw_time = $3
		WHERE id = $1 AND status = 'closed'
	`, id, digit, drawTime)
	if err != nil {
		return false, fmt.Errorf("failed to record draw for round %d: %w", id, err)
	}
	return applied(tag), nil
}

func (r *roundRepository) BeginPaying(ctx context.Context, id int64, houseFee decimal.Decimal) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE rounds
		SET status = 'paying', house_fee = $2
		WHERE id = $1 AND status = 'drawing'
	`, id, houseFee)
	if err != nil {
		return false, fmt.Errorf("failed to begin paying round %d: %w", id, err)
	}
	return applied(tag), nil
}

func (r *roundRepository) Complete(ctx context.Context, id int64, totalPayout decimal.Decimal) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE rounds
		SET status = 'completed', total_payout = $2
		WHERE id = $1 AND status = 'paying'
	`, id, totalPayout)
	if err != nil {
		return false, fmt.Errorf("failed to complete round %d: %w", id, err)
	}
	return applied(tag), nil
}

func (r *roundRepository) IncrementPool(ctx context.Context, id int64, amount decimal.Decimal) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE rounds
		SET total_pool = total_pool + $2
		WHERE id = $1 AND status = 'open'
	`, id, amount)
	if err != nil {
		return false, fmt.Errorf("failed to increment pool for round %d: %w", id, err)
	}
	return applied(tag), nil
}
