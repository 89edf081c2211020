package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. Legs
// are stored as JSONB: they are written and read whole, never queried by
// field.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionSelectCols = `id, opportunity_id, strategy, state, leg1, leg2,
	realized_pnl, started_at, completed_at`

func scanExecutionRow(row pgx.Row) (domain.Execution, error) {
	var e domain.Execution
	var strategy, state string
	var leg1, leg2 []byte

	err := row.Scan(
		&e.ID, &e.OpportunityID, &strategy, &state,
		&leg1, &leg2,
		&e.RealizedPnL, &e.StartedAt, &e.CompletedAt,
	)
	if err != nil {
		return domain.Execution{}, err
	}
	if err := json.Unmarshal(leg1, &e.Leg1); err != nil {
		return domain.Execution{}, fmt.Errorf("decode leg1: %w", err)
	}
	if err := json.Unmarshal(leg2, &e.Leg2); err != nil {
		return domain.Execution{}, fmt.Errorf("decode leg2: %w", err)
	}
	e.Strategy = domain.StrategyKind(strategy)
	e.State = domain.ExecutionState(state)
	return e, nil
}

func scanExecutionRows(rows pgx.Rows) ([]domain.Execution, error) {
	var execs []domain.Execution
	for rows.Next() {
		e, err := scanExecutionRow(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

func encodeLegs(e domain.Execution) (leg1, leg2 []byte, err error) {
	leg1, err = json.Marshal(e.Leg1)
	if err != nil {
		return nil, nil, fmt.Errorf("encode leg1: %w", err)
	}
	leg2, err = json.Marshal(e.Leg2)
	if err != nil {
		return nil, nil, fmt.Errorf("encode leg2: %w", err)
	}
	return leg1, leg2, nil
}

// Create inserts a new execution record.
func (s *ExecutionStore) Create(ctx context.Context, e domain.Execution) error {
	leg1, leg2, err := encodeLegs(e)
	if err != nil {
		return fmt.Errorf("postgres: create execution %s: %w", e.ID, err)
	}

	const query = `
		INSERT INTO executions (
			id, opportunity_id, strategy, state, leg1, leg2,
			realized_pnl, started_at, completed_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`

	_, err = s.pool.Exec(ctx, query,
		e.ID, e.OpportunityID, string(e.Strategy), string(e.State),
		leg1, leg2, e.RealizedPnL, e.StartedAt, e.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create execution %s: %w", e.ID, err)
	}
	return nil
}

// Update replaces the mutable fields of an execution.
func (s *ExecutionStore) Update(ctx context.Context, e domain.Execution) error {
	leg1, leg2, err := encodeLegs(e)
	if err != nil {
		return fmt.Errorf("postgres: update execution %s: %w", e.ID, err)
	}

	const query = `
		UPDATE executions SET
			state        = $2,
			leg1         = $3,
			leg2         = $4,
			realized_pnl = $5,
			completed_at = $6,
			updated_at   = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		e.ID, string(e.State), leg1, leg2, e.RealizedPnL, e.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update execution %s: %w", e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update execution %s: %w", e.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID fetches a single execution.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.Execution, error) {
	query := `SELECT ` + executionSelectCols + ` FROM executions WHERE id = $1`

	e, err := scanExecutionRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Execution{}, fmt.Errorf("postgres: get execution %s: %w", id, domain.ErrNotFound)
		}
		return domain.Execution{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	return e, nil
}

// ListRecent returns the most recently started executions, newest first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + executionSelectCols + ` FROM executions
		ORDER BY started_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent executions: %w", err)
	}
	defer rows.Close()

	execs, err := scanExecutionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent executions: %w", err)
	}
	return execs, nil
}

// ListUnhedged returns executions whose first leg filled but whose second
// leg never did. These carry open directional risk and are the first thing
// an operator should review after a restart.
func (s *ExecutionStore) ListUnhedged(ctx context.Context) ([]domain.Execution, error) {
	query := `SELECT ` + executionSelectCols + ` FROM executions
		WHERE state IN ($1, $2) ORDER BY started_at ASC`

	rows, err := s.pool.Query(ctx, query,
		string(domain.ExecLeg2TimedOut), string(domain.ExecLeg2Failed))
	if err != nil {
		return nil, fmt.Errorf("postgres: list unhedged executions: %w", err)
	}
	defer rows.Close()

	execs, err := scanExecutionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unhedged executions: %w", err)
	}
	return execs, nil
}

// SumPnL totals the realized PnL of completed executions started at or
// after the given time.
func (s *ExecutionStore) SumPnL(ctx context.Context, since time.Time) (float64, error) {
	const query = `SELECT COALESCE(SUM(realized_pnl), 0) FROM executions
		WHERE state = $1 AND started_at >= $2`

	var total float64
	err := s.pool.QueryRow(ctx, query, string(domain.ExecComplete), since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum pnl: %w", err)
	}
	return total, nil
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
