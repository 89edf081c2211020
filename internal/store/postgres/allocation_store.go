package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// AllocationStore implements domain.AllocationStore using PostgreSQL.
// Allocations are append-only; they exist for audit and are never updated.
type AllocationStore struct {
	pool *pgxpool.Pool
}

// NewAllocationStore creates an AllocationStore backed by the given pool.
func NewAllocationStore(pool *pgxpool.Pool) *AllocationStore {
	return &AllocationStore{pool: pool}
}

const allocationSelectCols = `id, opportunity_id, strategy, requested_usd,
	approved_usd, capital_pct, created_at, expires_at`

func scanAllocationRow(row pgx.Row) (domain.CapitalAllocation, error) {
	var a domain.CapitalAllocation
	var strategy string

	err := row.Scan(
		&a.ID, &a.OpportunityID, &strategy,
		&a.RequestedUSD, &a.ApprovedUSD, &a.CapitalPct,
		&a.CreatedAt, &a.ExpiresAt,
	)
	if err != nil {
		return domain.CapitalAllocation{}, err
	}
	a.Strategy = domain.StrategyKind(strategy)
	return a, nil
}

// Create inserts an allocation.
func (s *AllocationStore) Create(ctx context.Context, a domain.CapitalAllocation) error {
	const query = `
		INSERT INTO allocations (
			id, opportunity_id, strategy, requested_usd,
			approved_usd, capital_pct, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.OpportunityID, string(a.Strategy),
		a.RequestedUSD, a.ApprovedUSD, a.CapitalPct,
		a.CreatedAt, a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create allocation %s: %w", a.ID, err)
	}
	return nil
}

// GetByID fetches a single allocation.
func (s *AllocationStore) GetByID(ctx context.Context, id string) (domain.CapitalAllocation, error) {
	query := `SELECT ` + allocationSelectCols + ` FROM allocations WHERE id = $1`

	a, err := scanAllocationRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CapitalAllocation{}, fmt.Errorf("postgres: get allocation %s: %w", id, domain.ErrNotFound)
		}
		return domain.CapitalAllocation{}, fmt.Errorf("postgres: get allocation %s: %w", id, err)
	}
	return a, nil
}

// ListRecent returns the most recently created allocations, newest first.
func (s *AllocationStore) ListRecent(ctx context.Context, limit int) ([]domain.CapitalAllocation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + allocationSelectCols + ` FROM allocations
		ORDER BY created_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent allocations: %w", err)
	}
	defer rows.Close()

	var allocations []domain.CapitalAllocation
	for rows.Next() {
		a, err := scanAllocationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list recent allocations: %w", err)
		}
		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent allocations: %w", err)
	}
	return allocations, nil
}

var _ domain.AllocationStore = (*AllocationStore)(nil)
