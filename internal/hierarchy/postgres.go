package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory reads the manager/equipe/commercial hierarchy maintained
// by the CRUD backend. All queries are read-only.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a directory to the relational schema at dsn.
func NewPostgres(ctx context.Context, dsn string) (*PostgresDirectory, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: connect: %w", err)
	}
	return &PostgresDirectory{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool, sharing connections with the
// history store.
func NewPostgresFromPool(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// Close releases the underlying pool.
func (d *PostgresDirectory) Close() {
	d.pool.Close()
}

// A commercial is in a manager's roster when attached directly or through
// one of the manager's teams.
const rosterQuery = `
SELECT c.id
FROM commercial c
LEFT JOIN equipe e ON e.id = c.equipe_id
WHERE c.manager_id = $1 OR e.manager_id = $1`

func (d *PostgresDirectory) Roster(ctx context.Context, managerID string) ([]string, error) {
	rows, err := d.pool.Query(ctx, rosterQuery, managerID)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: roster for %s: %w", managerID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("hierarchy: scan roster row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *PostgresDirectory) IsUnderManager(ctx context.Context, managerID, commercialID string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1
  FROM commercial c
  LEFT JOIN equipe e ON e.id = c.equipe_id
  WHERE c.id = $2 AND (c.manager_id = $1 OR e.manager_id = $1)
)`
	var ok bool
	if err := d.pool.QueryRow(ctx, q, managerID, commercialID).Scan(&ok); err != nil {
		return false, fmt.Errorf("hierarchy: membership check %s/%s: %w", managerID, commercialID, err)
	}
	return ok, nil
}

func (d *PostgresDirectory) CommercialManagerID(ctx context.Context, commercialID string) (string, error) {
	const q = `
SELECT COALESCE(c.manager_id, e.manager_id, '')
FROM commercial c
LEFT JOIN equipe e ON e.id = c.equipe_id
WHERE c.id = $1`
	var managerID string
	err := d.pool.QueryRow(ctx, q, commercialID).Scan(&managerID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && managerID == "") {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("hierarchy: manager of %s: %w", commercialID, err)
	}
	return managerID, nil
}

func (d *PostgresDirectory) CommercialName(ctx context.Context, commercialID string) (string, error) {
	const q = `SELECT prenom || ' ' || nom FROM commercial WHERE id = $1`
	var name string
	err := d.pool.QueryRow(ctx, q, commercialID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("hierarchy: name of %s: %w", commercialID, err)
	}
	return name, nil
}
