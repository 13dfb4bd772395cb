package source

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/witnz/rowdiff/internal/results"
)

// Postgres runs queries against a connection pool. Values are read in
// their text representation so every column stringifies exactly as the
// server prints it.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (p *Postgres) Run(ctx context.Context, name, sql string) (results.Table, error) {
	rows, err := p.pool.Query(ctx, sql, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return nil, fmt.Errorf("failed to run query %s: %w", name, err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	names := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		names[i] = fd.Name
	}

	table := results.Table{}
	for rows.Next() {
		row, err := buildRow(names, rows.RawValues())
		if err != nil {
			return nil, fmt.Errorf("failed to read row for %s: %w", name, err)
		}
		table = append(table, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for %s: %w", name, err)
	}

	return table, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
