// Package postgres stores the host/port graph in PostgreSQL: one table per
// node label and one for OPEN relationships, each keyed by the full node
// key so that every insert is a merge.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/censys/nmap-graph/pkg/graph"
)

type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pool. Call EnsureSchema before using it.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the node and relationship tables if they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := `
CREATE TABLE IF NOT EXISTS hosts (
  ip TEXT NOT NULL,
  hostname TEXT NOT NULL,
  PRIMARY KEY (ip, hostname)
);
CREATE TABLE IF NOT EXISTS ports (
  number TEXT NOT NULL,
  state TEXT NOT NULL,
  protocol TEXT NOT NULL,
  service TEXT NOT NULL,
  product TEXT NOT NULL,
  version TEXT NOT NULL,
  PRIMARY KEY (number, state, protocol, service, product, version)
);
CREATE TABLE IF NOT EXISTS open_ports (
  number TEXT NOT NULL,
  state TEXT NOT NULL,
  protocol TEXT NOT NULL,
  service TEXT NOT NULL,
  product TEXT NOT NULL,
  version TEXT NOT NULL,
  ip TEXT NOT NULL,
  hostname TEXT NOT NULL,
  PRIMARY KEY (number, state, protocol, service, product, version, ip, hostname),
  FOREIGN KEY (number, state, protocol, service, product, version)
    REFERENCES ports (number, state, protocol, service, product, version),
  FOREIGN KEY (ip, hostname) REFERENCES hosts (ip, hostname)
);`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ERROR creating graph tables: %w", err)
	}
	return nil
}

// ExecuteWrite runs fn inside one database transaction.
func (s *Store) ExecuteWrite(ctx context.Context, fn func(ctx context.Context, tx graph.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

// Counts returns the number of rows in each graph table.
func (s *Store) Counts(ctx context.Context) (graph.Counts, error) {
	const query = `
SELECT
  (SELECT count(*) FROM hosts),
  (SELECT count(*) FROM ports),
  (SELECT count(*) FROM open_ports);`
	var c graph.Counts
	if err := s.pool.QueryRow(ctx, query).Scan(&c.Hosts, &c.Ports, &c.Relationships); err != nil {
		return graph.Counts{}, fmt.Errorf("count graph: %w", err)
	}
	return c, nil
}

// Close helps when wiring Store to a lifecycle manager.
func (s *Store) Close() {
	s.pool.Close()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) MergeHost(ctx context.Context, host graph.HostKey) error {
	const query = `
INSERT INTO hosts (ip, hostname)
VALUES ($1, $2)
ON CONFLICT DO NOTHING;`
	if _, err := t.tx.Exec(ctx, query, host.IP, host.Hostname); err != nil {
		return fmt.Errorf("merge host %s: %w", host.IP, err)
	}
	return nil
}

func (t *pgTx) MergePort(ctx context.Context, port graph.PortKey) error {
	const query = `
INSERT INTO ports (number, state, protocol, service, product, version)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING;`
	_, err := t.tx.Exec(ctx, query,
		port.Number,
		port.State,
		port.Protocol,
		port.Service,
		port.Product,
		port.Version,
	)
	if err != nil {
		return fmt.Errorf("merge port %s/%s: %w", port.Number, port.Protocol, err)
	}
	return nil
}

func (t *pgTx) MergeOpen(ctx context.Context, port graph.PortKey, host graph.HostKey) error {
	const query = `
INSERT INTO open_ports (number, state, protocol, service, product, version, ip, hostname)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT DO NOTHING;`
	_, err := t.tx.Exec(ctx, query,
		port.Number,
		port.State,
		port.Protocol,
		port.Service,
		port.Product,
		port.Version,
		host.IP,
		host.Hostname,
	)
	if err != nil {
		return fmt.Errorf("merge open %s/%s -> %s: %w", port.Number, port.Protocol, host.IP, err)
	}
	return nil
}

// NewDB opens a pgx pool with tuned defaults.
func NewDB(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	// Hosts are written one at a time; a couple of connections is plenty.
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}
