// Package bolt writes the host/port graph to Neo4j over Bolt using Cypher
// MERGE statements.
package bolt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/censys/nmap-graph/pkg/graph"
)

const (
	mergeHostQuery = `MERGE (h:Host {ip: $ip, hostname: $hostname})`

	mergePortQuery = `MERGE (p:Port {port: $port, state: $state, protocol: $protocol, service: $service, product: $product, version: $version})`

	mergeOpenQuery = `MATCH (p:Port {port: $port, state: $state, protocol: $protocol, service: $service, product: $product, version: $version})
MATCH (h:Host {ip: $ip, hostname: $hostname})
MERGE (p)-[:OPEN]->(h)`
)

var indexes = []string{
	"CREATE INDEX host_identity IF NOT EXISTS FOR (h:Host) ON (h.ip, h.hostname)",
	"CREATE INDEX port_identity IF NOT EXISTS FOR (p:Port) ON (p.port, p.protocol, p.service)",
}

// Store opens one explicit write transaction per ExecuteWrite call. Explicit
// transactions are used instead of managed ones so the driver never retries
// a host on its own.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	schema   func(ctx context.Context, query string) error
}

// NewStore wraps a driver. An empty database selects the server default.
func NewStore(driver neo4j.DriverWithContext, database string) *Store {
	s := &Store{driver: driver, database: database}
	s.schema = s.executeSchema
	return s
}

// NewDriver connects to uri with basic auth and verifies connectivity.
func NewDriver(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return driver, nil
}

// EnsureIndexes creates lookup indexes for the merge keys. Failures are
// logged and otherwise ignored: merges stay correct without them.
func (s *Store) EnsureIndexes(ctx context.Context) {
	for _, index := range indexes {
		if err := s.schema(ctx, index); err != nil {
			slog.Warn("failed to create index", "query", index, "error", err)
		}
	}
}

// executeSchema runs a schema statement to completion. ExecuteQuery drains
// the result, so server-side failures surface as its error.
func (s *Store) executeSchema(ctx context.Context, query string) error {
	_, err := neo4j.ExecuteQuery(ctx, s.driver, query, nil,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
		neo4j.ExecuteQueryWithWritersRouting(),
	)
	return err
}

// ExecuteWrite runs fn in one explicit transaction and commits it when fn
// succeeds. The session is closed on every path.
func (s *Store) ExecuteWrite(ctx context.Context, fn func(ctx context.Context, tx graph.Tx) error) error {
	session := s.newSession(ctx)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Close(ctx)

	if err := fn(ctx, &cypherTx{runner: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) newSession(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
}

type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error)
}

type cypherTx struct {
	runner runner
}

func (t *cypherTx) MergeHost(ctx context.Context, host graph.HostKey) error {
	if _, err := t.runner.Run(ctx, mergeHostQuery, hostParams(host, nil)); err != nil {
		return fmt.Errorf("merge host %s: %w", host.IP, err)
	}
	return nil
}

func (t *cypherTx) MergePort(ctx context.Context, port graph.PortKey) error {
	if _, err := t.runner.Run(ctx, mergePortQuery, portParams(port, nil)); err != nil {
		return fmt.Errorf("merge port %s/%s: %w", port.Number, port.Protocol, err)
	}
	return nil
}

func (t *cypherTx) MergeOpen(ctx context.Context, port graph.PortKey, host graph.HostKey) error {
	params := hostParams(host, portParams(port, nil))
	if _, err := t.runner.Run(ctx, mergeOpenQuery, params); err != nil {
		return fmt.Errorf("merge open %s/%s -> %s: %w", port.Number, port.Protocol, host.IP, err)
	}
	return nil
}

func hostParams(host graph.HostKey, params map[string]any) map[string]any {
	if params == nil {
		params = make(map[string]any, 2)
	}
	params["ip"] = host.IP
	params["hostname"] = host.Hostname
	return params
}

func portParams(port graph.PortKey, params map[string]any) map[string]any {
	if params == nil {
		params = make(map[string]any, 8)
	}
	params["port"] = port.Number
	params["state"] = port.State
	params["protocol"] = port.Protocol
	params["service"] = port.Service
	params["product"] = port.Product
	params["version"] = port.Version
	return params
}
