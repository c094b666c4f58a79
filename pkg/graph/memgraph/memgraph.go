// Package memgraph is an in-process graph store with merge semantics. It
// backs dry runs and tests.
package memgraph

import (
	"context"
	"fmt"
	"sync"

	"github.com/censys/nmap-graph/pkg/graph"
)

type edge struct {
	port graph.PortKey
	host graph.HostKey
}

// Store holds nodes and OPEN relationships in memory.
type Store struct {
	mu       sync.Mutex
	hosts    map[graph.HostKey]struct{}
	ports    map[graph.PortKey]struct{}
	edges    map[edge]struct{}
	txCount  int
	failures map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		hosts:    make(map[graph.HostKey]struct{}),
		ports:    make(map[graph.PortKey]struct{}),
		edges:    make(map[edge]struct{}),
		failures: make(map[string]error),
	}
}

// FailHost makes every transaction that merges a host with the given IP
// fail with err. Pass a nil err to clear it.
func (s *Store) FailHost(ip string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, ip)
		return
	}
	s.failures[ip] = err
}

// ExecuteWrite stages the merges made by fn and applies them only if fn
// succeeds.
func (s *Store) ExecuteWrite(ctx context.Context, fn func(ctx context.Context, tx graph.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.txCount++
	s.mu.Unlock()

	tx := &tx{
		store: s,
		hosts: make(map[graph.HostKey]struct{}),
		ports: make(map[graph.PortKey]struct{}),
		edges: make(map[edge]struct{}),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range tx.hosts {
		s.hosts[k] = struct{}{}
	}
	for k := range tx.ports {
		s.ports[k] = struct{}{}
	}
	for k := range tx.edges {
		s.edges[k] = struct{}{}
	}
	return nil
}

// Counts reports the number of committed nodes and relationships.
func (s *Store) Counts() graph.Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return graph.Counts{
		Hosts:         len(s.hosts),
		Ports:         len(s.ports),
		Relationships: len(s.edges),
	}
}

// Transactions returns how many write transactions were started.
func (s *Store) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

// HasHost reports whether a committed Host node with key exists.
func (s *Store) HasHost(key graph.HostKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hosts[key]
	return ok
}

// HasOpen reports whether port is related to host.
func (s *Store) HasOpen(port graph.PortKey, host graph.HostKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.edges[edge{port: port, host: host}]
	return ok
}

type tx struct {
	store *Store
	hosts map[graph.HostKey]struct{}
	ports map[graph.PortKey]struct{}
	edges map[edge]struct{}
}

func (t *tx) MergeHost(ctx context.Context, host graph.HostKey) error {
	t.store.mu.Lock()
	err := t.store.failures[host.IP]
	t.store.mu.Unlock()
	if err != nil {
		return err
	}
	t.hosts[host] = struct{}{}
	return nil
}

func (t *tx) MergePort(ctx context.Context, port graph.PortKey) error {
	t.ports[port] = struct{}{}
	return nil
}

func (t *tx) MergeOpen(ctx context.Context, port graph.PortKey, host graph.HostKey) error {
	if _, ok := t.ports[port]; !ok {
		return fmt.Errorf("merge OPEN: port %s/%s not merged in transaction", port.Number, port.Protocol)
	}
	if _, ok := t.hosts[host]; !ok {
		return fmt.Errorf("merge OPEN: host %s not merged in transaction", host.IP)
	}
	t.edges[edge{port: port, host: host}] = struct{}{}
	return nil
}
