package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/censys/nmap-graph/pkg/graph"
)

func openStore(t *testing.T) (*Store, context.Context) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := NewDB(ctx, dsn)
	if err != nil {
		t.Fatalf("database unavailable: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE open_ports, ports, hosts"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewStore(pool), ctx
}

// Integration test that ensures repeated merges never duplicate rows.
func TestExecuteWriteMergesIdempotently(t *testing.T) {
	store, ctx := openStore(t)

	host := graph.HostKey{IP: "10.0.0.9", Hostname: "dup.lan"}
	port := graph.PortKey{Number: "443", State: "open", Protocol: "tcp", Service: "https", Product: "nginx", Version: "1.25.3"}

	write := func(ctx context.Context, tx graph.Tx) error {
		if err := tx.MergePort(ctx, port); err != nil {
			return err
		}
		if err := tx.MergeHost(ctx, host); err != nil {
			return err
		}
		return tx.MergeOpen(ctx, port, host)
	}

	for i := 0; i < 3; i++ {
		if err := store.ExecuteWrite(ctx, write); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	got, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := graph.Counts{Hosts: 1, Ports: 1, Relationships: 1}
	if got != want {
		t.Fatalf("counts mismatch: got %+v want %+v", got, want)
	}
}

func TestExecuteWriteRollsBackOnError(t *testing.T) {
	store, ctx := openStore(t)

	boom := errors.New("boom")
	err := store.ExecuteWrite(ctx, func(ctx context.Context, tx graph.Tx) error {
		if err := tx.MergeHost(ctx, graph.HostKey{IP: "10.0.0.1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if got != (graph.Counts{}) {
		t.Fatalf("expected empty graph after rollback, got %+v", got)
	}
}
