package memgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/censys/nmap-graph/pkg/graph"
)

var (
	host = graph.HostKey{IP: "10.0.0.5"}
	ssh  = graph.PortKey{Number: "22", State: "open", Protocol: "tcp", Service: "ssh"}
)

func mergeAll(ctx context.Context, tx graph.Tx) error {
	if err := tx.MergePort(ctx, ssh); err != nil {
		return err
	}
	if err := tx.MergeHost(ctx, host); err != nil {
		return err
	}
	return tx.MergeOpen(ctx, ssh, host)
}

func TestMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.ExecuteWrite(ctx, mergeAll))
	require.NoError(t, s.ExecuteWrite(ctx, mergeAll))

	assert.Equal(t, graph.Counts{Hosts: 1, Ports: 1, Relationships: 1}, s.Counts())
	assert.Equal(t, 2, s.Transactions())
	assert.True(t, s.HasOpen(ssh, host))
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.ExecuteWrite(ctx, func(ctx context.Context, tx graph.Tx) error {
		if err := tx.MergePort(ctx, ssh); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, graph.Counts{}, s.Counts())
}

func TestFailHost(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("connection reset")

	s.FailHost(host.IP, boom)
	require.ErrorIs(t, s.ExecuteWrite(ctx, mergeAll), boom)
	assert.False(t, s.HasHost(host))

	s.FailHost(host.IP, nil)
	require.NoError(t, s.ExecuteWrite(ctx, mergeAll))
	assert.True(t, s.HasHost(host))
}

func TestMergeOpenRequiresNodes(t *testing.T) {
	s := New()
	err := s.ExecuteWrite(context.Background(), func(ctx context.Context, tx graph.Tx) error {
		return tx.MergeOpen(ctx, ssh, host)
	})
	require.Error(t, err)
	assert.Equal(t, graph.Counts{}, s.Counts())
}
