package graph

import (
	"context"

	"github.com/censys/nmap-graph/pkg/report"
)

// Labels and relationship type used by every backend.
const (
	LabelHost = "Host"
	LabelPort = "Port"
	RelOpen   = "OPEN"
)

// HostKey is the property set that identifies a Host node.
type HostKey struct {
	IP       string
	Hostname string
}

// PortKey is the property set that identifies a Port node.
type PortKey struct {
	Number   string
	State    string
	Protocol string
	Service  string
	Product  string
	Version  string
}

// HostKeyOf returns the node key for a parsed host.
func HostKeyOf(h report.HostRecord) HostKey {
	return HostKey{IP: h.IP, Hostname: h.Hostname}
}

// PortKeyOf returns the node key for a parsed port.
func PortKeyOf(p report.PortRecord) PortKey {
	return PortKey(p)
}

// Tx is the set of merge operations available inside one write
// transaction. Every method is create-if-absent: merging a key that already
// exists is a no-op and not an error.
type Tx interface {
	MergeHost(ctx context.Context, host HostKey) error
	MergePort(ctx context.Context, port PortKey) error
	// MergeOpen relates port to host. Both nodes must already be merged in
	// the same transaction.
	MergeOpen(ctx context.Context, port PortKey, host HostKey) error
}

// Session opens write transactions against a graph store.
type Session interface {
	// ExecuteWrite runs fn in a single transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	ExecuteWrite(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Counts is a summary of the nodes and relationships in a store.
type Counts struct {
	Hosts         int
	Ports         int
	Relationships int
}
