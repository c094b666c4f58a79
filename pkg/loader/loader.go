package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/censys/nmap-graph/pkg/graph"
	"github.com/censys/nmap-graph/pkg/report"
)

// ErrEmptyResult is returned by Run when the report parsed cleanly but held
// no hosts.
var ErrEmptyResult = errors.New("no host found in report")

// WriteError reports a host whose transaction failed.
type WriteError struct {
	IP       string
	Hostname string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write host %s: %v", e.IP, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Options controls which hosts are written and where failures go.
type Options struct {
	// ExcludedIP, when non-empty, skips the host with exactly this address.
	// Typically the scanning machine itself.
	ExcludedIP string
	// DLQ receives hosts whose transaction failed. Nil disables it.
	DLQ DLQPublisher
}

// Summary describes the outcome of a Load.
type Summary struct {
	Hosts    int
	Written  int
	Excluded int
	Failed   []*WriteError
}

// LoadHost writes one host in a single transaction. A host without ports
// becomes a bare Host node; otherwise every port is merged together with
// the host and an OPEN relationship from port to host.
func LoadHost(ctx context.Context, session graph.Session, host report.HostRecord) error {
	hostKey := graph.HostKeyOf(host)
	err := session.ExecuteWrite(ctx, func(ctx context.Context, tx graph.Tx) error {
		if len(host.Ports) == 0 {
			return tx.MergeHost(ctx, hostKey)
		}
		for _, p := range host.Ports {
			portKey := graph.PortKeyOf(p)
			if err := tx.MergePort(ctx, portKey); err != nil {
				return err
			}
			if err := tx.MergeHost(ctx, hostKey); err != nil {
				return err
			}
			if err := tx.MergeOpen(ctx, portKey, hostKey); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &WriteError{IP: host.IP, Hostname: host.Hostname, Err: err}
	}
	return nil
}

// Load writes hosts in order, one transaction each. A failed host does not
// stop the batch and committed hosts are never rolled back; every failure
// is listed in the summary and returned joined once the batch is done.
// Cancelling ctx stops the batch before the next host.
func Load(ctx context.Context, session graph.Session, hosts []report.HostRecord, opts Options) (Summary, error) {
	dlq := opts.DLQ
	if dlq == nil {
		dlq = &NoopDLQPublisher{}
	}

	sum := Summary{Hosts: len(hosts)}
	var errs []error
	for _, host := range hosts {
		// an interrupted run leaves the remaining hosts unprocessed
		if err := ctx.Err(); err != nil {
			slog.Warn("load interrupted", "remaining", sum.Hosts-sum.Written-sum.Excluded-len(sum.Failed))
			return sum, errors.Join(append(errs, err)...)
		}
		if opts.ExcludedIP != "" && host.IP == opts.ExcludedIP {
			slog.Debug("skipping excluded host", "ip", host.IP)
			sum.Excluded++
			continue
		}

		err := LoadHost(ctx, session, host)
		if err == nil {
			sum.Written++
			continue
		}

		var werr *WriteError
		errors.As(err, &werr)
		slog.Error("host write failed", "ip", host.IP, "hostname", host.Hostname, "ports", len(host.Ports), "error", werr.Err)
		sum.Failed = append(sum.Failed, werr)
		errs = append(errs, werr)

		if err := dlq.Publish(ctx, host, ReasonWriteError); err != nil {
			slog.Error("error publishing to DLQ", "ip", host.IP, "error", err)
		}
	}
	return sum, errors.Join(errs...)
}

// Hosts parses raw and rejects reports without hosts.
func Hosts(raw []byte) ([]report.HostRecord, error) {
	slog.Info("parsing nmap data")
	hosts, err := report.Parse(raw)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, ErrEmptyResult
	}
	slog.Info("found hosts", "count", len(hosts))
	return hosts, nil
}

// Run parses raw and loads the result. Parse failures and empty reports
// abort before anything is written.
func Run(ctx context.Context, raw []byte, session graph.Session, opts Options) (Summary, error) {
	hosts, err := Hosts(raw)
	if err != nil {
		return Summary{}, err
	}
	return Sync(ctx, session, hosts, opts)
}

// Sync is Load with progress logging around it.
func Sync(ctx context.Context, session graph.Session, hosts []report.HostRecord, opts Options) (Summary, error) {
	slog.Info("syncing")
	sum, err := Load(ctx, session, hosts, opts)
	slog.Info("done syncing", "written", sum.Written, "excluded", sum.Excluded, "failed", len(sum.Failed))
	return sum, err
}
