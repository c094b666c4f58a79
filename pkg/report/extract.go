package report

import (
	"errors"
	"fmt"
	"log/slog"
)

// scanHost is the encoding-neutral view of a <host> element. Both decoders
// flatten their input into it so that extraction rules live in one place.
type scanHost struct {
	Addresses []scanAddress
	Hostnames []string
	Ports     []scanPort
}

type scanAddress struct {
	Addr     string
	AddrType string
}

type scanPort struct {
	PortID   string
	Protocol string
	State    string
	Service  *scanService
}

type scanService struct {
	Name       string
	Product    string
	Version    string
	HasProduct bool
}

func extractHosts(hosts []scanHost) ([]HostRecord, error) {
	records := make([]HostRecord, 0, len(hosts))
	for i, h := range hosts {
		rec, err := extractHost(h)
		if err != nil {
			return nil, malformed("host %d: %v", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func extractHost(h scanHost) (HostRecord, error) {
	ip := hostIP(h.Addresses)
	if ip == "" {
		return HostRecord{}, errors.New("missing address")
	}

	rec := HostRecord{
		IP:       ip,
		Hostname: firstHostname(ip, h.Hostnames),
		Ports:    []PortRecord{},
	}
	for _, p := range h.Ports {
		if p.State == "" {
			return HostRecord{}, fmt.Errorf("port %s: missing state", p.PortID)
		}
		if p.State != StateOpen {
			continue
		}
		port, err := extractPort(p)
		if err != nil {
			return HostRecord{}, err
		}
		rec.Ports = append(rec.Ports, port)
	}
	return rec, nil
}

func extractPort(p scanPort) (PortRecord, error) {
	switch {
	case p.PortID == "":
		return PortRecord{}, errors.New("port: missing portid")
	case p.Protocol == "":
		return PortRecord{}, fmt.Errorf("port %s: missing protocol", p.PortID)
	case p.Service == nil || p.Service.Name == "":
		return PortRecord{}, fmt.Errorf("port %s: missing service name", p.PortID)
	}

	port := PortRecord{
		Number:   p.PortID,
		State:    p.State,
		Protocol: p.Protocol,
		Service:  p.Service.Name,
	}
	// version is only meaningful alongside a product banner
	if p.Service.HasProduct {
		port.Product = p.Service.Product
		port.Version = p.Service.Version
	}
	return port, nil
}

// hostIP prefers the first network address; MAC addresses are only used
// when nothing else is present.
func hostIP(addrs []scanAddress) string {
	for _, a := range addrs {
		if a.AddrType != "mac" && a.Addr != "" {
			return a.Addr
		}
	}
	for _, a := range addrs {
		if a.Addr != "" {
			return a.Addr
		}
	}
	return ""
}

func firstHostname(ip string, names []string) string {
	if len(names) == 0 {
		return ""
	}
	if len(names) > 1 {
		slog.Debug("discarding extra hostnames", "ip", ip, "kept", names[0], "discarded", names[1:])
	}
	return names[0]
}
