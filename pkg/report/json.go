package report

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// oneOrMany decodes a container that an encoder may collapse into a bare
// object when it holds exactly one child.
type oneOrMany[T any] []T

func (m *oneOrMany[T]) UnmarshalJSON(raw []byte) error {
	items, err := asSequence[T](raw)
	if err != nil {
		return err
	}
	*m = items
	return nil
}

// asSequence normalizes null, a single object, or an array into a slice.
func asSequence[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		return items, nil
	case '{':
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, err
		}
		return []T{item}, nil
	default:
		return nil, fmt.Errorf("expected object or array, got %.20s", raw)
	}
}

// portID accepts a port identifier written either as a string or as a
// JSON number.
type portID string

func (p *portID) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*p = portID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("portid: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("portid %s is not an integer", n)
	}
	*p = portID(n.String())
	return nil
}

// jsonReport mirrors an nmap XML report converted attribute-for-attribute,
// with attributes prefixed by "@".
type jsonReport struct {
	NmapRun *struct {
		Host oneOrMany[jsonHost] `json:"host"`
	} `json:"nmaprun"`
}

type jsonHost struct {
	Address   oneOrMany[jsonAddress] `json:"address"`
	Hostnames oneOrMany[struct {
		Hostname oneOrMany[struct {
			Name string `json:"@name"`
		}] `json:"hostname"`
	}] `json:"hostnames"`
	Ports oneOrMany[struct {
		Port oneOrMany[jsonPort] `json:"port"`
	}] `json:"ports"`
}

type jsonAddress struct {
	Addr     string `json:"@addr"`
	AddrType string `json:"@addrtype"`
}

type jsonPort struct {
	Protocol string `json:"@protocol"`
	PortID   portID `json:"@portid"`
	State    *struct {
		State string `json:"@state"`
	} `json:"state"`
	Service *struct {
		Name    string  `json:"@name"`
		Product *string `json:"@product"`
		Version string  `json:"@version"`
	} `json:"service"`
}

// ParseJSON parses the JSON rendition of an nmap XML report.
func ParseJSON(raw []byte) ([]HostRecord, error) {
	var doc jsonReport
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, malformed("decode json: %v", err)
	}
	if doc.NmapRun == nil {
		return nil, malformed("missing nmaprun root")
	}

	hosts := make([]scanHost, 0, len(doc.NmapRun.Host))
	for _, h := range doc.NmapRun.Host {
		hosts = append(hosts, h.scanHost())
	}
	return extractHosts(hosts)
}

func (h jsonHost) scanHost() scanHost {
	var sh scanHost
	for _, a := range h.Address {
		sh.Addresses = append(sh.Addresses, scanAddress(a))
	}
	for _, hn := range h.Hostnames {
		for _, n := range hn.Hostname {
			sh.Hostnames = append(sh.Hostnames, n.Name)
		}
	}
	for _, ports := range h.Ports {
		for _, p := range ports.Port {
			sp := scanPort{PortID: string(p.PortID), Protocol: p.Protocol}
			if p.State != nil {
				sp.State = p.State.State
			}
			if p.Service != nil {
				sp.Service = &scanService{
					Name:    p.Service.Name,
					Version: p.Service.Version,
				}
				if p.Service.Product != nil {
					sp.Service.Product = *p.Service.Product
					sp.Service.HasProduct = true
				}
			}
			sh.Ports = append(sh.Ports, sp)
		}
	}
	return sh
}
