package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrRead is returned when the raw report cannot be obtained.
	ErrRead = errors.New("read report")
	// ErrMalformedInput is returned when the report does not have the
	// expected nmaprun/host/ports tree shape.
	ErrMalformedInput = errors.New("malformed report")
)

// StateOpen is the only port state kept by the parser.
const StateOpen = "open"

// HostRecord is one discovered host and its open ports.
type HostRecord struct {
	Hostname string       `json:"hostname"`
	IP       string       `json:"ip"`
	Ports    []PortRecord `json:"ports"`
}

// PortRecord is one open port and the service detected on it. Product and
// Version are either both set or both empty.
type PortRecord struct {
	Number   string `json:"number"`
	State    string `json:"state"`
	Protocol string `json:"protocol"`
	Service  string `json:"service"`
	Product  string `json:"product"`
	Version  string `json:"version"`
}

// ReadFile returns the raw contents of the report at path.
func ReadFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRead, path, err)
	}
	return raw, nil
}

// ParseFile reads and parses the report at path.
func ParseFile(path string) ([]HostRecord, error) {
	raw, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes an nmap report. XML (-oX) and its attribute-prefixed JSON
// rendition are both accepted; the encoding is picked from the first
// non-blank byte. A report without hosts yields an empty slice.
func Parse(raw []byte) ([]HostRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedInput)
	}
	switch trimmed[0] {
	case '{':
		return ParseJSON(trimmed)
	case '<':
		return ParseXML(trimmed)
	default:
		return nil, fmt.Errorf("%w: unrecognised encoding", ErrMalformedInput)
	}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}
