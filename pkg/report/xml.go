package report

import (
	"strconv"

	"github.com/Ullaakut/nmap/v3"
)

// ParseXML parses nmap -oX output.
func ParseXML(raw []byte) ([]HostRecord, error) {
	var run nmap.Run
	if err := nmap.Parse(raw, &run); err != nil {
		return nil, malformed("decode xml: %v", err)
	}

	hosts := make([]scanHost, 0, len(run.Hosts))
	for i := range run.Hosts {
		hosts = append(hosts, convertNmapHost(&run.Hosts[i]))
	}
	return extractHosts(hosts)
}

// convertNmapHost maps a decoded nmap host onto the encoding-neutral view.
// The library reads a missing attribute as its zero value, so port 0 stands
// for an absent portid and an empty product for an absent one.
func convertNmapHost(h *nmap.Host) scanHost {
	var sh scanHost
	for _, a := range h.Addresses {
		sh.Addresses = append(sh.Addresses, scanAddress{Addr: a.Addr, AddrType: a.AddrType})
	}
	for _, n := range h.Hostnames {
		sh.Hostnames = append(sh.Hostnames, n.Name)
	}
	for j := range h.Ports {
		p := &h.Ports[j]
		sp := scanPort{
			Protocol: p.Protocol,
			State:    p.State.State,
			Service: &scanService{
				Name:       p.Service.Name,
				Product:    p.Service.Product,
				Version:    p.Service.Version,
				HasProduct: p.Service.Product != "",
			},
		}
		if p.ID != 0 {
			sp.PortID = strconv.Itoa(int(p.ID))
		}
		sh.Ports = append(sh.Ports, sp)
	}
	return sh
}
