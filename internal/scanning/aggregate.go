package scanning

import (
	"github.com/anstrom/dualscan/internal/services"
)

// Aggregate merges the per-protocol maps into one row per port of rng, in
// ascending port order. A port missing from a map counts as closed for that
// protocol. The service name prefers the TCP entry, then a UDP lookup for
// the same port; it stays empty when neither is known.
func Aggregate(rng PortRange, tcp map[int]TCPResult, udp map[int]UDPResult,
	lookup services.LookupFunc) []PortReport {
	if lookup == nil {
		lookup = services.Lookup
	}

	rows := make([]PortReport, 0, rng.Size())
	for _, port := range rng.Ports() {
		t := tcp[port]
		u, ok := udp[port]
		if !ok {
			u.State = UDPClosed
		}

		service := t.Service
		if service == "" {
			service, _ = lookup(port, protoUDP)
		}

		row := PortReport{
			Port:     port,
			Service:  service,
			TCPOpen:  t.Open,
			UDPState: u.State,
		}
		if t.Open {
			row.Banner = t.Banner
		}
		rows = append(rows, row)
	}
	return rows
}
