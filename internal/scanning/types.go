package scanning

import (
	"fmt"
	"time"
)

const (
	protoTCP = "tcp"
	protoUDP = "udp"
)

// UDPState is the outcome of a UDP probe. UDP has no handshake, so silence
// cannot be told apart from a firewall drop.
type UDPState int

const (
	// UDPClosed means the probe got a definite transport error, typically
	// ECONNREFUSED from an ICMP port-unreachable.
	UDPClosed UDPState = iota
	// UDPOpenOrFiltered means no reply arrived before the timeout.
	UDPOpenOrFiltered
	// UDPOpen means the target replied.
	UDPOpen
)

func (s UDPState) String() string {
	switch s {
	case UDPClosed:
		return "closed"
	case UDPOpenOrFiltered:
		return "open|filtered"
	case UDPOpen:
		return "open"
	default:
		return fmt.Sprintf("UDPState(%d)", int(s))
	}
}

// Responded reports whether the state is anything other than closed.
func (s UDPState) Responded() bool {
	return s != UDPClosed
}

// MarshalText implements encoding.TextMarshaler.
func (s UDPState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *UDPState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = UDPClosed
	case "open|filtered":
		*s = UDPOpenOrFiltered
	case "open":
		*s = UDPOpen
	default:
		return fmt.Errorf("unknown UDP state %q", text)
	}
	return nil
}

// TCPResult is the outcome of a TCP connect probe.
type TCPResult struct {
	Port int `json:"port"`
	// Service is empty when the services database has no entry.
	Service string `json:"service,omitempty"`
	Banner  string `json:"banner,omitempty"`
	Open    bool   `json:"open"`
}

// UDPResult is the outcome of a UDP datagram probe.
type UDPResult struct {
	Port  int      `json:"port"`
	State UDPState `json:"state"`
}

// PortReport is one aggregated row of a scan: both protocol outcomes for a port.
type PortReport struct {
	Port     int      `json:"port"`
	Service  string   `json:"service,omitempty"`
	Banner   string   `json:"banner,omitempty"`
	TCPOpen  bool     `json:"tcp_open"`
	UDPState UDPState `json:"udp_state"`
}

// Visible reports whether the row belongs in the printed table.
func (r PortReport) Visible() bool {
	return r.TCPOpen || r.UDPState.Responded()
}

// Report is the result of a completed scan. Rows cover every port of Range
// in ascending order.
type Report struct {
	ID        string        `json:"id"`
	Target    string        `json:"target"`
	Address   string        `json:"address"`
	Range     PortRange     `json:"range"`
	Rows      []PortReport  `json:"rows"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

// Visible returns the rows that are TCP-open or had a UDP response.
func (r *Report) Visible() []PortReport {
	visible := make([]PortReport, 0)
	for _, row := range r.Rows {
		if row.Visible() {
			visible = append(visible, row)
		}
	}
	return visible
}

// Complete stamps the end time and duration.
func (r *Report) Complete() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// Phase is the scanner's position in its state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseResolvingTarget
	PhaseScanningTCP
	PhaseScanningUDP
	PhaseAggregating
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseResolvingTarget:
		return "resolving_target"
	case PhaseScanningTCP:
		return "scanning_tcp"
	case PhaseScanningUDP:
		return "scanning_udp"
	case PhaseAggregating:
		return "aggregating"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}
