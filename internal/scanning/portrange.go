package scanning

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/anstrom/dualscan/internal/errors"
)

const (
	// MinPort and MaxPort bound every port range.
	MinPort = 1
	MaxPort = 65535

	expectedPortRangeParts = 2
)

// PortRange is an inclusive range of ports.
type PortRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NewPortRange returns a validated range.
func NewPortRange(start, end int) (PortRange, error) {
	r := PortRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return PortRange{}, err
	}
	return r, nil
}

// ParsePortRange parses "80" or "1-1024".
func ParsePortRange(s string) (PortRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PortRange{}, errors.NewScanError(errors.CodeValidation, "no ports specified")
	}

	parts := strings.Split(s, "-")
	if len(parts) > expectedPortRangeParts {
		return PortRange{}, errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("invalid port range format: %s", s))
	}

	start, err := parsePort(parts[0])
	if err != nil {
		return PortRange{}, err
	}
	end := start
	if len(parts) == expectedPortRangeParts {
		if end, err = parsePort(parts[1]); err != nil {
			return PortRange{}, err
		}
	}
	return NewPortRange(start, end)
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.WrapScanError(errors.CodeValidation, fmt.Sprintf("invalid port: %q", s), err)
	}
	return port, nil
}

// Validate checks 1 <= Start <= End <= 65535.
func (r PortRange) Validate() error {
	if r.Start < MinPort || r.End > MaxPort || r.Start > r.End {
		return errors.ErrInvalidPortRange(r.Start, r.End)
	}
	return nil
}

// Size returns the number of ports in the range.
func (r PortRange) Size() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Ports lists the ports in ascending order.
func (r PortRange) Ports() []int {
	ports := make([]int, 0, r.Size())
	for p := r.Start; p <= r.End; p++ {
		ports = append(ports, p)
	}
	return ports
}

func (r PortRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}
