package scanning

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressFunc is called after every completed probe of a phase.
type ProgressFunc func(protocol string, done, total int)

// ProgressPrinter renders a single status line that is overwritten in place.
// It is safe for concurrent use, so TCP and UDP phases may share it.
type ProgressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	written bool
}

// NewProgressPrinter creates a printer writing to w.
func NewProgressPrinter(w io.Writer) *ProgressPrinter {
	return &ProgressPrinter{w: w}
}

// Update implements ProgressFunc.
func (p *ProgressPrinter) Update(protocol string, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = fmt.Fprintf(p.w, "\rProgress: %d/%d ports scanned (%s)", done, total, strings.ToUpper(protocol))
	p.written = true
}

// Finish terminates the status line if anything was printed.
func (p *ProgressPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.written {
		_, _ = fmt.Fprintln(p.w)
		p.written = false
	}
}
