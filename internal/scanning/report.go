package scanning

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

const (
	unknownService = "unknown"
	bannerIndent   = "    "
)

// OutputFormat selects how a report is rendered.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a user-supplied format name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// ReportOptions controls rendering.
type ReportOptions struct {
	Format OutputFormat
	// Color highlights open states and banners with ANSI colors.
	Color bool
}

// WriteReport renders report to w.
func WriteReport(w io.Writer, report *Report, opts ReportOptions) error {
	if opts.Format == FormatJSON {
		return writeJSON(w, report)
	}
	return writeTable(w, report, opts.Color)
}

func writeJSON(w io.Writer, report *Report) error {
	out := struct {
		*Report
		Visible []PortReport `json:"visible"`
	}{
		Report:  report,
		Visible: report.Visible(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type palette struct {
	tcp    func(a ...interface{}) string
	udp    func(a ...interface{}) string
	banner func(a ...interface{}) string
}

func newPalette(enabled bool) palette {
	tcp := color.New(color.FgRed)
	udp := color.New(color.FgGreen)
	banner := color.New(color.FgGreen)
	for _, c := range []*color.Color{tcp, udp, banner} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return palette{tcp: tcp.SprintFunc(), udp: udp.SprintFunc(), banner: banner.SprintFunc()}
}

func writeTable(w io.Writer, report *Report, useColor bool) error {
	if _, err := fmt.Fprintln(w, "Open Ports:"); err != nil {
		return err
	}

	colors := newPalette(useColor)
	// Banner rows rely on leading spaces for indentation.
	table := tablewriter.NewTable(w, tablewriter.WithTrimSpace(tw.Off))
	table.Header("Port", "Service", "TCP", "UDP")

	for _, row := range report.Visible() {
		service := row.Service
		if service == "" {
			service = unknownService
		}
		_ = table.Append([]string{
			strconv.Itoa(row.Port),
			service,
			tcpLabel(row.TCPOpen, colors),
			udpLabel(row.UDPState, colors),
		})
		if row.TCPOpen {
			for _, line := range bannerLines(row.Banner) {
				_ = table.Append([]string{"", colors.banner(bannerIndent + line), "", ""})
			}
		}
	}

	return table.Render()
}

func tcpLabel(open bool, colors palette) string {
	if !open {
		return ""
	}
	return colors.tcp("Open")
}

func udpLabel(state UDPState, colors palette) string {
	switch state {
	case UDPOpen:
		return colors.udp("Open")
	case UDPOpenOrFiltered:
		return colors.udp("Open|Filtered")
	default:
		return ""
	}
}
