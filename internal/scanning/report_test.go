package scanning

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Report{
		ID:      "scan-1",
		Target:  "example.test",
		Address: "192.0.2.1",
		Range:   PortRange{Start: 20, End: 443},
		Rows: []PortReport{
			{Port: 21, Service: "ftp"},
			{Port: 22, Service: "ssh", TCPOpen: true, Banner: "SSH-2.0-OpenSSH_9.6\r\nsecond line", UDPState: UDPClosed},
			{Port: 123, Service: "ntp", UDPState: UDPOpen},
			{Port: 161, UDPState: UDPOpenOrFiltered},
			{Port: 443, Service: "https", TCPOpen: true},
		},
		StartTime: start,
		EndTime:   start.Add(2 * time.Second),
		Duration:  2 * time.Second,
	}
}

func TestWriteReportText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleReport(), ReportOptions{Format: FormatText}))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Open Ports:\n"))
	upper := strings.ToUpper(out)
	for _, header := range []string{"PORT", "SERVICE", "TCP", "UDP"} {
		assert.Contains(t, upper, header)
	}

	assert.NotContains(t, out, "ftp", "fully closed ports are suppressed")
	assert.Contains(t, out, "ssh")
	assert.Contains(t, out, "    SSH-2.0-OpenSSH_9.6")
	assert.Contains(t, out, "    second line")
	assert.NotContains(t, out, "\r")
	assert.Contains(t, out, "Open|Filtered")
	assert.Contains(t, out, "unknown")
	assert.NotContains(t, out, "\x1b[", "no color codes when color is off")

	// Rows appear in port order.
	i22 := strings.Index(out, "22 ")
	i123 := strings.Index(out, "123")
	i443 := strings.Index(out, "443")
	assert.True(t, i22 < i123 && i123 < i443, "rows out of order:\n%s", out)
}

func TestWriteReportColor(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleReport(), ReportOptions{Format: FormatText, Color: true}))
	assert.Contains(t, buf.String(), "\x1b[31m")
	assert.Contains(t, buf.String(), "\x1b[32m")
}

func TestWriteReportEmpty(t *testing.T) {
	report := &Report{Range: PortRange{Start: 1, End: 2}, Rows: []PortReport{{Port: 1}, {Port: 2}}}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, report, ReportOptions{}))
	assert.True(t, strings.HasPrefix(buf.String(), "Open Ports:"))
}

func TestWriteReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleReport(), ReportOptions{Format: FormatJSON}))

	var decoded struct {
		ID      string       `json:"id"`
		Address string       `json:"address"`
		Range   PortRange    `json:"range"`
		Rows    []PortReport `json:"rows"`
		Visible []PortReport `json:"visible"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "scan-1", decoded.ID)
	assert.Equal(t, "192.0.2.1", decoded.Address)
	assert.Equal(t, PortRange{Start: 20, End: 443}, decoded.Range)
	assert.Len(t, decoded.Rows, 5)
	require.Len(t, decoded.Visible, 4)
	assert.Equal(t, UDPOpenOrFiltered, decoded.Visible[2].UDPState)
	assert.Contains(t, buf.String(), `"udp_state": "open|filtered"`)
}

func TestParseOutputFormat(t *testing.T) {
	f, err := ParseOutputFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	f, err = ParseOutputFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseOutputFormat("xml")
	assert.Error(t, err)
}

func TestUDPStateText(t *testing.T) {
	for _, s := range []UDPState{UDPClosed, UDPOpenOrFiltered, UDPOpen} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var back UDPState
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}

	var s UDPState
	assert.Error(t, s.UnmarshalText([]byte("maybe")))
	assert.Equal(t, "UDPState(9)", UDPState(9).String())
}
