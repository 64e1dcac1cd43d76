// Package scanning provides the dual-protocol port scanner for dualscan.
//
// A scan resolves one target, probes every port of a range over TCP and
// then over UDP, and merges both result maps into a report with one row per
// port in ascending order.
//
// # Main Components
//
// ## Probes
//
// Prober performs single-socket probes:
//   - ProbeTCP: full connect; on success the service name is looked up and a
//     banner is read once (up to 1024 bytes) within BannerTimeout
//   - ProbeUDP: one datagram (empty, or a DNS/NTP/SNMP request when
//     UDPPayloads is set) followed by one receive
//
// UDP replies are classified as:
//   - UDPOpen: any datagram came back
//   - UDPOpenOrFiltered: nothing came back before Timeout
//   - UDPClosed: the send or receive failed, typically ECONNREFUSED after an
//     ICMP port-unreachable
//
// Probes never return errors; every failure is an outcome.
//
// ## Scanner
//
// Scanner drives the phases ResolvingTarget, ScanningTCP, ScanningUDP,
// Aggregating and Done. Each protocol phase runs through a bounded worker
// pool (internal/workers), so at most Options.Workers sockets are open per
// phase. Phases are sequential unless Options.ParallelPhases is set.
//
// ## Reports
//
// Aggregate merges the TCP and UDP maps; WriteReport renders the visible
// rows as a table or the full report as JSON.
//
// # Usage Examples
//
//	rng, err := scanning.ParsePortRange("1-1024")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	scanner := scanning.NewScanner(scanning.DefaultOptions(),
//		scanning.WithProgress(scanning.NewProgressPrinter(os.Stderr).Update))
//
//	report, err := scanner.Scan(ctx, "192.168.1.10", rng)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	_ = scanning.WriteReport(os.Stdout, report, scanning.ReportOptions{})
//
// # Error Handling
//
// Scan returns coded errors from internal/errors:
//   - CodeValidation: the port range is outside 1-65535 or inverted
//   - CodeTargetUnresolvable: the target did not resolve; no probe was sent
//   - CodeCanceled: the context ended before both phases completed
//
// # Thread Safety
//
// A Scanner may run several scans concurrently; Phase then reports whichever
// scan changed phase last. Progress callbacks run on the collector goroutine
// of each phase and may be called from two goroutines in parallel mode.
package scanning
