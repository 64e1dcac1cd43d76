package scanning

import (
	"context"
	"net"
	"strings"
	"time"
	"unicode/utf8"
)

const maxBannerSize = 1024

// ReadBanner performs one bounded read on conn and returns whatever greeting
// the service sent unprompted. It returns "" on timeout, when nothing was
// sent, or when the bytes are not valid UTF-8.
func ReadBanner(ctx context.Context, conn net.Conn, timeout time.Duration) string {
	if timeout <= 0 {
		return ""
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return ""
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, maxBannerSize)
	n, _ := conn.Read(buf)
	if n == 0 || !utf8.Valid(buf[:n]) {
		return ""
	}
	return strings.TrimSpace(string(buf[:n]))
}

// bannerLines splits a banner for display, dropping carriage returns.
func bannerLines(banner string) []string {
	if banner == "" {
		return nil
	}
	lines := strings.Split(banner, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}
