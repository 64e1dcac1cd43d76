package scanning

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// fakeDialer is an in-memory transport. TCP ports listed in tcpOpen accept
// and optionally send a banner; everything else is refused. UDP ports listed
// in udpSilent accept datagrams and never reply. It tracks how many
// connections are open at once.
type fakeDialer struct {
	tcpOpen   map[int]string
	udpSilent map[int]bool
	// hold delays every dial, keeping the socket counted as open.
	hold time.Duration

	mu    sync.Mutex
	open  int
	peak  int
	dials int
}

func (d *fakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	d.acquire()
	if d.hold > 0 {
		select {
		case <-time.After(d.hold):
		case <-ctx.Done():
			d.release()
			return nil, ctx.Err()
		}
	}

	switch network {
	case protoTCP:
		banner, ok := d.tcpOpen[port]
		if !ok {
			d.release()
			return nil, refused(network, address)
		}
		return d.pipe(banner), nil
	case protoUDP:
		if !d.udpSilent[port] {
			d.release()
			return nil, refused(network, address)
		}
		return d.pipe(""), nil
	}
	d.release()
	return nil, refused(network, address)
}

func (d *fakeDialer) pipe(greeting string) net.Conn {
	client, server := net.Pipe()
	go func() {
		defer func() { _ = server.Close() }()
		if greeting != "" {
			if _, err := server.Write([]byte(greeting)); err != nil {
				return
			}
		}
		_, _ = io.Copy(io.Discard, server)
	}()
	return &countingConn{Conn: client, release: d.release}
}

func (d *fakeDialer) acquire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.open++
	if d.open > d.peak {
		d.peak = d.open
	}
}

func (d *fakeDialer) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open--
}

func (d *fakeDialer) stats() (open, peak, dials int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open, d.peak, d.dials
}

type countingConn struct {
	net.Conn
	once    sync.Once
	release func()
}

func (c *countingConn) Close() error {
	c.once.Do(c.release)
	return c.Conn.Close()
}

func refused(network, address string) error {
	addr, _ := net.ResolveTCPAddr("tcp", address)
	return &net.OpError{Op: "dial", Net: network, Addr: addr, Err: syscall.ECONNREFUSED}
}

func stubLookup(names map[string]string) func(int, string) (string, bool) {
	return func(port int, proto string) (string, bool) {
		name, ok := names[strconv.Itoa(port)+"/"+proto]
		return name, ok
	}
}
