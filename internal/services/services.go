// Package services maps port numbers to conventional service names using
// the platform services database, the way getservbyport(3) does. Lookups
// are best effort: an unknown port is reported as absent, never as an error.
package services

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/anstrom/dualscan/internal/logging"
)

// DefaultPath is the platform services database.
const DefaultPath = "/etc/services"

// Protocols understood by the database.
const (
	ProtoTCP = "tcp"
	ProtoUDP = "udp"
)

// LookupFunc resolves a port/protocol pair to a service name.
type LookupFunc func(port int, proto string) (string, bool)

// DB is an in-memory services database keyed by protocol then port.
type DB struct {
	entries map[string]map[int]string
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{
		entries: map[string]map[int]string{
			ProtoTCP: {},
			ProtoUDP: {},
		},
	}
}

// Add registers name for port/proto unless an earlier entry exists; the
// first entry for a pair wins, matching getservbyport.
func (db *DB) Add(port int, proto, name string) {
	proto = strings.ToLower(proto)
	byPort, ok := db.entries[proto]
	if !ok {
		byPort = make(map[int]string)
		db.entries[proto] = byPort
	}
	if _, exists := byPort[port]; !exists {
		byPort[port] = name
	}
}

// Lookup returns the service name for port/proto.
func (db *DB) Lookup(port int, proto string) (string, bool) {
	if db == nil {
		return "", false
	}
	name, ok := db.entries[strings.ToLower(proto)][port]
	return name, ok
}

// Len returns the number of entries for proto.
func (db *DB) Len(proto string) int {
	return len(db.entries[strings.ToLower(proto)])
}

// Parse reads services(5) formatted data: "name port/proto [aliases] [# comment]".
// Malformed lines are skipped.
func Parse(r io.Reader) (*DB, error) {
	db := NewDB()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		portStr, proto, ok := strings.Cut(fields[1], "/")
		if !ok {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 0 || port > 65535 {
			continue
		}
		db.Add(port, proto, fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return db, nil
}

// Load reads a services database from path.
func Load(path string) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// LoadOrBuiltin loads path, falling back to the builtin table when the file
// is missing, unreadable or empty.
func LoadOrBuiltin(path string) *DB {
	if path == "" {
		path = DefaultPath
	}
	db, err := Load(path)
	if err != nil || db.Len(ProtoTCP)+db.Len(ProtoUDP) == 0 {
		logging.Debug("Services database unavailable, using builtin table", "path", path, "error", err)
		return Builtin()
	}
	return db
}

var (
	defaultDB   *DB
	defaultOnce sync.Once
)

// Default returns the process-wide database loaded from DefaultPath.
func Default() *DB {
	defaultOnce.Do(func() {
		defaultDB = LoadOrBuiltin(DefaultPath)
	})
	return defaultDB
}

// Lookup resolves port/proto against the default database.
func Lookup(port int, proto string) (string, bool) {
	return Default().Lookup(port, proto)
}
