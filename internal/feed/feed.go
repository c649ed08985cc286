// internal/feed/feed.go
package feed

import (
	"time"

	"github.com/tamzrod/modbus-sniffer/internal/engine"
)

// Sink is the push boundary between a byte feed and the recovery
// engine. Feeds call Ingest for every chunk they read and
// CloseConnection when the underlying transport goes away.
type Sink interface {
	Ingest(connID string, data []byte, at time.Time) engine.IngestStats
	CloseConnection(connID string)
}

// RawSink optionally receives every raw chunk before decoding (the CSV
// packet recorder implements this).
type RawSink interface {
	Record(connID string, data []byte, at time.Time) error
}

const (
	udpReadBuffer = 2048
	tcpReadBuffer = 1024

	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)
