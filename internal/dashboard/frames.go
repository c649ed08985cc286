// internal/dashboard/frames.go
package dashboard

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/tamzrod/modbus-sniffer/internal/frame"
)

// FrameEntry is one validated frame as shown in the dashboard log.
type FrameEntry struct {
	At       time.Time `json:"at"`
	Conn     string    `json:"conn"`
	Unit     uint8     `json:"unit"`
	Function uint8     `json:"function"`
	Length   int       `json:"length"`
	Hex      string    `json:"hex"`
}

// frameLog keeps the most recent validated frames in a fixed ring.
type frameLog struct {
	mu    sync.Mutex
	ring  []FrameEntry
	next  int
	count int
}

func newFrameLog(depth int) *frameLog {
	if depth <= 0 {
		depth = 1
	}
	return &frameLog{ring: make([]FrameEntry, depth)}
}

func (l *frameLog) add(conn string, f frame.Frame, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring[l.next] = FrameEntry{
		At:       at,
		Conn:     conn,
		Unit:     f.Unit,
		Function: f.Function,
		Length:   f.Len(),
		Hex:      hex.EncodeToString(f.Bytes()),
	}
	l.next = (l.next + 1) % len(l.ring)
	if l.count < len(l.ring) {
		l.count++
	}
}

// entries returns the logged frames, newest first.
func (l *frameLog) entries() []FrameEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FrameEntry, 0, l.count)
	for i := 0; i < l.count; i++ {
		idx := (l.next - 1 - i + len(l.ring)) % len(l.ring)
		out = append(out, l.ring[idx])
	}
	return out
}
