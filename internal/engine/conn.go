// internal/engine/conn.go
package engine

import (
	"time"

	"github.com/tamzrod/modbus-sniffer/internal/frame"
)

// pendingRead is the most recent FC03 request seen for a unit on one
// connection. Most-recent-wins: a new request for the same unit simply
// replaces the old one.
type pendingRead struct {
	addr uint16
	qty  uint16
	at   time.Time
}

// conn is the per-connection decoding context: the unconsumed byte
// buffer and the request/response correlation state. One writer per
// connection; the engine never shares a conn across sources.
type conn struct {
	id      string
	buf     []byte
	pending map[byte]pendingRead
}

func newConn(id string) *conn {
	return &conn{
		id:      id,
		pending: make(map[byte]pendingRead),
	}
}

// extract scans the buffer for CRC-valid frames, advancing past
// consumed bytes and sliding a single byte over anything that does not
// validate. It stops at the first offset where a length hypothesis
// still needs bytes that have not arrived, so that frames split across
// ingest calls are never lost.
func (c *conn) extract(m *Metrics, d *diagCounters) []frame.Frame {
	var out []frame.Frame

	i := 0
	for i < len(c.buf) {
		w := c.buf[i:]

		lengths, needMore := frame.Candidates(w)

		validated := false
		for _, n := range lengths {
			// Copy the candidate so emitted frames stay immutable
			// once the buffer moves on.
			adu := append([]byte(nil), w[:n]...)
			f, err := frame.Validate(adu)
			if err != nil {
				continue
			}
			out = append(out, f)
			i += n
			validated = true
			break
		}
		if validated {
			continue
		}
		if needMore {
			break
		}

		// Every complete hypothesis failed its CRC, or nothing
		// plausible starts here. Slide exactly one byte: a valid frame
		// may begin at the very next position.
		if len(lengths) > 0 {
			m.incCRC()
			d.crcErrors.Add(1)
		} else {
			m.incStructural()
			d.structural.Add(1)
		}
		m.incResync()
		d.resyncs.Add(1)
		i++
	}

	if i > 0 {
		c.buf = append(c.buf[:0:0], c.buf[i:]...)
	}
	return out
}

// trim enforces the buffer ceiling. Returns the number of bytes
// dropped; non-zero means a desync overflow.
func (c *conn) trim(ceiling int) int {
	if ceiling <= 0 || len(c.buf) <= ceiling {
		return 0
	}
	dropped := len(c.buf) - ceiling
	c.buf = append(c.buf[:0:0], c.buf[dropped:]...)
	return dropped
}

// correlate resolves the base address of a read response from the most
// recent request seen for the same unit, consuming it. Requests older
// than ttl are ignored.
func (c *conn) correlate(unit byte, at time.Time, ttl time.Duration) (uint16, bool) {
	p, ok := c.pending[unit]
	if !ok {
		return 0, false
	}
	delete(c.pending, unit)
	if ttl > 0 && at.Sub(p.at) > ttl {
		return 0, false
	}
	return p.addr, true
}

// recordRequest remembers an FC03 request for later correlation.
func (c *conn) recordRequest(unit byte, addr, qty uint16, at time.Time) {
	c.pending[unit] = pendingRead{addr: addr, qty: qty, at: at}
}
