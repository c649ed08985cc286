// internal/recorder/recorder.go
package recorder

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Recorder appends every raw packet to a CSV file so a capture can be
// replayed through the engine later. One row per chunk as received off
// the wire: timestamp, logical connection id, payload as hex.
type Recorder struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
	rows int
}

var header = []string{"timestamp", "connection", "payload_hex"}

// Open creates or truncates the packet log at path.
func Open(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("recorder: write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("recorder: flush header: %w", err)
	}
	return &Recorder{path: path, f: f, w: w}, nil
}

// Record appends one packet row. Rows are flushed immediately so the
// log survives a crash and the dashboard download sees current data.
func (r *Recorder) Record(connID string, data []byte, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return fmt.Errorf("recorder: closed")
	}
	row := []string{
		at.UTC().Format(time.RFC3339Nano),
		connID,
		hex.EncodeToString(data),
	}
	if err := r.w.Write(row); err != nil {
		return fmt.Errorf("recorder: write row: %w", err)
	}
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return fmt.Errorf("recorder: flush: %w", err)
	}
	r.rows++
	return nil
}

// Rows returns the number of packet rows written so far.
func (r *Recorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Path returns the location of the packet log.
func (r *Recorder) Path() string { return r.path }

// WriteTo streams the whole log to w. Used by the dashboard download
// endpoint; the copy reads from an independent handle so recording is
// not disturbed.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	path := r.path
	r.w.Flush()
	r.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("recorder: open for read: %w", err)
	}
	defer f.Close()
	return io.Copy(w, f)
}

// Close flushes and closes the log file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	r.w.Flush()
	err := r.w.Error()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	r.f = nil
	return err
}
