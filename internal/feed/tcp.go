// internal/feed/tcp.go
package feed

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TCP connects out to a gateway that exposes the sniffed byte stream on
// a TCP port. The stream has no framing at all, so each established
// connection becomes a fresh logical connection for the engine and is
// torn down with CloseConnection when the socket drops.
type TCP struct {
	endpoint string
	log      zerolog.Logger
	sink     Sink
	rec      RawSink // optional

	dialer net.Dialer
}

// NewTCP creates a TCP feed that dials endpoint (host:port).
func NewTCP(endpoint string, sink Sink, rec RawSink, log zerolog.Logger) *TCP {
	return &TCP{
		endpoint: endpoint,
		log:      log,
		sink:     sink,
		rec:      rec,
	}
}

// Run dials the endpoint and keeps redialing with exponential backoff
// until ctx is cancelled. Backoff doubles from reconnectMin up to
// reconnectMax and resets after a successful connect.
func (t *TCP) Run(ctx context.Context) error {
	backoff := reconnectMin
	for {
		conn, err := t.dialer.DialContext(ctx, "tcp", t.endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.log.Warn().
				Err(err).
				Str("endpoint", t.endpoint).
				Dur("retry_in", backoff).
				Msg("tcp feed connect failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}

		backoff = reconnectMin
		t.log.Info().Str("endpoint", t.endpoint).Msg("tcp feed connected")

		t.pump(ctx, conn)

		if ctx.Err() != nil {
			return nil
		}
	}
}

// pump reads the stream until the socket errors or ctx is cancelled.
func (t *TCP) pump(ctx context.Context, conn net.Conn) {
	connID := "tcp-" + uuid.NewString()[:8]
	defer t.sink.CloseConnection(connID)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	buf := make([]byte, tcpReadBuffer)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			now := time.Now()
			chunk := append([]byte(nil), buf[:n]...)

			if t.rec != nil {
				if rerr := t.rec.Record(connID, chunk, now); rerr != nil {
					t.log.Warn().Err(rerr).Msg("packet record failed")
				}
			}

			stats := t.sink.Ingest(connID, chunk, now)
			t.log.Debug().
				Int("bytes", n).
				Int("frames", stats.Frames).
				Msg("stream chunk ingested")
		}
		if err != nil {
			if ctx.Err() == nil {
				t.log.Warn().Err(err).Msg("tcp feed stream closed")
			}
			return
		}
	}
}
