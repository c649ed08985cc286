// internal/feed/udp.go
package feed

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// UDP listens for datagrams sniffed off a serial-to-Ethernet gateway.
// The whole socket is one logical connection: datagrams are only a
// boundary hint, the engine still resynchronizes across them because
// real gateways coalesce and split frames.
type UDP struct {
	listen string
	log    zerolog.Logger
	sink   Sink
	rec    RawSink // optional

	connID string

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
}

// NewUDP creates a UDP feed bound to listen (host:port).
func NewUDP(listen string, sink Sink, rec RawSink, log zerolog.Logger) *UDP {
	return &UDP{
		listen: listen,
		log:    log,
		sink:   sink,
		rec:    rec,
		connID: "udp-" + uuid.NewString()[:8],
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the socket is bound; Addr is valid after that.
func (u *UDP) Ready() <-chan struct{} { return u.ready }

// Addr returns the bound local address.
func (u *UDP) Addr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.addr
}

// Run binds the socket and pumps datagrams into the sink until ctx is
// cancelled. One goroutine per feed, sequential ingestion.
func (u *UDP) Run(ctx context.Context) error {
	laddr, err := net.ResolveUDPAddr("udp", u.listen)
	if err != nil {
		return fmt.Errorf("udp feed: resolve %s: %w", u.listen, err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("udp feed: listen %s: %w", u.listen, err)
	}

	u.mu.Lock()
	u.addr = conn.LocalAddr()
	u.mu.Unlock()
	close(u.ready)

	u.log.Info().Str("listen", conn.LocalAddr().String()).Msg("udp feed listening")

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, udpReadBuffer)
	for {
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			u.sink.CloseConnection(u.connID)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("udp feed: read: %w", err)
		}
		if n == 0 {
			continue
		}

		now := time.Now()
		chunk := append([]byte(nil), buf[:n]...)

		if u.rec != nil {
			if err := u.rec.Record(u.connID, chunk, now); err != nil {
				u.log.Warn().Err(err).Msg("packet record failed")
			}
		}

		stats := u.sink.Ingest(u.connID, chunk, now)
		u.log.Debug().
			Str("peer", peer.String()).
			Int("bytes", n).
			Int("frames", stats.Frames).
			Msg("datagram ingested")
	}
}
