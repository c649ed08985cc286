// cmd/rtugen/main.go
//
// rtugen sends synthetic Modbus RTU traffic to a sniffer's UDP feed.
// It emulates what a serial tap actually produces: request/response
// pairs, frames split across datagrams, back-to-back frames in one
// datagram, and the occasional corrupted byte.
package main

import (
	"flag"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-sniffer/internal/frame"
)

func main() {
	target := flag.String("target", "127.0.0.1:7777", "sniffer UDP address")
	unit := flag.Uint("unit", 1, "slave unit id")
	addr := flag.Uint("addr", 187, "base register address")
	count := flag.Uint("count", 2, "registers per read")
	interval := flag.Duration("interval", time.Second, "time between exchanges")
	corrupt := flag.Float64("corrupt", 0.05, "fraction of frames with a flipped byte")
	split := flag.Float64("split", 0.3, "fraction of frames split across datagrams")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	conn, err := net.Dial("udp", *target)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial failed")
	}
	defer conn.Close()

	logger.Info().Str("target", *target).Msg("generating traffic")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		req := frame.BuildReadRequest(byte(*unit), uint16(*addr), uint16(*count))

		values := make([]uint16, *count)
		for i := range values {
			values[i] = uint16(150 + rng.Intn(100))
		}
		resp := frame.BuildReadResponse(byte(*unit), values)

		send(conn, rng, req, *corrupt, *split)
		send(conn, rng, resp, *corrupt, *split)

		time.Sleep(*interval)
	}
}

// send writes one frame, possibly mangled or split like real taps do.
func send(conn net.Conn, rng *rand.Rand, adu []byte, corrupt, split float64) {
	out := append([]byte(nil), adu...)

	if rng.Float64() < corrupt {
		out[rng.Intn(len(out))] ^= 0xFF
	}

	if rng.Float64() < split && len(out) > 2 {
		cut := 1 + rng.Intn(len(out)-1)
		conn.Write(out[:cut])
		time.Sleep(5 * time.Millisecond)
		conn.Write(out[cut:])
		return
	}

	conn.Write(out)
}
