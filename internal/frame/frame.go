// internal/frame/frame.go
package frame

import (
	"errors"
	"time"

	"github.com/sigurn/crc16"
)

// Supported function codes. Everything else is noise to this engine.
const (
	FuncReadHolding byte = 0x03
	FuncWriteSingle byte = 0x06
	FuncWriteMulti  byte = 0x10
)

const (
	// MaxUnitID is the highest valid Modbus slave address.
	MaxUnitID = 247

	// MaxSize is the largest possible RTU ADU.
	MaxSize = 256

	crcSize = 2
)

// Frame classification errors. These never escape the ingest boundary;
// the engine turns them into counters.
var (
	ErrCRC        = errors.New("frame: crc mismatch")
	ErrStructural = errors.New("frame: structural inconsistency")
)

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC computes the Modbus RTU checksum (poly 0xA001, init 0xFFFF) of b.
func CRC(b []byte) uint16 {
	return crc16.Checksum(b, crcTable)
}

// AppendCRC appends the little-endian CRC of b to b.
func AppendCRC(b []byte) []byte {
	crc := CRC(b)
	return append(b, byte(crc), byte(crc>>8))
}

// checkCRC reports whether the trailing two bytes of adu match the
// checksum of everything before them.
func checkCRC(adu []byte) bool {
	if len(adu) < 1+1+crcSize {
		return false
	}
	want := uint16(adu[len(adu)-2]) | uint16(adu[len(adu)-1])<<8
	return CRC(adu[:len(adu)-crcSize]) == want
}

// Frame is a CRC-validated Modbus RTU ADU. The raw bytes include the
// trailing CRC.
type Frame struct {
	Unit     byte
	Function byte

	raw []byte
}

// Bytes returns the full ADU including CRC.
func (f Frame) Bytes() []byte { return f.raw }

// Payload returns the bytes between the function code and the CRC.
func (f Frame) Payload() []byte { return f.raw[2 : len(f.raw)-crcSize] }

// Len returns the total ADU length.
func (f Frame) Len() int { return len(f.raw) }

// Validate checks adu as a complete RTU frame: unit id in range,
// supported function code, internally consistent length for that
// function, and a matching CRC. Structural checks run before the CRC
// as a cheap pre-filter.
func Validate(adu []byte) (Frame, error) {
	if len(adu) < 1+1+crcSize || len(adu) > MaxSize {
		return Frame{}, ErrStructural
	}
	if adu[0] > MaxUnitID {
		return Frame{}, ErrStructural
	}

	fn := adu[1]
	payload := len(adu) - 2 - crcSize

	switch fn {
	case FuncReadHolding:
		// Request: addr(2) qty(2). Response: bc(1) data(bc).
		if payload == 4 {
			break
		}
		if payload < 3 || int(adu[2]) != payload-1 || (payload-1)%2 != 0 {
			return Frame{}, ErrStructural
		}
	case FuncWriteSingle:
		// addr(2) value(2), identical both directions.
		if payload != 4 {
			return Frame{}, ErrStructural
		}
	case FuncWriteMulti:
		// Response echo: addr(2) qty(2). Request: addr(2) qty(2) bc(1) data(bc).
		if payload == 4 {
			break
		}
		if payload < 5 {
			return Frame{}, ErrStructural
		}
		qty := int(adu[4])<<8 | int(adu[5])
		bc := int(adu[6])
		if bc != 2*qty || bc != payload-5 {
			return Frame{}, ErrStructural
		}
	default:
		return Frame{}, ErrStructural
	}

	if !checkCRC(adu) {
		return Frame{}, ErrCRC
	}

	return Frame{Unit: adu[0], Function: fn, raw: adu}, nil
}

// Op identifies how a set of register values was observed on the wire.
type Op int

const (
	OpRead Op = iota
	OpWriteSingle
	OpWriteMulti
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWriteSingle:
		return "write_single"
	case OpWriteMulti:
		return "write_multi"
	default:
		return "unknown"
	}
}

// RegisterEvent is one observed register update: a base address and the
// consecutive raw 16-bit values starting there. AddressUnknown marks a
// read response that could not be paired with a prior request; Addr is
// then a placeholder zero.
type RegisterEvent struct {
	Conn           string
	Unit           byte
	Op             Op
	Addr           uint16
	Values         []uint16
	AddressUnknown bool
	At             time.Time
}
