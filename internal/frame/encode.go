// internal/frame/encode.go
package frame

import "encoding/binary"

// Build helpers produce complete, CRC-terminated RTU frames. The engine
// never sends anything; these exist for tests and for the rtugen
// traffic generator.

// BuildReadRequest builds an FC03 request ADU.
func BuildReadRequest(unit byte, addr, qty uint16) []byte {
	b := make([]byte, 6)
	b[0] = unit
	b[1] = FuncReadHolding
	binary.BigEndian.PutUint16(b[2:4], addr)
	binary.BigEndian.PutUint16(b[4:6], qty)
	return AppendCRC(b)
}

// BuildReadResponse builds an FC03 response ADU carrying values.
func BuildReadResponse(unit byte, values []uint16) []byte {
	b := make([]byte, 3+2*len(values))
	b[0] = unit
	b[1] = FuncReadHolding
	b[2] = byte(2 * len(values))
	packRegisters(b[3:], values)
	return AppendCRC(b)
}

// BuildWriteSingle builds an FC06 ADU.
func BuildWriteSingle(unit byte, addr, value uint16) []byte {
	b := make([]byte, 6)
	b[0] = unit
	b[1] = FuncWriteSingle
	binary.BigEndian.PutUint16(b[2:4], addr)
	binary.BigEndian.PutUint16(b[4:6], value)
	return AppendCRC(b)
}

// BuildWriteMultiRequest builds an FC16 request ADU carrying values.
func BuildWriteMultiRequest(unit byte, addr uint16, values []uint16) []byte {
	b := make([]byte, 7+2*len(values))
	b[0] = unit
	b[1] = FuncWriteMulti
	binary.BigEndian.PutUint16(b[2:4], addr)
	binary.BigEndian.PutUint16(b[4:6], uint16(len(values)))
	b[6] = byte(2 * len(values))
	packRegisters(b[7:], values)
	return AppendCRC(b)
}

// BuildWriteMultiEcho builds the FC16 response echo.
func BuildWriteMultiEcho(unit byte, addr, qty uint16) []byte {
	b := make([]byte, 6)
	b[0] = unit
	b[1] = FuncWriteMulti
	binary.BigEndian.PutUint16(b[2:4], addr)
	binary.BigEndian.PutUint16(b[4:6], qty)
	return AppendCRC(b)
}

func packRegisters(dst []byte, values []uint16) {
	for i, v := range values {
		binary.BigEndian.PutUint16(dst[2*i:], v)
	}
}
