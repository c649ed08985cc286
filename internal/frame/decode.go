// internal/frame/decode.go
package frame

// Kind is the wire role of a validated frame, derived from its function
// code and length. A 4-byte FC03 payload can only be a request (a
// response byte count of 3 is odd, hence invalid); a 4-byte FC16
// payload can only be the response echo.
type Kind int

const (
	KindReadRequest Kind = iota
	KindReadResponse
	KindWriteSingle
	KindWriteMultiRequest
	KindWriteMultiEcho
)

// Kind classifies a validated frame.
func (f Frame) Kind() Kind {
	switch f.Function {
	case FuncReadHolding:
		if len(f.Payload()) == 4 {
			return KindReadRequest
		}
		return KindReadResponse
	case FuncWriteSingle:
		return KindWriteSingle
	default:
		if len(f.Payload()) == 4 {
			return KindWriteMultiEcho
		}
		return KindWriteMultiRequest
	}
}

// The accessors below assume Validate accepted the frame; they are pure
// structural unpacks and cannot fail.

// ReadRequest returns the base address and register count of an FC03
// request.
func (f Frame) ReadRequest() (addr, qty uint16) {
	p := f.Payload()
	return be16(p[0:]), be16(p[2:])
}

// ReadValues returns the register values of an FC03 response.
func (f Frame) ReadValues() []uint16 {
	p := f.Payload()
	return unpackRegisters(p[1 : 1+int(p[0])])
}

// WriteSingle returns the address and value of an FC06 frame.
func (f Frame) WriteSingle() (addr, value uint16) {
	p := f.Payload()
	return be16(p[0:]), be16(p[2:])
}

// WriteMulti returns the base address and values of an FC16 request.
func (f Frame) WriteMulti() (addr uint16, values []uint16) {
	p := f.Payload()
	return be16(p[0:]), unpackRegisters(p[5 : 5+int(p[4])])
}

// ---- pure geometry ----

func be16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
