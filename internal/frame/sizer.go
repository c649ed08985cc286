// internal/frame/sizer.go
package frame

// Candidates returns the plausible full-frame lengths for a window that
// is assumed to start at a unit-id byte, ascending. A hypothesis whose
// bytes extend past the window is not returned; instead needMore is set
// so the caller can wait for the rest of the frame instead of sliding
// past a partial one.
//
// An empty list with needMore=false means no supported frame can start
// here and the caller should advance.
func Candidates(w []byte) (lengths []int, needMore bool) {
	if len(w) < 2 {
		return nil, true
	}
	if w[0] > MaxUnitID {
		return nil, false
	}

	add := func(n int) {
		if n > MaxSize {
			return
		}
		if n > len(w) {
			needMore = true
			return
		}
		// Keep ascending order; lists are at most two long.
		if len(lengths) > 0 && lengths[len(lengths)-1] > n {
			lengths = append([]int{n}, lengths...)
			return
		}
		lengths = append(lengths, n)
	}

	switch w[1] {
	case FuncReadHolding:
		// Response: unit fn bc data... crc.
		if len(w) < 3 {
			needMore = true
		} else if bc := int(w[2]); bc >= 2 && bc <= 250 && bc%2 == 0 {
			add(5 + bc)
		}
		// Request: unit fn addr(2) qty(2) crc.
		add(8)
	case FuncWriteSingle:
		add(8)
	case FuncWriteMulti:
		// Response echo.
		add(8)
		// Request: unit fn addr(2) qty(2) bc data... crc.
		if len(w) < 7 {
			needMore = true
		} else {
			qty := int(w[4])<<8 | int(w[5])
			bc := int(w[6])
			if bc == 2*qty && bc >= 2 && bc <= 246 {
				add(9 + bc)
			}
		}
	default:
		return nil, false
	}

	return lengths, needMore
}
