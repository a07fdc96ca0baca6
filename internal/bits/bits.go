// Package bits packs and unpacks values that are not aligned to byte boundaries.
// Bits are consumed and produced most significant bit first, which is the order
// every bit structure on the wire uses.
package bits

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// MaxWidth is the widest value a single Read or Write call handles.
const MaxWidth = 64

// Mask returns a value with the low "width" bits set.
func Mask[U constraints.Unsigned](width uint) U {
	var zero U
	all := ^zero
	size := uint(0)
	for v := all; v != 0; v >>= 1 {
		size++
	}
	if width >= size {
		return all
	}
	return U(1)<<width - 1
}

// Reader is a bit accumulator. It holds bits that were pulled from whole bytes
// but not yet handed out. The zero value is ready to use.
type Reader struct {
	buf uint64
	n   uint
}

// NextFunc returns the next n bytes of input.
type NextFunc func(n int) ([]byte, error)

// Buffered returns the number of bits held by the Reader.
func (r *Reader) Buffered() uint {
	return r.n
}

// Snapshot returns a copy of the Reader's state that can be restored with Restore.
func (r *Reader) Snapshot() Reader {
	return *r
}

// Restore sets the Reader's state back to a Snapshot.
func (r *Reader) Restore(s Reader) {
	*r = s
}

// Reset drops any buffered bits.
func (r *Reader) Reset() {
	r.buf, r.n = 0, 0
}

// Read returns the next "width" bits. If not enough bits are buffered, only the
// number of whole bytes needed are pulled from next. If next fails, the Reader
// is left unchanged.
func (r *Reader) Read(width uint, next NextFunc) (uint64, error) {
	if width == 0 {
		return 0, nil
	}
	if width > MaxWidth {
		return 0, fmt.Errorf("bit width %d is larger than %d", width, MaxWidth)
	}
	if width > 32 {
		save := *r
		hi, err := r.Read(width-32, next)
		if err != nil {
			*r = save
			return 0, err
		}
		lo, err := r.Read(32, next)
		if err != nil {
			*r = save
			return 0, err
		}
		return hi<<32 | lo, nil
	}

	if r.n < width {
		need := int((width - r.n + 7) / 8)
		b, err := next(need)
		if err != nil {
			return 0, err
		}
		for _, c := range b {
			r.buf = r.buf<<8 | uint64(c)
			r.n += 8
		}
	}

	shift := r.n - width
	v := (r.buf >> shift) & Mask[uint64](width)
	r.n = shift
	r.buf &= Mask[uint64](shift)
	return v, nil
}

// Writer packs values most significant bit first into a byte slice.
type Writer struct {
	out []byte
	buf uint64
	n   uint
}

// Write appends the low "width" bits of v.
func (w *Writer) Write(v uint64, width uint) error {
	if width > MaxWidth {
		return fmt.Errorf("bit width %d is larger than %d", width, MaxWidth)
	}
	if width > 32 {
		if err := w.Write(v>>32, width-32); err != nil {
			return err
		}
		return w.Write(v, 32)
	}
	w.buf = w.buf<<width | (v & Mask[uint64](width))
	w.n += width
	for w.n >= 8 {
		w.n -= 8
		w.out = append(w.out, byte(w.buf>>w.n))
		w.buf &= Mask[uint64](w.n)
	}
	return nil
}

// Pending returns the number of bits that have not yet filled a byte.
func (w *Writer) Pending() uint {
	return w.n
}

// Flush zero pads any partial byte and returns everything written so far.
// The Writer is reset afterwards.
func (w *Writer) Flush() []byte {
	if w.n > 0 {
		w.out = append(w.out, byte(w.buf<<(8-w.n)))
	}
	out := w.out
	w.out, w.buf, w.n = nil, 0, 0
	return out
}
