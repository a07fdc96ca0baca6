package steel

import (
	"bytes"
	"io"

	"github.com/bearlytools/steel/errors"
	"github.com/gostdlib/base/values/sizes"
)

// directRead is the largest read that allocates its whole buffer up front. Larger reads grow
// their buffer as data arrives, so a size taken from the input cannot force a huge allocation.
const directRead = 64 * sizes.KiB

// source is where an instance in read mode gets its bytes. Reads either return exactly the
// number of bytes asked for or an error wrapping errors.ErrOutOfData.
type source interface {
	read(n int) ([]byte, error)
	// readAll returns everything left.
	readAll() ([]byte, error)
	// pos returns the number of bytes consumed so far.
	pos() int64
	// partial reports whether more input may arrive later.
	partial() bool
}

// streamSource reads from an io.Reader. It never reads ahead, so the reader is left positioned
// just after the last byte a field used.
type streamSource struct {
	r   io.Reader
	off int64
}

func newStreamSource(r io.Reader) *streamSource {
	return &streamSource{r: r}
}

func (s *streamSource) read(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.Value("cannot read %d bytes", n)
	}
	if n <= directRead {
		b := make([]byte, n)
		got, err := io.ReadFull(s.r, b)
		s.off += int64(got)
		switch err {
		case nil:
			return b, nil
		case io.EOF, io.ErrUnexpectedEOF:
			return nil, errors.OutOfData(n, got)
		}
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(directRead)
	got, err := io.CopyN(&buf, s.r, int64(n))
	s.off += got
	switch err {
	case nil:
		return buf.Bytes(), nil
	case io.EOF:
		return nil, errors.OutOfData(n, int(got))
	}
	return nil, err
}

func (s *streamSource) readAll() ([]byte, error) {
	b, err := io.ReadAll(s.r)
	s.off += int64(len(b))
	return b, err
}

func (s *streamSource) pos() int64 {
	return s.off
}

func (s *streamSource) partial() bool {
	return false
}

// bufferSource reads from a byte slice. A failed read consumes nothing.
type bufferSource struct {
	data []byte
	off  int
	more bool
}

func newBufferSource(b []byte, more bool) *bufferSource {
	return &bufferSource{data: b, more: more}
}

func (s *bufferSource) read(n int) ([]byte, error) {
	if left := len(s.data) - s.off; left < n {
		return nil, errors.OutOfData(n, left)
	}
	b := s.data[s.off : s.off+n : s.off+n]
	s.off += n
	return b, nil
}

// readAll returns everything left. When more input may still arrive the end is not known yet,
// so that is reported as running out of data.
func (s *bufferSource) readAll() ([]byte, error) {
	if s.more {
		return nil, errors.OutOfData(len(s.data)-s.off+1, len(s.data)-s.off)
	}
	b := s.data[s.off:]
	s.off = len(s.data)
	return b, nil
}

func (s *bufferSource) pos() int64 {
	return int64(s.off)
}

func (s *bufferSource) partial() bool {
	return s.more
}

func (s *bufferSource) rest() []byte {
	return s.data[s.off:]
}
