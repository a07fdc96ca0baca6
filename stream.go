package steel

import (
	"io"
	"iter"

	"github.com/bearlytools/steel/errors"
)

// Stream reads structures of schema s one after another from r until r ends. Each Instance is
// fully read before it is yielded. Input that ends inside a structure is an error wrapping
// errors.ErrOutOfData; input that ends between two is not.
//
//	for in, err := range steel.Stream(recordSchema, f) {
//		if err != nil {
//			return err
//		}
//		...
//	}
func Stream(s *Schema, r io.Reader) iter.Seq2[*Instance, error] {
	return func(yield func(*Instance, error) bool) {
		src := newStreamSource(r)
		for {
			start := src.pos()
			in := newChild(s, src, nil)
			err := in.resolveAll()
			switch {
			case err != nil && src.pos() == start && errors.Is(err, errors.ErrOutOfData):
				return
			case err != nil:
				yield(nil, err)
				return
			}
			if !yield(in, nil) {
				return
			}
			if src.pos() == start {
				s.logger.Debug("stream stopped, structure consumed no input", "schema", s.name)
				return
			}
		}
	}
}
