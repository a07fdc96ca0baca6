package steel

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"

	"github.com/bearlytools/steel/errors"
)

// ChunkFormat is the frame every chunk of a file format shares, such as IFF's id, size and payload.
// The frame is a Schema with a tag field, a size field and a payload field holding the chunk body.
type ChunkFormat struct {
	frame   *Schema
	tag     string
	size    string
	payload string
	tagSlot int
}

// ChunkFormatOption is an option for NewChunkFormat.
type ChunkFormatOption func(f *ChunkFormat)

// TagField names the frame field holding the chunk tag. The default is "id".
func TagField(name string) ChunkFormatOption {
	return func(f *ChunkFormat) {
		f.tag = name
	}
}

// SizeField names the frame field holding the payload size. The default is "size".
func SizeField(name string) ChunkFormatOption {
	return func(f *ChunkFormat) {
		f.size = name
	}
}

// PayloadField names the frame field holding the chunk body. The default is "payload".
func PayloadField(name string) ChunkFormatOption {
	return func(f *ChunkFormat) {
		f.payload = name
	}
}

// NewChunkFormat returns the ChunkFormat using frame. The tag field must not be conditional and the
// payload must be a Bytes or Payload field.
func NewChunkFormat(frame *Schema, opts ...ChunkFormatOption) (*ChunkFormat, error) {
	if frame == nil {
		return nil, errors.Schema("chunk frame is nil")
	}
	f := &ChunkFormat{frame: frame, tag: "id", size: "size", payload: "payload"}
	for _, o := range opts {
		o(f)
	}
	for _, name := range []string{f.tag, f.size, f.payload} {
		if _, ok := frame.index[name]; !ok {
			return nil, errors.Schema("chunk frame %s has no field %q", frame.name, name)
		}
	}
	f.tagSlot = frame.index[f.tag]
	if frame.slots[f.tagSlot].group >= 0 {
		return nil, errors.Schema("chunk frame %s: tag field %q cannot be conditional", frame.name, f.tag)
	}
	if _, ok := frame.slots[frame.index[f.payload]].field.(*bytesField); !ok {
		return nil, errors.Schema("chunk frame %s: %q must be a Payload or Bytes field", frame.name, f.payload)
	}
	return f, nil
}

// MustChunkFormat is NewChunkFormat for package level variables. It panics on error.
func MustChunkFormat(frame *Schema, opts ...ChunkFormatOption) *ChunkFormat {
	f, err := NewChunkFormat(frame, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// Frame returns the frame Schema.
func (f *ChunkFormat) Frame() *Schema {
	return f.frame
}

func (f *ChunkFormat) logger() *slog.Logger {
	return f.frame.logger
}

// ChunkType is a kind of chunk: a tag and the Schema of the chunks with that tag.
type ChunkType struct {
	format   *ChunkFormat
	tag      string
	schema   *Schema
	multiple bool
}

// ChunkTypeOption is an option for NewChunkType.
type ChunkTypeOption func(t *ChunkType)

// Multiple allows the chunk type to appear more than once in a ChunkList.
func Multiple() ChunkTypeOption {
	return func(t *ChunkType) {
		t.multiple = true
	}
}

// NewChunkType returns the chunk type of format with the given tag whose payload is read with
// schema.
func NewChunkType(format *ChunkFormat, tag string, schema *Schema, opts ...ChunkTypeOption) *ChunkType {
	t := &ChunkType{format: format, tag: tag, schema: schema}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Tag returns the tag of the chunk type.
func (t *ChunkType) Tag() string {
	return t.tag
}

// Schema returns the Schema of the chunk payload.
func (t *ChunkType) Schema() *Schema {
	return t.schema
}

// IsMultiple reports whether the chunk type may appear more than once.
func (t *ChunkType) IsMultiple() bool {
	return t.multiple
}

// New returns a chunk of type t whose payload has the given values.
func (t *ChunkType) New(values map[string]any) (*Chunk, error) {
	data, err := NewWith(t.schema, values)
	if err != nil {
		return nil, err
	}
	return t.Wrap(data), nil
}

// Wrap returns a chunk of type t holding data.
func (t *ChunkType) Wrap(data *Instance) *Chunk {
	return &Chunk{Type: t, Tag: t.tag, Data: data}
}

// Chunk is one chunk of a chunk container.
type Chunk struct {
	// Type is the chunk type. It is nil for chunks whose tag is not known.
	Type *ChunkType
	// Tag is the chunk tag.
	Tag string
	// Frame holds the frame fields as read. It is nil for chunks that were built, not read.
	Frame *Instance
	// Data is the decoded payload. It is nil for chunks whose tag is not known.
	Data *Instance
	// Payload is the payload as read. When Data is set, Bytes encodes Data instead.
	Payload []byte
}

// Bytes returns the chunk with its frame. The size and any checksum of the frame are computed
// from the payload; other frame fields keep the values they were read with.
func (c *Chunk) Bytes() ([]byte, error) {
	var format *ChunkFormat
	switch {
	case c.Type != nil:
		format = c.Type.format
	case c.Frame != nil:
		return c.Frame.Bytes()
	default:
		return nil, errors.Value("chunk %q has neither a type nor a frame", c.Tag)
	}

	payload := c.Payload
	if c.Data != nil {
		var err error
		if payload, err = c.Data.Bytes(); err != nil {
			return nil, err
		}
	}

	frame := New(format.frame)
	if c.Frame != nil {
		for i, sl := range format.frame.slots {
			switch {
			case sl.anon, sl.name == format.tag, sl.name == format.size, sl.name == format.payload:
				continue
			case !c.Frame.has[i]:
				continue
			}
			if _, ok := sl.field.(*checksumField); ok {
				continue
			}
			if err := frame.setSlot(i, c.Frame.values[i]); err != nil {
				return nil, errors.E(format.frame.name, sl.name, err)
			}
		}
	}
	if err := frame.Set(format.tag, tagValue(format.frame.slots[format.tagSlot].field, c.Tag)); err != nil {
		return nil, err
	}
	if err := frame.Set(format.payload, payload); err != nil {
		return nil, err
	}
	return frame.Bytes()
}

// Save writes the chunk with its frame to w.
func (c *Chunk) Save(w io.Writer) error {
	b, err := c.Bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Chunks is the value of a ChunkList field.
type Chunks []*Chunk

// OfType returns the chunks with the given tag, in order.
func (cs Chunks) OfType(tag string) Chunks {
	var out Chunks
	for _, c := range cs {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// First returns the first chunk with the given tag.
func (cs Chunks) First(tag string) (*Chunk, bool) {
	for _, c := range cs {
		if c.Tag == tag {
			return c, true
		}
	}
	return nil, false
}

// tagString turns a decoded tag into the string used to look up chunk types.
func tagString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(bytes.TrimRight(x, "\x00"))
	case int64:
		return strconv.FormatInt(x, 10)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// tagValue is the reverse of tagString for the tag field f.
func tagValue(f Field, tag string) any {
	switch f.(type) {
	case *integerField:
		if n, err := strconv.ParseInt(tag, 10, 64); err == nil {
			return n
		}
	case *bytesField:
		return []byte(tag)
	}
	return tag
}

// readChunk reads one chunk from src. It returns a nil chunk when the tag is empty, which ends
// a run of chunks. raw is every byte consumed.
func readChunk(f *ChunkFormat, src source, parent *Instance, known map[string]*ChunkType) (*Chunk, []byte, error) {
	frame := newChild(f.frame, src, parent)
	if err := frame.resolveThrough(f.frame.unitOf[f.tagSlot]); err != nil {
		return nil, frame.consumed(), err
	}
	tag := tagString(frame.values[f.tagSlot])
	if tag == "" {
		return nil, frame.consumed(), nil
	}
	if err := frame.resolveAll(); err != nil {
		return nil, frame.consumed(), err
	}
	raw := frame.consumed()
	pv, err := frame.Get(f.payload)
	if err != nil {
		return nil, raw, err
	}
	payload := pv.([]byte)

	c := &Chunk{Tag: tag, Frame: frame, Payload: payload}
	t, ok := known[tag]
	if !ok {
		return c, raw, nil
	}
	c.Type = t
	data := newChild(t.schema, newBufferSource(payload, false), frame)
	if err := data.resolveAll(); err != nil {
		return nil, raw, fmt.Errorf("chunk %q: %w", tag, err)
	}
	c.Data = data
	return c, raw, nil
}

// consumed returns the bytes read so far, in order.
func (in *Instance) consumed() []byte {
	var out []byte
	for i := range in.schema.slots {
		if in.hasRaw[i] {
			out = append(out, in.raw[i]...)
		}
	}
	return out
}

// ReadChunk reads one chunk from r. Chunks whose tag is in none of known are returned with a nil
// Type and Data. An empty tag returns an error wrapping errors.ErrAbsent.
func ReadChunk(r io.Reader, f *ChunkFormat, known ...*ChunkType) (*Chunk, error) {
	c, _, err := readChunk(f, newStreamSource(r), nil, knownTypes(known))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: empty chunk tag", errors.ErrAbsent)
	}
	return c, nil
}

func knownTypes(known []*ChunkType) map[string]*ChunkType {
	m := make(map[string]*ChunkType, len(known))
	for _, t := range known {
		m[t.tag] = t
	}
	return m
}

type chunkListField struct {
	fieldBase
	format *ChunkFormat
	known  map[string]*ChunkType
}

// ChunkList is a run of chunks of format. Chunks whose tag is one of known are decoded with their
// type's Schema, others are skipped. The list ends at a chunk with an empty tag, at the end of the
// input, or at the chunk type given with Until. That chunk is left out of the value unless
// KeepTerminator is set. Encoding appends an Until chunk if the list does not end with one.
// Values are Chunks.
func ChunkList(format *ChunkFormat, known []*ChunkType, opts ...Option) Field {
	r := rules{allowed: optUntil | optKeepTerminator | optLabel}
	return &chunkListField{fieldBase: newBase("ChunkList", r, opts), format: format, known: knownTypes(known)}
}

func (f *chunkListField) clone() Field {
	c := *f
	return &c
}

func (f *chunkListField) check() error {
	if f.format == nil {
		return fmt.Errorf("chunk format is nil")
	}
	if t := f.o.until; t != nil {
		known := make(map[string]*ChunkType, len(f.known)+1)
		for tag, t := range f.known {
			known[tag] = t
		}
		known[t.tag] = t
		f.known = known
	}
	for tag, t := range f.known {
		if t.format != f.format {
			return fmt.Errorf("chunk type %q belongs to a different format", tag)
		}
	}
	return nil
}

func (f *chunkListField) logger(b binding) *slog.Logger {
	if b.in != nil {
		return b.in.schema.logger
	}
	return f.format.logger()
}

func (f *chunkListField) read(b binding, src source) ([]byte, any, error) {
	var (
		raw   []byte
		list  = Chunks{}
		seen  = map[*ChunkType]bool{}
		until = f.o.until
	)
	for {
		start := src.pos()
		c, r, err := readChunk(f.format, src, b.in, f.known)
		if err != nil {
			if src.pos() == start && !src.partial() && errors.Is(err, errors.ErrOutOfData) {
				f.logger(b).Debug("chunk list ended with the input", "chunks", len(list))
				return raw, list, nil
			}
			return nil, nil, fmt.Errorf("chunk %d: %w", len(list), err)
		}
		raw = append(raw, r...)
		switch {
		case c == nil:
			f.logger(b).Debug("chunk list ended at an empty tag", "chunks", len(list))
			return raw, list, nil
		case c.Type == nil:
			f.logger(b).Debug("skipping unknown chunk", "tag", c.Tag, "bytes", len(r))
			continue
		case seen[c.Type] && !c.Type.multiple:
			return nil, nil, errors.Value("chunk %q appears more than once", c.Tag)
		}
		seen[c.Type] = true
		if c.Type == until {
			if f.o.keepEnd {
				list = append(list, c)
			}
			f.logger(b).Debug("chunk list ended at its terminator", "tag", c.Tag, "chunks", len(list))
			return raw, list, nil
		}
		list = append(list, c)
	}
}

func (f *chunkListField) decode(b binding, raw []byte) (any, error) {
	_, v, err := f.read(b, newBufferSource(raw, false))
	return v, err
}

func (f *chunkListField) canonical(v any) (any, error) {
	switch x := v.(type) {
	case Chunks:
		return x, nil
	case []*Chunk:
		return Chunks(x), nil
	case nil:
		return Chunks{}, nil
	}
	items, err := toSlice(v)
	if err != nil {
		return nil, err
	}
	out := make(Chunks, len(items))
	for i, e := range items {
		c, ok := e.(*Chunk)
		if !ok {
			return nil, errors.Value("element %d is a %T, not a *Chunk", i, e)
		}
		out[i] = c
	}
	return out, nil
}

func (f *chunkListField) encode(b binding, v any) ([]byte, error) {
	cv, err := f.canonical(v)
	if err != nil {
		return nil, err
	}
	list := cv.(Chunks)
	var buf bytes.Buffer
	for i, c := range list {
		raw, err := c.Bytes()
		if err != nil {
			return nil, fmt.Errorf("chunk %d (%q): %w", i, c.Tag, err)
		}
		buf.Write(raw)
	}
	if until := f.o.until; until != nil && (len(list) == 0 || list[len(list)-1].Type != until) {
		end, err := until.New(nil)
		if err != nil {
			return nil, err
		}
		raw, err := end.Bytes()
		if err != nil {
			return nil, fmt.Errorf("terminator %q: %w", until.tag, err)
		}
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

// ChunkReader reads chunks one at a time.
//
//	cr := steel.NewChunkReader(f, format, known...)
//	for cr.Next() {
//		c := cr.Chunk()
//		...
//	}
//	if err := cr.Err(); err != nil {
//		...
//	}
type ChunkReader struct {
	format *ChunkFormat
	src    *streamSource
	known  map[string]*ChunkType
	until  *ChunkType

	chunk *Chunk
	err   error
	done  bool
}

// NewChunkReader returns a ChunkReader reading chunks of format from r. Chunks whose tag is not in
// known are returned with a nil Type and Data.
func NewChunkReader(r io.Reader, format *ChunkFormat, known ...*ChunkType) *ChunkReader {
	return &ChunkReader{format: format, src: newStreamSource(r), known: knownTypes(known)}
}

// StopAt makes the reader stop after returning a chunk of type t.
func (cr *ChunkReader) StopAt(t *ChunkType) *ChunkReader {
	cr.until = t
	cr.known[t.tag] = t
	return cr
}

// Next reads the next chunk. It returns false at the end of the input, at an empty tag, after
// the StopAt chunk or on error.
func (cr *ChunkReader) Next() bool {
	if cr.done {
		return false
	}
	start := cr.src.pos()
	c, _, err := readChunk(cr.format, cr.src, nil, cr.known)
	switch {
	case err != nil:
		cr.done = true
		if cr.src.pos() != start || !errors.Is(err, errors.ErrOutOfData) {
			cr.err = err
		}
		return false
	case c == nil:
		cr.done = true
		return false
	}
	if c.Type == nil {
		cr.format.logger().Debug("read unknown chunk", "tag", c.Tag, "bytes", len(c.Payload))
	}
	if cr.until != nil && c.Type == cr.until {
		cr.done = true
	}
	cr.chunk = c
	return true
}

// Chunk returns the chunk read by the last call to Next.
func (cr *ChunkReader) Chunk() *Chunk {
	return cr.chunk
}

// Err returns the error that stopped the reader, if any. Running out of input between chunks is
// not an error.
func (cr *ChunkReader) Err() error {
	return cr.err
}

// All returns the remaining chunks as an iterator.
func (cr *ChunkReader) All() iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		for cr.Next() {
			if !yield(cr.Chunk(), nil) {
				return
			}
		}
		if cr.err != nil {
			yield(nil, cr.err)
		}
	}
}
