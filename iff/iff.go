// Package iff holds the chunk frames of the Interchange File Format and the formats derived from
// it, such as AIFF and ILBM.
//
// An IFF file is a FORM chunk whose payload starts with a form type and is followed by chunks:
//
//	form, err := iff.ReadForm(r, aiffTypes...)
//	for _, c := range form.Chunks.OfType("SSND") {
//		...
//	}
package iff

import (
	"io"

	"github.com/bearlytools/steel"
)

// Chunk is the frame of every IFF chunk: a four letter id, a big endian size and the payload.
var Chunk = steel.Define("IFFChunk", steel.WithEncoding("ascii")).
	Field("id", steel.String(steel.Size(4), steel.Padding([]byte(" ")))).
	Field("size", steel.Integer(steel.Size(4))).
	Field("payload", steel.Payload(steel.SizeFrom(steel.Ref("size")))).
	MustBuild()

// Format is the chunk format of Chunk.
var Format = steel.MustChunkFormat(Chunk)

// Form is the frame of a FORM chunk. Its size counts the form type as well as the payload.
var Form = steel.Define("IFFForm", steel.WithEncoding("ascii")).
	Field("tag", steel.FixedString("FORM")).
	Field("size", steel.Integer(steel.Size(4))).
	Field("id", steel.String(steel.Size(4), steel.Padding([]byte(" ")))).
	Field("payload", steel.Payload(steel.SizeFrom(steel.Sub(steel.Ref("size"), steel.Lit(4))))).
	OnEncode("payload", func(in *steel.Instance, v any) error {
		return in.Set("size", int64(len(v.([]byte))+4))
	}).
	MustBuild()

// FormFormat is the chunk format of Form, keyed by the form type.
var FormFormat = steel.MustChunkFormat(Form)

// NewType returns the chunk type with the given id whose payload is read with s.
func NewType(id string, s *steel.Schema, opts ...steel.ChunkTypeOption) *steel.ChunkType {
	return steel.NewChunkType(Format, id, s, opts...)
}

// File is a FORM chunk and the chunks inside it.
type File struct {
	// Type is the form type, such as "AIFF".
	Type string
	// Chunks holds the chunks of the form that are of a known type.
	Chunks steel.Chunks
}

// ReadForm reads a FORM chunk from r and the chunks inside it. Chunks whose id is not one of
// known are skipped.
func ReadForm(r io.Reader, known ...*steel.ChunkType) (*File, error) {
	form, err := steel.Parse(Form, r)
	if err != nil {
		return nil, err
	}
	id, err := form.Get("id")
	if err != nil {
		return nil, err
	}
	payload, err := form.Get("payload")
	if err != nil {
		return nil, err
	}

	body := steel.Define("IFFBody").
		Field("chunks", steel.ChunkList(Format, known)).
		MustBuild()
	in, err := steel.ParseBytes(body, payload.([]byte))
	if err != nil {
		return nil, err
	}
	chunks, err := in.Get("chunks")
	if err != nil {
		return nil, err
	}
	return &File{Type: id.(string), Chunks: chunks.(steel.Chunks)}, nil
}

// Bytes returns the file as a FORM chunk.
func (f *File) Bytes() ([]byte, error) {
	body := steel.Define("IFFBody").
		Field("chunks", steel.ChunkList(Format, nil)).
		MustBuild()
	in := steel.New(body)
	if err := in.Set("chunks", f.Chunks); err != nil {
		return nil, err
	}
	payload, err := in.Bytes()
	if err != nil {
		return nil, err
	}

	form := steel.New(Form)
	if err := form.Set("id", f.Type); err != nil {
		return nil, err
	}
	if err := form.Set("payload", payload); err != nil {
		return nil, err
	}
	return form.Bytes()
}

// Save writes the file to w.
func (f *File) Save(w io.Writer) error {
	b, err := f.Bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
