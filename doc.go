/*
Package steel describes binary file formats declaratively. A Schema is an ordered list of named
fields. The same Schema reads bytes into values and writes values back out as bytes.

A field can depend on the fields before it. The most common case is a length prefix:

	header := steel.Define("Header").
		Field("length", steel.Integer(steel.Size(1))).
		Field("content", steel.String(steel.SizeFrom(steel.Ref("length")))).
		MustBuild()

Reading is lazy. Open binds an Instance to an io.Reader and nothing is read until a field is asked for.
Asking for a field reads every field before it first, in declaration order, because any of them
may be needed to read the one asked for:

	in := steel.Open(header, r)
	content, err := in.Get("content")

Writing goes the other way. Setting "content" above also updates "length", since "content" takes its
size from it:

	in := steel.New(header)
	if err := in.Set("content", "automatic"); err != nil {
		// Handle the error.
	}
	b, err := in.Bytes() // "\x09automatic"

Instances created with New can also be fed bytes in pieces with Write. Fields become readable as
soon as enough bytes for them have arrived and any partial field is held until the next Write.

Beyond plain fields, a Schema can hold:

  - Conditional groups (Builder.If) that are only on the wire when a comparison holds.
  - Checksum fields (Checksum, CRC32, Adler32) that verify a span of the fields before them
    while reading and recompute themselves when any of those fields change.
  - Chunk lists (ChunkList) that read tagged, length framed records such as IFF or PNG chunks and
    dispatch each payload to a Schema by its tag.

Bit structures (DefineBits) hold fields narrower than a byte, packed most significant bit first.
*/
package steel
