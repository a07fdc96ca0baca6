package steel

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bearlytools/steel/compress"
	"github.com/bearlytools/steel/digest"
	"github.com/bearlytools/steel/internal/binary"
	"github.com/bearlytools/steel/textenc"
)

// optSet records which options were set on a field.
type optSet uint32

const (
	optSize optSet = 1 << iota
	optEndian
	optSigned
	optSigning
	optEncoding
	optPadding
	optTerminator
	optDefault
	optChoices
	optLabel
	optFirst
	optLast
	optDigest
	optAlgorithm
	optPlaces
	optUntil
	optKeepTerminator
)

var optNames = []string{
	"Size", "Endian", "Signed", "Signing", "Encoding", "Padding", "Terminator", "Default",
	"Choices", "Label", "First", "Last", "Digest", "Algorithm", "Places", "Until", "KeepTerminator",
}

func (o optSet) names() string {
	var names []string
	for i, n := range optNames {
		if o&(1<<i) != 0 {
			names = append(names, n)
		}
	}
	return strings.Join(names, ", ")
}

// options holds the parameters of a field. Fields never change their options once a Schema is
// built, so they can be shared by any number of instances.
type options struct {
	set optSet

	size       Param
	endian     binary.Endianness
	signed     bool
	signing    binary.Signing
	encoding   string
	padding    []byte
	terminator []byte
	def        any
	choices    []any
	label      string
	first      string
	last       string
	digest     digest.Func
	algorithm  compress.Algorithm
	places     int
	until      *ChunkType
	keepEnd    bool
}

func (o *options) has(s optSet) bool {
	return o.set&s != 0
}

func (o *options) apply(opts []Option) {
	for _, opt := range opts {
		opt(o)
	}
}

// Option sets a parameter on a field. Which options a field accepts depends on its kind;
// giving a field an option it does not accept is reported by Builder.Build.
type Option func(o *options)

// Size sets a literal size. For most fields this is a number of bytes. For List it is the number
// of elements, for bit fields it is a number of bits.
func Size(n int) Option {
	return func(o *options) {
		o.set |= optSize
		o.size = Lit(int64(n))
	}
}

// SizeFrom sets a size that is resolved on every instance, usually a reference to an earlier field.
// When the Param is a plain Ref to a sibling, writing this field updates the sibling to the new size.
func SizeFrom(p Param) Option {
	return func(o *options) {
		o.set |= optSize
		o.size = p
	}
}

// Endian sets the byte order of a number.
func Endian(e Endianness) Option {
	return func(o *options) {
		o.set |= optEndian
		o.endian = e
	}
}

// Signed marks a number as signed. The representation defaults to two's complement.
func Signed() Option {
	return func(o *options) {
		o.set |= optSigned
		o.signed = true
	}
}

// Signing sets the representation of a signed number and marks it as signed.
func Signing(s SigningScheme) Option {
	return func(o *options) {
		o.set |= optSigning | optSigned
		o.signing = s
		o.signed = true
	}
}

// Encoding sets the text encoding of a string. See package textenc for the names understood.
func Encoding(name string) Option {
	return func(o *options) {
		o.set |= optEncoding
		o.encoding = name
	}
}

// Padding sets the bytes used to fill a fixed size string. The default is a single zero byte.
func Padding(b []byte) Option {
	return func(o *options) {
		o.set |= optPadding
		o.padding = b
	}
}

// Terminator sets the bytes that end a string that has no size. The default is a single zero byte.
func Terminator(b []byte) Option {
	return func(o *options) {
		o.set |= optTerminator
		o.terminator = b
	}
}

// Default sets the value a field has when it has no data, either because the input ran out or
// because it sits in a conditional group that is not on the wire.
func Default(v any) Option {
	return func(o *options) {
		o.set |= optDefault
		o.def = v
	}
}

// Choices limits the values a field accepts. Instance.Validate reports values outside the list.
func Choices(values ...any) Option {
	return func(o *options) {
		o.set |= optChoices
		o.choices = values
	}
}

// Label sets a human readable name for a field.
func Label(s string) Option {
	return func(o *options) {
		o.set |= optLabel
		o.label = s
	}
}

// First sets the first field covered by a checksum.
func First(name string) Option {
	return func(o *options) {
		o.set |= optFirst
		o.first = name
	}
}

// Last sets the last field covered by a checksum.
func Last(name string) Option {
	return func(o *options) {
		o.set |= optLast
		o.last = name
	}
}

// Digest sets the algorithm a checksum uses.
func Digest(f digest.Func) Option {
	return func(o *options) {
		o.set |= optDigest
		o.digest = f
	}
}

// Algorithm sets the compression algorithm of a Compressed field.
func Algorithm(a compress.Algorithm) Option {
	return func(o *options) {
		o.set |= optAlgorithm
		o.algorithm = a
	}
}

// Places sets the number of decimal places of a FixedPoint field.
func Places(n int) Option {
	return func(o *options) {
		o.set |= optPlaces
		o.places = n
	}
}

// Until sets the chunk type that ends a ChunkList.
func Until(t *ChunkType) Option {
	return func(o *options) {
		o.set |= optUntil
		o.until = t
	}
}

// KeepTerminator keeps the chunk that ended a ChunkList in the decoded list.
func KeepTerminator() Option {
	return func(o *options) {
		o.set |= optKeepTerminator
		o.keepEnd = true
	}
}

// SchemaOption is an optional argument to Define and DefineBits.
type SchemaOption func(s *schemaOptions)

type schemaOptions struct {
	defaults options
	logger   *slog.Logger
}

// WithEndianness sets the byte order of every number in the schema that does not set its own.
func WithEndianness(e Endianness) SchemaOption {
	return func(s *schemaOptions) {
		Endian(e)(&s.defaults)
	}
}

// WithEncoding sets the text encoding of every string in the schema that does not set its own.
func WithEncoding(name string) SchemaOption {
	return func(s *schemaOptions) {
		Encoding(name)(&s.defaults)
	}
}

// WithLogger sets the logger used for debug output while reading and writing instances.
// By default nothing is logged.
func WithLogger(l *slog.Logger) SchemaOption {
	return func(s *schemaOptions) {
		s.logger = l
	}
}

// rules lists the options a field kind accepts and which of them it needs.
type rules struct {
	allowed  optSet
	required optSet
}

const (
	commonOpts  = optDefault | optChoices | optLabel
	integerOpts = optSize | optEndian | optSigned | optSigning | commonOpts
	stringOpts  = optSize | optEncoding | optPadding | optTerminator | commonOpts
)

// inherit copies schema wide defaults into o for every option the field accepts and did not set.
func (o *options) inherit(d *options, r rules) {
	if r.allowed&optEndian != 0 && !o.has(optEndian) && d.has(optEndian) {
		o.endian = d.endian
		o.set |= optEndian
	}
	if r.allowed&optEncoding != 0 && !o.has(optEncoding) && d.has(optEncoding) {
		o.encoding = d.encoding
		o.set |= optEncoding
	}
}

// check reports options the field does not accept, required options that are missing and option
// values that can never work.
func (o *options) check(kind string, r rules) error {
	if extra := o.set &^ r.allowed; extra != 0 {
		return fmt.Errorf("%s fields do not accept %s", kind, extra.names())
	}
	if missing := r.required &^ o.set; missing != 0 {
		return fmt.Errorf("%s fields require %s", kind, missing.names())
	}
	if o.has(optSize) {
		if err := o.size.check(); err != nil {
			return fmt.Errorf("%s size: %w", kind, err)
		}
		if n, ok := o.size.literal(); ok && n < 0 {
			return fmt.Errorf("%s size cannot be negative, got %d", kind, n)
		}
	}
	if o.has(optEncoding) && !textenc.Known(o.encoding) {
		return fmt.Errorf("%s: unknown text encoding %q", kind, o.encoding)
	}
	if o.has(optDigest) && o.digest == nil {
		return fmt.Errorf("%s: Digest cannot be nil", kind)
	}
	if o.has(optEndian) && o.endian == nil {
		return fmt.Errorf("%s: Endian cannot be nil", kind)
	}
	if o.has(optSigning) && o.signing == nil {
		return fmt.Errorf("%s: Signing cannot be nil", kind)
	}
	if o.has(optPlaces) && (o.places < 0 || o.places > 18) {
		return fmt.Errorf("%s: Places must be between 0 and 18, got %d", kind, o.places)
	}
	return nil
}

func (o *options) endianness() binary.Endianness {
	if o.endian == nil {
		return binary.BigEndian
	}
	return o.endian
}

func (o *options) signingScheme() binary.Signing {
	if o.signing == nil {
		return binary.TwosComplement
	}
	return o.signing
}

func (o *options) textEncoding() string {
	if o.encoding == "" {
		return textenc.Default
	}
	return o.encoding
}

func (o *options) pad() []byte {
	if o.has(optPadding) {
		return o.padding
	}
	return []byte{0}
}

func (o *options) term() []byte {
	if o.has(optTerminator) {
		return o.terminator
	}
	return []byte{0}
}
