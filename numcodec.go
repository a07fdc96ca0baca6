package steel

import "github.com/bearlytools/steel/internal/binary"

// Endianness is the byte order of a multi byte number.
type Endianness = binary.Endianness

// SigningScheme is how a signed number is stored in a fixed number of bits.
type SigningScheme = binary.Signing

var (
	// BigEndian stores the most significant byte first. It is the default.
	BigEndian Endianness = binary.BigEndian
	// LittleEndian stores the least significant byte first.
	LittleEndian Endianness = binary.LittleEndian

	// SignMagnitude uses the top bit for the sign and the rest for the magnitude.
	SignMagnitude SigningScheme = binary.SignMagnitude
	// OnesComplement stores negative numbers with every bit of the magnitude inverted.
	OnesComplement SigningScheme = binary.OnesComplement
	// TwosComplement is the usual machine form. It is the default for signed fields.
	TwosComplement SigningScheme = binary.TwosComplement
)
