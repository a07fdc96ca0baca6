package binary

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func TestEndianness(t *testing.T) {
	tests := []struct {
		name   string
		endian Endianness
		value  uint64
		size   int
		want   []byte
	}{
		{name: "Success: big endian single byte", endian: BigEndian, value: 42, size: 1, want: []byte{42}},
		{name: "Success: big endian two bytes", endian: BigEndian, value: 42, size: 2, want: []byte{0, 42}},
		{name: "Success: little endian two bytes", endian: LittleEndian, value: 42, size: 2, want: []byte{42, 0}},
		{name: "Success: big endian four bytes", endian: BigEndian, value: 0x01020304, size: 4, want: []byte{1, 2, 3, 4}},
		{name: "Success: little endian four bytes", endian: LittleEndian, value: 0x01020304, size: 4, want: []byte{4, 3, 2, 1}},
		{name: "Success: big endian three bytes", endian: BigEndian, value: 0x010203, size: 3, want: []byte{1, 2, 3}},
		{name: "Success: little endian eight bytes", endian: LittleEndian, value: 0xff, size: 8, want: []byte{0xff, 0, 0, 0, 0, 0, 0, 0}},
	}

	for _, test := range tests {
		got := test.endian.Encode(test.value, test.size)
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestEndianness(%s): Encode: -want/+got:\n%s", test.name, diff)
			continue
		}
		if back := test.endian.Decode(got); back != test.value {
			t.Errorf("TestEndianness(%s): Decode: got %d, want %d", test.name, back, test.value)
		}
	}
}

func TestSigning(t *testing.T) {
	tests := []struct {
		name    string
		signing Signing
		value   int64
		bits    uint
		want    uint64
		wantErr bool
	}{
		{name: "Success: sign-magnitude -42", signing: SignMagnitude, value: -42, bits: 8, want: 0b10101010},
		{name: "Success: ones' complement -42", signing: OnesComplement, value: -42, bits: 8, want: 0b11010101},
		{name: "Success: two's complement -42", signing: TwosComplement, value: -42, bits: 8, want: 0b11010110},
		{name: "Success: sign-magnitude positive", signing: SignMagnitude, value: 42, bits: 8, want: 42},
		{name: "Success: two's complement min", signing: TwosComplement, value: -128, bits: 8, want: 0x80},
		{name: "Success: two's complement 64 bit", signing: TwosComplement, value: -1, bits: 64, want: ^uint64(0)},
		{name: "Success: two's complement 3 bit", signing: TwosComplement, value: -4, bits: 3, want: 0b100},
		{name: "Error: two's complement too large", signing: TwosComplement, value: 128, bits: 8, wantErr: true},
		{name: "Error: two's complement too small", signing: TwosComplement, value: -129, bits: 8, wantErr: true},
		{name: "Error: sign-magnitude cannot hold -128", signing: SignMagnitude, value: -128, bits: 8, wantErr: true},
		{name: "Error: ones' complement cannot hold 128", signing: OnesComplement, value: 128, bits: 8, wantErr: true},
	}

	for _, test := range tests {
		got, err := test.signing.Encode(test.value, test.bits)
		switch {
		case err == nil && test.wantErr:
			t.Errorf("TestSigning(%s): got err == nil, want err != nil", test.name)
			continue
		case err != nil && !test.wantErr:
			t.Errorf("TestSigning(%s): got err == %s, want err == nil", test.name, err)
			continue
		case err != nil:
			continue
		}

		if got != test.want {
			t.Errorf("TestSigning(%s): Encode: got %#b, want %#b", test.name, got, test.want)
		}
		if back := test.signing.Decode(got, test.bits); back != test.value {
			t.Errorf("TestSigning(%s): Decode: got %d, want %d", test.name, back, test.value)
		}
	}
}

func TestSigningRoundTrip(t *testing.T) {
	for _, s := range []Signing{SignMagnitude, OnesComplement, TwosComplement} {
		for bits := uint(2); bits <= 12; bits++ {
			max := int64(1)<<(bits-1) - 1
			for v := -max; v <= max; v++ {
				u, err := s.Encode(v, bits)
				if err != nil {
					t.Fatalf("TestSigningRoundTrip(%s, %d bits, %d): unexpected error: %s", s, bits, v, err)
				}
				if u > Mask[uint64](bits) {
					t.Fatalf("TestSigningRoundTrip(%s, %d bits, %d): pattern %#b exceeds width", s, bits, v, u)
				}
				if got := s.Decode(u, bits); got != v {
					t.Fatalf("TestSigningRoundTrip(%s, %d bits): got %d, want %d", s, bits, got, v)
				}
			}
		}
	}
}

func TestFits(t *testing.T) {
	if !Fits(255, 8) {
		t.Errorf("TestFits: 255 should fit in 8 bits")
	}
	if Fits(256, 8) {
		t.Errorf("TestFits: 256 should not fit in 8 bits")
	}
	if Fits(-1, 8) {
		t.Errorf("TestFits: -1 should not fit unsigned")
	}
}
