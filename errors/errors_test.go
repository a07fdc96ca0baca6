package errors

import (
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "Success: nil", err: nil, want: KindUnknown},
		{name: "Success: out of data", err: OutOfData(4, 2), want: KindOutOfData},
		{name: "Success: value", err: Value("%d is too big", 300), want: KindValue},
		{name: "Success: integrity", err: Integrity("bad sum"), want: KindIntegrity},
		{name: "Success: schema", err: Schema("bad size"), want: KindSchema},
		{name: "Success: unknown field is a schema error", err: ErrUnknownField, want: KindSchema},
		{name: "Success: wrapped in Error", err: E("Header", "size", OutOfData(1, 0)), want: KindOutOfData},
		{name: "Success: wrapped twice", err: fmt.Errorf("outer: %w", E("A", "b", ErrAbsent)), want: KindAbsent},
		{name: "Success: foreign error", err: New("boom"), want: KindUnknown},
	}

	for _, test := range tests {
		if got := KindOf(test.err); got != test.want {
			t.Errorf("TestKindOf(%s): got %s, want %s", test.name, got, test.want)
		}
	}
}

func TestE(t *testing.T) {
	if E("A", "b", nil) != nil {
		t.Errorf("TestE(nil): got non-nil error")
	}

	err := E("Header", "size", OutOfData(2, 1))
	want := "Header.size: out of data: wanted 2 bytes, got 1"
	if err.Error() != want {
		t.Errorf("TestE: got %q, want %q", err.Error(), want)
	}
	if again := E("Header", "size", err); again != err {
		t.Errorf("TestE: rewrapping with the same location should return the same error")
	}

	var e *Error
	if !As(err, &e) {
		t.Fatalf("TestE: As() could not find *Error")
	}
	if e.Kind() != KindOutOfData {
		t.Errorf("TestE: got Kind %s, want OutOfData", e.Kind())
	}
}
