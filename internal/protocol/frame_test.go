// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"errors"
	"testing"
)

func TestEncodeCanonicalForms(t *testing.T) {
	cases := []struct {
		name string
		f    Frame
		want string
	}{
		{"simple", NewSimple("foo"), "+foo\r\n"},
		{"error", NewError("foo"), "-foo\r\n"},
		{"integer", NewInteger(10), ":10\r\n"},
		{"null", NewNull(), "$-1\r\n"},
		{"bulk", NewBulk([]byte("foo")), "$3\r\nfoo\r\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.f.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("Encode() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEncodeArrayIsRejected(t *testing.T) {
	_, err := NewArray([]Frame{NewSimple("a")}).Encode()
	if err == nil {
		t.Fatal("expected Encode to reject Array frames")
	}
}

func TestRoundTripNonArray(t *testing.T) {
	cases := []Frame{
		NewSimple("OK"),
		NewError("ERR unknown command 'ping'"),
		NewInteger(0),
		NewInteger(18446744073709551615),
		NewNull(),
		NewBulk([]byte("")),
		NewBulk([]byte("bar")),
		NewBulk([]byte{0, 1, 2, 255}),
	}
	for _, f := range cases {
		encoded, err := f.Encode()
		if err != nil {
			t.Fatalf("Encode(%+v): %v", f, err)
		}
		got, n, err := Parse(encoded)
		if err != nil {
			t.Fatalf("Parse(%q): %v", encoded, err)
		}
		if n != len(encoded) {
			t.Fatalf("Parse consumed %d bytes, want %d", n, len(encoded))
		}
		if !got.Equal(f) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
		}
	}
}

func TestRoundTripArray(t *testing.T) {
	arr := NewArray([]Frame{
		NewBulk([]byte("SET")),
		NewBulk([]byte("foo")),
		NewBulk([]byte("bar")),
	})

	var buf []byte
	buf = append(buf, '*')
	buf = append(buf, []byte("3\r\n")...)
	for _, elem := range arr.Array {
		enc, err := elem.Encode()
		if err != nil {
			t.Fatalf("Encode element: %v", err)
		}
		buf = append(buf, enc...)
	}

	got, n, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d, want %d", n, len(buf))
	}
	if !got.Equal(arr) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, arr)
	}
}

func TestCheckIncompleteOnEveryProperPrefix(t *testing.T) {
	full := []byte("*2\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	// Confirm the whole buffer checks out first.
	n, err := Check(full)
	if err != nil || n != len(full) {
		t.Fatalf("Check(full) = (%d, %v), want (%d, nil)", n, err, len(full))
	}

	for i := 0; i < len(full); i++ {
		prefix := full[:i]
		_, err := Check(prefix)
		if !errors.Is(err, ErrIncomplete) {
			t.Fatalf("Check(prefix len %d) = %v, want ErrIncomplete", i, err)
		}
	}
}

func TestCheckNeverReadsPastBuffer(t *testing.T) {
	// A bulk length header with no payload at all must not panic or
	// index out of range.
	_, err := Check([]byte("$5\r\n"))
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Check = %v, want ErrIncomplete", err)
	}
	_, err = Check([]byte("$"))
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Check = %v, want ErrIncomplete", err)
	}
}

func TestCheckRejectsNegativeInteger(t *testing.T) {
	_, err := Check([]byte(":-5\r\n"))
	if err == nil || errors.Is(err, ErrIncomplete) {
		t.Fatalf("Check(-5) = %v, want a protocol error", err)
	}
}

func TestCheckRejectsBareCRorLF(t *testing.T) {
	// A bare \n with no preceding \r must never terminate a line: the
	// frame runs on to the real "\r\n" and covers the whole input.
	input := []byte("+foo\nbar\r\n")
	n, err := Check(input)
	if err != nil || n != len(input) {
		t.Fatalf("Check = (%d, %v), want (%d, nil) (bare LF must not terminate)", n, err, len(input))
	}
}

func TestCheckMalformedBulkLength(t *testing.T) {
	_, err := Check([]byte("$abc\r\nfoo\r\n"))
	if err == nil || errors.Is(err, ErrIncomplete) {
		t.Fatalf("Check = %v, want a protocol error", err)
	}
}

func TestCheckBulkIncompleteWhenShortOfDeclaredLength(t *testing.T) {
	_, err := Check([]byte("$5\r\nfoo\r\n"))
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Check = %v, want ErrIncomplete", err)
	}
}

func TestCheckUnknownTypeByte(t *testing.T) {
	_, err := Check([]byte("#foo\r\n"))
	if err == nil || errors.Is(err, ErrIncomplete) {
		t.Fatalf("Check = %v, want a protocol error", err)
	}
	if !IsProtocolError(err) {
		t.Fatalf("IsProtocolError(%v) = false, want true", err)
	}
}
