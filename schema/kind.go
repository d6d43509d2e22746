package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the element type of a field.
type Kind uint8

const (
	// Invalid is the zero Kind; it never appears in a valid Schema.
	Invalid Kind = iota
	Float64
	Float32
	Int64
	Int32
	Int16
	Uint8
	Bool
	// String is a fixed-width UTF-8 field. The width in bytes is carried on
	// the Field, not the Kind.
	String
)

var kindNames = map[Kind]string{
	Float64: "float64",
	Float32: "float32",
	Int64:   "int64",
	Int32:   "int32",
	Int16:   "int16",
	Uint8:   "uint8",
	Bool:    "bool",
	String:  "string",
}

// String returns the dtype name, e.g. "float64". String kinds render without
// their width; use FormatKind for the round-trippable form.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Size returns the element size in bytes, or 0 for String (whose width is
// per-field) and Invalid.
func (k Kind) Size() int {
	switch k {
	case Float64, Int64:
		return 8
	case Float32, Int32:
		return 4
	case Int16:
		return 2
	case Uint8, Bool:
		return 1
	default:
		return 0
	}
}

// ParseKind parses a dtype string into a Kind and, for "stringN" forms, a
// byte width. Accepted values: "float64", "float32", "int64", "int32",
// "int16", "uint8", "bool", and "stringN" with N >= 1 (e.g. "string16").
func ParseKind(s string) (Kind, int, error) {
	for k, name := range kindNames {
		if k == String {
			continue
		}
		if s == name {
			return k, 0, nil
		}
	}
	if rest, ok := strings.CutPrefix(s, "string"); ok {
		w, err := strconv.Atoi(rest)
		if err != nil || w < 1 {
			return Invalid, 0, fmt.Errorf("%w: string width %q", ErrBadField, rest)
		}
		return String, w, nil
	}
	return Invalid, 0, fmt.Errorf("%w: unknown dtype %q", ErrBadField, s)
}

// FormatKind renders a Kind (and width, for String) in the form ParseKind
// accepts.
func FormatKind(k Kind, width int) string {
	if k == String {
		return fmt.Sprintf("string%d", width)
	}
	return k.String()
}
