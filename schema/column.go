package schema

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Column is a validated, encoded run of scalar values for one field, one
// value per observation, ready to be copied row-by-row into records.
type Column struct {
	field Field
	raw   []byte
}

// Field returns the field the column was cast against.
func (c Column) Field() Field { return c.field }

// Len returns the number of rows in the column.
func (c Column) Len() int {
	if c.field.ElemSize() == 0 {
		return 0
	}
	return len(c.raw) / c.field.ElemSize()
}

// Row returns the encoded bytes for row i.
func (c Column) Row(i int) []byte {
	es := c.field.ElemSize()
	return c.raw[i*es : (i+1)*es]
}

// CastColumn casts values to the declared element kind of f and encodes them
// as a Column of exactly n rows. values must be a Go slice; the accepted
// element types per kind are:
//
//	float64: []float64 []float32 []int []int64 []int32
//	float32: []float32 []int []int32 []int16
//	int64:   []int64 []int []int32 []int16 []uint8
//	int32:   []int32 []int16 []uint8 []int (range-checked)
//	int16:   []int16 []uint8 []int (range-checked)
//	uint8:   []uint8 []int (range-checked)
//	bool:    []bool
//	stringN: []string (each at most N bytes)
//
// Any other type, an out-of-range integer, or an over-width string fails
// with ErrWrongType. A length other than n fails with ErrWrongType as well.
func CastColumn(f Field, values any, n int) (Column, error) {
	if len(f.Shape) != 0 {
		return Column{}, fmt.Errorf("%w: field %q is not a scalar", ErrWrongType, f.Name)
	}
	enc, length, err := encoderFor(f, values)
	if err != nil {
		return Column{}, err
	}
	if length != n {
		return Column{}, fmt.Errorf("%w: field %q needs %d values, got %d",
			ErrWrongType, f.Name, n, length)
	}
	es := f.ElemSize()
	raw := make([]byte, n*es)
	for i := 0; i < n; i++ {
		if err := enc(raw[i*es:(i+1)*es], i); err != nil {
			return Column{}, err
		}
	}
	return Column{field: f, raw: raw}, nil
}

// encoderFor resolves values against the field kind and returns a closure
// encoding element i into a pre-sized buffer.
func encoderFor(f Field, values any) (func(dst []byte, i int) error, int, error) {
	wrong := func() (func([]byte, int) error, int, error) {
		return nil, 0, fmt.Errorf("%w: field %q (%s) cannot take %T",
			ErrWrongType, f.Name, FormatKind(f.Kind, f.Width), values)
	}

	putF64 := func(get func(int) float64, n int) (func([]byte, int) error, int, error) {
		return func(dst []byte, i int) error {
			binary.LittleEndian.PutUint64(dst, math.Float64bits(get(i)))
			return nil
		}, n, nil
	}
	putF32 := func(get func(int) float32, n int) (func([]byte, int) error, int, error) {
		return func(dst []byte, i int) error {
			binary.LittleEndian.PutUint32(dst, math.Float32bits(get(i)))
			return nil
		}, n, nil
	}
	putI64 := func(get func(int) int64, n int) (func([]byte, int) error, int, error) {
		return func(dst []byte, i int) error {
			binary.LittleEndian.PutUint64(dst, uint64(get(i)))
			return nil
		}, n, nil
	}

	switch f.Kind {
	case Float64:
		switch v := values.(type) {
		case []float64:
			return putF64(func(i int) float64 { return v[i] }, len(v))
		case []float32:
			return putF64(func(i int) float64 { return float64(v[i]) }, len(v))
		case []int:
			return putF64(func(i int) float64 { return float64(v[i]) }, len(v))
		case []int64:
			return putF64(func(i int) float64 { return float64(v[i]) }, len(v))
		case []int32:
			return putF64(func(i int) float64 { return float64(v[i]) }, len(v))
		}
	case Float32:
		switch v := values.(type) {
		case []float32:
			return putF32(func(i int) float32 { return v[i] }, len(v))
		case []int:
			return putF32(func(i int) float32 { return float32(v[i]) }, len(v))
		case []int32:
			return putF32(func(i int) float32 { return float32(v[i]) }, len(v))
		case []int16:
			return putF32(func(i int) float32 { return float32(v[i]) }, len(v))
		}
	case Int64:
		switch v := values.(type) {
		case []int64:
			return putI64(func(i int) int64 { return v[i] }, len(v))
		case []int:
			return putI64(func(i int) int64 { return int64(v[i]) }, len(v))
		case []int32:
			return putI64(func(i int) int64 { return int64(v[i]) }, len(v))
		case []int16:
			return putI64(func(i int) int64 { return int64(v[i]) }, len(v))
		case []uint8:
			return putI64(func(i int) int64 { return int64(v[i]) }, len(v))
		}
	case Int32:
		get, n, ok := intGetter(values)
		if !ok {
			return wrong()
		}
		return func(dst []byte, i int) error {
			v := get(i)
			if v < math.MinInt32 || v > math.MaxInt32 {
				return fmt.Errorf("%w: field %q: %d overflows int32", ErrWrongType, f.Name, v)
			}
			binary.LittleEndian.PutUint32(dst, uint32(int32(v)))
			return nil
		}, n, nil
	case Int16:
		get, n, ok := intGetter(values)
		if !ok {
			return wrong()
		}
		return func(dst []byte, i int) error {
			v := get(i)
			if v < math.MinInt16 || v > math.MaxInt16 {
				return fmt.Errorf("%w: field %q: %d overflows int16", ErrWrongType, f.Name, v)
			}
			binary.LittleEndian.PutUint16(dst, uint16(int16(v)))
			return nil
		}, n, nil
	case Uint8:
		get, n, ok := intGetter(values)
		if !ok {
			return wrong()
		}
		return func(dst []byte, i int) error {
			v := get(i)
			if v < 0 || v > math.MaxUint8 {
				return fmt.Errorf("%w: field %q: %d overflows uint8", ErrWrongType, f.Name, v)
			}
			dst[0] = uint8(v)
			return nil
		}, n, nil
	case Bool:
		v, ok := values.([]bool)
		if !ok {
			return wrong()
		}
		return func(dst []byte, i int) error {
			if v[i] {
				dst[0] = 1
			} else {
				dst[0] = 0
			}
			return nil
		}, len(v), nil
	case String:
		v, ok := values.([]string)
		if !ok {
			return wrong()
		}
		return func(dst []byte, i int) error {
			if len(v[i]) > f.Width {
				return fmt.Errorf("%w: field %q: %q exceeds width %d",
					ErrWrongType, f.Name, v[i], f.Width)
			}
			for j := range dst {
				dst[j] = 0
			}
			copy(dst, v[i])
			return nil
		}, len(v), nil
	}
	return wrong()
}

// intGetter views an integer slice as func(i) int64. Narrow widths widen
// losslessly; range checks against the target kind happen in the encoder.
func intGetter(values any) (func(int) int64, int, bool) {
	switch v := values.(type) {
	case []int:
		return func(i int) int64 { return int64(v[i]) }, len(v), true
	case []int64:
		return func(i int) int64 { return v[i] }, len(v), true
	case []int32:
		return func(i int) int64 { return int64(v[i]) }, len(v), true
	case []int16:
		return func(i int) int64 { return int64(v[i]) }, len(v), true
	case []uint8:
		return func(i int) int64 { return int64(v[i]) }, len(v), true
	}
	return nil, 0, false
}
