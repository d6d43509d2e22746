package schema

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

var (
	// ErrBadField indicates a structurally invalid field declaration:
	// empty or duplicate name, unknown dtype, non-positive shape dimension.
	ErrBadField = errors.New("schema: invalid field")

	// ErrWrongType indicates a value that does not match a field's declared
	// element kind, including over-width strings.
	ErrWrongType = errors.New("schema: wrong element type")

	// ErrUnknownField indicates a field name not present in the schema.
	ErrUnknownField = errors.New("schema: unknown field")
)

// Field is one named sub-region of a record.
type Field struct {
	Name string
	Kind Kind
	// Width is the byte width for String fields; zero otherwise.
	Width int
	// Shape is the per-record element shape. Empty means a single scalar.
	Shape []int
}

// ElemSize returns the size of one element in bytes.
func (f Field) ElemSize() int {
	if f.Kind == String {
		return f.Width
	}
	return f.Kind.Size()
}

// Count returns the number of elements per record (the product of Shape,
// or 1 for a scalar field).
func (f Field) Count() int {
	n := 1
	for _, d := range f.Shape {
		n *= d
	}
	return n
}

// Size returns the total byte size of the field region in a record.
func (f Field) Size() int { return f.ElemSize() * f.Count() }

func (f Field) validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: empty name", ErrBadField)
	}
	if _, ok := kindNames[f.Kind]; !ok {
		return fmt.Errorf("%w: field %q has no element kind", ErrBadField, f.Name)
	}
	if f.Kind == String && f.Width < 1 {
		return fmt.Errorf("%w: string field %q needs a positive width", ErrBadField, f.Name)
	}
	if f.Kind != String && f.Width != 0 {
		return fmt.Errorf("%w: field %q carries a width but is not a string", ErrBadField, f.Name)
	}
	for _, d := range f.Shape {
		if d < 1 {
			return fmt.Errorf("%w: field %q has shape dimension %d", ErrBadField, f.Name, d)
		}
	}
	return nil
}

// Schema is an ordered, immutable record layout. Offsets and the record size
// are computed once at construction.
type Schema struct {
	fields  []Field
	offsets []int
	size    int
	index   map[string]int
}

// New validates the field list and builds a Schema. Field order is layout
// order and is preserved exactly.
func New(fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: a schema needs at least one field", ErrBadField)
	}
	s := &Schema{
		fields:  make([]Field, len(fields)),
		offsets: make([]int, len(fields)),
		index:   make(map[string]int, len(fields)),
	}
	off := 0
	for i, f := range fields {
		if err := f.validate(); err != nil {
			return nil, err
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrBadField, f.Name)
		}
		f.Shape = append([]int(nil), f.Shape...)
		s.fields[i] = f
		s.offsets[i] = off
		s.index[f.Name] = i
		off += f.Size()
	}
	s.size = off
	return s, nil
}

// RecordSize returns the fixed byte size of one record.
func (s *Schema) RecordSize() int { return s.size }

// Fields returns a copy of the field list in layout order.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Offset returns the byte offset of the named field within a record.
func (s *Schema) Offset(name string) (int, error) {
	i, ok := s.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return s.offsets[i], nil
}

func (s *Schema) region(rec []byte, name string) ([]byte, Field, error) {
	i, ok := s.index[name]
	if !ok {
		return nil, Field{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	f := s.fields[i]
	if len(rec) != s.size {
		return nil, Field{}, fmt.Errorf("%w: record is %d bytes, schema needs %d",
			ErrWrongType, len(rec), s.size)
	}
	off := s.offsets[i]
	return rec[off : off+f.Size()], f, nil
}

// PutFloat64s writes vals into the named Float64 field of rec. The value
// count must equal the field's element count.
func (s *Schema) PutFloat64s(rec []byte, name string, vals []float64) error {
	region, f, err := s.region(rec, name)
	if err != nil {
		return err
	}
	if f.Kind != Float64 {
		return fmt.Errorf("%w: field %q is %s, not float64", ErrWrongType, name, f.Kind)
	}
	if len(vals) != f.Count() {
		return fmt.Errorf("%w: field %q holds %d elements, got %d",
			ErrWrongType, name, f.Count(), len(vals))
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint64(region[i*8:], math.Float64bits(v))
	}
	return nil
}

// Float64s reads the named Float64 field of rec into a fresh slice.
func (s *Schema) Float64s(rec []byte, name string) ([]float64, error) {
	region, f, err := s.region(rec, name)
	if err != nil {
		return nil, err
	}
	if f.Kind != Float64 {
		return nil, fmt.Errorf("%w: field %q is %s, not float64", ErrWrongType, name, f.Kind)
	}
	out := make([]float64, f.Count())
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(region[i*8:]))
	}
	return out, nil
}

// PutRaw copies an already-encoded field region into rec. raw must be
// exactly the field's size.
func (s *Schema) PutRaw(rec []byte, name string, raw []byte) error {
	region, f, err := s.region(rec, name)
	if err != nil {
		return err
	}
	if len(raw) != f.Size() {
		return fmt.Errorf("%w: field %q is %d bytes, got %d",
			ErrWrongType, name, f.Size(), len(raw))
	}
	copy(region, raw)
	return nil
}

// Value decodes the named scalar field of rec. The returned value is
// float64, float32, int64, int32, int16, uint8, bool or string depending on
// the field's kind. Non-scalar fields are rejected.
func (s *Schema) Value(rec []byte, name string) (any, error) {
	region, f, err := s.region(rec, name)
	if err != nil {
		return nil, err
	}
	if len(f.Shape) != 0 {
		return nil, fmt.Errorf("%w: field %q is not a scalar", ErrWrongType, name)
	}
	return decodeElem(f, region), nil
}

func decodeElem(f Field, b []byte) any {
	switch f.Kind {
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case Float32:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case Int64:
		return int64(binary.LittleEndian.Uint64(b))
	case Int32:
		return int32(binary.LittleEndian.Uint32(b))
	case Int16:
		return int16(binary.LittleEndian.Uint16(b))
	case Uint8:
		return b[0]
	case Bool:
		return b[0] != 0
	case String:
		end := len(b)
		for end > 0 && b[end-1] == 0 {
			end--
		}
		return string(b[:end])
	}
	return nil
}

type fieldDoc struct {
	Name  string `yaml:"name"`
	DType string `yaml:"dtype"`
	Shape []int  `yaml:"shape,omitempty"`
}

// MarshalYAML renders the schema as an ordered list of
// {name, dtype, shape} mappings.
func (s *Schema) MarshalYAML() (any, error) {
	docs := make([]fieldDoc, len(s.fields))
	for i, f := range s.fields {
		docs[i] = fieldDoc{
			Name:  f.Name,
			DType: FormatKind(f.Kind, f.Width),
			Shape: append([]int(nil), f.Shape...),
		}
	}
	return docs, nil
}

// UnmarshalYAML parses the list form produced by MarshalYAML and validates
// it exactly as New does.
func (s *Schema) UnmarshalYAML(value *yaml.Node) error {
	var docs []fieldDoc
	if err := value.Decode(&docs); err != nil {
		return fmt.Errorf("%w: %v", ErrBadField, err)
	}
	fields := make([]Field, len(docs))
	for i, d := range docs {
		kind, width, err := ParseKind(d.DType)
		if err != nil {
			return err
		}
		fields[i] = Field{Name: d.Name, Kind: kind, Width: width, Shape: d.Shape}
	}
	parsed, err := New(fields)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

// Equal reports whether two schemas describe the same layout.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.fields) != len(o.fields) {
		return false
	}
	for i, f := range s.fields {
		g := o.fields[i]
		if f.Name != g.Name || f.Kind != g.Kind || f.Width != g.Width {
			return false
		}
		if len(f.Shape) != len(g.Shape) {
			return false
		}
		for j := range f.Shape {
			if f.Shape[j] != g.Shape[j] {
				return false
			}
		}
	}
	return true
}
