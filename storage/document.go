package storage

import "strings"

// Field is a single named value inside a document.
type Field struct {
	Name  string
	Value Value
}

// Document is an ordered set of fields. Field order is significant: it is preserved by
// parsing, projections and serialization, and two documents with the same fields in a
// different order are not Identical.
type Document struct {
	fields []Field
}

func NewDocument(fields ...Field) *Document {
	d := &Document{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		d.Set(f.Name, f.Value)
	}
	return d
}

func (d *Document) Len() int {
	return len(d.fields)
}

// Fields returns a copy of the field list.
func (d *Document) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Field returns the i-th field.
func (d *Document) Field(i int) Field {
	return d.fields[i]
}

func (d *Document) index(name string) int {
	for i := range d.fields {
		if d.fields[i].Name == name {
			return i
		}
	}
	return -1
}

// Get returns the value of the named field, or Missing.
func (d *Document) Get(name string) Value {
	if i := d.index(name); i >= 0 {
		return d.fields[i].Value
	}
	return Missing()
}

func (d *Document) Has(name string) bool {
	return d.index(name) >= 0
}

// Set replaces the field in place if present and appends it otherwise. Setting a Missing
// value deletes the field.
func (d *Document) Set(name string, v Value) {
	if v.IsMissing() {
		d.Delete(name)
		return
	}
	if i := d.index(name); i >= 0 {
		d.fields[i].Value = v
		return
	}
	d.fields = append(d.fields, Field{Name: name, Value: v})
}

// Delete removes the named field and reports whether it was present.
func (d *Document) Delete(name string) bool {
	i := d.index(name)
	if i < 0 {
		return false
	}
	d.fields = append(d.fields[:i:i], d.fields[i+1:]...)
	return true
}

// Copy returns a deep copy.
func (d *Document) Copy() *Document {
	out := &Document{fields: make([]Field, len(d.fields))}
	for i, f := range d.fields {
		out.fields[i] = Field{Name: f.Name, Value: f.Value.Copy()}
	}
	return out
}

// Compare orders documents field by field: first by name, then by value.
func (d *Document) Compare(other *Document) int {
	for i := 0; i < len(d.fields) && i < len(other.fields); i++ {
		if c := strings.Compare(d.fields[i].Name, other.fields[i].Name); c != 0 {
			return c
		}
		if c := d.fields[i].Value.Compare(other.fields[i].Value); c != 0 {
			return c
		}
	}
	return cmpInt(len(d.fields), len(other.fields))
}

// Identical reports exact equality: same field names in the same order with Identical values.
func (d *Document) Identical(other *Document) bool {
	if len(d.fields) != len(other.fields) {
		return false
	}
	for i := range d.fields {
		if d.fields[i].Name != other.fields[i].Name || !d.fields[i].Value.Identical(other.fields[i].Value) {
			return false
		}
	}
	return true
}

func (d *Document) String() string {
	b, _ := d.MarshalJSON()
	return string(b)
}
