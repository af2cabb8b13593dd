package storage

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"

	"mit.edu/dsg/docdb/common"
)

// ParseValue decodes one JSON value. Object key order is preserved, integers that fit in
// an int64 become KindInt and every other number becomes KindDouble.
func ParseValue(data []byte) (Value, error) {
	raw, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return Value{}, invalidDocument(err, "malformed JSON")
	}
	return fromJSON(raw, dataType)
}

// ParseDocument decodes a JSON object.
func ParseDocument(data []byte) (*Document, error) {
	v, err := ParseValue(data)
	if err != nil {
		return nil, err
	}
	if v.kind != KindDocument {
		return nil, common.NewError(common.InvalidDocumentError, "expected a JSON object, got %s", v.kind)
	}
	return v.doc, nil
}

// MustParseDocument is ParseDocument for literals known to be valid.
func MustParseDocument(s string) *Document {
	d, err := ParseDocument([]byte(s))
	common.Assert(err == nil, "invalid document %q: %v", s, err)
	return d
}

// ParseDocuments decodes either a JSON array of objects or newline-delimited objects.
func ParseDocuments(data []byte) ([]*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		v, err := ParseValue(trimmed)
		if err != nil {
			return nil, err
		}
		docs := make([]*Document, 0, len(v.arr))
		for i, elem := range v.arr {
			if elem.kind != KindDocument {
				return nil, common.NewError(common.InvalidDocumentError, "element %d is a %s, not an object", i, elem.kind)
			}
			docs = append(docs, elem.doc)
		}
		return docs, nil
	}

	var docs []*Document
	for lineNo, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		d, err := ParseDocument(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo+1)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func invalidDocument(err error, msg string) error {
	return common.NewError(common.InvalidDocumentError, "%s: %v", msg, err)
}

func fromJSON(raw []byte, dataType jsonparser.ValueType) (Value, error) {
	switch dataType {
	case jsonparser.Null:
		return Null(), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return Value{}, invalidDocument(err, "malformed boolean")
		}
		return NewBool(b), nil
	case jsonparser.Number:
		if !bytes.ContainsAny(raw, ".eE") {
			if i, err := jsonparser.ParseInt(raw); err == nil {
				return NewInt(i), nil
			}
		}
		f, err := jsonparser.ParseFloat(raw)
		if err != nil {
			return Value{}, invalidDocument(err, "malformed number")
		}
		return NewDouble(f), nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return Value{}, invalidDocument(err, "malformed string")
		}
		return NewString(s), nil
	case jsonparser.Array:
		elems := make([]Value, 0)
		var innerErr error
		_, err := jsonparser.ArrayEach(raw, func(value []byte, vt jsonparser.ValueType, _ int, err error) {
			if innerErr != nil {
				return
			}
			if err != nil {
				innerErr = err
				return
			}
			elem, err := fromJSON(value, vt)
			if err != nil {
				innerErr = err
				return
			}
			elems = append(elems, elem)
		})
		if err == nil {
			err = innerErr
		}
		if err != nil {
			return Value{}, invalidDocument(err, "malformed array")
		}
		return NewArray(elems...), nil
	case jsonparser.Object:
		doc := NewDocument()
		err := jsonparser.ObjectEach(raw, func(key []byte, value []byte, vt jsonparser.ValueType, _ int) error {
			name, err := jsonparser.ParseString(key)
			if err != nil {
				return err
			}
			v, err := fromJSON(value, vt)
			if err != nil {
				return err
			}
			doc.Set(name, v)
			return nil
		})
		if err != nil {
			return Value{}, invalidDocument(err, "malformed object")
		}
		return NewDocumentValue(doc), nil
	}
	return Value{}, common.NewError(common.InvalidDocumentError, "unsupported JSON value %q", raw)
}

// MarshalJSON encodes the value. Doubles always carry a fractional part or exponent so
// that an int and a double never serialize identically.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	v.writeJSON(&buf)
	return buf.Bytes(), nil
}

// MarshalJSON encodes the document with its fields in order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	writeDocumentJSON(&buf, d)
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) {
	switch v.kind {
	case KindMissing:
		buf.WriteString("undefined")
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindDouble:
		switch {
		case math.IsNaN(v.f):
			buf.WriteString("NaN")
		case math.IsInf(v.f, 1):
			buf.WriteString("Infinity")
		case math.IsInf(v.f, -1):
			buf.WriteString("-Infinity")
		default:
			s := strconv.FormatFloat(v.f, 'g', -1, 64)
			if !bytes.ContainsAny([]byte(s), ".eE") {
				s += ".0"
			}
			buf.WriteString(s)
		}
	case KindString:
		writeJSONString(buf, v.s)
	case KindDocument:
		writeDocumentJSON(buf, v.doc)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			e.writeJSON(buf)
		}
		buf.WriteByte(']')
	}
}

func writeDocumentJSON(buf *bytes.Buffer, d *Document) {
	buf.WriteByte('{')
	for i, f := range d.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, f.Name)
		buf.WriteByte(':')
		f.Value.writeJSON(buf)
	}
	buf.WriteByte('}')
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, err := json.Marshal(s)
	common.Assert(err == nil, "string encoding cannot fail: %v", err)
	buf.Write(b)
}
