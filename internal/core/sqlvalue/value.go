// Package sqlvalue carries typed statement parameters and binds named
// placeholders without interpolating any value into statement text.
package sqlvalue

import "fmt"

// Kind tags a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInteger
	KindFloat
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one of six scalar variants. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	blob []byte
}

func Null() Value { return Value{} }
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }
func Integer(v int64) Value { return Value{kind: KindInteger, i: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func Text(v string) Value { return Value{kind: KindText, s: v} }
func Blob(v []byte) Value { return Value{kind: KindBlob, blob: v} }

// Kind returns the variant.
func (v Value) Kind() Kind { return v.kind }

// Driver returns the value in the form database drivers accept.
func (v Value) Driver() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	case KindBlob:
		return v.blob
	default:
		return nil
	}
}

// String never prints text or blob contents; parameters routinely carry
// secrets.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("bool(%t)", v.b)
	case KindInteger:
		return fmt.Sprintf("integer(%d)", v.i)
	case KindFloat:
		return fmt.Sprintf("float(%g)", v.f)
	case KindText:
		return fmt.Sprintf("text(len=%d)", len(v.s))
	case KindBlob:
		return fmt.Sprintf("blob(len=%d)", len(v.blob))
	default:
		return "null"
	}
}

// Params maps placeholder names (without the leading colon) to values.
type Params map[string]Value
