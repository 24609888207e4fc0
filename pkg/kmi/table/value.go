package table

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind is the type of a cell.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindText
)

// Value is one cell. Numbers keep their parsed float; everything else is text.
type Value struct {
	Kind Kind
	Num  float64
	Text string
}

func Null() Value            { return Value{} }
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func Text(s string) Value    { return Value{Kind: KindText, Text: s} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Parse interprets a raw CSV cell. Empty cells are null.
func Parse(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Null()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(f)
	}
	return Text(s)
}

// Float returns the numeric value, if the cell holds one.
func (v Value) Float() (float64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// String renders the cell the way WriteCSV does.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindText:
		return v.Text
	default:
		return ""
	}
}

// MarshalJSON encodes null and non-finite numbers as null, numbers as
// numbers and text as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return []byte("null"), nil
		}
		return []byte(strconv.FormatFloat(v.Num, 'f', -1, 64)), nil
	case KindText:
		return json.Marshal(v.Text)
	default:
		return []byte("null"), nil
	}
}
