package fes

import (
	"encoding/xml"
	"errors"
	"strings"
	"testing"

	"github.com/lox/openkmi/pkg/kmi"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{
			name:   "equality",
			filter: Equal("code", "6438"),
			want: `<Filter xmlns="http://www.opengis.net/ogc">` +
				`<PropertyIsEqualTo><PropertyName>code</PropertyName><Literal>6438</Literal></PropertyIsEqualTo>` +
				`</Filter>`,
		},
		{
			name: "conjunction",
			filter: Combine(
				Equal("code", "6438"),
				GreaterOrEqual("timestamp", "2015-01-01T00:00:00Z"),
				Less("timestamp", "2015-01-02T00:00:00Z"),
			),
			want: `<Filter xmlns="http://www.opengis.net/ogc"><And>` +
				`<PropertyIsEqualTo><PropertyName>code</PropertyName><Literal>6438</Literal></PropertyIsEqualTo>` +
				`<PropertyIsGreaterThanOrEqualTo><PropertyName>timestamp</PropertyName><Literal>2015-01-01T00:00:00Z</Literal></PropertyIsGreaterThanOrEqualTo>` +
				`<PropertyIsLessThan><PropertyName>timestamp</PropertyName><Literal>2015-01-02T00:00:00Z</Literal></PropertyIsLessThan>` +
				`</And></Filter>`,
		},
		{
			name:   "literal is escaped",
			filter: Equal("name", "A&B <x>"),
			want: `<Filter xmlns="http://www.opengis.net/ogc">` +
				`<PropertyIsEqualTo><PropertyName>name</PropertyName><Literal>A&amp;B &lt;x&gt;</Literal></PropertyIsEqualTo>` +
				`</Filter>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.filter)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestEncode_IsWellFormed(t *testing.T) {
	doc, err := Encode(Combine(Equal("code", "6447"), Equal("precip_range", "2")))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var parsed struct {
		XMLName xml.Name
		And     struct {
			Equals []struct {
				PropertyName string `xml:"PropertyName"`
				Literal      string `xml:"Literal"`
			} `xml:"PropertyIsEqualTo"`
		} `xml:"And"`
	}
	if err := xml.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if parsed.XMLName.Space != Namespace {
		t.Errorf("namespace = %q, want %q", parsed.XMLName.Space, Namespace)
	}
	if len(parsed.And.Equals) != 2 || parsed.And.Equals[1].Literal != "2" {
		t.Errorf("parsed = %+v", parsed.And.Equals)
	}
}

func TestEncode_Nil(t *testing.T) {
	if _, err := Encode(nil); err == nil {
		t.Error("Encode(nil) should fail")
	}
}

func TestCombine(t *testing.T) {
	if Combine() != nil {
		t.Error("Combine() should be nil")
	}
	single := Equal("code", "1")
	if got := Combine(single); got != single {
		t.Errorf("Combine(single) = %#v, want the filter itself", got)
	}
	if got, ok := Combine(single, single).(And); !ok || len(got.Filters) != 2 {
		t.Errorf("Combine(a, b) = %#v, want And of two", got)
	}
}

type embedded struct {
	PropertyIsEqualTo
}

func TestArg_Filters(t *testing.T) {
	valid := Equal("precip_range", "2")

	tests := []struct {
		name      string
		arg       Arg
		wantLen   int
		wantErr   bool
		wantField string
	}{
		{name: "zero value", arg: Arg{}, wantLen: 0},
		{name: "none", arg: None(), wantLen: 0},
		{name: "single", arg: Single(valid), wantLen: 1},
		{name: "list", arg: List(valid, Less("timestamp", "x")), wantLen: 2},
		{name: "empty list", arg: List(), wantLen: 0},
		{name: "single nil", arg: Single(nil), wantErr: true, wantField: "filter"},
		{name: "list with nil", arg: List(valid, nil), wantErr: true, wantField: "filter[1]"},
		{name: "foreign type", arg: Single(embedded{}), wantErr: true, wantField: "filter"},
		{name: "foreign type in list", arg: List(embedded{}, valid), wantErr: true, wantField: "filter[0]"},
		{name: "missing property", arg: Single(PropertyIsLessThan{Literal: "1"}), wantErr: true, wantField: "filter"},
		{name: "degenerate and", arg: Single(And{Filters: []Filter{valid}}), wantErr: true, wantField: "filter"},
		{name: "nested and", arg: Single(And{Filters: []Filter{valid, And{Filters: []Filter{valid, valid}}}}), wantLen: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.arg.Filters()
			if tt.wantErr {
				var verr *kmi.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("err = %v, want *kmi.ValidationError", err)
				}
				if verr.Field != tt.wantField {
					t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
				}
				if !strings.Contains(verr.Error(), "predicate") {
					t.Errorf("message %q should mention predicate", verr.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Filters: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestArg_ForeignTypeNamed(t *testing.T) {
	_, err := Single(embedded{}).Filters()
	if err == nil || !strings.Contains(err.Error(), "fes.embedded") {
		t.Errorf("err = %v, want the offending type named", err)
	}
}

func TestArgKind_String(t *testing.T) {
	if Single(Equal("a", "b")).Kind().String() != "single" {
		t.Error("single kind")
	}
	if List().Kind() != ArgList {
		t.Error("list kind")
	}
	if None().Kind() != ArgNone {
		t.Error("none kind")
	}
}
