package signature

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// TimeLayout is the fixed millisecond layout used for time fields. Storage
// keeps millisecond precision, so re-derived facts format identically.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

type field struct {
	name  string
	value []byte
}

// Fact is an ordered list of named fields.
type Fact struct {
	fields []field
	err    error
}

// NewFact returns an empty fact.
func NewFact() *Fact {
	return &Fact{}
}

// String appends a string field. A value that is not valid UTF-8 has no
// lossless JSON form, so it poisons the fact and Canonical fails.
func (f *Fact) String(name, value string) *Fact {
	if !utf8.ValidString(value) {
		if f.err == nil {
			f.err = fmt.Errorf("fact field %q is not valid UTF-8", name)
		}
		return f.add(name, nil)
	}
	encoded, _ := json.Marshal(value)
	return f.add(name, encoded)
}

// Int appends an integer field.
func (f *Fact) Int(name string, value int64) *Fact {
	return f.add(name, []byte(strconv.FormatInt(value, 10)))
}

// Time appends a time field rendered in UTC with millisecond precision.
func (f *Fact) Time(name string, value time.Time) *Fact {
	return f.String(name, value.UTC().Truncate(time.Millisecond).Format(TimeLayout))
}

// Decimal appends a currency amount. Whole-cent amounts render with exactly
// two decimal places; anything finer keeps every digit so it never collapses
// onto a neighbouring cent.
func (f *Fact) Decimal(name string, value decimal.Decimal) *Fact {
	if value.Equal(value.Round(2)) {
		return f.String(name, value.StringFixed(2))
	}
	return f.String(name, value.String())
}

// Len returns the number of fields.
func (f *Fact) Len() int {
	if f == nil {
		return 0
	}
	return len(f.fields)
}

// Canonical returns the JSON object encoding of the fact in field order.
func (f *Fact) Canonical() ([]byte, error) {
	if f.Len() == 0 {
		return nil, fmt.Errorf("fact has no fields")
	}
	if f.err != nil {
		return nil, f.err
	}
	seen := make(map[string]struct{}, len(f.fields))
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fld := range f.fields {
		if fld.name == "" {
			return nil, fmt.Errorf("fact field %d has no name", i)
		}
		if _, dup := seen[fld.name]; dup {
			return nil, fmt.Errorf("fact field %q repeated", fld.name)
		}
		seen[fld.name] = struct{}{}
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(fld.name)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(fld.value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f *Fact) add(name string, value []byte) *Fact {
	f.fields = append(f.fields, field{name: name, value: value})
	return f
}
