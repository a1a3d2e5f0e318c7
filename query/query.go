// Package query implements the firecracker query mini-language: one or
// more adjacent `NAME[WIDTH]` tokens, e.g. "PA", "S24D24", "PAD24".
// NAME is one of S, D, E, A, P, s, u, L. The ordered list of fields is
// the composite group key used by the counter engine; WIDTH (default
// 0, meaning full width) affects grouping only, never sort order.
package query

import (
	"fmt"
	"strconv"

	"github.com/dellard/firecracker/pkt"
)

// MaxFields is the maximum number of fields a single Query may carry,
// matching the original FC_QUERY_MAX_FIELDS.
const MaxFields = 16

// Field is one compiled `NAME[WIDTH]` token.
type Field struct {
	Name  byte
	Width uint8
}

// Query is an ordered, compiled list of Fields: the composite group
// key for the counter engine, plus the original text (used verbatim
// as the trailing query-string column in output lines).
type Query struct {
	Raw    string
	Fields []Field
}

const validQueryNames = "SDEAPsuL"

// Compile parses s into a Query.
func Compile(s string) (*Query, error) {
	if s == "" {
		return nil, fmt.Errorf("query: empty query string")
	}

	q := &Query{Raw: s}

	i := 0
	for i < len(s) {
		name := s[i]
		if indexByte(validQueryNames, name) < 0 {
			return nil, fmt.Errorf("query: bad field name %q in %q", name, s)
		}
		i++

		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}

		var width uint8
		if i > start {
			w, err := strconv.ParseUint(s[start:i], 10, 8)
			if err != nil || w > 32 {
				return nil, fmt.Errorf("query: bad width in %q", s)
			}
			width = uint8(w)
		}

		if len(q.Fields) >= MaxFields {
			return nil, fmt.Errorf("query: too many fields (max %d)", MaxFields)
		}
		q.Fields = append(q.Fields, Field{Name: name, Width: width})
	}

	return q, nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// SortLess is the sort comparator described in spec.md 4.J: compare
// full-width field values in query-field order, breaking ties with
// (TsSec, TsUsec) for stability. Field widths are deliberately ignored
// here -- they apply only to grouping (see GroupEqual).
func (q *Query) SortLess(a, b *pkt.Record) bool {
	for _, f := range q.Fields {
		va, vb := pkt.Fetch(a, f.Name), pkt.Fetch(b, f.Name)
		if va != vb {
			return va < vb
		}
	}
	return pkt.Less(a, b)
}

// GroupEqual is the grouping comparator described in spec.md 4.J:
// compare field values masked to each field's configured width, in
// query-field order. It is meaningful only between adjacent entries
// of an already totally-ordered (by SortLess) sequence; it does not
// break ties with the timestamp.
func (q *Query) GroupEqual(a, b *pkt.Record) bool {
	for _, f := range q.Fields {
		mask := pkt.Mask(f.Width)
		if pkt.Fetch(a, f.Name)&mask != pkt.Fetch(b, f.Name)&mask {
			return false
		}
	}
	return true
}
