// Package filter implements the firecracker filter mini-language:
//
//	FIELD := NAME [WIDTH] '=' VALUE
//	FILTER := FIELD ('/' FIELD)*
//
// NAME is one of S, D, E, A, P, s. WIDTH is an optional decimal prefix
// length in [0,32] (default 0, meaning an exact, full-width match).
// VALUE is a dotted-quad for S and D, and a decimal integer otherwise.
// A Filter matches a record when every one of its fields matches
// (conjunction); the empty filter matches everything.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dellard/firecracker/pkt"
)

// MaxFields is the maximum number of fields a single Filter may carry,
// matching the original FC_FILTER_MAX_FIELDS.
const MaxFields = 16

// Field is one compiled `NAME[WIDTH]=VALUE` clause.
type Field struct {
	Name  byte
	Width uint8
	Value uint32
}

// Filter is an ordered, compiled list of Fields, ANDed together.
type Filter struct {
	Fields []Field
}

// validFilterNames are the field names the filter grammar accepts;
// note this is a strict subset of the query grammar's names (no L or
// u -- len and usec are not meaningful filter criteria in practice,
// and the original grammar never defined them here either).
const validFilterNames = "SDEAPs"

// Compile parses s into a Filter. An empty string compiles to a
// Filter that matches every record.
func Compile(s string) (*Filter, error) {
	f := &Filter{}
	if s == "" {
		return f, nil
	}

	for _, clause := range strings.Split(s, "/") {
		field, err := compileField(clause)
		if err != nil {
			return nil, err
		}
		if len(f.Fields) >= MaxFields {
			return nil, fmt.Errorf("filter: too many fields (max %d)", MaxFields)
		}
		f.Fields = append(f.Fields, field)
	}
	return f, nil
}

func compileField(clause string) (Field, error) {
	if clause == "" {
		return Field{}, fmt.Errorf("filter: empty field clause")
	}

	name := clause[0]
	if strings.IndexByte(validFilterNames, name) < 0 {
		return Field{}, fmt.Errorf("filter: bad field name %q", name)
	}

	eq := strings.IndexByte(clause, '=')
	if eq < 0 {
		return Field{}, fmt.Errorf("filter: expected '=' in field %q", clause)
	}

	widthStr := clause[1:eq]
	var width uint8
	if widthStr != "" {
		w, err := strconv.ParseUint(widthStr, 10, 8)
		if err != nil || w > 32 {
			return Field{}, fmt.Errorf("filter: bad width in field %q", clause)
		}
		width = uint8(w)
	}

	valueStr := clause[eq+1:]
	var value uint32
	if name == pkt.NameSAddr || name == pkt.NameDAddr {
		v, err := parseDottedQuad(valueStr)
		if err != nil {
			return Field{}, fmt.Errorf("filter: bad address in field %q: %w", clause, err)
		}
		value = v
	} else {
		v, err := strconv.ParseUint(valueStr, 10, 32)
		if err != nil {
			return Field{}, fmt.Errorf("filter: bad value in field %q: %w", clause, err)
		}
		value = uint32(v)
	}

	return Field{Name: name, Width: width, Value: value}, nil
}

// parseDottedQuad parses a strict "NNN.NNN.NNN.NNN" address, matching
// the original filter-parser's sscanf("%hhu.%hhu.%hhu.%hhu") -- no
// leading zeros tolerance beyond what ParseUint accepts, no IPv6, no
// shorthand forms, unlike net.ParseIP.
func parseDottedQuad(s string) (uint32, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("expected 4 dotted octets, got %q", s)
	}
	var addr uint32
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("bad octet %q", p)
		}
		addr = (addr << 8) | uint32(v)
	}
	return addr, nil
}

// Match reports whether rec satisfies every field of f.
func (f *Filter) Match(rec *pkt.Record) bool {
	for _, field := range f.Fields {
		mask := pkt.Mask(field.Width)
		if pkt.Fetch(rec, field.Name)&mask != field.Value&mask {
			return false
		}
	}
	return true
}
