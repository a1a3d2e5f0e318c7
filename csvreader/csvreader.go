// Package csvreader parses the row-oriented text input format: one
// packet per line, leading fields
// `saddr,daddr,proto,sport,dport,<l4csum>,len`, three further
// comma-delimited fields ignored, then a `ts_sec.ts_usec` decimal
// fraction. It is a hand-written numeric scanner, not a wrapper around
// `encoding/csv`, matching the throughput goal of the original
// `fc_csv_read`.
package csvreader

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dellard/firecracker/chain"
	"github.com/dellard/firecracker/filter"
	"github.com/dellard/firecracker/metrics"
	"github.com/dellard/firecracker/pkt"
)

// Sentinel errors identify which parse stage failed, mirroring the
// original's distinct negative return codes per stage.
var (
	ErrBadSAddr     = errors.New("csvreader: malformed saddr field")
	ErrBadDAddr     = errors.New("csvreader: malformed daddr field")
	ErrBadProto     = errors.New("csvreader: malformed proto field")
	ErrBadSPort     = errors.New("csvreader: malformed sport field")
	ErrBadDPort     = errors.New("csvreader: malformed dport field")
	ErrBadChecksum  = errors.New("csvreader: malformed checksum field")
	ErrBadLen       = errors.New("csvreader: malformed len field")
	ErrBadSkipField = errors.New("csvreader: malformed ipid/ttl/ts_date field")
	ErrBadTsSec     = errors.New("csvreader: malformed ts_sec field")
	ErrBadTsFrac    = errors.New("csvreader: malformed ts_usec fraction")
	ErrBadTerminator = errors.New("csvreader: line not terminated by ',' or newline after timestamp")
)

// Read parses one record per line of r, appending each record that f
// accepts (f may be nil, meaning "accept everything") onto c. It
// returns the first parse error encountered, stopping at that line --
// matching spec.md §7's "CSV syntax violation is fatal for that file".
func Read(r io.Reader, c *chain.Chain, f *filter.Filter) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}

		rec, err := parseLine(line)
		if err != nil {
			metrics.ParseErrorCount.With(prometheus.Labels{"reader": "csvreader"}).Inc()
			return err
		}

		metrics.RecordsReadCount.With(prometheus.Labels{"format": "csv"}).Inc()
		if f == nil || f.Match(&rec) {
			*c.Extend() = rec
			c.Commit()
		} else {
			metrics.RecordsFilteredCount.Inc()
		}
	}
	return sc.Err()
}

func parseLine(line string) (pkt.Record, error) {
	var rec pkt.Record

	rest := line

	saddr, rest, err := takeUintField(rest)
	if err != nil {
		return rec, ErrBadSAddr
	}
	daddr, rest, err := takeUintField(rest)
	if err != nil {
		return rec, ErrBadDAddr
	}
	proto, rest, err := takeUintField(rest)
	if err != nil {
		return rec, ErrBadProto
	}
	sport, rest, err := takeUintField(rest)
	if err != nil {
		return rec, ErrBadSPort
	}
	dport, rest, err := takeUintField(rest)
	if err != nil {
		return rec, ErrBadDPort
	}
	_, rest, err = takeUintField(rest) // l4 checksum, ignored
	if err != nil {
		return rec, ErrBadChecksum
	}
	length, rest, err := takeUintField(rest)
	if err != nil {
		return rec, ErrBadLen
	}

	for i := 0; i < 3; i++ { // ipid, ttl, ts_date -- skipped verbatim
		idx := strings.IndexByte(rest, ',')
		if idx < 0 {
			return rec, ErrBadSkipField
		}
		rest = rest[idx+1:]
	}

	tsSec, rest, err := takeIntField(rest, '.')
	if err != nil {
		return rec, ErrBadTsSec
	}

	frac, terminator, err := takeFloatField(rest)
	if err != nil {
		return rec, ErrBadTsFrac
	}
	if terminator != ',' && terminator != 0 {
		return rec, ErrBadTerminator
	}

	rec = pkt.Record{
		SAddr:  saddr,
		DAddr:  daddr,
		Proto:  uint8(proto),
		SPort:  uint16(sport),
		DPort:  uint16(dport),
		Len:    uint16(length),
		TsSec:  int32(tsSec),
		TsUsec: uint32(1_000_000 * frac), // truncates, matching the original's implicit C cast
	}
	return rec, nil
}

// takeUintField consumes a leading decimal integer terminated by ','
// and returns the value and the remainder of the string after the
// comma.
func takeUintField(s string) (uint32, string, error) {
	idx := strings.IndexByte(s, ',')
	if idx < 0 {
		return 0, "", errBadField
	}
	v, err := strconv.ParseUint(s[:idx], 10, 32)
	if err != nil {
		return 0, "", errBadField
	}
	return uint32(v), s[idx+1:], nil
}

// takeIntField consumes a leading decimal integer terminated by term
// and returns the value and the remainder of the string after term.
func takeIntField(s string, term byte) (int64, string, error) {
	idx := strings.IndexByte(s, term)
	if idx < 0 {
		return 0, "", errBadField
	}
	v, err := strconv.ParseInt(s[:idx], 10, 64)
	if err != nil {
		return 0, "", errBadField
	}
	return v, s[idx+1:], nil
}

// takeFloatField consumes the fractional part of a timestamp (the
// digits after the decimal point), stopping at the first ',' or end
// of line, and returns the value "0.<digits>" as a float64 along with
// the terminator byte found (0 if end of line).
func takeFloatField(s string) (float64, byte, error) {
	idx := strings.IndexByte(s, ',')
	digits := s
	var term byte
	if idx >= 0 {
		digits = s[:idx]
		term = ','
	}
	v, err := strconv.ParseFloat("0."+digits, 64)
	if err != nil {
		return 0, 0, errBadField
	}
	return v, term, nil
}

var errBadField = errors.New("csvreader: bad field")
