// Package counter implements the windowing, indexing, grouping, and
// top-N tabulation pipeline described in spec.md 4.J: given a merged,
// time-ordered array of records, a filter, a query, and a timespan, it
// produces the C/N/T output lines the output package formats.
package counter

import (
	"io"
	"sort"

	"github.com/dellard/firecracker/metrics"
	"github.com/dellard/firecracker/output"
	"github.com/dellard/firecracker/pkt"
	"github.com/dellard/firecracker/query"
)

// Timespan is a window base and length, both in seconds. A LengthSec
// of 0 means "the whole array is one window".
type Timespan struct {
	BaseSec   int64
	LengthSec uint32
}

// Options controls the per-window output shape.
type Options struct {
	// ShowMax, if >= 0, truncates each window's group list to the
	// ShowMax groups with the largest counts after a descending sort.
	// Negative means unlimited (the CLI default when -m is omitted).
	ShowMax int
	// Normalized additionally emits an N line per kept group.
	Normalized bool
	// ShowQueryString appends the query's raw text to C/N lines. T
	// lines always carry it regardless of this setting.
	ShowQueryString bool
}

// Align trims the prefix of records up to, but not including, the
// first record whose TsSec is a multiple of alignment. An alignment
// of 0 disables trimming. Records must already be time-sorted.
func Align(records []pkt.Record, alignment uint32) []pkt.Record {
	if alignment == 0 {
		return records
	}
	for i := range records {
		if int64(records[i].TsSec)%int64(alignment) == 0 {
			return records[i:]
		}
	}
	return records[len(records):]
}

// Run evaluates q over records within timespan, writing C/N/T lines to
// w. records must already be merged (time-sorted), filtered, and
// aligned by the caller -- the same filtered array is reused across
// every active query, so filtering happens once upstream rather than
// once per query here.
func Run(w io.Writer, records []pkt.Record, q *query.Query, timespan Timespan, opts Options) error {
	if len(records) == 0 {
		return writeSubset(w, records, 0, 0, q, 0, opts)
	}

	if timespan.LengthSec == 0 {
		return writeSubset(w, records, 0, len(records), q, records[0].TsSec, opts)
	}

	length := int64(timespan.LengthSec)
	start := 0
	startSpan := timespan.BaseSec
	endSpan := startSpan + length

	i := 0
	for ; i < len(records); i++ {
		currTime := int64(records[i].TsSec)
		if currTime >= endSpan {
			count := i - start
			if err := writeSubset(w, records, start, start+count, q, int32(startSpan), opts); err != nil {
				return err
			}
			start = i
			startSpan = endSpan
			endSpan += length

			for currTime > endSpan {
				if err := writeSubset(w, records, start, start, q, int32(startSpan), opts); err != nil {
					return err
				}
				startSpan = endSpan
				endSpan += length
			}
		}
	}

	if count := i - start; count > 0 {
		return writeSubset(w, records, start, start+count, q, int32(startSpan), opts)
	}
	return nil
}

type group struct {
	repIndex int
	count    uint64
}

// writeSubset runs the per-window pipeline (spec.md 4.J steps 1-6)
// over records[start:end] and writes its C/N/T lines.
func writeSubset(w io.Writer, records []pkt.Record, start, end int, q *query.Query, startTime int32, opts Options) error {
	total := uint64(end - start)
	if total == 0 {
		metrics.WindowsClosedCount.Inc()
		return output.WriteTerminator(w, 0, startTime, q.Raw)
	}

	order := make([]int, total)
	for i := range order {
		order[i] = start + i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return q.SortLess(&records[order[i]], &records[order[j]])
	})

	var groups []group
	for _, idx := range order {
		if n := len(groups); n > 0 && q.GroupEqual(&records[groups[n-1].repIndex], &records[idx]) {
			groups[n-1].count++
			continue
		}
		groups = append(groups, group{repIndex: idx, count: 1})
	}

	metrics.WindowCountHistogram.Observe(float64(len(groups)))

	kept := groups
	if opts.ShowMax >= 0 {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].count > kept[j].count
		})
		if opts.ShowMax < len(kept) {
			kept = kept[:opts.ShowMax]
		}
	}

	for _, g := range kept {
		if err := output.WriteCount(w, g.count, &records[g.repIndex], q, startTime, opts.ShowQueryString); err != nil {
			return err
		}
	}
	if opts.Normalized {
		for _, g := range kept {
			if err := output.WriteNormalized(w, g.count, total, &records[g.repIndex], q, startTime, opts.ShowQueryString); err != nil {
				return err
			}
		}
	}

	metrics.WindowsClosedCount.Inc()
	return output.WriteTerminator(w, total, startTime, q.Raw)
}
