// Package output formats counter-engine results as the three CSV line
// shapes (count, normalized, terminator) spec.md 4.K defines, and
// provides an atomic file-commit wrapper for the `-o FNAME` CLI mode.
package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dellard/firecracker/metrics"
	"github.com/dellard/firecracker/pkt"
	"github.com/dellard/firecracker/query"
)

// WriteCount emits one `C,<count>,start_time,<sec>,<spec>,<value>...`
// line for the group represented by rec. showQueryString appends the
// query's raw text as a trailing column; it is forced on by the caller
// whenever more than one query is active.
func WriteCount(w io.Writer, count uint64, rec *pkt.Record, q *query.Query, startTime int32, showQueryString bool) error {
	var sb strings.Builder
	sb.WriteString("C,")
	sb.WriteString(strconv.FormatUint(count, 10))
	writeFields(&sb, rec, q, startTime, showQueryString)
	metrics.OutputLinesCount.With(prometheus.Labels{"kind": "count"}).Inc()
	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteNormalized emits one `N,<fraction>,start_time,<sec>,<spec>,<value>...`
// line. total is the window's total record count, not the post-top-N
// retained count -- spec.md 4.J step 5.
func WriteNormalized(w io.Writer, count, total uint64, rec *pkt.Record, q *query.Query, startTime int32, showQueryString bool) error {
	var frac float64
	if total > 0 {
		frac = float64(count) / float64(total)
	}

	var sb strings.Builder
	sb.WriteString("N,")
	sb.WriteString(strconv.FormatFloat(frac, 'g', -1, 64))
	writeFields(&sb, rec, q, startTime, showQueryString)
	metrics.OutputLinesCount.With(prometheus.Labels{"kind": "normalized"}).Inc()
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeFields(sb *strings.Builder, rec *pkt.Record, q *query.Query, startTime int32, showQueryString bool) {
	sb.WriteString(",start_time,")
	sb.WriteString(strconv.FormatInt(int64(startTime), 10))
	for _, f := range q.Fields {
		sb.WriteByte(',')
		sb.WriteString(fieldSpec(f))
		sb.WriteByte(',')
		sb.WriteString(formatValue(rec, f))
	}
	if showQueryString {
		sb.WriteByte(',')
		sb.WriteString(q.Raw)
	}
	sb.WriteByte('\n')
}

// WriteTerminator emits a `T,<window_total>,start_time,<sec>,<query>`
// line. Unlike count/normalized lines, the query string is always
// present here.
func WriteTerminator(w io.Writer, total uint64, startTime int32, queryStr string) error {
	metrics.OutputLinesCount.With(prometheus.Labels{"kind": "terminator"}).Inc()
	_, err := fmt.Fprintf(w, "T,%d,start_time,%d,%s\n", total, startTime, queryStr)
	return err
}

func fieldSpec(f query.Field) string {
	if f.Width != 0 && f.Width != 32 {
		return string(f.Name) + strconv.Itoa(int(f.Width))
	}
	return string(f.Name)
}

func formatValue(rec *pkt.Record, f query.Field) string {
	masked := pkt.Fetch(rec, f.Name) & pkt.Mask(f.Width)
	if f.Name == 'S' || f.Name == 'D' {
		s := dottedQuad(masked)
		if f.Width != 0 && f.Width != 32 {
			s += "/" + strconv.Itoa(int(f.Width))
		}
		return s
	}
	return strconv.FormatUint(uint64(masked), 10)
}

func dottedQuad(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", v>>24&0xff, v>>16&0xff, v>>8&0xff, v&0xff)
}

// AtomicFile implements the "write to <name>~, rename on success" output
// commit spec.md 5 requires, adapted from the teacher's
// saver.Connection.Rotate idiom (swap in a fresh writer, only make the
// prior target durable once the swap succeeds).
type AtomicFile struct {
	tmpPath   string
	finalPath string
	f         *os.File
}

// CreateAtomic opens path+"~" for writing. Callers write through the
// returned *AtomicFile and must call Commit to make the output visible
// at path, or Abort to discard it.
func CreateAtomic(path string) (*AtomicFile, error) {
	tmpPath := path + "~"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("output: create %s: %w", tmpPath, err)
	}
	return &AtomicFile{tmpPath: tmpPath, finalPath: path, f: f}, nil
}

// Write implements io.Writer.
func (a *AtomicFile) Write(p []byte) (int, error) {
	return a.f.Write(p)
}

// Commit closes the temporary file and renames it onto the final path.
// On any failure the temporary file is left in place for inspection,
// and the final path is left untouched, per spec.md 8 property 10.
func (a *AtomicFile) Commit() error {
	if err := a.f.Close(); err != nil {
		return fmt.Errorf("output: close %s: %w", a.tmpPath, err)
	}
	if err := os.Rename(a.tmpPath, a.finalPath); err != nil {
		return fmt.Errorf("output: rename %s to %s: %w", a.tmpPath, a.finalPath, err)
	}
	return nil
}

// Abort closes and removes the temporary file without touching the
// final path.
func (a *AtomicFile) Abort() error {
	a.f.Close()
	return os.Remove(a.tmpPath)
}
