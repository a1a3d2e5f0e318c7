// Command firecracker aggregates IPv4 packet traffic from pcap, CSV,
// or FC5 input files (or stdin) into windowed group-by-count reports,
// per the counter-engine pipeline implemented in this module's
// packages.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/dellard/firecracker/chain"
	"github.com/dellard/firecracker/counter"
	"github.com/dellard/firecracker/filter"
	"github.com/dellard/firecracker/input"
	"github.com/dellard/firecracker/merge"
	"github.com/dellard/firecracker/output"
	"github.com/dellard/firecracker/pkt"
	"github.com/dellard/firecracker/query"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// MaxQueries is the maximum number of repeatable -t queries a single
// invocation may specify, per spec.md 6. This is distinct from
// query.MaxFields, which bounds the fields within one query string.
const MaxQueries = 25

// stringList accumulates repeated occurrences of a flag into a slice,
// the same small flag.Value pattern the teacher would reach for rather
// than a third-party CLI framework.
type stringList []string

func (s *stringList) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	if len(*s) >= MaxQueries {
		return fmt.Errorf("at most %d -t queries are supported", MaxQueries)
	}
	*s = append(*s, v)
	return nil
}

var (
	queries    stringList
	filterStr  = flag.String("F", "", "filter expression, e.g. P=6")
	windowSecs = flag.Uint("I", 900, "counting window length in seconds; 0 means the whole input is one window")
	alignSecs  = flag.Uint("A", 0, "trim leading records until a window-aligned timestamp; 0 disables")
	showMax    = flag.Int("m", -1, "keep only the top N groups per window by count; negative means unlimited")
	normalized = flag.Bool("n", false, "also emit a normalized-fraction line per kept group")
	outputPath = flag.String("o", "", "output file path, written atomically; empty means stdout")
	stdinType  = flag.String("s", "csv", "format of stdin input when no files are given (csv, pcap, or fc5)")
	forceQS    = flag.Bool("T", false, "always include the query string column, even with a single query")
	promAddr   = flag.String("prom", "", "Prometheus metrics listen address, e.g. :9090; empty disables the listener")
)

func main() {
	flag.Var(&queries, "t", "query expression, e.g. PA; may be repeated (default PA)")
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	if *promAddr != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		promSrv := prometheusx.MustStartPrometheus(*promAddr)
		defer promSrv.Shutdown(ctx)
	}

	if len(queries) == 0 {
		queries = stringList{"PA"}
	}

	compiledQueries := make([]*query.Query, len(queries))
	for i, qs := range queries {
		q, err := query.Compile(qs)
		rtx.Must(err, "bad -t query %q", qs)
		compiledQueries[i] = q
	}
	showQueryString := *forceQS || len(compiledQueries) > 1

	f, err := filter.Compile(*filterStr)
	rtx.Must(err, "bad -F filter %q", *filterStr)

	var c chain.Chain
	args := flag.Args()
	if len(args) == 0 {
		rtx.Must(input.ReadStdin(os.Stdin, *stdinType, &c, f), "reading stdin")
	} else {
		for _, fname := range args {
			rtx.Must(input.ReadFile(fname, &c, f), "reading %s", fname)
		}
	}

	records := merge.Merge([]*chain.Chain{&c})
	records = counter.Align(records, uint32(*alignSecs))

	w, err := openOutput(*outputPath)
	rtx.Must(err, "opening output %q", *outputPath)

	bw := bufio.NewWriter(w)
	timespan := counter.Timespan{
		BaseSec:   baseSec(records),
		LengthSec: uint32(*windowSecs),
	}
	opts := counter.Options{
		ShowMax:         *showMax,
		Normalized:      *normalized,
		ShowQueryString: showQueryString,
	}

	for _, q := range compiledQueries {
		rtx.Must(counter.Run(bw, records, q, timespan, opts), "running query %q", q.Raw)
	}
	rtx.Must(bw.Flush(), "flushing output")

	rtx.Must(closeOutput(w), "committing output")
}

func baseSec(records []pkt.Record) int64 {
	if len(records) == 0 {
		return 0
	}
	return int64(records[0].TsSec)
}

// openOutput returns stdout, or an *output.AtomicFile wrapping path.
func openOutput(path string) (io.Writer, error) {
	if path == "" {
		return os.Stdout, nil
	}
	return output.CreateAtomic(path)
}

// closeOutput commits an *output.AtomicFile; stdout needs no action.
func closeOutput(w io.Writer) error {
	if af, ok := w.(*output.AtomicFile); ok {
		return af.Commit()
	}
	return nil
}
