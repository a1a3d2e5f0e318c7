// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to various parts of the pipeline.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or go out of the system: records, files, windows.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsReadCount counts packet records successfully decoded from
	// an input source, labeled by the source's encoding.
	//
	// Provides metrics:
	//   firecracker_records_read_total
	RecordsReadCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firecracker_records_read_total",
			Help: "The total number of packet records decoded from input.",
		}, []string{"format"})

	// RecordsFilteredCount counts packet records dropped by a filter
	// expression, as opposed to being rejected for malformed input.
	//
	// Provides metrics:
	//   firecracker_records_filtered_total
	RecordsFilteredCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firecracker_records_filtered_total",
			Help: "The total number of packet records dropped by a filter expression.",
		},
	)

	// ParseErrorCount measures the number of parse errors encountered
	// while reading input, labeled by the reader that produced them.
	// CSV and FC5 errors stop that input; pcap per-packet errors are
	// logged and skipped.
	//
	// Provides metrics:
	//   firecracker_parse_errors_total
	// Example usage:
	//   metrics.ParseErrorCount.With(prometheus.Labels{"reader": "csvreader"}).Inc()
	ParseErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firecracker_parse_errors_total",
			Help: "The total number of parse errors encountered while reading input.",
		}, []string{"reader"})

	// InputFilesCount counts input files opened, labeled by detected
	// type, so a completed run can be checked against its argument
	// list.
	//
	// Provides metrics:
	//   firecracker_input_files_total
	InputFilesCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firecracker_input_files_total",
			Help: "The total number of input files opened, by detected type.",
		}, []string{"type"})

	// WindowCountHistogram tracks how many groups a single counting
	// window produced, before any top-N truncation.
	WindowCountHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "firecracker_window_group_count_histogram",
			Help: "Distribution of the number of distinct groups produced per counting window.",
			Buckets: []float64{
				1, 2, 3, 4, 5, 6, 8,
				10, 12.5, 16, 20, 25, 32, 40, 50, 63, 79,
				100, 125, 160, 200, 250, 320, 400, 500, 630, 790,
				1000, 1250, 1600, 2000, 2500, 3200, 4000, 5000, 6300, 7900,
				10000,
			},
		},
	)

	// WindowsClosedCount counts counting windows written to output,
	// including empty windows that emit only a terminator line.
	//
	// Provides metrics:
	//   firecracker_windows_closed_total
	WindowsClosedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firecracker_windows_closed_total",
			Help: "Number of counting windows closed and written to output.",
		},
	)

	// OutputLinesCount counts C/N/T lines written, labeled by kind.
	//
	// Provides metrics:
	//   firecracker_output_lines_total
	// Example usage:
	//   metrics.OutputLinesCount.With(prometheus.Labels{"kind": "count"}).Inc()
	OutputLinesCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firecracker_output_lines_total",
			Help: "The total number of output lines written, by kind (count, normalized, terminator).",
		}, []string{"kind"})
)

// init() prints a log message to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered, which
// means they are registered as soon as this package is loaded, and the exact
// time this occurs (and whether this occurs at all in a given context) can be
// opaque.
func init() {
	log.Println("Prometheus metrics in firecracker.metrics are registered.")
}
