// Package input selects a record reader by filename suffix and, for
// compressed inputs, spawns an external decompressor process and reads
// its standard output -- the same external-process-as-decoder
// technique the teacher's zstd.NewReader uses for its own codec,
// adapted here to the "zcat"/"lz4cat" decompressors this format names.
package input

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dellard/firecracker/chain"
	"github.com/dellard/firecracker/csvreader"
	"github.com/dellard/firecracker/fc5"
	"github.com/dellard/firecracker/filter"
	"github.com/dellard/firecracker/metrics"
	"github.com/dellard/firecracker/pcapreader"
)

// typeName returns the label used for InputFilesCount, grouping
// compression variants under their base encoding.
func typeName(t Type) string {
	switch baseType(t) {
	case TypePcap:
		return "pcap"
	case TypeCSV:
		return "csv"
	case TypeFC5:
		return "fc5"
	default:
		return "unknown"
	}
}

// Type identifies an input file's encoding and compression, as
// determined by its filename suffix.
type Type int

const (
	TypeError Type = iota
	TypePcap
	TypePcapGz
	TypePcapLz4
	TypeCSV
	TypeCSVGz
	TypeCSVLz4
	TypeFC5
	TypeFC5Gz
	TypeFC5Lz4
)

var suffixes = []struct {
	suffix string
	typ    Type
}{
	{".pcap", TypePcap},
	{".pcap.gz", TypePcapGz},
	{".pcap.lz4", TypePcapLz4},
	{".csv", TypeCSV},
	{".csv.gz", TypeCSVGz},
	{".csv.lz4", TypeCSVLz4},
	{".fc5", TypeFC5},
	{".fc5.gz", TypeFC5Gz},
	{".fc5.lz4", TypeFC5Lz4},
}

// DetectType returns the Type implied by fname's suffix, or TypeError
// if no known suffix matches.
func DetectType(fname string) Type {
	for _, s := range suffixes {
		if strings.HasSuffix(fname, s.suffix) {
			return s.typ
		}
	}
	return TypeError
}

// baseType strips the compression variant, returning the underlying
// record encoding the type dispatches to.
func baseType(t Type) Type {
	switch t {
	case TypePcap, TypePcapGz, TypePcapLz4:
		return TypePcap
	case TypeCSV, TypeCSVGz, TypeCSVLz4:
		return TypeCSV
	case TypeFC5, TypeFC5Gz, TypeFC5Lz4:
		return TypeFC5
	}
	return TypeError
}

// decompressorFor returns the external decompressor command for a
// compressed type, or ok=false if t names an uncompressed type.
func decompressorFor(t Type) (cmd string, ok bool) {
	switch t {
	case TypePcapGz, TypeCSVGz, TypeFC5Gz:
		return "zcat", true
	case TypePcapLz4, TypeCSVLz4, TypeFC5Lz4:
		return "lz4cat", true
	}
	return "", false
}

// Reader wraps an input stream together with whatever cleanup its
// Close must perform -- closing a plain file, or closing a pipe and
// reaping a decompressor child process.
type Reader struct {
	io.Reader
	closeFn func() error
}

// Close releases the underlying file or child process.
func (r *Reader) Close() error {
	return r.closeFn()
}

// Open returns a Reader for fname according to typ, launching an
// external decompressor when typ names a compressed variant.
func Open(fname string, typ Type) (*Reader, error) {
	cmdName, compressed := decompressorFor(typ)
	if !compressed {
		f, err := os.Open(fname)
		if err != nil {
			return nil, fmt.Errorf("input: open %s: %w", fname, err)
		}
		return &Reader{Reader: f, closeFn: f.Close}, nil
	}

	if _, err := os.Stat(fname); err != nil {
		return nil, fmt.Errorf("input: open %s: %w", fname, err)
	}

	pipeR, pipeW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("input: pipe: %w", err)
	}

	cmd := exec.Command(cmdName, fname)
	cmd.Stdout = pipeW
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		pipeR.Close()
		pipeW.Close()
		return nil, fmt.Errorf("input: spawn %s: %w", cmdName, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
		pipeW.Close()
	}()

	return &Reader{
		Reader: pipeR,
		closeFn: func() error {
			pipeR.Close()
			return <-done
		},
	}, nil
}

// Dispatch reads records from r (already decompressed, if needed)
// according to typ's base encoding, appending each record f accepts
// (f may be nil) onto c.
func Dispatch(r io.Reader, typ Type, c *chain.Chain, f *filter.Filter) error {
	switch baseType(typ) {
	case TypePcap:
		return pcapreader.Read(r, c, f)
	case TypeCSV:
		return csvreader.Read(r, c, f)
	case TypeFC5:
		return fc5.Read(r, c, f)
	default:
		return fmt.Errorf("input: unknown input type for %v", typ)
	}
}

// ReadFile opens fname (dispatching compression and encoding by
// suffix) and reads its records onto c.
func ReadFile(fname string, c *chain.Chain, f *filter.Filter) error {
	typ := DetectType(fname)
	if typ == TypeError {
		return fmt.Errorf("input: unknown input type %q", fname)
	}

	r, err := Open(fname, typ)
	if err != nil {
		return err
	}
	defer r.Close()

	metrics.InputFilesCount.With(prometheus.Labels{"type": typeName(typ)}).Inc()
	return Dispatch(r, typ, c, f)
}

// ReadStdin reads records from r, treating it as uncompressed data of
// the named type ("csv", "pcap", or "fc5"; compressed variants are not
// valid for stdin). An empty typeName defaults to "csv".
func ReadStdin(r io.Reader, typeName string, c *chain.Chain, f *filter.Filter) error {
	if typeName == "" {
		typeName = "csv"
	}

	typ := DetectType("." + typeName)
	if typ == TypeError {
		return fmt.Errorf("input: unknown stdin format %q", typeName)
	}
	if typ != TypePcap && typ != TypeCSV && typ != TypeFC5 {
		return fmt.Errorf("input: unsupported stdin format %q", typeName)
	}

	metrics.InputFilesCount.With(prometheus.Labels{"type": "stdin-" + typeName}).Inc()
	return Dispatch(r, typ, c, f)
}
