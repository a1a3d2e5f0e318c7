// Package fc5 reads and writes the compact binary FC5 packet-record
// encoding: headerless, fixed-size, big-endian records. Record count
// is simply file size / fc5.Size; a partial trailing record is
// treated as a clean EOF, not an error.
//
// The encoding always uses big-endian byte order regardless of host
// endianness -- this is the documented, intended behavior (spec.md
// 4.D), not merely "whatever the writer's host happened to be".
package fc5

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dellard/firecracker/chain"
	"github.com/dellard/firecracker/filter"
	"github.com/dellard/firecracker/metrics"
	"github.com/dellard/firecracker/pkt"
)

// Size is the on-disk size, in bytes, of one FC5 record.
const Size = pkt.Size

// Write encodes every record in recs to w as big-endian FC5 records.
func Write(w io.Writer, recs []pkt.Record) error {
	var buf [Size]byte
	for i := range recs {
		encode(&recs[i], buf[:])
		if _, err := w.Write(buf[:]); err != nil {
			return fmt.Errorf("fc5: write record %d: %w", i, err)
		}
	}
	return nil
}

func encode(rec *pkt.Record, buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], rec.SAddr)
	binary.BigEndian.PutUint32(buf[4:8], rec.DAddr)
	binary.BigEndian.PutUint16(buf[8:10], rec.SPort)
	binary.BigEndian.PutUint16(buf[10:12], rec.DPort)
	buf[12] = rec.Proto
	buf[13] = rec.Flags
	binary.BigEndian.PutUint16(buf[14:16], rec.Len)
	binary.BigEndian.PutUint32(buf[16:20], uint32(rec.TsSec))
	binary.BigEndian.PutUint32(buf[20:24], rec.TsUsec)
}

func decode(buf []byte) pkt.Record {
	return pkt.Record{
		SAddr:  binary.BigEndian.Uint32(buf[0:4]),
		DAddr:  binary.BigEndian.Uint32(buf[4:8]),
		SPort:  binary.BigEndian.Uint16(buf[8:10]),
		DPort:  binary.BigEndian.Uint16(buf[10:12]),
		Proto:  buf[12],
		Flags:  buf[13],
		Len:    binary.BigEndian.Uint16(buf[14:16]),
		TsSec:  int32(binary.BigEndian.Uint32(buf[16:20])),
		TsUsec: binary.BigEndian.Uint32(buf[20:24]),
	}
}

// Read decodes FC5 records from r, appending each one that f accepts
// (f may be nil, meaning "accept everything") onto c.
func Read(r io.Reader, c *chain.Chain, f *filter.Filter) error {
	var buf [Size]byte
	for {
		_, err := io.ReadFull(r, buf[:])
		if err == io.EOF {
			return nil
		}
		if err == io.ErrUnexpectedEOF {
			// A partial trailing record is treated as a clean EOF,
			// per spec.md 4.D, not a parse error.
			return nil
		}
		if err != nil {
			metrics.ParseErrorCount.With(prometheus.Labels{"reader": "fc5"}).Inc()
			return fmt.Errorf("fc5: read: %w", err)
		}

		rec := decode(buf[:])
		metrics.RecordsReadCount.With(prometheus.Labels{"format": "fc5"}).Inc()
		if f == nil || f.Match(&rec) {
			*c.Extend() = rec
			c.Commit()
		} else {
			metrics.RecordsFilteredCount.Inc()
		}
	}
}
