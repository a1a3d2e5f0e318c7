package pcapreader_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/dellard/firecracker/chain"
	"github.com/dellard/firecracker/filter"
	"github.com/dellard/firecracker/pcapreader"
)

const dltRaw = 101
const dltTokenRing = 6

// writePcapHeader writes a classic (non-nanosecond) pcap global header
// with the given link type.
func writePcapHeader(buf *bytes.Buffer, linkType uint32) {
	binary.Write(buf, binary.LittleEndian, uint32(0xa1b2c3d4)) // magic
	binary.Write(buf, binary.LittleEndian, uint16(2))          // version major
	binary.Write(buf, binary.LittleEndian, uint16(4))          // version minor
	binary.Write(buf, binary.LittleEndian, int32(0))           // thiszone
	binary.Write(buf, binary.LittleEndian, uint32(0))          // sigfigs
	binary.Write(buf, binary.LittleEndian, uint32(65535))      // snaplen
	binary.Write(buf, binary.LittleEndian, linkType)           // network
}

// writePacketRecord appends one packet record (no link header beyond
// whatever is already in data) at the given timestamp.
func writePacketRecord(buf *bytes.Buffer, tsSec, tsUsec uint32, data []byte) {
	binary.Write(buf, binary.LittleEndian, tsSec)
	binary.Write(buf, binary.LittleEndian, tsUsec)
	binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
}

// buildIPv4 builds a minimal 20-byte IPv4 header (no options) plus
// whatever payload bytes are given, with the given protocol number and
// fragment offset.
func buildIPv4(proto byte, saddr, daddr uint32, fragOffset uint16, payload []byte) []byte {
	hdr := make([]byte, 20)
	hdr[0] = 0x45 // version 4, IHL 5 (20 bytes)
	totalLen := uint16(20 + len(payload))
	binary.BigEndian.PutUint16(hdr[2:4], totalLen)
	binary.BigEndian.PutUint16(hdr[6:8], fragOffset)
	hdr[8] = 64 // ttl
	hdr[9] = proto
	binary.BigEndian.PutUint32(hdr[12:16], saddr)
	binary.BigEndian.PutUint32(hdr[16:20], daddr)
	return append(hdr, payload...)
}

func buildTCPPayload(sport, dport uint16) []byte {
	p := make([]byte, 20)
	binary.BigEndian.PutUint16(p[0:2], sport)
	binary.BigEndian.PutUint16(p[2:4], dport)
	return p
}

func TestReadBasicTCPPacket(t *testing.T) {
	var buf bytes.Buffer
	writePcapHeader(&buf, dltRaw)
	ipPacket := buildIPv4(6, 0x0a000001, 0x0a000002, 0, buildTCPPayload(12345, 80))
	writePacketRecord(&buf, 1000, 500, ipPacket)

	var c chain.Chain
	if err := pcapreader.Read(&buf, &c, nil); err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if c.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", c.Count())
	}
	rec := chain.Flatten(&c)[0]
	if rec.SAddr != 0x0a000001 || rec.DAddr != 0x0a000002 {
		t.Errorf("addresses = %#x, %#x", rec.SAddr, rec.DAddr)
	}
	if rec.Proto != 6 || rec.SPort != 12345 || rec.DPort != 80 {
		t.Errorf("unexpected fields: %+v", rec)
	}
	if rec.TsSec != 1000 || rec.TsUsec != 500 {
		t.Errorf("timestamp = %d.%d, want 1000.500", rec.TsSec, rec.TsUsec)
	}
}

func TestReadICMPUsesTypeCodeAsPorts(t *testing.T) {
	var buf bytes.Buffer
	writePcapHeader(&buf, dltRaw)
	icmpPayload := []byte{8, 0, 0, 0} // type=8 (echo request), code=0
	ipPacket := buildIPv4(1, 0x0a000001, 0x0a000002, 0, icmpPayload)
	writePacketRecord(&buf, 0, 0, ipPacket)

	var c chain.Chain
	if err := pcapreader.Read(&buf, &c, nil); err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if c.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", c.Count())
	}
	rec := chain.Flatten(&c)[0]
	if rec.SPort != 8 || rec.DPort != 0 {
		t.Errorf("SPort,DPort = %d,%d, want 8,0", rec.SPort, rec.DPort)
	}
}

func TestReadDropsNonFirstFragments(t *testing.T) {
	var buf bytes.Buffer
	writePcapHeader(&buf, dltRaw)
	ipPacket := buildIPv4(6, 0x0a000001, 0x0a000002, 100, buildTCPPayload(1, 2))
	writePacketRecord(&buf, 0, 0, ipPacket)

	var c chain.Chain
	if err := pcapreader.Read(&buf, &c, nil); err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if c.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 (fragment dropped)", c.Count())
	}
}

func TestReadUnsupportedLinkTypeIsFatal(t *testing.T) {
	var buf bytes.Buffer
	writePcapHeader(&buf, dltTokenRing)

	var c chain.Chain
	if err := pcapreader.Read(&buf, &c, nil); err == nil {
		t.Fatal("expected an error for an unsupported link type")
	}
}

func TestReadAppliesFilter(t *testing.T) {
	var buf bytes.Buffer
	writePcapHeader(&buf, dltRaw)
	writePacketRecord(&buf, 0, 0, buildIPv4(6, 1, 2, 0, buildTCPPayload(1, 2)))
	writePacketRecord(&buf, 1, 0, buildIPv4(17, 1, 2, 0, buildTCPPayload(1, 2)))

	f, err := filter.Compile("P=6")
	if err != nil {
		t.Fatalf("filter compile error: %v", err)
	}

	var c chain.Chain
	if err := pcapreader.Read(&buf, &c, f); err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if c.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", c.Count())
	}
}
