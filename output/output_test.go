package output_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dellard/firecracker/output"
	"github.com/dellard/firecracker/pkt"
	"github.com/dellard/firecracker/query"
)

func TestWriteCountNoQueryString(t *testing.T) {
	q, _ := query.Compile("P")
	rec := pkt.Record{Proto: 6}

	var buf bytes.Buffer
	if err := output.WriteCount(&buf, 2, &rec, q, 0, false); err != nil {
		t.Fatalf("WriteCount error: %v", err)
	}
	want := "C,2,start_time,0,P,6\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteCountWithQueryString(t *testing.T) {
	q, _ := query.Compile("P")
	rec := pkt.Record{Proto: 17}

	var buf bytes.Buffer
	if err := output.WriteCount(&buf, 1, &rec, q, 0, true); err != nil {
		t.Fatalf("WriteCount error: %v", err)
	}
	want := "C,1,start_time,0,P,17,P\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteCountDottedQuadWithWidth(t *testing.T) {
	q, _ := query.Compile("S8")
	rec := pkt.Record{SAddr: 0x0a010203}

	var buf bytes.Buffer
	if err := output.WriteCount(&buf, 1, &rec, q, 1000, false); err != nil {
		t.Fatalf("WriteCount error: %v", err)
	}
	want := "C,1,start_time,1000,S8,10.0.0.0/8\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteCountFullWidthNoSuffix(t *testing.T) {
	q, _ := query.Compile("S32")
	rec := pkt.Record{SAddr: 0x0a010203}

	var buf bytes.Buffer
	if err := output.WriteCount(&buf, 1, &rec, q, 0, false); err != nil {
		t.Fatalf("WriteCount error: %v", err)
	}
	want := "C,1,start_time,0,S,10.1.2.3\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteNormalized(t *testing.T) {
	q, _ := query.Compile("P")
	rec := pkt.Record{Proto: 6}

	var buf bytes.Buffer
	if err := output.WriteNormalized(&buf, 1, 4, &rec, q, 0, false); err != nil {
		t.Fatalf("WriteNormalized error: %v", err)
	}
	want := "N,0.25,start_time,0,P,6\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteTerminator(t *testing.T) {
	var buf bytes.Buffer
	if err := output.WriteTerminator(&buf, 3, 0, "P"); err != nil {
		t.Fatalf("WriteTerminator error: %v", err)
	}
	want := "T,3,start_time,0,P\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestAtomicFileCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	af, err := output.CreateAtomic(path)
	if err != nil {
		t.Fatalf("CreateAtomic error: %v", err)
	}
	if _, err := af.Write([]byte("T,0,start_time,0,P\n")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if err := af.Commit(); err != nil {
		t.Fatalf("Commit error: %v", err)
	}

	if _, err := os.Stat(path + "~"); !os.IsNotExist(err) {
		t.Errorf("temp file %s~ should not exist after commit", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(got) != "T,0,start_time,0,P\n" {
		t.Errorf("got %q", got)
	}
}

func TestAtomicFileAbortLeavesFinalUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	if err := os.WriteFile(path, []byte("previous\n"), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	af, err := output.CreateAtomic(path)
	if err != nil {
		t.Fatalf("CreateAtomic error: %v", err)
	}
	if _, err := af.Write([]byte("partial")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if err := af.Abort(); err != nil {
		t.Fatalf("Abort error: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(got) != "previous\n" {
		t.Errorf("final file was modified by an aborted write: %q", got)
	}
}
