package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMainRunsEndToEnd(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "trace.csv")
	data := "1,2,6,1,2,0,1,1,1,d,0.000000\n" +
		"1,2,6,1,2,0,1,1,1,d,0.000000\n" +
		"1,2,17,1,2,0,1,1,1,d,0.000000\n"
	if err := os.WriteFile(csvPath, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	outPath := filepath.Join(dir, "out.csv")

	os.Args = []string{"firecracker", "-I", "0", "-n", "-o", outPath, csvPath}

	main()

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(out)
	if !strings.Contains(text, "C,2,") {
		t.Errorf("output missing expected count line, got:\n%s", text)
	}
	if !strings.Contains(text, "N,") {
		t.Errorf("output missing expected normalized line, got:\n%s", text)
	}
	if !strings.Contains(text, "T,3,") {
		t.Errorf("output missing expected terminator line, got:\n%s", text)
	}
}
