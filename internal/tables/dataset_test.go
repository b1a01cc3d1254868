package tables

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KevinKickass/OpenBusSpoofer/internal/registry"
	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseDataset(t *testing.T) {
	in := "REG BODY\n" +
		"0042 01 02\n" +
		"\n" +
		"# comment line\n" +
		"10 40 10 0a\n"

	entries, err := ParseDataset(strings.NewReader(in), "dataset.txt")
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	if entries[0].Register != 0x42 || !bytes.Equal(entries[0].Payload, []byte{0x01, 0x02, 0xFC}) {
		t.Fatalf("entry 0 = %v % X, want 42 01 02 FC", entries[0].Register, entries[0].Payload)
	}
	// 40+10+0A = 5A, complement A5
	if entries[1].Register != 0x10 || !bytes.Equal(entries[1].Payload, []byte{0x40, 0x10, 0x0A, 0xA5}) {
		t.Fatalf("entry 1 = %v % X", entries[1].Register, entries[1].Payload)
	}
}

func TestParseDatasetHeaderOnly(t *testing.T) {
	entries, err := ParseDataset(strings.NewReader("0042 01 02\n"), "x")
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("first line must be treated as header, got %d entries", len(entries))
	}
}

func TestParseDatasetErrors(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantLine  int
		wantToken string
	}{
		{"bad byte", "h\n0042 01 ZZ\n", 2, "ZZ"},
		{"register too large", "h\n0100 01\n", 2, "0100"},
		{"byte too large", "h\n\n0042 100\n", 3, "100"},
		{"negative register", "h\n-1 01\n", 2, "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDataset(strings.NewReader(tt.in), "data.txt")
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
			if pe.File != "data.txt" || pe.Line != tt.wantLine || pe.Token != tt.wantToken {
				t.Fatalf("ParseError = %+v, want line %d token %q", pe, tt.wantLine, tt.wantToken)
			}
		})
	}
}

func TestDatasetLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dataset.txt", "REG BODY\n0042 01 02\n")

	cache := registry.NewCache()
	l := NewDatasetLoader(path, cache, zaptest.NewLogger(t))

	if err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, ok := cache.Get(0x42)
	if !ok || !bytes.Equal(got, []byte{0x01, 0x02, 0xFC}) {
		t.Fatalf("cache[42] = % X, %v", got, ok)
	}

	st := l.Status()
	if st.Entries != 1 || st.Loads != 1 || st.LastError != "" || st.Path != path {
		t.Fatalf("status = %+v", st)
	}
}

func TestDatasetLoaderParseErrorLeavesCache(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dataset.txt", "REG BODY\n0042 01 02\n")

	cache := registry.NewCache()
	l := NewDatasetLoader(path, cache, zaptest.NewLogger(t))
	if err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	writeFile(t, dir, "dataset.txt", "REG BODY\n0042 09 09\n0043 XX\n")
	if err := l.Load(); err == nil {
		t.Fatal("expected parse error")
	}

	got, _ := cache.Get(0x42)
	if !bytes.Equal(got, []byte{0x01, 0x02, 0xFC}) {
		t.Fatalf("cache changed by failed load: % X", got)
	}
	if _, ok := cache.Get(0x43); ok {
		t.Fatal("partial entry published")
	}
	if st := l.Status(); st.LastError == "" || st.Loads != 1 {
		t.Fatalf("status = %+v", st)
	}
}

func TestDatasetLoaderReloadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dataset.txt", "REG BODY\n0042 01 02\n0010 40 10\n")

	cache := registry.NewCache()
	l := NewDatasetLoader(path, cache, zaptest.NewLogger(t))
	for i := 0; i < 3; i++ {
		if err := l.Load(); err != nil {
			t.Fatalf("Load %d: %v", i, err)
		}
	}

	if cache.Len() != 2 {
		t.Fatalf("Len = %d, want 2", cache.Len())
	}
	if st := l.Status(); st.Loads != 3 {
		t.Fatalf("Loads = %d, want 3", st.Loads)
	}
}

func TestDatasetLoaderKeepsUnnamedRegisters(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dataset.txt", "REG BODY\n0042 01 02\n")

	cache := registry.NewCache()
	cache.Put(0x99, types.Payload{0x15})
	l := NewDatasetLoader(path, cache, zaptest.NewLogger(t))
	if err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, ok := cache.Get(0x99); !ok {
		t.Fatal("reload deleted a register not named in the file")
	}
}

func TestDatasetLoaderMissingFile(t *testing.T) {
	l := NewDatasetLoader(filepath.Join(t.TempDir(), "missing.txt"), registry.NewCache(), zaptest.NewLogger(t))
	if err := l.Load(); err == nil {
		t.Fatal("expected error for missing file")
	}
	if st := l.Status(); st.LastError == "" {
		t.Fatal("failure not recorded in status")
	}
}
