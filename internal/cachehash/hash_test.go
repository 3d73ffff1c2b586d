package cachehash

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBytes(t *testing.T) {
	if Bytes([]byte("a")) == Bytes([]byte("b")) {
		t.Error("got equal hashes for different inputs")
	}
	if Bytes([]byte("a")) != Bytes([]byte("a")) {
		t.Error("got different hashes for equal inputs")
	}
}

func TestFileNotExist(t *testing.T) {
	hash, err := File(filepath.Join(t.TempDir(), "notafile"))
	if err != nil {
		t.Errorf("got error: %v", err)
	}
	if hash != "" {
		t.Errorf("got non-empty hash %q", hash)
	}
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("contents"), 0o644); err != nil {
		t.Fatal(err)
	}
	hash, err := File(path)
	if err != nil {
		t.Errorf("got File error: %v", err)
	}
	if hash == "" {
		t.Error("got empty hash for existing file")
	}
}

func TestJSONKeyOrderIrrelevant(t *testing.T) {
	ab, err := JSONBytes([]byte(`{"a":"\n","b":"\u000A"}`))
	if err != nil {
		t.Fatal(err)
	}
	ba, err := JSONBytes([]byte(`{"b":"\u000A","a":"\n"}`))
	if err != nil {
		t.Fatal(err)
	}
	if ab != ba {
		t.Errorf("canonicalized hashes differ: %q vs %q", ab, ba)
	}
}
