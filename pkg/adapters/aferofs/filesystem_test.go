package aferofs

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSystem_WriteAndReadFile(t *testing.T) {
	fs := NewMem()

	testPath := filepath.Join("media", "clip.bin")
	testData := []byte("hello world")

	if err := fs.WriteFile(testPath, testData); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := fs.ReadFile(testPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}

	size, err := fs.Size(testPath)
	if err != nil || size != int64(len(testData)) {
		t.Errorf("Size = %d, %v; want %d", size, err, len(testData))
	}

	r, err := fs.Open(testPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	streamed, _ := io.ReadAll(r)
	if string(streamed) != string(testData) {
		t.Errorf("streamed %q", streamed)
	}
}

func TestFileSystem_ExistsAndRemove(t *testing.T) {
	fs := NewMem()

	if ok, _ := fs.Exists("missing"); ok {
		t.Error("expected missing file to not exist")
	}
	if err := fs.MkdirAll(filepath.Join("a", "b")); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if ok, _ := fs.Exists(filepath.Join("a", "b")); !ok {
		t.Error("expected directory to exist")
	}

	_ = fs.WriteFile("f.txt", []byte("x"))
	if err := fs.Remove("f.txt"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if ok, _ := fs.Exists("f.txt"); ok {
		t.Error("expected file to be removed")
	}
}

func TestFileSystem_OS(t *testing.T) {
	fs := New()
	tmpDir := t.TempDir()

	testPath := filepath.Join(tmpDir, "nested", "dir", "test.txt")
	if err := fs.WriteFile(testPath, []byte("test")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(testPath)); os.IsNotExist(err) {
		t.Error("expected parent directories to be created")
	}
}
