package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteFileAtomic(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "sub", "out.json")
	if err := WriteFileAtomic(p, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "hello" {
		t.Fatalf("read back: %q err=%v", b, err)
	}
	// overwrite replaces content
	if err := WriteFileAtomic(p, []byte("v2"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	b, _ = os.ReadFile(p)
	if string(b) != "v2" {
		t.Fatalf("expected v2, got %q", b)
	}
	// no temp files left behind
	entries, _ := os.ReadDir(filepath.Dir(p))
	if len(entries) != 1 {
		t.Fatalf("expected only target file, got %d entries", len(entries))
	}
}

func TestBackupCopy(t *testing.T) {
	d := t.TempDir()
	src := filepath.Join(d, "limits.conf")
	if err := os.WriteFile(src, []byte("MemoryMax=1G"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	bdir := filepath.Join(d, "backups")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p1, err := BackupCopy(src, bdir, now)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if !strings.Contains(p1, "20260301T120000Z") {
		t.Fatalf("backup name missing timestamp: %s", p1)
	}
	// same second collides into a suffixed name, not an overwrite
	p2, err := BackupCopy(src, bdir, now)
	if err != nil {
		t.Fatalf("backup2: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("second backup overwrote the first: %s", p2)
	}
	b, _ := os.ReadFile(p1)
	if string(b) != "MemoryMax=1G" {
		t.Fatalf("backup content: %q", b)
	}
}

func TestAppendLine(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "alerts.log")
	if err := AppendLine(p, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := AppendLine(p, []byte(`{"a":2}`)); err != nil {
		t.Fatalf("append2: %v", err)
	}
	b, _ := os.ReadFile(p)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 || lines[1] != `{"a":2}` {
		t.Fatalf("unexpected log content: %q", b)
	}
}
