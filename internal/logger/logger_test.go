package logger

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// helper to close non-nil closers and ignore errors
func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestWriter_WithDirOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	w, err := cfg.Writer("personaplex")
	if err != nil {
		t.Fatalf("Writer error: %v", err)
	}
	if w == nil {
		t.Fatalf("expected writer non-nil when Dir is set")
	}
	_, _ = w.Write([]byte("hello\n"))
	closeIf(w)
	path := filepath.Join(dir, "personaplex.log")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log not created at %s: %v", path, err)
	}
}

func TestWriter_ExplicitPathOverridesDir(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "explicit.log")
	cfg := Config{Dir: filepath.Join(dir, "unused"), Path: p}
	w, err := cfg.Writer("ignored-name")
	if err != nil {
		t.Fatalf("Writer error: %v", err)
	}
	_, _ = w.Write([]byte("x"))
	closeIf(w)
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("explicit path not created: %v", err)
	}
}

func TestWriter_Defaults(t *testing.T) {
	cfg := Config{}
	w, err := cfg.Writer("n")
	if err != nil {
		t.Fatalf("Writer error: %v", err)
	}
	// With no Dir and no explicit path the output is discarded.
	if w != nil {
		t.Fatalf("expected nil writer when no destination set")
	}

	cfg = Config{Path: "x"}
	w, _ = cfg.Writer("n")
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("writer is not lumberjack.Logger")
	}
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", l.MaxSize, l.MaxBackups, l.MaxAge)
	}
	closeIf(w)
}

func TestWriter_Overrides(t *testing.T) {
	cfg := Config{Path: "x2", MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}
	w, _ := cfg.Writer("n")
	l := w.(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 9 || l.MaxAge != 11 || !l.Compress {
		t.Fatalf("unexpected overrides: size=%d backups=%d age=%d compress=%t", l.MaxSize, l.MaxBackups, l.MaxAge, l.Compress)
	}
	closeIf(w)
}
