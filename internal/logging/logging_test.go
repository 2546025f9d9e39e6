package logging

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gluk-w/claworc/webssh/internal/config"
)

func setupLogFile(t *testing.T) string {
	t.Helper()
	prev := config.Cfg
	path := filepath.Join(t.TempDir(), "logs", "webssh.log")
	config.Cfg.LogPath = path
	t.Cleanup(func() {
		Close()
		config.Cfg = prev
		log.SetOutput(os.Stderr)
	})
	return path
}

func TestInit_WritesToFile(t *testing.T) {
	path := setupLogFile(t)
	Init(true)

	log.Printf("hello from test")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestReadTail(t *testing.T) {
	setupLogFile(t)
	Init(true)

	for i := 0; i < 5; i++ {
		log.Printf("line-%d", i)
	}

	tail, err := ReadTail(2)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	lines := strings.Split(tail, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), tail)
	}
	if !strings.Contains(lines[1], "line-4") || !strings.Contains(lines[0], "line-3") {
		t.Errorf("unexpected tail: %q", tail)
	}
}

func TestReadTail_MissingFile(t *testing.T) {
	setupLogFile(t)
	tail, err := ReadTail(10)
	if err != nil || tail != "" {
		t.Errorf("ReadTail on missing file = %q, %v", tail, err)
	}
}

func TestClear(t *testing.T) {
	path := setupLogFile(t)
	Init(true)
	log.Printf("something")

	if err := Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("size after Clear = %d, want 0", info.Size())
	}
}

func TestDebugf(t *testing.T) {
	path := setupLogFile(t)
	Init(true)

	SetDebug(false)
	Debugf("hidden %d", 1)
	SetDebug(true)
	Debugf("visible %d", 2)
	SetDebug(false)

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden 1") {
		t.Error("debug line written while debug disabled")
	}
	if !strings.Contains(string(data), "[debug] visible 2") {
		t.Errorf("debug line missing: %q", data)
	}
}
