package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gluk-w/claworc/webssh/internal/config"
)

func setupLogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webssh.log")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	old := config.Cfg.LogPath
	config.Cfg.LogPath = path
	t.Cleanup(func() { config.Cfg.LogPath = old })
	return path
}

func TestGetServerLogsTail(t *testing.T) {
	setupLogFile(t, "one\ntwo\nthree\n")

	rec := do(t, http.MethodGet, "/api/v1/logs?lines=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeBody[map[string]interface{}](t, rec)
	if got["logs"] != "two\nthree" {
		t.Errorf("logs = %q", got["logs"])
	}
}

func TestGetServerLogsBadLines(t *testing.T) {
	setupLogFile(t, "")
	for _, q := range []string{"abc", "0", "-3"} {
		rec := do(t, http.MethodGet, "/api/v1/logs?lines="+q, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("lines=%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestClearServerLogs(t *testing.T) {
	path := setupLogFile(t, "old line\n")
	rec := do(t, http.MethodDelete, "/api/v1/logs", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	data, _ := os.ReadFile(path)
	if len(data) != 0 {
		t.Errorf("log not cleared: %q", data)
	}
}
