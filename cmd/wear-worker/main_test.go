package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadModel(t *testing.T) {
	m, err := loadModel("")
	if err != nil || len(m.Bands) == 0 {
		t.Fatalf("default model: %v %v", m, err)
	}

	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(`{"version":"v2","bands":[{"max_ratio":1,"label":"LIKE_NEW"},{"label":"CRITICAL_FAILURE"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err = loadModel(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != "v2" || len(m.Bands) != 2 {
		t.Errorf("model = %+v", m)
	}

	if _, err := loadModel(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing model")
	}
}

func TestRunNeedsTransport(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := run(Config{}, logger); err == nil {
		t.Error("expected error with no transport configured")
	}
}
