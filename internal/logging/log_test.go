package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogToBufferAndFile(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	tmpDir, err := os.MkdirTemp("", "pcadenoise-log-*")
	if err != nil {
		t.Fatalf("Failed to create temporary directory: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "run.log")
	if err := AlsoToFile(path); err != nil {
		t.Fatalf("AlsoToFile failed: %v", err)
	}

	Printf("patch side %d\n", 8)
	SetVerbose(false)
	Debugf("hidden\n")
	SetVerbose(true)
	Debugf("shown\n")
	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := buf.String(); got != "patch side 8\nshown\n" {
		t.Errorf("Unexpected stdout log %q", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "patch side 8") || strings.Contains(string(data), "hidden") {
		t.Errorf("Unexpected file log %q", string(data))
	}
}
