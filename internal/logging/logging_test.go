package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{" WARN ", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"trace", zerolog.TraceLevel, false},
		{"loud", zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInit_JSON(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer
	if err := Init(Options{Level: "info", Format: "json", Out: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	log.Debug().Msg("hidden")
	log.Info().Str("conversation", "c1").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["message"] != "visible" || entry["conversation"] != "c1" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestInit_TextWithFile(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "momotalk.log")
	if err := Init(Options{Level: "debug", Format: "text", File: path, Out: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	log.Debug().Msg("to both")

	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("console output = %q", buf.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both") {
		t.Errorf("file output = %q", data)
	}
}

func TestInit_Errors(t *testing.T) {
	restoreGlobals(t)
	if err := Init(Options{Level: "loud"}); err == nil {
		t.Error("expected error for bad level")
	}
	if err := Init(Options{Format: "xml"}); err == nil {
		t.Error("expected error for bad format")
	}
}
