package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarning, false},
		{"Warn", LevelWarning, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"loud", LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseLevel(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Setup(context.Background(), Options{Level: LevelWarning, Output: &buf}); err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	t.Cleanup(func() { SetLevel(LevelInfo) })

	Info("hidden")
	Warn("shown", "rule_id", "noise-injection")

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "shown" || record["rule_id"] != "noise-injection" {
		t.Errorf("unexpected record %v", record)
	}
	if slog.Default() != Logger {
		t.Error("Setup() should install the logger as slog's default")
	}
}

func TestHTTPStatusCounters(t *testing.T) {
	before := Snapshot()

	HTTPStatus(404)
	HTTPStatus(503)
	HTTPStatus(200)
	ParseFailure()

	after := Snapshot()
	if after.HTTP4xx-before.HTTP4xx != 1 {
		t.Errorf("HTTP4xx delta = %d, want 1", after.HTTP4xx-before.HTTP4xx)
	}
	if after.HTTP5xx-before.HTTP5xx != 1 {
		t.Errorf("HTTP5xx delta = %d, want 1", after.HTTP5xx-before.HTTP5xx)
	}
	if after.ParseFailures-before.ParseFailures != 1 {
		t.Errorf("ParseFailures delta = %d, want 1", after.ParseFailures-before.ParseFailures)
	}
}
