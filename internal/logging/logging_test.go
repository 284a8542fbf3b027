package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfigureTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	ConfigureTo(&buf, Options{Level: "warn", JSON: true})
	t.Cleanup(func() { Configure(Options{}) })

	L().Info("hidden")
	L().Warn("stage failed", "stage", "upper")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("want exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "stage failed" || rec["stage"] != "upper" {
		t.Fatalf("unexpected record: %v", rec)
	}
}
