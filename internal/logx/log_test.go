package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":         zerolog.InfoLevel,
		"trace":    zerolog.TraceLevel,
		"ALL":      zerolog.TraceLevel,
		" debug ":  zerolog.DebugLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"off":      zerolog.Disabled,
		"nonsense": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestConfigureOutput(t *testing.T) {
	prev := Log
	prevLevel := zerolog.GlobalLevel()
	defer func() {
		Log = prev
		zerolog.SetGlobalLevel(prevLevel)
	}()

	var buf bytes.Buffer
	ConfigureOutput("warn", &buf)
	Log.Info().Msg("hidden")
	Log.Warn().Str("endpoint", "runtime").Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "runtime") {
		t.Fatalf("warn message missing: %q", out)
	}
}
