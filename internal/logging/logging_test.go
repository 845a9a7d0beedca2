package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw    string
		level  zerolog.Level
		wantOK bool
	}{
		{raw: "", level: zerolog.InfoLevel, wantOK: false},
		{raw: "trace", level: zerolog.TraceLevel, wantOK: true},
		{raw: "diagnostics", level: zerolog.TraceLevel, wantOK: true},
		{raw: "debug", level: zerolog.DebugLevel, wantOK: true},
		{raw: "INFO", level: zerolog.InfoLevel, wantOK: true},
		{raw: " warn ", level: zerolog.WarnLevel, wantOK: true},
		{raw: "warning", level: zerolog.WarnLevel, wantOK: true},
		{raw: "error", level: zerolog.ErrorLevel, wantOK: true},
		{raw: "off", level: zerolog.Disabled, wantOK: true},
		{raw: "bogus", level: zerolog.InfoLevel, wantOK: false},
	}

	for _, tc := range tests {
		t.Run("raw="+tc.raw, func(t *testing.T) {
			level, ok := ParseLevel(tc.raw)
			if ok != tc.wantOK || level != tc.level {
				t.Fatalf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tc.raw, level, ok, tc.level, tc.wantOK)
			}
		})
	}
}

func TestConfigureIsIdempotent(t *testing.T) {
	ConfigureTests()
	ConfigureTests()
	ConfigureRuntime()
}

func TestDefaultConfigPerProfile(t *testing.T) {
	if cfg := defaultConfig(ProfileTest); cfg.Level != zerolog.DebugLevel || cfg.Timestamp {
		t.Fatalf("test profile config unexpected: %+v", cfg)
	}
	if cfg := defaultConfig(ProfileRuntime); cfg.Level != zerolog.InfoLevel || !cfg.Timestamp {
		t.Fatalf("runtime profile config unexpected: %+v", cfg)
	}
}
