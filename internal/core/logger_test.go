package core

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"":        LevelInfo,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"none":    LevelOff,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestLogger_ComponentOverride(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(LogConfig{
		Level:      "warn",
		Components: map[string]string{"Proxy": "debug"},
	}, &buf)

	l.Infof("Policy", "hidden %d", 1)
	l.Debugf("proxy", "shown %d", 2)
	l.Errorf("Policy", "shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message below global level was logged: %q", out)
	}
	if !strings.Contains(out, "[proxy] shown 2") {
		t.Errorf("component override not applied: %q", out)
	}
	if !strings.Contains(out, "[Policy] shown 3") {
		t.Errorf("error message missing: %q", out)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(LogConfig{Level: "info"}, &buf)
	l.SetLevel(LevelOff)
	l.Errorf("Core", "dropped")
	if buf.Len() != 0 {
		t.Errorf("logger with level off wrote %q", buf.String())
	}
}

func TestOpenLogOutput_Console(t *testing.T) {
	c, err := OpenLogOutput(LogConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
