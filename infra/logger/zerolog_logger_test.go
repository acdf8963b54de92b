package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestComponentField(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	var buf bytes.Buffer
	l := newZerologTo("pile-1", &buf)
	l.Infof("charging")
	out := buf.String()
	if !strings.Contains(out, `"component":"pile-1"`) {
		t.Fatalf("component field missing: %s", out)
	}
	if !strings.Contains(out, "charging") {
		t.Fatalf("message missing: %s", out)
	}
}

func TestLogLevelFilter(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	var buf bytes.Buffer
	l := newZerologTo("pile-1", &buf)
	l.Debugf("noisy tick")
	l.Infof("noisy progress")
	l.Warnf("queue nearly full")
	out := buf.String()
	if strings.Contains(out, "noisy") {
		t.Fatalf("records below the level leaked: %s", out)
	}
	if !strings.Contains(out, "queue nearly full") {
		t.Fatalf("warn record missing: %s", out)
	}
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.Debugf("debug")
	l.Debugw("debug", nil)
	l.Infof("info")
	l.Warnf("warn")
	l.Errorf("error")
}
