package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWithOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level %v", log.GetLevel())
	}
	log.WithField("session", "s1").Debug("hello")
	if !strings.Contains(buf.String(), `"session":"s1"`) || !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("unexpected output %s", buf.String())
	}
}

func TestNewWithOutput_DefaultsAndErrors(t *testing.T) {
	log, err := NewWithOutput(&bytes.Buffer{}, "", "")
	if err != nil || log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("defaults: %v %v", err, log)
	}
	if _, err := NewWithOutput(&bytes.Buffer{}, "loud", "text"); err == nil {
		t.Fatalf("expected bad level error")
	}
	if _, err := NewWithOutput(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Fatalf("expected bad format error")
	}
}
