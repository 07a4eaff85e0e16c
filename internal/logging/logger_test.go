// Package logging provides unit tests for the structured logger.
package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestLogger(buf *bytes.Buffer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(buf)
	l.SetLevel(level)
	return l
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"ERROR", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"bogus", logrus.InfoLevel},
	}

	for _, tc := range cases {
		if got := parseLevel(tc.input); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, logrus.InfoLevel)

	l.WithFields(logrus.Fields{
		"operation_id": "op-1",
		"retry_count":  2,
	}).Info("delivery retried")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}

	if entry["msg"] != "delivery retried" {
		t.Errorf("msg = %v, want delivery retried", entry["msg"])
	}
	if entry["operation_id"] != "op-1" {
		t.Errorf("operation_id = %v, want op-1", entry["operation_id"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, logrus.WarnLevel)

	l.Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("info entry emitted at warn level: %s", buf.String())
	}

	l.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Error("warn entry missing at warn level")
	}
}

func TestGetInitializesDefault(t *testing.T) {
	if Get() == nil {
		t.Fatal("Get returned nil logger")
	}
}
