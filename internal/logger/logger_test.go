package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_WritesCategoryAndMessage(t *testing.T) {
	var buf bytes.Buffer
	l := NewTestLogger(&buf)

	l.Info("booking", "reserved spot")

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "[BOOKING   ]")
	assert.Contains(t, out, "reserved spot")
	assert.Contains(t, out, "logger_test.go")
}

func TestLogger_SkipsBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewTestLogger(&buf)
	l.SetLevel(WARN)

	l.Debug("APP", "debug line")
	l.Info("APP", "info line")
	l.Warn("APP", "warn line")

	out := buf.String()
	assert.NotContains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
	assert.Contains(t, out, "warn line")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel(""))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestLogBooking_FormatsAction(t *testing.T) {
	var buf bytes.Buffer
	l := NewTestLogger(&buf)

	l.LogBooking("CREATE", "b-1", "confirmed")

	assert.Contains(t, buf.String(), "[CREATE] b-1 - confirmed")
}
