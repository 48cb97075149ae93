package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelWarn)

	logger.Debugf("debug %d", 1)
	logger.Infof("info %d", 2)
	logger.Warnf("warn %d", 3)
	logger.Errorf("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "WARN warn 3")
	assert.Contains(t, out, "ERROR error 4")
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug).With("engine").With("pebble")

	logger.Infof("opened")
	assert.Contains(t, buf.String(), "engine: pebble: ")
	assert.Contains(t, buf.String(), "INFO opened")
}

func TestLogger_Fatalf(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelError+1)
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatalf("cannot continue: %s", "disk gone")
	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "FATAL cannot continue: disk gone")
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard().Errorf("dropped")
	})
}
