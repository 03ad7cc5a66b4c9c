package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologWritesComponentField(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LOG_LEVEL", "")
	var buf bytes.Buffer
	l := NewZerologTo(&buf, "trip")
	l.Infof("trip %s confirmed", "t1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "trip", line["component"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "trip t1 confirmed", line["message"])
}

func TestZerologDebugSuppressedAtInfo(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LOG_LEVEL", "info")
	var buf bytes.Buffer
	l := NewZerologTo(&buf, "movement")
	l.Debugw("tick", map[string]any{"unit": "taxi_001"})
	assert.Zero(t, buf.Len())

	t.Setenv("LOG_LEVEL", "debug")
	buf.Reset()
	NewZerologTo(&buf, "movement").With("phase", "to_pickup").Debugw("tick", map[string]any{"unit": "taxi_001"})
	assert.Contains(t, buf.String(), `"unit":"taxi_001"`)
	assert.Contains(t, buf.String(), `"phase":"to_pickup"`)
}

func TestOrNop(t *testing.T) {
	assert.IsType(t, NopLogger{}, OrNop(nil))
	l := NewZerologTo(&bytes.Buffer{}, "x")
	assert.Same(t, l, OrNop(l))
}
