package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, getLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, getLogLevel("warning"))
	assert.Equal(t, slog.LevelError, getLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, getLogLevel("bogus"))
}

func TestLogAnomalyWritesStructuredRecord(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)
	defer gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info")

	l.LogAnomaly(context.Background(), "RESERVATION_MISSING", "pay-1", "seat-1", "no active hold")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "Finalization Anomaly", record["msg"])
	assert.Equal(t, "RESERVATION_MISSING", record["kind"])
	assert.Equal(t, "seat-1", record["event_seat_id"])
}

func TestLevelFiltersDebug(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)
	defer gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")
	l.LogCheckIn(context.Background(), "t1", "gate-a", "OK")

	assert.Empty(t, buf.String())
}
