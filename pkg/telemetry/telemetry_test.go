package telemetry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halldyll/recall-go/pkg/telemetry"
)

func TestSessionLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger(&buf, slog.LevelDebug)
	ctx := telemetry.WithCorrelationID(context.Background(), "corr-1")

	telemetry.SessionLogger(ctx, logger, "record_turn", "s-1").Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "record_turn", line["op"])
	assert.Equal(t, "s-1", line["session_id"])
	assert.Equal(t, "corr-1", line["correlation_id"])
}

func TestCorrelationIDGenerated(t *testing.T) {
	ctx := telemetry.WithCorrelationID(context.Background(), "")
	assert.Len(t, telemetry.CorrelationID(ctx), 36)
	assert.Empty(t, telemetry.CorrelationID(context.Background()))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := telemetry.NewMetrics(reg)
	require.NoError(t, err)

	m.TurnRecorded()
	m.Drafts(telemetry.OutcomeAdmitted, 2)
	m.Drafts(telemetry.OutcomeSuppressed, 1)
	m.Degraded("vector_search")
	m.ObservePrepare(20 * time.Millisecond)
	m.Swept(3)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `recall_drafts_total{outcome="admitted"} 2`)
	assert.Contains(t, string(body), "recall_swept_items_total 3")

	_, err = telemetry.NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *telemetry.Metrics
	m.TurnRecorded()
	m.Drafts(telemetry.OutcomeDropped, 1)
	m.Degraded("embedding")
	m.ObservePrepare(time.Second)
	m.Swept(1)
}
