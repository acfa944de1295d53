package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetrics_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		InitMetrics()
		InitMetrics()
	})
}

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(checkpointRestoresTotal.WithLabelValues("applied"))
	RecordCheckpointRestore("applied")
	assert.Equal(t, before+1, testutil.ToFloat64(checkpointRestoresTotal.WithLabelValues("applied")))

	sweptBefore := testutil.ToFloat64(streamsSweptTotal)
	RecordStreamsSwept(3)
	assert.Equal(t, sweptBefore+3, testutil.ToFloat64(streamsSweptTotal))

	writesBefore := testutil.ToFloat64(streamWritesTotal.WithLabelValues("written"))
	RecordStreamWrite("written")
	assert.Equal(t, writesBefore+1, testutil.ToFloat64(streamWritesTotal.WithLabelValues("written")))
}

func TestHandler(t *testing.T) {
	InitMetrics()
	RecordHTTPRequest(http.MethodGet, "/api/v1/health", "200", 5*time.Millisecond)
	RecordCheckpointCreated(4)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "pipilot_http_requests_total"))
	assert.True(t, strings.Contains(body, "pipilot_checkpoints_created_total"))
}
