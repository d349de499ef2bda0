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
	"go.uber.org/zap"
)

func TestCollector_RecordToolCall(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.RecordToolCall("list_account", OutcomeSuccess, 10*time.Millisecond)
	c.RecordToolCall("list_account", OutcomeSuccess, 20*time.Millisecond)
	c.RecordToolCall("list_account", OutcomeHTTPError, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("list_account", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("list_account", OutcomeHTTPError)))
	assert.Equal(t, 1, testutil.CollectAndCount(c.toolCallDuration))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := NewCollector("test", zap.NewNop())
	c.RecordHTTPRequest("POST", "/mcp", 200, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/mcp", "200")))
}

func TestCollector_SetCatalogSize(t *testing.T) {
	c := NewCollector("test", zap.NewNop())
	c.SetCatalogSize(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(c.catalogTools))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordToolCall("x", OutcomeSuccess, time.Second)
		c.RecordHTTPRequest("GET", "/", 200, time.Second)
		c.SetCatalogSize(1)
	})
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("firefly_mcp", zap.NewNop())
	c.SetCatalogSize(3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "firefly_mcp_catalog_tools 3"))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("test", zap.NewNop())
	b := NewCollector("test", zap.NewNop())
	a.SetCatalogSize(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.catalogTools))
}
