package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/auth"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/metrics"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/openapi2mcp"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/schema"
)

func testCatalog(t *testing.T) *openapi2mcp.Catalog {
	t.Helper()
	c, err := openapi2mcp.NewCatalog([]openapi2mcp.ToolDefinition{
		{Name: "list_account", Description: "List accounts.", Method: "get", PathTemplate: "/v1/accounts", Tags: []string{"accounts"}, InputSchema: schema.NewObject()},
		{Name: "list_bill", Description: "List bills.", Method: "get", PathTemplate: "/v1/bills", Tags: []string{"bills"}, InputSchema: schema.NewObject()},
		{Name: "get_about", Description: "System info.", Method: "get", PathTemplate: "/v1/about", Tags: []string{"about"}, InputSchema: schema.NewObject()},
	}, nil)
	require.NoError(t, err)
	return c
}

func testMux(t *testing.T, reload ReloadFunc, m *metrics.Collector) (http.Handler, *openapi2mcp.Server) {
	t.Helper()
	srv := openapi2mcp.NewServer(testCatalog(t), auth.NewResolver(auth.StaticCredentials{}, nil), zap.NewNop())
	cfg := DefaultConfig()
	cfg.MetricsEnabled = m != nil
	return NewMux(MuxOptions{
		Config:  cfg,
		Server:  srv,
		Reload:  reload,
		Metrics: m,
		Version: "1.2.3",
		Logger:  zap.NewNop(),
	}), srv
}

func TestHandleHealth(t *testing.T) {
	mux, _ := testMux(t, nil, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, ServiceName, body.Service)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, 3, body.Tools)
	assert.Positive(t, body.Memory.NumGoroutine)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestHandleToolList(t *testing.T) {
	mux, _ := testMux(t, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools", nil))
	var all []ToolSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 3)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools?tools=bills", nil))
	var bills []ToolSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bills))
	require.Len(t, bills, 1)
	assert.Equal(t, "list_bill", bills[0].Name)
	assert.Equal(t, "/v1/bills", bills[0].Path)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools?preset=admin", nil))
	var admin []ToolSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &admin))
	require.Len(t, admin, 1)
	assert.Equal(t, "get_about", admin[0].Name)
}

func TestHandleTool(t *testing.T) {
	mux, _ := testMux(t, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools/list_account", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pathTemplate":"/v1/accounts"`)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tools/missing", nil)
	req.Header.Set(HeaderRequestID, "req-7")
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body ServerError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrorTypeNotFound, body.Type)
	assert.Equal(t, "req-7", body.RequestID)
	assert.Equal(t, "req-7", rec.Header().Get(HeaderRequestID))
}

func TestHandleReload(t *testing.T) {
	calls := 0
	mux, _ := testMux(t, func(ctx context.Context) (int, error) {
		calls++
		if calls == 2 {
			return 0, errors.New("document unreachable")
		}
		return 42, nil
	}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 0, calls)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"tools":42}`, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"tools":0,"error":"document unreachable"}`, rec.Body.String())
}

func TestNewMux_WithoutReload(t *testing.T) {
	mux, _ := testMux(t, nil, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewMux_Metrics(t *testing.T) {
	collector := metrics.NewCollector("firefly_mcp", nil)
	mux, _ := testMux(t, nil, collector)

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tools/missing", nil))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `firefly_mcp_http_requests_total{method="GET",path="/health",status="200"} 1`)
	assert.Contains(t, body, `firefly_mcp_http_requests_total{method="GET",path="/tools/{name}",status="404"} 1`)
}

func TestNewMux_MCPEndpoint(t *testing.T) {
	mux, srv := testMux(t, nil, nil)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp?pat=abc&baseUrl=https://demo.example", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, srv.SessionCount())
}
