package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/auth"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/memory"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/metrics"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/openapi2mcp"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "firefly-iii-mcp"

// HeaderRequestID carries the request id in and out of the HTTP transport.
const HeaderRequestID = "X-Request-Id"

// ReloadResponse represents the response from a reload operation
type ReloadResponse struct {
	Success bool   `json:"success"`
	Tools   int    `json:"tools"`
	Error   string `json:"error,omitempty"`
}

// ReloadFunc rebuilds the served catalog and returns its size.
type ReloadFunc func(ctx context.Context) (int, error)

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status   string       `json:"status"`
	Service  string       `json:"service"`
	Version  string       `json:"version"`
	Tools    int          `json:"tools"`
	Sessions int          `json:"sessions"`
	Memory   memory.Stats `json:"memory"`
}

// ToolSummary is one entry of the tool listing endpoint.
type ToolSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Method      string   `json:"method"`
	Path        string   `json:"path"`
	Tags        []string `json:"tags"`
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err *ServerError, logger *zap.Logger) {
	err.LogError(logger)
	writeJSON(w, status, err, logger)
}

// HandleReload handles the /reload endpoint for rebuilding the catalog
func HandleReload(reload ReloadFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		n, err := reload(r.Context())
		response := ReloadResponse{Success: err == nil, Tools: n}
		status := http.StatusOK
		if err != nil {
			response.Error = err.Error()
			status = http.StatusInternalServerError
			logger.Error("reload failed", zap.Error(err),
				zap.String("request_id", auth.RequestIDFromContext(r.Context())))
		} else {
			logger.Info("catalog reloaded", zap.Int("tools", n))
		}
		writeJSON(w, status, response, logger)
	}
}

// HandleHealth handles the /health endpoint for health checks
func HandleHealth(version string, srv *openapi2mcp.Server, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:   "healthy",
			Service:  ServiceName,
			Version:  version,
			Tools:    srv.Catalog().Len(),
			Sessions: srv.SessionCount(),
			Memory:   memory.ReadStats(),
		}, logger)
	}
}

// HandleToolList lists the tools of the served catalog. The "tools" and
// "preset" query parameters filter the listing the same way they filter an
// MCP session.
func HandleToolList(srv *openapi2mcp.Server, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var tags []string
		if q.Get(QueryTools) != "" || q.Get(QueryPreset) != "" {
			tags = resolveTags(q.Get(QueryTools), q.Get(QueryPreset), logger)
		}

		tools := srv.Catalog().Filter(tags)
		out := make([]ToolSummary, 0, len(tools))
		for _, t := range tools {
			out = append(out, ToolSummary{
				Name:        t.Name,
				Description: t.Description,
				Method:      t.Method,
				Path:        t.PathTemplate,
				Tags:        t.Tags,
			})
		}
		writeJSON(w, http.StatusOK, out, logger)
	}
}

// HandleTool returns the full definition of one tool.
func HandleTool(srv *openapi2mcp.Server, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		def, ok := srv.Catalog().Lookup(name)
		if !ok {
			writeError(w, http.StatusNotFound,
				NewErrorWithContext(r.Context(), ErrorTypeNotFound, "tool not found", name), logger)
			return
		}
		writeJSON(w, http.StatusOK, def, logger)
	}
}

// RequestID tags every request with an id, taken from the X-Request-Id
// header when present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(auth.WithRequestID(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Instrument records method, route, status and duration of every request
// served by next. route is the registered pattern, not the raw URL path.
func Instrument(route string, m *metrics.Collector, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RecordHTTPRequest(r.Method, route, rec.status, time.Since(start))
	})
}

// MuxOptions are the pieces NewMux wires together.
type MuxOptions struct {
	Config  *Config
	Server  *openapi2mcp.Server
	Reload  ReloadFunc
	Metrics *metrics.Collector
	Version string
	Logger  *zap.Logger
}

// NewMux builds the HTTP surface: the MCP endpoint plus health, tool
// listing, reload and, when enabled, metrics.
func NewMux(opts MuxOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http"))
	cfg := opts.Config

	mux := http.NewServeMux()
	handle := func(pattern, route string, h http.Handler) {
		mux.Handle(pattern, Instrument(route, opts.Metrics, h))
	}

	mcp := opts.Server.Handler(func(r *http.Request) auth.ExecutionContext {
		return cfg.ResolveExecutionContext(r, logger)
	})
	handle(cfg.BasePath, cfg.BasePath, mcp)
	handle("GET /health", "/health", HandleHealth(opts.Version, opts.Server, logger))
	handle("GET /tools", "/tools", HandleToolList(opts.Server, logger))
	handle("GET /tools/{name}", "/tools/{name}", HandleTool(opts.Server, logger))
	if opts.Reload != nil {
		handle("/reload", "/reload", HandleReload(opts.Reload, logger))
	}
	if cfg.MetricsEnabled && opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}
	return RequestID(mux)
}
