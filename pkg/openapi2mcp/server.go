package openapi2mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/auth"
)

// Placeholder tools exposed when a session cannot reach Firefly III.
const (
	UnavailableTool  = "unavailable"
	UnauthorizedTool = "unauthorized"
)

const (
	defaultServerName    = "Firefly III MCP Agent"
	defaultServerVersion = "dev"
	maxCachedServers     = 256
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerInfo sets the name and version reported to MCP clients.
func WithServerInfo(name, version string) ServerOption {
	return func(s *Server) {
		s.name = name
		s.version = version
	}
}

// WithExecutorOptions passes options to every Executor the server builds.
func WithExecutorOptions(opts ...ExecutorOption) ServerOption {
	return func(s *Server) { s.execOpts = append(s.execOpts, opts...) }
}

// Server bridges a Catalog to MCP clients over stdio or streamable HTTP.
type Server struct {
	name     string
	version  string
	resolver *auth.Resolver
	execOpts []ExecutorOption
	logger   *zap.Logger

	mu       sync.RWMutex
	catalog  *Catalog
	executor *Executor
	servers  map[string]http.Handler
}

// NewServer returns a Server for catalog. resolver supplies credentials
// beyond the per-session token and may be nil.
func NewServer(catalog *Catalog, resolver *auth.Resolver, logger *zap.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = auth.NewResolver(auth.NewEnvCredentials(), logger)
	}
	s := &Server{
		name:     defaultServerName,
		version:  defaultServerVersion,
		resolver: resolver,
		logger:   logger.With(zap.String("component", "mcp")),
		servers:  make(map[string]http.Handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.SetCatalog(catalog)
	return s
}

// SetCatalog swaps the served catalog. Sessions built for the previous
// catalog are dropped.
func (s *Server) SetCatalog(c *Catalog) {
	if c == nil {
		c, _ = NewCatalog(nil, nil)
	}
	exec := NewExecutor(s.resolver, c.Schemes(), s.logger, s.execOpts...)

	s.mu.Lock()
	s.catalog = c
	s.executor = exec
	s.servers = make(map[string]http.Handler)
	s.mu.Unlock()

	s.logger.Info("catalog loaded", zap.Int("tools", c.Len()))
}

// Catalog returns the served catalog.
func (s *Server) Catalog() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// MCPServer builds an MCP server exposing the tools visible to ec. Without a
// base URL only the "unavailable" tool is listed; without a token only the
// "unauthorized" tool.
func (s *Server) MCPServer(ec auth.ExecutionContext) *mcpserver.MCPServer {
	s.mu.RLock()
	catalog, exec := s.catalog, s.executor
	s.mu.RUnlock()

	srv := mcpserver.NewMCPServer(s.name, s.version, mcpserver.WithToolCapabilities(true))

	switch {
	case ec.BaseURL == "":
		srv.AddTool(placeholderTool(UnavailableTool,
			"This tool is not available because the base URL is not configured. Please check your configuration and restart the server."),
			placeholderHandler("Unavailable"))
		s.logger.Warn("no base URL configured, exposing placeholder tool", zap.String("tool", UnavailableTool))
		return srv
	case ec.Token == "":
		srv.AddTool(placeholderTool(UnauthorizedTool,
			"This tool is not available because the user is not authenticated. Please check your configuration and restart the server."),
			placeholderHandler("Unauthorized"))
		s.logger.Warn("no access token configured, exposing placeholder tool", zap.String("tool", UnauthorizedTool))
		return srv
	}

	tools := catalog.Filter(ec.EnabledTags)
	for i := range tools {
		def := tools[i]
		raw, err := json.Marshal(def.InputSchema)
		if err != nil {
			s.logger.Warn("skipping tool with unencodable schema", zap.String("tool", def.Name), zap.Error(err))
			continue
		}
		srv.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, raw), s.toolHandler(exec, def, ec))
	}
	s.logger.Debug("registered tools",
		zap.Int("tools", len(tools)), zap.Strings("tags", ec.EnabledTags))
	return srv
}

func (s *Server) toolHandler(exec *Executor, def ToolDefinition, ec auth.ExecutionContext) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := exec.Execute(ctx, def.Name, &def, req.Params.Arguments, ec)
		if err != nil {
			return nil, err
		}
		if res.IsError {
			return mcp.NewToolResultError(res.Text), nil
		}
		return mcp.NewToolResultText(res.Text), nil
	}
}

func placeholderTool(name, description string) mcp.Tool {
	return mcp.NewTool(name, mcp.WithDescription(description))
}

func placeholderHandler(reason string) mcpserver.ToolHandlerFunc {
	text := prettyJSON(errorPayload{
		Error:   reason,
		Message: "Please check your configuration and restart the server.",
	})
	return func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError(text), nil
	}
}

// ServeStdio serves one session on stdin/stdout until EOF.
func (s *Server) ServeStdio(ec auth.ExecutionContext) error {
	return mcpserver.ServeStdio(s.MCPServer(ec),
		mcpserver.WithErrorLogger(zap.NewStdLog(s.logger)),
		mcpserver.WithStdioContextFunc(func(ctx context.Context) context.Context {
			return auth.WithExecutionContext(ctx, ec)
		}))
}

// ContextResolver derives the execution context of an HTTP request.
type ContextResolver func(r *http.Request) auth.ExecutionContext

// Handler serves streamable HTTP. Each distinct execution context gets its
// own stateless MCP server, built on first use.
func (s *Server) Handler(resolve ContextResolver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ec := resolve(r)
		s.httpServer(ec).ServeHTTP(w, r)
	})
}

func (s *Server) httpServer(ec auth.ExecutionContext) http.Handler {
	key := ec.Key()

	s.mu.RLock()
	h, ok := s.servers[key]
	s.mu.RUnlock()
	if ok {
		return h
	}

	h = mcpserver.NewStreamableHTTPServer(s.MCPServer(ec),
		mcpserver.WithStateLess(true),
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			ctx = auth.WithExecutionContext(ctx, ec)
			return auth.WithRequestID(ctx, uuid.New().String())
		}),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.servers[key]; ok {
		return existing
	}
	if len(s.servers) >= maxCachedServers {
		for k := range s.servers {
			delete(s.servers, k)
			break
		}
	}
	s.servers[key] = h
	return h
}

// SessionCount returns the number of cached per-context MCP servers.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.servers)
}

// GetStreamableHTTPURL returns the URL for the Streamable HTTP endpoint of the MCP server.
// addr is the address the server is listening on (e.g., ":8080", "0.0.0.0:8080", "localhost:8080").
// basePath is the base HTTP path (e.g., "/mcp").
// Example usage:
//
//	url := openapi2mcp.GetStreamableHTTPURL(":8080", "/custom-base")
//	// Returns: "http://localhost:8080/custom-base"
func GetStreamableHTTPURL(addr, basePath string) string {
	if basePath == "" {
		basePath = "/mcp"
	}
	host := normalizeAddrToHost(addr)
	return fmt.Sprintf("http://%s%s", host, basePath)
}

// normalizeAddrToHost converts an addr (as used by net/http) to a host:port string suitable for URLs.
// If addr is just ":8080", returns "localhost:8080". If it already includes a host, returns as is.
func normalizeAddrToHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "localhost"
	}
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
