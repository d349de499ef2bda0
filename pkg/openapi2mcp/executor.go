package openapi2mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/auth"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/memory"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/metrics"
	"github.com/ubermorgenland/firefly-iii-mcp/pkg/schema"
)

// ErrUnresolvedPath means a tool definition left a path placeholder without
// a matching argument. It indicates a broken definition, not bad input.
var ErrUnresolvedPath = errors.New("failed to resolve path parameters")

// ToolResult is the normalized outcome of one tool call: a single text item.
type ToolResult struct {
	Text    string
	IsError bool
	Status  int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClient sets the HTTP client used for upstream calls.
func WithClient(c *http.Client) ExecutorOption {
	return func(e *Executor) { e.client = c }
}

// WithMetrics records call metrics on m.
func WithMetrics(m *metrics.Collector) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// Executor runs tool calls against the upstream API.
type Executor struct {
	client   *http.Client
	resolver *auth.Resolver
	schemes  map[string]auth.Scheme
	metrics  *metrics.Collector
	buffers  *memory.BufferPool
	logger   *zap.Logger

	// compiled input schemas, keyed by *schema.Node
	validators sync.Map
}

// NewExecutor returns an Executor that authenticates with resolver against
// the given security schemes.
func NewExecutor(resolver *auth.Resolver, schemes map[string]auth.Scheme, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = auth.NewResolver(auth.StaticCredentials{}, logger)
	}
	e := &Executor{
		client:   http.DefaultClient,
		resolver: resolver,
		schemes:  schemes,
		buffers:  memory.NewBufferPool(),
		logger:   logger.With(zap.String("component", "executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type validationFailure struct {
	Message string            `json:"message"`
	Errors  []validationError `json:"errors"`
}

type validationError struct {
	Field       string `json:"field"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type httpFailure struct {
	Message    string `json:"message"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Error      string `json:"error"`
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Execute validates args against def's input schema, calls the upstream API
// and normalizes the response. Every user-facing failure is returned as a
// ToolResult with IsError set; the only error return is ErrUnresolvedPath.
// The caller's context bounds the upstream call.
func (e *Executor) Execute(ctx context.Context, name string, def *ToolDefinition, args any, ec auth.ExecutionContext) (*ToolResult, error) {
	start := time.Now()
	requestID := auth.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	logger := e.logger.With(zap.String("tool", name), zap.String("request_id", requestID))

	arguments, ok := args.(map[string]any)
	if !ok || arguments == nil {
		arguments = map[string]any{}
	}

	if failure := e.validate(name, def.InputSchema, arguments); failure != nil {
		logger.Info("rejected tool arguments", zap.Int("errors", len(failure.Errors)))
		e.metrics.RecordToolCall(name, metrics.OutcomeInvalidArguments, time.Since(start))
		return &ToolResult{Text: prettyJSON(failure), IsError: true}, nil
	}

	req, err := e.buildRequest(ctx, def, arguments, ec)
	if err != nil {
		logger.Error("broken tool definition", zap.Error(err))
		return nil, err
	}
	req.Header.Set(TraceIDParameter, requestID)

	creds := e.resolver
	if ec.Token != "" {
		creds = e.resolver.WithCredentials(auth.ChainCredentials{
			auth.SessionCredentials{Token: ec.Token},
			e.resolver.Credentials(),
		})
	}
	creds.Resolve(ctx, def.SecurityRequirements, e.schemes).Apply(req)

	logger.Info("executing tool", zap.String("method", req.Method), zap.String("path", req.URL.Path))
	resp, err := e.client.Do(req)
	if err != nil {
		logger.Warn("upstream request failed", zap.Error(err))
		e.metrics.RecordToolCall(name, metrics.OutcomeTransportError, time.Since(start))
		return &ToolResult{Text: fmt.Sprintf("Error executing tool '%s': %s", name, err), IsError: true}, nil
	}
	defer resp.Body.Close()

	result, outcome := e.normalize(name, resp)
	logger.Info("tool call finished",
		zap.Int("status", resp.StatusCode), zap.String("outcome", outcome), zap.Duration("duration", time.Since(start)))
	e.metrics.RecordToolCall(name, outcome, time.Since(start))
	return result, nil
}

func (e *Executor) validate(name string, input *schema.Node, args map[string]any) *validationFailure {
	if input == nil {
		return nil
	}
	compiled, err := e.validator(input)
	if err != nil {
		e.logger.Error("input schema does not compile", zap.String("tool", name), zap.Error(err))
		return &validationFailure{
			Message: fmt.Sprintf("Invalid arguments for tool '%s'", name),
			Errors:  []validationError{{Type: "schema", Description: err.Error()}},
		}
	}
	res, err := compiled.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &validationFailure{
			Message: fmt.Sprintf("Invalid arguments for tool '%s'", name),
			Errors:  []validationError{{Type: "document", Description: err.Error()}},
		}
	}
	if res.Valid() {
		return nil
	}
	failure := &validationFailure{Message: fmt.Sprintf("Invalid arguments for tool '%s'", name)}
	for _, re := range res.Errors() {
		failure.Errors = append(failure.Errors, validationError{
			Field:       re.Field(),
			Type:        re.Type(),
			Description: re.Description(),
		})
	}
	return failure
}

func (e *Executor) validator(input *schema.Node) (*gojsonschema.Schema, error) {
	if v, ok := e.validators.Load(input); ok {
		return v.(*gojsonschema.Schema), nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}
	e.validators.Store(input, compiled)
	return compiled, nil
}

func (e *Executor) buildRequest(ctx context.Context, def *ToolDefinition, args map[string]any, ec auth.ExecutionContext) (*http.Request, error) {
	path := def.PathTemplate
	query := url.Values{}
	headers := map[string]string{}
	var cookies []*http.Cookie

	for _, p := range def.ExecutionParameters {
		v, ok := args[p.Name]
		if !ok || v == nil {
			continue
		}
		switch p.In {
		case InPath:
			path = strings.ReplaceAll(path, "{"+p.Name+"}", escapePathValue(stringify(v)))
		case InQuery:
			if list, ok := v.([]any); ok {
				for _, item := range list {
					query.Add(p.Name, stringify(item))
				}
				continue
			}
			query.Add(p.Name, stringify(v))
		case InHeader:
			headers[strings.ToLower(p.Name)] = stringify(v)
		case InCookie:
			cookies = append(cookies, &http.Cookie{Name: p.Name, Value: stringify(v)})
		}
	}

	if strings.Contains(path, "{") {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedPath, path)
	}

	var body io.Reader
	if ct := def.RequestBodyContentType; ct != "" {
		if v, ok := args[RequestBodyProperty]; ok && v != nil {
			data, err := encodeBody(ct, v)
			if err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
			body = strings.NewReader(data)
			headers["content-type"] = ct
		}
	}

	target := strings.TrimRight(ec.BaseURL, "/") + "/api" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(def.Method), target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req, nil
}

func (e *Executor) normalize(name string, resp *http.Response) (*ToolResult, string) {
	raw, err := e.buffers.ReadAll(resp.Body)
	if err != nil {
		return &ToolResult{
			Text:    fmt.Sprintf("Error executing tool '%s': reading response: %s", name, err),
			IsError: true,
			Status:  resp.StatusCode,
		}, metrics.OutcomeTransportError
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := statusText(resp)
		return &ToolResult{
			Text: prettyJSON(httpFailure{
				Message:    fmt.Sprintf("Error executing tool '%s': %d %s", name, resp.StatusCode, reason),
				Status:     resp.StatusCode,
				StatusText: reason,
				Error:      string(raw),
			}),
			IsError: true,
			Status:  resp.StatusCode,
		}, metrics.OutcomeHTTPError
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		return &ToolResult{
			Text:   fmt.Sprintf("(Status: %d - No body content)", resp.StatusCode),
			Status: resp.StatusCode,
		}, metrics.OutcomeSuccess
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case isJSONContentType(contentType):
		var out bytes.Buffer
		if err := json.Indent(&out, raw, "", "  "); err != nil {
			return &ToolResult{Text: string(raw), Status: resp.StatusCode}, metrics.OutcomeSuccess
		}
		return &ToolResult{Text: out.String(), Status: resp.StatusCode}, metrics.OutcomeSuccess
	case strings.HasPrefix(contentType, "text/"):
		return &ToolResult{Text: string(raw), Status: resp.StatusCode}, metrics.OutcomeSuccess
	}

	if contentType == "" {
		contentType = "unknown"
	}
	return &ToolResult{
		Text: prettyJSON(errorPayload{
			Error:   fmt.Sprintf("Tool '%s' returned a response that cannot be rendered as text", name),
			Message: "Unsupported response type: " + contentType,
		}),
		IsError: true,
		Status:  resp.StatusCode,
	}, metrics.OutcomeUnsupported
}

// statusText returns the reason phrase of resp, e.g. "Not Found".
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func isJSONContentType(ct string) bool {
	mediaType := strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func encodeBody(contentType string, v any) (string, error) {
	if s, ok := v.(string); ok && !isJSONContentType(strings.ToLower(contentType)) {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// stringify renders an argument for a path, query, header or cookie slot.
// Objects and arrays are sent as JSON.
func stringify(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		data, _ := json.Marshal(v)
		return string(data)
	}
	return cast.ToString(v)
}

// componentUnescaper restores the characters encodeURIComponent leaves
// alone but url.QueryEscape encodes.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// escapePathValue percent-encodes a path segment with the encodeURIComponent
// character set.
func escapePathValue(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}

// prettyJSON renders v with a two-space indent and without HTML escaping.
func prettyJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
