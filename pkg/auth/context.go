package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ExecutionContext is what one MCP session needs to call Firefly III.
type ExecutionContext struct {
	BaseURL     string
	Token       string
	EnabledTags []string
}

// Key identifies sessions that can share one MCP server. The token is hashed
// so it never sits in map keys or logs.
func (c ExecutionContext) Key() string {
	sum := sha256.Sum256([]byte(c.Token))
	return c.BaseURL + "|" + hex.EncodeToString(sum[:8]) + "|" + strings.Join(c.EnabledTags, ",")
}

type contextKey string

const (
	executionContextKey contextKey = "execution"
	requestIDKey        contextKey = "request_id"
)

func WithExecutionContext(ctx context.Context, ec ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey, ec)
}

func FromContext(ctx context.Context) (ExecutionContext, bool) {
	ec, ok := ctx.Value(executionContextKey).(ExecutionContext)
	return ec, ok
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
