// Package reqcontext carries per-request correlation metadata through
// context so log lines from the HTTP API and the bridge can be tied to one
// request.
package reqcontext

import (
	"context"
	"regexp"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys to avoid collisions.
type ContextKey string

// CorrelationIDKey is the context key for correlation IDs.
const CorrelationIDKey ContextKey = "correlation_id"

// CorrelationIDHeader is the HTTP header correlation IDs travel in.
const CorrelationIDHeader = "X-Correlation-ID"

// Only alphanumerics, dashes, and underscores; a hostile client cannot
// inject log content through the header.
var correlationIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// IsValidCorrelationID checks if a client-supplied correlation ID is safe
// to reuse.
func IsValidCorrelationID(id string) bool {
	return correlationIDPattern.MatchString(id)
}

// GetOrGenerate returns the provided ID when valid, otherwise a fresh one.
func GetOrGenerate(providedID string) string {
	if IsValidCorrelationID(providedID) {
		return providedID
	}
	return uuid.New().String()
}

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// GetCorrelationID retrieves the correlation ID from context, or empty.
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}
