// Package gateway is the client for the broker backend: it lists remote
// tools and executes them against the user's active connection, normalizing
// the broker's loosely-typed responses into a single result envelope.
package gateway

import (
	"encoding/json"
	"time"
)

// ToolDescriptor describes a remote tool exposed by the automation backend.
// The input schema is semi-structured and treated as opaque.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Result status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error kinds carried on error results so callers can branch on the failure
// source.
const (
	KindMalformedArguments  = "malformed_arguments"
	KindNoActiveConnection  = "no_active_connection"
	KindNetworkError        = "network_error"
	KindRemoteError         = "remote_error"
	KindIncompatiblePayload = "incompatible_response_shape"
)

// StructuredResult is the uniform envelope returned by every tool execution,
// successful or not.
type StructuredResult struct {
	Status    string      `json:"status"`
	Tool      string      `json:"tool"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	ErrorKind string      `json:"error_kind,omitempty"`
}

// successResult builds a success envelope.
func successResult(tool string, data interface{}) *StructuredResult {
	return &StructuredResult{
		Status:    StatusSuccess,
		Tool:      tool,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// errorResult builds an error envelope tagged with a failure kind.
func errorResult(tool, kind, message string) *StructuredResult {
	return &StructuredResult{
		Status:    StatusError,
		Tool:      tool,
		Data:      message,
		Timestamp: time.Now().UTC(),
		ErrorKind: kind,
	}
}
