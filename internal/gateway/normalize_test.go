package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeExecuteResponse(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   string
		kind     string
		wantData interface{}
	}{
		{
			name:     "direct data field",
			body:     `{"data":{"workflows":3}}`,
			status:   StatusSuccess,
			wantData: map[string]interface{}{"workflows": float64(3)},
		},
		{
			name:   "remote error field",
			body:   `{"error":"tool not found"}`,
			status: StatusError,
			kind:   KindRemoteError,
		},
		{
			name:     "nested content wrapper with json text",
			body:     `{"result":{"content":[{"type":"text","text":"{\"count\":7}"}]}}`,
			status:   StatusSuccess,
			wantData: map[string]interface{}{"count": float64(7)},
		},
		{
			name:     "nested content wrapper with plain text",
			body:     `{"result":{"content":[{"type":"text","text":"done"}]}}`,
			status:   StatusSuccess,
			wantData: "done",
		},
		{
			name:     "bare object treated as payload",
			body:     `{"workflows":[],"total":0}`,
			status:   StatusSuccess,
			wantData: map[string]interface{}{"workflows": []interface{}{}, "total": float64(0)},
		},
		{
			name:   "result without usable content",
			body:   `{"result":{"content":[]}}`,
			status: StatusError,
			kind:   KindIncompatiblePayload,
		},
		{
			name:   "invalid json",
			body:   `<html>gateway timeout</html>`,
			status: StatusError,
			kind:   KindIncompatiblePayload,
		},
		{
			name:   "empty body",
			body:   ``,
			status: StatusError,
			kind:   KindIncompatiblePayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizeExecuteResponse("search", []byte(tt.body))
			require.NotNil(t, result)
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, "search", result.Tool)
			assert.Equal(t, tt.kind, result.ErrorKind)
			if tt.wantData != nil {
				assert.Equal(t, tt.wantData, result.Data)
			}
			assert.False(t, result.Timestamp.IsZero())
		})
	}
}
