package cliclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, zap.NewNop().Sugar())
}

func TestNewClientAddsScheme(t *testing.T) {
	c := NewClient("127.0.0.1:8090", zap.NewNop().Sugar())
	assert.Equal(t, "http://127.0.0.1:8090", c.baseURL)
}

func TestPing(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	assert.True(t, c.Ping(context.Background()))

	down := NewClient("127.0.0.1:1", zap.NewNop().Sugar())
	assert.False(t, down.Ping(context.Background()))
}

func TestStartConnect(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/connect", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://n8n.example.com", req["base_url"])
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"session_id":"01J0000000000000000000ZZZZ"}`))
	}))

	id, err := c.StartConnect(context.Background(), "https://n8n.example.com")
	require.NoError(t, err)
	assert.Equal(t, "01J0000000000000000000ZZZZ", id)
}

func TestAPIErrorSurfacesMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"a connection handshake is already in progress"}`))
	}))

	_, err := c.StartConnect(context.Background(), "https://n8n.example.com")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "already in progress")
}

func TestExecuteTool(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/execute", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "search_workflows", req["tool"])
		w.Write([]byte(`{"status":"success","tool":"search_workflows","data":{"count":2},"timestamp":"2026-01-01T00:00:00Z"}`))
	}))

	result, err := c.ExecuteTool(context.Background(), "search_workflows", json.RawMessage(`{"q":"mail"}`))
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
}

func TestConnections(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"connections":[{"id":"conn-1","base_url":"https://n8n.example.com","is_active":true}]}`))
		case http.MethodDelete:
			assert.Equal(t, "/api/connections/conn-1", r.URL.Path)
			w.Write([]byte(`{"status":"deleted"}`))
		}
	}))

	conns, err := c.Connections(context.Background())
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.True(t, conns[0].IsActive)

	require.NoError(t, c.DeleteConnection(context.Background(), "conn-1"))
}
