package gateway

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// normalizeExecuteResponse decodes a 2xx execute response into the result
// envelope. The broker's payloads vary in shape, so detection is explicit:
// a remote error field, a direct "data" field, the MCP content wrapper with
// an embedded serialized payload, or the whole body as the result object.
// Anything else is a normalized incompatible-response-shape error.
func normalizeExecuteResponse(toolName string, body []byte) *StructuredResult {
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errorResult(toolName, KindIncompatiblePayload, "broker response is not valid JSON")
	}

	if envelope.Error != "" {
		return errorResult(toolName, KindRemoteError, envelope.Error)
	}

	if len(envelope.Data) > 0 {
		return successResult(toolName, decodeValue(envelope.Data))
	}

	if len(envelope.Result) > 0 {
		if data, ok := extractWrappedPayload(envelope.Result); ok {
			return successResult(toolName, data)
		}
		return errorResult(toolName, KindIncompatiblePayload, "broker result wrapper could not be interpreted")
	}

	// No recognized field: the body itself is the result object.
	var direct map[string]interface{}
	if err := json.Unmarshal(body, &direct); err == nil && len(direct) > 0 {
		return successResult(toolName, direct)
	}

	return errorResult(toolName, KindIncompatiblePayload, "broker response has no recognizable result shape")
}

// extractWrappedPayload parses the MCP call-tool result wrapper
// {content:[{type:"text",text:"<serialized-json>"}]} and decodes the
// embedded payload.
func extractWrappedPayload(raw json.RawMessage) (interface{}, bool) {
	callResult, err := mcp.ParseCallToolResult(&raw)
	if err != nil {
		return nil, false
	}

	for _, content := range callResult.Content {
		textContent, ok := content.(mcp.TextContent)
		if !ok {
			continue
		}

		var payload interface{}
		if err := json.Unmarshal([]byte(textContent.Text), &payload); err == nil {
			return payload, true
		}
		// Embedded text that is not JSON is still a usable result.
		return textContent.Text, true
	}

	return nil, false
}

// decodeValue unmarshals arbitrary JSON into a generic value, falling back
// to the raw string when it does not parse.
func decodeValue(raw json.RawMessage) interface{} {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	return value
}
