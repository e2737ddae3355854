package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"tarottracker/internal/tools"
)

const mcpProtocolVersion = "2024-11-05"

// NewMCPHandler returns POST /mcp: the enveloped variant of the tool
// protocol. Dispatch failures come back inside the envelope, so the HTTP
// status is 200 for anything that parsed.
func NewMCPHandler(dispatcher *tools.Dispatcher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tools.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}

		resp := dispatcher.Handle(r.Context(), req)
		if resp.Error != nil {
			logger.Debug("mcp request failed",
				zap.String("method", req.Method),
				zap.Int("code", resp.Error.Code),
				zap.String("message", resp.Error.Message))
		}
		w.Header().Set("mcp-protocol-version", mcpProtocolVersion)
		writeJSON(w, http.StatusOK, resp)
	}
}

type toolCallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// NewToolCallHandler returns POST /api/tools/call: the raw-JSON variant used
// by agent callers that do not speak the envelope.
func NewToolCallHandler(dispatcher *tools.Dispatcher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toolCallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		result, err := dispatcher.CallRaw(r.Context(), req.Name, req.Arguments)
		if err != nil {
			logger.Warn("tool call failed", zap.String("tool", req.Name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
