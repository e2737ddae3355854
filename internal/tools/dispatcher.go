package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"tarottracker/internal/models"
	"tarottracker/internal/repository"
)

// JSON-RPC error codes used by the protocol.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Records is the store surface the query tools need.
type Records interface {
	ListFiltered(ctx context.Context, filter repository.Filter) ([]models.Session, error)
	DistinctLocations(ctx context.Context, user, match string) ([]string, error)
}

// Request is the JSON-RPC style envelope consumed by the dispatcher.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Error is the structured protocol error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is the JSON-RPC style envelope returned by the dispatcher.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Definition describes one tool for tools/list.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type toolFunc func(ctx context.Context, args queryArgs) (interface{}, error)

type tool struct {
	definition Definition
	call       toolFunc
}

// Dispatcher routes tool-call requests to the data-query tools. Every tool
// fetches fresh from the record store; nothing is cached between calls.
type Dispatcher struct {
	records Records
	logger  *zap.Logger
	order   []string
	tools   map[string]tool
}

// NewDispatcher builds the dispatcher with the full tool battery registered.
func NewDispatcher(records Records, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		records: records,
		logger:  logger,
		tools:   make(map[string]tool),
	}
	d.register(listSessionsDefinition(), d.listSessions)
	d.register(listReadingsDefinition(), d.listReadings)
	d.register(searchLocationsDefinition(), d.searchLocations)
	d.register(aggregateReadingsDefinition(), d.aggregateReadings)
	d.register(sessionSummaryDefinition(), d.sessionSummary)
	d.register(topLocationsDefinition(), d.topLocations)
	d.register(recentSessionsDefinition(), d.recentSessions)
	return d
}

func (d *Dispatcher) register(definition Definition, call toolFunc) {
	d.order = append(d.order, definition.Name)
	d.tools[definition.Name] = tool{definition: definition, call: call}
}

// List returns the tool definitions in registration order.
func (d *Dispatcher) List() []Definition {
	definitions := make([]Definition, 0, len(d.order))
	for _, name := range d.order {
		definitions = append(definitions, d.tools[name].definition)
	}
	return definitions
}

// Handle processes one envelope. Protocol-level failures come back as a
// structured error object, never as a transport failure, so the
// request/response shape stays uniform for the agent on the other side.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "tools/list":
		resp.Result = map[string]interface{}{"tools": d.List()}
	case "tools/call":
		var params callParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &Error{Code: CodeInvalidParams, Message: "invalid params"}
			return resp
		}
		result, err := d.CallRaw(ctx, params.Name, params.Arguments)
		if err != nil {
			resp.Error = toolError(params.Name, err)
			return resp
		}
		resp.Result = result
	default:
		resp.Error = &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("Unknown method: %s", req.Method)}
	}
	return resp
}

// CallRaw invokes one tool and returns its bare result, for callers that
// speak the raw-JSON variant of the protocol instead of the envelope.
func (d *Dispatcher) CallRaw(ctx context.Context, name string, arguments json.RawMessage) (interface{}, error) {
	entry, ok := d.tools[name]
	if !ok {
		return nil, &unknownToolError{name: name}
	}

	var args queryArgs
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if args.UserName == "" {
		return nil, fmt.Errorf("user_name is required")
	}

	result, err := entry.call(ctx, args)
	if err != nil {
		d.logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
		return nil, err
	}
	return result, nil
}

type unknownToolError struct {
	name string
}

func (e *unknownToolError) Error() string {
	return fmt.Sprintf("Unknown tool: %s", e.name)
}

func toolError(name string, err error) *Error {
	if _, ok := err.(*unknownToolError); ok {
		return &Error{Code: CodeMethodNotFound, Message: err.Error()}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
