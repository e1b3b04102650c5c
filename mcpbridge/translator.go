package mcpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	loggerv2 "rhinobridge/logger/v2"
	"rhinobridge/rhinoclient"
)

const (
	// ProtocolVersion is the MCP protocol revision the bridge speaks.
	ProtocolVersion = "2024-11-05"

	serverName    = "rhinobridge"
	serverVersion = "0.1.0"
)

// ErrSessionEnd is returned by HandleRequest when the client sent an exit
// request. The transport adapter owns process/connection teardown, so the
// translator only signals it.
var ErrSessionEnd = errors.New("session end requested")

// ToolOutcome is the application-level result of a capability invocation.
// Success=false means "the tool ran and failed" — a condition reported
// inside a successful protocol response, never as a JSON-RPC error object.
// Assistants rely on that distinction to tell tool failures from protocol
// failures.
type ToolOutcome struct {
	Success bool
	Message string
	Data    map[string]any
	Detail  string // host-side traceback, debug only
}

// Translator is the only component that understands both schemas: the
// JSON-RPC tool-invocation envelope on one side and the Rhino bridge
// command protocol on the other. The backend client is an injected
// dependency so adapters and tests can supply their own instance.
type Translator struct {
	client *rhinoclient.Client
	table  *CapabilityTable
	logger loggerv2.Logger
}

// NewTranslator creates a translator over the given backend client and
// capability table.
func NewTranslator(client *rhinoclient.Client, table *CapabilityTable, logger loggerv2.Logger) *Translator {
	if logger == nil {
		logger = loggerv2.NewNoop()
	}
	return &Translator{client: client, table: table, logger: logger}
}

// Table returns the capability table.
func (t *Translator) Table() *CapabilityTable { return t.table }

// Close tears down the backend connection. Safe to call multiple times.
func (t *Translator) Close() {
	t.client.Disconnect()
}

// EnsureConnected connects the backend client if it is not connected yet.
// Exactly one attempt; no retries, so the caller knows which call failed.
func (t *Translator) EnsureConnected(ctx context.Context) error {
	if t.client.State() == rhinoclient.StateConnected {
		return nil
	}
	return t.client.Connect(ctx)
}

// InitializeResult returns the payload advertised on session start, both
// for the unsolicited startup message and for initialize requests.
func (t *Translator) InitializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
	}
}

// HandleRequest routes one decoded request. It returns a nil response for
// notifications. ErrSessionEnd is returned when the session should end;
// any other processing failure is encoded into the response itself.
func (t *Translator) HandleRequest(ctx context.Context, req *Request) (*Response, error) {
	switch req.Method {
	case "initialize":
		if req.IsNotification() {
			return nil, nil
		}
		return NewResponse(req.ID, t.InitializeResult()), nil

	case "initialized", "notifications/initialized":
		t.logger.Info("Client initialized")
		return nil, nil

	case "exit":
		t.logger.Info("Client requested exit")
		return nil, ErrSessionEnd

	case "tools/list":
		if req.IsNotification() {
			t.logger.Debug("Dropping tools/list notification")
			return nil, nil
		}
		return NewResponse(req.ID, map[string]any{"tools": t.table.Tools()}), nil

	case "rpc.discover":
		if req.IsNotification() {
			t.logger.Debug("Dropping rpc.discover notification")
			return nil, nil
		}
		// Legacy discovery shape kept for WebSocket clients that predate
		// tools/list.
		return NewResponse(req.ID, map[string]any{
			"name":      serverName,
			"version":   serverVersion,
			"functions": t.table.Tools(),
		}), nil

	case "tools/call":
		return t.handleToolsCall(ctx, req)

	default:
		// A method matching a capability name is a direct invocation, the
		// shape the original WebSocket protocol used.
		if _, ok := t.table.Resolve(req.Method); ok {
			outcome, rpcErr := t.Invoke(ctx, req.Method, req.Params)
			if req.IsNotification() {
				return nil, nil
			}
			if rpcErr != nil {
				return NewErrorResponse(req.ID, rpcErr), nil
			}
			return NewResponse(req.ID, legacyResult(outcome)), nil
		}
		if req.IsNotification() {
			t.logger.Debug("Ignoring unknown notification", loggerv2.String("method", req.Method))
			return nil, nil
		}
		return NewErrorResponse(req.ID, NewError(CodeMethodNotFound, "Method not found: %s", req.Method)), nil
	}
}

// toolsCallParams is the params shape of a tools/call request.
type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (t *Translator) handleToolsCall(ctx context.Context, req *Request) (*Response, error) {
	var params toolsCallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			if req.IsNotification() {
				t.logger.Debug("Dropping malformed tools/call notification")
				return nil, nil
			}
			return NewErrorResponse(req.ID, NewError(CodeInvalidParams, "invalid tools/call params: %v", err)), nil
		}
	}
	if params.Name == "" {
		if req.IsNotification() {
			t.logger.Debug("Dropping tools/call notification without a tool name")
			return nil, nil
		}
		return NewErrorResponse(req.ID, NewError(CodeInvalidParams, "name: tool name is required")), nil
	}

	outcome, rpcErr := t.Invoke(ctx, params.Name, params.Arguments)
	if req.IsNotification() {
		return nil, nil
	}
	if rpcErr != nil {
		return NewErrorResponse(req.ID, rpcErr), nil
	}
	return NewResponse(req.ID, toolCallResult(outcome)), nil
}

// Invoke runs one capability against the backend.
//
// Failure mapping, in pipeline order: unresolved name is MethodNotFound,
// invalid params is InvalidParams (before any backend contact), a failed
// connection attempt is InternalError carrying the connection failure text,
// and everything after a command went out — backend status "error" or a
// severed connection mid-call — is a ToolOutcome with Success=false.
func (t *Translator) Invoke(ctx context.Context, name string, args json.RawMessage) (*ToolOutcome, *Error) {
	capability, ok := t.table.Resolve(name)
	if !ok {
		return nil, NewError(CodeMethodNotFound, "Method not found: %s", name)
	}

	data, err := capability.Build(args)
	if err != nil {
		return nil, NewError(CodeInvalidParams, "%v", err)
	}

	if err := t.EnsureConnected(ctx); err != nil {
		t.logger.Error("Backend connection failed", err, loggerv2.String("tool", name))
		return nil, NewError(CodeInternalError, "%v", err)
	}

	t.logger.Debug("Invoking capability",
		loggerv2.String("tool", name),
		loggerv2.String("command", capability.CommandType))

	reply, err := t.client.Send(ctx, capability.CommandType, data)
	if err != nil {
		t.logger.Error("Backend call failed", err, loggerv2.String("tool", name))
		return &ToolOutcome{
			Success: false,
			Message: fmt.Sprintf("%s failed: %v", name, err),
		}, nil
	}

	outcome := &ToolOutcome{
		Success: reply.IsSuccess(),
		Message: reply.Message,
		Data:    reply.Data,
		Detail:  reply.Traceback,
	}
	if outcome.Message == "" {
		if outcome.Success {
			outcome.Message = fmt.Sprintf("%s completed successfully", name)
		} else {
			outcome.Message = fmt.Sprintf("%s failed", name)
		}
	}
	return outcome, nil
}

// toolCallResult renders an outcome in MCP tools/call shape: text content
// plus an isError flag.
func toolCallResult(out *ToolOutcome) *mcp.CallToolResult {
	text := out.Message
	if len(out.Data) > 0 {
		if encoded, err := json.Marshal(out.Data); err == nil {
			text = fmt.Sprintf("%s\n%s", text, encoded)
		}
	}
	if out.Success {
		return mcp.NewToolResultText(text)
	}
	if out.Detail != "" {
		text = fmt.Sprintf("%s\n%s", text, out.Detail)
	}
	return mcp.NewToolResultError(text)
}

// legacyResult renders an outcome in the original WebSocket result shape.
func legacyResult(out *ToolOutcome) map[string]any {
	result := map[string]any{
		"success": out.Success,
		"message": out.Message,
	}
	if out.Data != nil {
		result["data"] = out.Data
	}
	if !out.Success && out.Detail != "" {
		result["error"] = out.Detail
	}
	return result
}
