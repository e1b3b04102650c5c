package mcpbridge

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Capability binds one exposed tool to its backend command. The set is
// closed: every capability carries its own typed parameter validation and
// translation instead of sharing a generic map-shuffling path.
type Capability struct {
	Tool        mcp.Tool
	CommandType string

	// Build validates raw tool arguments and produces the backend command
	// data. A returned error is an invalid-params condition and its message
	// names the offending field.
	Build func(params json.RawMessage) (map[string]any, error)
}

// Name returns the capability's unique tool name.
func (c Capability) Name() string { return c.Tool.Name }

// CapabilityTable is the static, insertion-ordered set of capabilities
// exposed to the assistant. Built once at startup, immutable thereafter.
type CapabilityTable struct {
	order  []Capability
	byName map[string]Capability
}

func newCapabilityTable(caps ...Capability) (*CapabilityTable, error) {
	t := &CapabilityTable{byName: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		if _, dup := t.byName[c.Name()]; dup {
			return nil, fmt.Errorf("duplicate capability name: %s", c.Name())
		}
		t.byName[c.Name()] = c
		t.order = append(t.order, c)
	}
	return t, nil
}

// NewCapabilityTable builds the fixed capability set of the bridge.
func NewCapabilityTable() (*CapabilityTable, error) {
	return newCapabilityTable(
		createCurveCapability(),
		pingCapability(),
		runScriptCapability(),
	)
}

// List returns the capabilities in registration order, for discovery
// responses.
func (t *CapabilityTable) List() []Capability {
	out := make([]Capability, len(t.order))
	copy(out, t.order)
	return out
}

// Tools returns the MCP tool descriptors in registration order.
func (t *CapabilityTable) Tools() []mcp.Tool {
	tools := make([]mcp.Tool, 0, len(t.order))
	for _, c := range t.order {
		tools = append(tools, c.Tool)
	}
	return tools
}

// Resolve looks up a capability by tool name.
func (t *CapabilityTable) Resolve(name string) (Capability, bool) {
	c, ok := t.byName[name]
	return c, ok
}

const createCurveSchema = `{
  "type": "object",
  "properties": {
    "points": {
      "type": "array",
      "description": "Array of 3D points for the curve",
      "items": {
        "type": "object",
        "properties": {
          "x": {"type": "number"},
          "y": {"type": "number"},
          "z": {"type": "number"}
        },
        "required": ["x", "y", "z"]
      },
      "minItems": 2
    }
  },
  "required": ["points"]
}`

const pingSchema = `{
  "type": "object",
  "properties": {}
}`

const runScriptSchema = `{
  "type": "object",
  "properties": {
    "script": {
      "type": "string",
      "description": "Python script to run in Rhino"
    }
  },
  "required": ["script"]
}`

func createCurveCapability() Capability {
	return Capability{
		Tool: mcp.NewToolWithRawSchema(
			"create_curve",
			"Create a NURBS curve in Rhino",
			json.RawMessage(createCurveSchema),
		),
		CommandType: "create_curve",
		Build:       buildCreateCurve,
	}
}

func pingCapability() Capability {
	return Capability{
		Tool: mcp.NewToolWithRawSchema(
			"ping",
			"Ping Rhino to check if it's connected and get information",
			json.RawMessage(pingSchema),
		),
		CommandType: "ping",
		Build: func(json.RawMessage) (map[string]any, error) {
			return map[string]any{}, nil
		},
	}
}

func runScriptCapability() Capability {
	return Capability{
		Tool: mcp.NewToolWithRawSchema(
			"run_script",
			"Run a Python script in Rhino's Python context",
			json.RawMessage(runScriptSchema),
		),
		CommandType: "run_script",
		Build:       buildRunScript,
	}
}

// rawPoint accepts partially specified points: a missing axis defaults to
// 0.0 and every coordinate is coerced to floating point.
type rawPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func buildCreateCurve(params json.RawMessage) (map[string]any, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("points: at least 2 points are required to create a curve")
	}
	var p struct {
		Points []rawPoint `json:"points"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("points: %v", err)
	}
	if len(p.Points) < 2 {
		return nil, fmt.Errorf("points: at least 2 points are required to create a curve")
	}
	points := make([]any, 0, len(p.Points))
	for _, pt := range p.Points {
		points = append(points, map[string]any{"x": pt.X, "y": pt.Y, "z": pt.Z})
	}
	return map[string]any{"points": points}, nil
}

func buildRunScript(params json.RawMessage) (map[string]any, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("script: script cannot be empty")
	}
	var p struct {
		Script string `json:"script"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("script: %v", err)
	}
	if p.Script == "" {
		return nil, fmt.Errorf("script: script cannot be empty")
	}
	return map[string]any{"script": p.Script}, nil
}
