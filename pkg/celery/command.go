// Package celery defines the celery-script command tree consumed by the
// device's execution engine, plus the composite nodes and RPC envelope used
// to correlate a command with its acknowledgment.
package celery

import (
	"encoding/json"
	"sort"
)

// Command is one celery-script node. Args values are scalars or nested
// Commands; Body, when present, is always a sequence.
type Command struct {
	Kind string         `json:"kind"`
	Args map[string]any `json:"args"`
	Body []Command      `json:"body,omitempty"`
}

// MarshalJSON emits an empty "args" object for a nil Args map. The device
// rejects nodes whose args are null.
func (c Command) MarshalJSON() ([]byte, error) {
	type wire Command
	w := wire(c)
	if w.Args == nil {
		w.Args = map[string]any{}
	}
	return json.Marshal(w)
}

// Assemble builds a Command. A nil args map is replaced with an empty one so
// the wire form always carries "args".
func Assemble(kind string, args map[string]any, body ...Command) Command {
	if args == nil {
		args = map[string]any{}
	}
	cmd := Command{Kind: kind, Args: args}
	if len(body) > 0 {
		cmd.Body = body
	}
	return cmd
}

// Coordinate assembles a coordinate node from x, y and z.
func Coordinate(x, y, z float64) Command {
	return Assemble("coordinate", map[string]any{"x": x, "y": y, "z": z})
}

// Pair assembles a key-value pair node, used as a body item for plugin
// inputs and user environment variables.
func Pair(label string, value any) Command {
	return Assemble("pair", map[string]any{"label": label, "value": value})
}

// Channel assembles a message delivery channel body item.
func Channel(name string) Command {
	return Assemble("channel", map[string]any{"channel_name": name})
}

// IsCoordinate reports whether v is a well-formed coordinate node: kind
// "coordinate" and args keys exactly {x, y, z}. v may be a Command or a
// decoded JSON object.
func IsCoordinate(v any) bool {
	var kind string
	var keys []string
	switch c := v.(type) {
	case Command:
		kind = c.Kind
		keys = mapKeys(c.Args)
	case *Command:
		if c == nil {
			return false
		}
		kind = c.Kind
		keys = mapKeys(c.Args)
	case map[string]any:
		k, _ := c["kind"].(string)
		args, ok := c["args"].(map[string]any)
		if !ok {
			return false
		}
		kind = k
		keys = mapKeys(args)
	default:
		return false
	}
	if kind != "coordinate" || len(keys) != 3 {
		return false
	}
	return keys[0] == "x" && keys[1] == "y" && keys[2] == "z"
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the wire form, mostly for log fields.
func (c Command) String() string {
	data, err := json.Marshal(c)
	if err != nil {
		return c.Kind
	}
	return string(data)
}
