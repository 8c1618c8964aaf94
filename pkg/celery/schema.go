package celery

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformed is returned for input that is not a celery-script node.
var ErrMalformed = errors.New("malformed celery script")

const commandSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["kind", "args"],
	"properties": {
		"kind": {"type": "string", "minLength": 1},
		"args": {"type": "object"},
		"body": {"type": "array", "items": {"$ref": "#"}}
	}
}`

var schema = mustSchema(commandSchema)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("celery: compile command schema: %v", err))
	}
	return s
}

// Parse decodes a wire-form command, rejecting anything whose kind, args or
// body has the wrong shape (for example a scalar body).
func Parse(data []byte) (Command, error) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return Command{}, fmt.Errorf("%w: %s", ErrMalformed, strings.Join(details, "; "))
	}

	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cmd, nil
}

// Check verifies a Command built in Go before dispatch.
func Check(cmd Command) error {
	if cmd.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrMalformed)
	}
	for i, child := range cmd.Body {
		if err := Check(child); err != nil {
			return fmt.Errorf("body[%d]: %w", i, err)
		}
	}
	return nil
}
