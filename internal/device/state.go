package device

import (
	"context"
	"fmt"
	"strconv"
)

// CurrentPosition returns the device position. For "all" the result is the
// whole position object; for x, y or z it is that axis value. Missing values
// are reported and return ErrNotFound.
func (c *Client) CurrentPosition(ctx context.Context, axis string) (any, error) {
	if err := c.build.v.Check("get_current_position", axis, Axis); err != nil {
		return nil, err
	}
	state, err := c.BotState(ctx)
	if err != nil {
		return nil, err
	}
	path := []string{"location_data", "position"}
	if axis != "all" {
		path = append(path, axis)
	}
	value, ok := Lookup(state, path...)
	if !ok {
		c.Error(ctx, fmt.Sprintf("Position `%s` value unknown.", axis))
		return nil, fmt.Errorf("position %s: %w", axis, ErrNotFound)
	}
	return value, nil
}

// PinValue returns the last known value of pin from the device state.
func (c *Client) PinValue(ctx context.Context, pin int) (any, error) {
	state, err := c.BotState(ctx)
	if err != nil {
		return nil, err
	}
	value, ok := Lookup(state, "pins", strconv.Itoa(pin), "value")
	if !ok {
		c.Error(ctx, fmt.Sprintf("Pin `%d` value unknown.", pin))
		return nil, fmt.Errorf("pin %d: %w", pin, ErrNotFound)
	}
	return value, nil
}

// Lookup walks nested objects of a decoded state document.
func Lookup(state map[string]any, path ...string) (any, bool) {
	var cur any = state
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}
