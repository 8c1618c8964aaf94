package webapp

import (
	"context"
	"fmt"
	"time"
)

// Pointer types accepted by points/search.
const (
	PointerPlant    = "Plant"
	PointerGeneric  = "GenericPointer"
	PointerToolSlot = "ToolSlot"
)

// Log posts a message to the web app log. Prefer the device log where
// possible; the browser may not show these until refreshed.
func (c *Client) Log(ctx context.Context, message, messageType string) (Response, error) {
	return c.Post(ctx, "logs", map[string]any{"message": message, "type": messageType})
}

// SearchLogs queries logs/search.
func (c *Client) SearchLogs(ctx context.Context, query map[string]any) (Response, error) {
	return c.Post(ctx, "logs/search", query)
}

// SearchPoints queries points/search. Accepted keys include name,
// pointer_type, plant_stage, planting_slug, meta, radius, x, y and z.
func (c *Client) SearchPoints(ctx context.Context, query map[string]any) (Response, error) {
	return c.Post(ctx, "points/search", query)
}

func (c *Client) pointsOfType(ctx context.Context, pointerType string) (Response, error) {
	return c.SearchPoints(ctx, map[string]any{"pointer_type": pointerType})
}

// DownloadPlants returns all plant points.
func (c *Client) DownloadPlants(ctx context.Context) (Response, error) {
	return c.pointsOfType(ctx, PointerPlant)
}

// GetPlants is DownloadPlants.
func (c *Client) GetPlants(ctx context.Context) (Response, error) {
	return c.DownloadPlants(ctx)
}

// GetPoints returns generic map points.
func (c *Client) GetPoints(ctx context.Context) (Response, error) {
	return c.pointsOfType(ctx, PointerGeneric)
}

// GetToolslots returns tool slot points.
func (c *Client) GetToolslots(ctx context.Context) (Response, error) {
	return c.pointsOfType(ctx, PointerToolSlot)
}

// GetProperty fetches a record and returns one of its fields.
func (c *Client) GetProperty(ctx context.Context, endpoint, field, id string) (any, error) {
	resp, err := c.Get(ctx, endpoint, id)
	if err != nil {
		return nil, err
	}
	record, ok := resp.JSON.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: %w: response is not a record", endpoint, ErrPropertyNotFound)
	}
	value, ok := record[field]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", endpoint, field, ErrPropertyNotFound)
	}
	return value, nil
}

// PlantOptions holds the optional fields of a new plant.
type PlantOptions struct {
	Name         string     `json:"name,omitempty"`
	PlantingSlug string     `json:"planting_slug,omitempty"`
	Radius       *float64   `json:"radius,omitempty"`
	Z            *float64   `json:"z,omitempty"`
	PlantedAt    *time.Time `json:"planted_at,omitempty"`
	PlantStage   string     `json:"plant_stage,omitempty"`
}

type plantPoint struct {
	PointerType string  `json:"pointer_type"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	PlantOptions
}

// AddPlant adds a plant to the garden map at (x, y).
func (c *Client) AddPlant(ctx context.Context, x, y float64, opts PlantOptions) (Response, error) {
	return c.Post(ctx, "points", plantPoint{PointerType: PointerPlant, X: x, Y: y, PlantOptions: opts})
}

// FindSequenceByName returns the id of the sequence called name. A missing
// sequence is logged to the web app and returns ErrSequenceNotFound.
func (c *Client) FindSequenceByName(ctx context.Context, name string) (int, error) {
	resp, err := c.Get(ctx, "sequences", "")
	if err != nil {
		return 0, err
	}
	sequences, _ := resp.JSON.([]any)
	for _, s := range sequences {
		seq, ok := s.(map[string]any)
		if !ok || seq["name"] != name {
			continue
		}
		if id, ok := seq["id"].(float64); ok {
			return int(id), nil
		}
	}
	if _, err := c.Log(ctx, fmt.Sprintf("Sequence `%s` not found.", name), "error"); err != nil {
		c.logger.Warn().Err(err).Msg("sequence lookup failure not logged")
	}
	return 0, fmt.Errorf("%q: %w", name, ErrSequenceNotFound)
}
