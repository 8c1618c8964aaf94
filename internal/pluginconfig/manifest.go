package pluginconfig

import (
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"
)

// Entry is one configuration input declared by a plugin manifest.
type Entry struct {
	Name  string `mapstructure:"name"`
	Label string `mapstructure:"label"`
	Value any    `mapstructure:"value"`
}

// Entries normalizes a manifest's config section. v2 devices send a
// mapping keyed by input name; older ones send a sequence. Mapping values are
// returned in key order.
func Entries(raw any, v2 bool) ([]Entry, error) {
	var items []any
	if v2 {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("config: want mapping, got %T", raw)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			items = append(items, m[k])
		}
	} else {
		seq, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("config: want sequence, got %T", raw)
		}
		items = seq
	}

	entries := make([]Entry, 0, len(items))
	for i, item := range items {
		var e Entry
		if err := mapstructure.Decode(item, &e); err != nil {
			return nil, fmt.Errorf("config[%d]: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// defaults returns the values of every entry named name.
func defaults(entries []Entry, name string) []any {
	var out []any
	for _, e := range entries {
		if e.Name == name {
			out = append(out, e.Value)
		}
	}
	return out
}
