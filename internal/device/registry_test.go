package device

import (
	"errors"
	"reflect"
	"testing"

	"github.com/larsen-farm/plugintools/pkg/celery"
)

func TestBuild(t *testing.T) {
	b := NewBuilder(nil)
	tests := []struct {
		name string
		args map[string]any
		want celery.Command
	}{
		{"sync", nil, celery.Assemble("sync", nil)},
		{"home", map[string]any{"axis": "x"}, celery.Assemble("home", map[string]any{"axis": "x"})},
		{"wait", map[string]any{"milliseconds": "250"}, celery.Assemble("wait", map[string]any{"milliseconds": 250})},
		{"move_relative", map[string]any{"x": "1.5", "y": 0, "z": -2.0, "speed": 50.0},
			celery.Assemble("move_relative", map[string]any{"x": 1.5, "y": 0.0, "z": -2.0, "speed": 50})},
		{"move_absolute", map[string]any{"location": "1, 2, 3", "speed": 100},
			celery.Assemble("move_absolute", map[string]any{
				"location": celery.Coordinate(1, 2, 3),
				"offset":   celery.Coordinate(0, 0, 0),
				"speed":    100,
			})},
		{"move_absolute", map[string]any{
			"location": map[string]any{"x": 1.0, "y": 2.0, "z": 3.0},
			"offset":   map[string]any{"kind": "coordinate", "args": map[string]any{"x": 0.0, "y": 0.0, "z": 5.0}},
			"speed":    10,
		}, celery.Assemble("move_absolute", map[string]any{
			"location": celery.Coordinate(1, 2, 3),
			"offset":   celery.Coordinate(0, 0, 5),
			"speed":    10,
		})},
		{"send_message", map[string]any{"message": "hi", "message_type": "info", "channels": "toast, email"},
			celery.Assemble("send_message", map[string]any{"message": "hi", "message_type": "info"},
				celery.Channel("toast"), celery.Channel("email"))},
		{"set_user_env", map[string]any{"key": "k", "value": 3.0},
			celery.Assemble("set_user_env", nil, celery.Pair("k", 3.0))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Build(tt.name, tt.args)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Build(%s) =\n  %v\nwant\n  %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestBuild_ArgErrors(t *testing.T) {
	var reports int
	b := NewBuilder(ReporterFunc(func(string, string) { reports++ }))

	tests := []struct {
		name  string
		args  map[string]any
		param string
	}{
		{"home", map[string]any{}, "axis"},
		{"wait", map[string]any{"milliseconds": "soon"}, "milliseconds"},
		{"sync", map[string]any{"now": true}, "now"},
		{"move_absolute", map[string]any{"location": "1,2", "speed": 1}, "location"},
		{"move_absolute", map[string]any{"location": map[string]any{"x": 1.0}, "speed": 1}, "location"},
		{"move_relative", map[string]any{"x": 0, "y": 0, "z": 0, "speed": 100.9}, "speed"},
		{"toggle_pin", map[string]any{"pin_number": "0x10"}, "pin_number"},
		{"toggle_pin", map[string]any{"pin_number": "13.5"}, "pin_number"},
		{"toggle_pin", map[string]any{"pin_number": true}, "pin_number"},
	}
	for _, tt := range tests {
		_, err := b.Build(tt.name, tt.args)
		var argErr *ArgError
		if !errors.As(err, &argErr) || argErr.Param != tt.param {
			t.Errorf("Build(%s, %v) error = %v, want ArgError for %s", tt.name, tt.args, err, tt.param)
		}
	}
	if reports != 0 {
		t.Errorf("argument errors reported %d times", reports)
	}

	if _, err := b.Build("dance", nil); !errors.Is(err, ErrUnknownBuilder) {
		t.Errorf("unknown builder error = %v", err)
	}
}

func TestBuild_IntegersAreDecimal(t *testing.T) {
	b := NewBuilder(nil)

	cmd, err := b.Build("toggle_pin", map[string]any{"pin_number": "010"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cmd.Args["pin_number"] != 10 {
		t.Errorf("pin_number = %v, want 10", cmd.Args["pin_number"])
	}

	cmd, err = b.Build("move_relative", map[string]any{"x": 1, "y": 2, "z": 3, "speed": 80.0})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cmd.Args["speed"] != 80 {
		t.Errorf("speed = %v, want 80", cmd.Args["speed"])
	}
}

func TestBuild_DomainFailureReported(t *testing.T) {
	var reports []string
	b := NewBuilder(ReporterFunc(func(_, deviceText string) { reports = append(reports, deviceText) }))

	_, err := b.Build("calibrate", map[string]any{"axis": "q"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(reports) != 1 || reports[0] != "Invalid arg `q` for `calibrate`" {
		t.Errorf("reports = %q", reports)
	}
}

func TestPositional(t *testing.T) {
	spec, ok := LookupBuilder("send_message")
	if !ok {
		t.Fatal("send_message not registered")
	}
	got, err := spec.Positional([]any{"hi", "warn", "toast", "espeak"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"message": "hi", "message_type": "warn", "channels": []any{"toast", "espeak"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Positional = %v, want %v", got, want)
	}

	sync, _ := LookupBuilder("sync")
	if _, err := sync.Positional([]any{1}); err == nil {
		t.Error("extra positional argument accepted")
	}
}

func TestBuilders_CoverEveryName(t *testing.T) {
	specs := Builders()
	if len(specs) != len(registry) {
		t.Fatalf("Builders() = %d, want %d", len(specs), len(registry))
	}
	for i := 1; i < len(specs); i++ {
		if specs[i-1].Name >= specs[i].Name {
			t.Errorf("not sorted or duplicate: %s, %s", specs[i-1].Name, specs[i].Name)
		}
	}
}
