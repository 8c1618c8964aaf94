package script

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/larsen-farm/plugintools/pkg/celery"
)

// evalTable runs code as a Lua expression and returns the resulting table.
func evalTable(t *testing.T, L *lua.LState, code string) *lua.LTable {
	t.Helper()
	if err := L.DoString("result = " + code); err != nil {
		t.Fatal(err)
	}
	tbl, ok := L.GetGlobal("result").(*lua.LTable)
	if !ok {
		t.Fatalf("%s is not a table", code)
	}
	return tbl
}

func TestToLua_BotState(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	var state map[string]any
	doc := `{
		"location_data": {"position": {"x": 120.5, "y": 40, "z": -10}},
		"pins": {"13": {"mode": 0, "value": 1}},
		"informational_settings": {"busy": false, "controller_version": "15.4.2"},
		"process_info": {"plugins": {"Weeder": {"config": [{"name": "depth", "value": 3}]}}}
	}`
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		t.Fatal(err)
	}
	L.SetGlobal("state", toLua(L, state))

	checks := []string{
		`state.location_data.position.x == 120.5`,
		`state.location_data.position.z == -10`,
		`state.pins["13"].value == 1`,
		`state.informational_settings.busy == false`,
		`state.informational_settings.controller_version == "15.4.2"`,
		`state.process_info.plugins.Weeder.config[1].name == "depth"`,
		`#state.process_info.plugins.Weeder.config == 1`,
	}
	for _, check := range checks {
		if err := L.DoString("assert(" + check + ")"); err != nil {
			t.Errorf("%s: %v", check, err)
		}
	}
}

func TestToLua_Numbers(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tests := []struct {
		name string
		in   any
		want lua.LValue
	}{
		{"nil", nil, lua.LNil},
		{"pin value", 1.0, lua.LNumber(1)},
		{"speed", 100, lua.LNumber(100)},
		{"sequence id", int64(42), lua.LNumber(42)},
		{"api id", json.Number("7"), lua.LNumber(7)},
		{"bad number", json.Number("seven"), lua.LNil},
		{"label", "weeder", lua.LString("weeder")},
		{"busy", true, lua.LTrue},
		{"no lua form", struct{}{}, lua.LNil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toLua(L, tt.in); got != tt.want {
				t.Errorf("toLua(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromLua_APIPayload(t *testing.T) {
	L := NewSandboxedState("test", testLogger())
	defer L.Close()

	got := fromLua(evalTable(t, L, `{
		name = "mint", radius = 25, pointer_type = "Plant",
		meta = {color = "green"}, tags = {"herb", "perennial"}, extra = {}
	}`))
	want := map[string]any{
		"name":         "mint",
		"radius":       float64(25),
		"pointer_type": "Plant",
		"meta":         map[string]any{"color": "green"},
		"tags":         []any{"herb", "perennial"},
		"extra":        map[string]any{},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("payload:\n  got:  %#v\n  want: %#v", got, want)
	}

	// A sparse list is an object keyed by nothing usable.
	if doc, ok := fromLua(evalTable(t, L, `{[1] = "a", [3] = "c"}`)).(map[string]any); !ok || len(doc) != 0 {
		t.Errorf("sparse table = %#v, want empty object", doc)
	}
}

func TestCommandTable_RoundTrip(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tests := []struct {
		name string
		cmd  celery.Command
	}{
		{"plugin inputs", celery.Assemble("execute_script", map[string]any{"label": "weeder"},
			celery.Pair("weeder_depth", float64(3)))},
		{"log channels", celery.Assemble("send_message",
			map[string]any{"message": "watered", "message_type": "success"},
			celery.Channel("toast"), celery.Channel("email"))},
		{"move", celery.Assemble("move_absolute", map[string]any{
			"location": celery.Coordinate(10, 20, -5),
			"offset":   celery.Coordinate(0, 0, 0),
			"speed":    float64(100),
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tableCommand(commandTable(L, tt.cmd))
			if err != nil {
				t.Fatalf("tableCommand: %v", err)
			}
			want, _ := celery.Parse(mustJSON(t, tt.cmd))
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip:\n  got:  %+v\n  want: %+v", got, want)
			}
		})
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestCommandTable_LeafHasArgs(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	L.SetGlobal("cmd", commandTable(L, celery.Command{Kind: "take_photo"}))

	if err := L.DoString(`assert(type(cmd.args) == "table" and cmd.body == nil)`); err != nil {
		t.Error(err)
	}
}

func TestTableCommand(t *testing.T) {
	L := NewSandboxedState("test", testLogger())
	defer L.Close()

	coord, err := tableCommand(evalTable(t, L, `{x = 1, y = 2, z = 3}`))
	if err != nil || !reflect.DeepEqual(coord, celery.Coordinate(1, 2, 3)) {
		t.Errorf("xyz table = %+v, %v", coord, err)
	}

	bare, err := tableCommand(evalTable(t, L, `{kind = "sync", args = {}, body = {}}`))
	if err != nil || bare.Kind != "sync" || bare.Body != nil {
		t.Errorf("bare command = %+v, %v", bare, err)
	}

	for _, code := range []string{
		`{1, 2, 3}`,
		`{kind = "sync"}`,
		`{kind = "sync", args = {}, body = "x"}`,
		`{x = 1, y = 2}`,
	} {
		if _, err := tableCommand(evalTable(t, L, code)); !errors.Is(err, celery.ErrMalformed) {
			t.Errorf("tableCommand(%s) error = %v, want ErrMalformed", code, err)
		}
	}
}
