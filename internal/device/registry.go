package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/larsen-farm/plugintools/pkg/celery"
)

// ErrUnknownBuilder is returned by Build for a name with no builder.
var ErrUnknownBuilder = errors.New("unknown builder")

// ParamType is the Go type a named builder argument is coerced to.
type ParamType int

const (
	ParamString ParamType = iota
	ParamInt
	ParamFloat
	// ParamCoordinate accepts a coordinate node, an {x, y, z} object or an
	// "x,y,z" string.
	ParamCoordinate
	ParamObject
	// ParamStrings accepts a list or a comma separated string.
	ParamStrings
	ParamAny
)

func (t ParamType) String() string {
	switch t {
	case ParamString:
		return "string"
	case ParamInt:
		return "int"
	case ParamFloat:
		return "float"
	case ParamCoordinate:
		return "coordinate"
	case ParamObject:
		return "object"
	case ParamStrings:
		return "strings"
	case ParamAny:
		return "any"
	}
	return fmt.Sprintf("ParamType(%d)", int(t))
}

// Param is one named builder argument. Optional params without a Default
// are passed as their zero value.
type Param struct {
	Name     string
	Type     ParamType
	Optional bool
	Default  any
	Help     string
}

// BuilderSpec describes a builder callable by name.
type BuilderSpec struct {
	Name   string
	Help   string
	Params []Param
	build  func(b *Builder, v values) (celery.Command, error)
}

// ArgError is a named argument that is missing, unexpected or of the wrong
// type. Unlike ValidationError it is not reported.
type ArgError struct {
	Builder string
	Param   string
	Err     error
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("%s: argument %s: %v", e.Builder, e.Param, e.Err)
}

func (e *ArgError) Unwrap() error { return e.Err }

var (
	errMissing    = errors.New("required")
	errUnexpected = errors.New("unexpected")
)

// values holds decoded arguments; every accessor is safe after decode.
type values map[string]any

func (v values) str(k string) string            { s, _ := v[k].(string); return s }
func (v values) integer(k string) int           { n, _ := v[k].(int); return n }
func (v values) number(k string) float64        { f, _ := v[k].(float64); return f }
func (v values) coord(k string) celery.Command  { c, _ := v[k].(celery.Command); return c }
func (v values) object(k string) map[string]any { m, _ := v[k].(map[string]any); return m }
func (v values) list(k string) []string         { s, _ := v[k].([]string); return s }

var (
	axisParam    = []Param{{Name: "axis", Type: ParamString, Help: "x, y, z or all"}}
	packageParam = []Param{{Name: "package", Type: ParamString, Help: "larsen_os, arduino_firmware or plugin"}}
	pinParam     = []Param{{Name: "pin_number", Type: ParamInt}}
	inputsParams = []Param{
		{Name: "label", Type: ParamString, Help: "plugin name"},
		{Name: "inputs", Type: ParamObject, Optional: true, Help: "plugin inputs by name"},
	}
)

var registry = []BuilderSpec{
	{Name: "send_message", Help: "Post a message to the device log", Params: []Param{
		{Name: "message", Type: ParamString},
		{Name: "message_type", Type: ParamString, Help: "success, busy, warn, error, info, fun or debug"},
		{Name: "channels", Type: ParamStrings, Optional: true, Help: "ticker, toast, email or espeak"},
	}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.SendMessage(v.str("message"), v.str("message_type"), v.list("channels")...)
	}},
	{Name: "calibrate", Help: "Calibrate an axis", Params: axisParam, build: func(b *Builder, v values) (celery.Command, error) {
		return b.Calibrate(v.str("axis"))
	}},
	{Name: "check_updates", Help: "Check for package updates", Params: packageParam, build: func(b *Builder, v values) (celery.Command, error) {
		return b.CheckUpdates(v.str("package"))
	}},
	{Name: "emergency_lock", Help: "Stop all motion and lock the device", build: func(b *Builder, _ values) (celery.Command, error) {
		return b.EmergencyLock()
	}},
	{Name: "emergency_unlock", Help: "Release an emergency lock", build: func(b *Builder, _ values) (celery.Command, error) {
		return b.EmergencyUnlock()
	}},
	{Name: "execute", Help: "Run a synced sequence", Params: []Param{{Name: "sequence_id", Type: ParamInt}}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.Execute(v.integer("sequence_id"))
	}},
	{Name: "execute_script", Help: "Run an installed plugin", Params: inputsParams, build: func(b *Builder, v values) (celery.Command, error) {
		return b.ExecuteScript(v.str("label"), v.object("inputs"))
	}},
	{Name: "run_plugin", Help: "Run an installed plugin", Params: inputsParams, build: func(b *Builder, v values) (celery.Command, error) {
		return b.RunPlugin(v.str("label"), v.object("inputs"))
	}},
	{Name: "factory_reset", Help: "Reset a package to factory settings", Params: packageParam, build: func(b *Builder, v values) (celery.Command, error) {
		return b.FactoryReset(v.str("package"))
	}},
	{Name: "find_home", Help: "Find the home position of an axis", Params: axisParam, build: func(b *Builder, v values) (celery.Command, error) {
		return b.FindHome(v.str("axis"))
	}},
	{Name: "home", Help: "Move an axis to home", Params: axisParam, build: func(b *Builder, v values) (celery.Command, error) {
		return b.Home(v.str("axis"))
	}},
	{Name: "install_plugin", Help: "Install a plugin from a manifest URL", Params: []Param{{Name: "url", Type: ParamString}}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.InstallPlugin(v.str("url"))
	}},
	{Name: "install_first_party_plugin", Help: "Install the first-party plugins", build: func(b *Builder, _ values) (celery.Command, error) {
		return b.InstallFirstPartyPlugin()
	}},
	{Name: "move_absolute", Help: "Move to a location plus offset", Params: []Param{
		{Name: "location", Type: ParamCoordinate},
		{Name: "speed", Type: ParamInt, Help: "1-100 percent of maximum"},
		{Name: "offset", Type: ParamCoordinate, Optional: true, Default: celery.Coordinate(0, 0, 0)},
	}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.MoveAbsolute(v.coord("location"), v.coord("offset"), v.integer("speed"))
	}},
	{Name: "move_relative", Help: "Move by a distance", Params: []Param{
		{Name: "x", Type: ParamFloat},
		{Name: "y", Type: ParamFloat},
		{Name: "z", Type: ParamFloat},
		{Name: "speed", Type: ParamInt, Help: "1-100 percent of maximum"},
	}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.MoveRelative(v.number("x"), v.number("y"), v.number("z"), v.integer("speed"))
	}},
	{Name: "power_off", Help: "Power the device off", build: func(b *Builder, _ values) (celery.Command, error) {
		return b.PowerOff()
	}},
	{Name: "read_pin", Help: "Read a pin into a label", Params: []Param{
		{Name: "pin_number", Type: ParamInt},
		{Name: "label", Type: ParamString},
		{Name: "pin_mode", Type: ParamInt, Help: "0 digital, 1 analog"},
	}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.ReadPin(v.integer("pin_number"), v.str("label"), v.integer("pin_mode"))
	}},
	{Name: "read_status", Help: "Refresh the device state", build: func(b *Builder, _ values) (celery.Command, error) {
		return b.ReadStatus()
	}},
	{Name: "reboot", Help: "Reboot the device", build: func(b *Builder, _ values) (celery.Command, error) {
		return b.Reboot()
	}},
	{Name: "register_gpio", Help: "Bind a GPIO pin to a sequence (deprecated)", Params: []Param{
		{Name: "sequence_id", Type: ParamInt},
		{Name: "pin_number", Type: ParamInt},
	}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.RegisterGPIO(v.integer("sequence_id"), v.integer("pin_number"))
	}},
	{Name: "remove_plugin", Help: "Uninstall a plugin", Params: []Param{{Name: "package", Type: ParamString}}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.RemovePlugin(v.str("package"))
	}},
	{Name: "set_pin_io_mode", Help: "Set a pin to input, output or input pullup", Params: []Param{
		{Name: "pin_io_mode", Type: ParamInt, Help: "0 input, 1 output, 2 input pullup"},
		{Name: "pin_number", Type: ParamInt},
	}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.SetPinIOMode(v.integer("pin_io_mode"), v.integer("pin_number"))
	}},
	{Name: "set_servo_angle", Help: "Drive a servo to an angle", Params: []Param{
		{Name: "pin_number", Type: ParamInt, Help: "4, 5, 6 or 11"},
		{Name: "pin_value", Type: ParamInt, Help: "0-180 degrees"},
	}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.SetServoAngle(v.integer("pin_number"), v.integer("pin_value"))
	}},
	{Name: "set_user_env", Help: "Set a device user environment variable", Params: []Param{
		{Name: "key", Type: ParamString},
		{Name: "value", Type: ParamAny},
	}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.SetUserEnv(v.str("key"), v["value"])
	}},
	{Name: "sync", Help: "Sync with the web app", build: func(b *Builder, _ values) (celery.Command, error) {
		return b.Sync()
	}},
	{Name: "take_photo", Help: "Take a photo", build: func(b *Builder, _ values) (celery.Command, error) {
		return b.TakePhoto()
	}},
	{Name: "toggle_pin", Help: "Toggle a digital pin", Params: pinParam, build: func(b *Builder, v values) (celery.Command, error) {
		return b.TogglePin(v.integer("pin_number"))
	}},
	{Name: "unregister_gpio", Help: "Remove a GPIO pin binding (deprecated)", Params: pinParam, build: func(b *Builder, v values) (celery.Command, error) {
		return b.UnregisterGPIO(v.integer("pin_number"))
	}},
	{Name: "update_plugin", Help: "Update a plugin", Params: []Param{{Name: "package", Type: ParamString}}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.UpdatePlugin(v.str("package"))
	}},
	{Name: "wait", Help: "Pause", Params: []Param{{Name: "milliseconds", Type: ParamInt}}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.Wait(v.integer("milliseconds"))
	}},
	{Name: "write_pin", Help: "Write a value to a pin", Params: []Param{
		{Name: "pin_number", Type: ParamInt},
		{Name: "pin_value", Type: ParamInt},
		{Name: "pin_mode", Type: ParamInt, Help: "0 digital, 1 analog"},
	}, build: func(b *Builder, v values) (celery.Command, error) {
		return b.WritePin(v.integer("pin_number"), v.integer("pin_value"), v.integer("pin_mode"))
	}},
	{Name: "zero", Help: "Set the current position of an axis as zero", Params: axisParam, build: func(b *Builder, v values) (celery.Command, error) {
		return b.Zero(v.str("axis"))
	}},
}

var byName = func() map[string]*BuilderSpec {
	m := make(map[string]*BuilderSpec, len(registry))
	for i := range registry {
		m[registry[i].Name] = &registry[i]
	}
	return m
}()

// Builders lists every named builder in name order.
func Builders() []BuilderSpec {
	out := make([]BuilderSpec, len(registry))
	copy(out, registry)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupBuilder returns the builder called name.
func LookupBuilder(name string) (BuilderSpec, bool) {
	spec, ok := byName[name]
	if !ok {
		return BuilderSpec{}, false
	}
	return *spec, true
}

// Build runs the builder called name with named arguments. Arguments are
// coerced to their parameter types before the builder sees them, so only
// domain failures are reported.
func (b *Builder) Build(name string, args map[string]any) (celery.Command, error) {
	spec, ok := byName[name]
	if !ok {
		return celery.Command{}, fmt.Errorf("%w %q", ErrUnknownBuilder, name)
	}
	v, err := spec.decode(args)
	if err != nil {
		return celery.Command{}, err
	}
	return spec.build(b, v)
}

// Positional maps positional arguments onto s's params in order. Extra
// arguments are collected by a trailing ParamStrings param.
func (s BuilderSpec) Positional(argv []any) (map[string]any, error) {
	out := make(map[string]any, len(argv))
	for i, a := range argv {
		if i >= len(s.Params) {
			if len(s.Params) == 0 || s.Params[len(s.Params)-1].Type != ParamStrings {
				return nil, &ArgError{Builder: s.Name, Param: fmt.Sprintf("#%d", i+1), Err: errUnexpected}
			}
			last := s.Params[len(s.Params)-1].Name
			rest, _ := out[last].([]any)
			out[last] = append(rest, a)
			continue
		}
		p := s.Params[i]
		if p.Type == ParamStrings {
			out[p.Name] = []any{a}
			continue
		}
		out[p.Name] = a
	}
	return out, nil
}

func (s *BuilderSpec) decode(args map[string]any) (values, error) {
	v := make(values, len(s.Params))
	known := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		known[p.Name] = true
		raw, ok := args[p.Name]
		if !ok || raw == nil {
			if !p.Optional {
				return nil, &ArgError{Builder: s.Name, Param: p.Name, Err: errMissing}
			}
			if p.Default != nil {
				v[p.Name] = p.Default
			}
			continue
		}
		out, err := coerce(raw, p.Type)
		if err != nil {
			return nil, &ArgError{Builder: s.Name, Param: p.Name, Err: err}
		}
		v[p.Name] = out
	}
	for name := range args {
		if !known[name] {
			return nil, &ArgError{Builder: s.Name, Param: name, Err: errUnexpected}
		}
	}
	return v, nil
}

func coerce(raw any, t ParamType) (any, error) {
	switch t {
	case ParamString:
		return cast.ToStringE(raw)
	case ParamInt:
		return toInt(raw)
	case ParamFloat:
		return cast.ToFloat64E(raw)
	case ParamCoordinate:
		return toCoordinate(raw)
	case ParamObject:
		return cast.ToStringMapE(raw)
	case ParamStrings:
		if s, ok := raw.(string); ok {
			return splitList(s), nil
		}
		return cast.ToStringSliceE(raw)
	case ParamAny:
		return raw, nil
	}
	return nil, fmt.Errorf("unsupported parameter type %s", t)
}

// toInt accepts decimal strings and whole numbers only. cast's base
// detection would read "010" as 8 and truncate 100.9 to 100.
func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 0)
		if err != nil {
			return 0, fmt.Errorf("%q is not a decimal integer", v)
		}
		return int(n), nil
	case float64:
		return wholeNumber(v)
	case float32:
		return wholeNumber(float64(v))
	case bool:
		return 0, fmt.Errorf("%v is not an integer", v)
	}
	return cast.ToIntE(raw)
}

func wholeNumber(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a whole number", f)
	}
	return int(f), nil
}

func toCoordinate(raw any) (celery.Command, error) {
	switch c := raw.(type) {
	case celery.Command:
		return c, nil
	case string:
		parts := splitList(c)
		if len(parts) != 3 {
			return celery.Command{}, fmt.Errorf("want x,y,z, got %q", c)
		}
		var xyz [3]float64
		for i, p := range parts {
			f, err := cast.ToFloat64E(p)
			if err != nil {
				return celery.Command{}, err
			}
			xyz[i] = f
		}
		return celery.Coordinate(xyz[0], xyz[1], xyz[2]), nil
	}

	m, err := cast.ToStringMapE(raw)
	if err != nil {
		return celery.Command{}, err
	}
	if _, hasKind := m["kind"]; hasKind {
		data, err := json.Marshal(m)
		if err != nil {
			return celery.Command{}, err
		}
		return celery.Parse(data)
	}
	var xyz [3]float64
	for i, axis := range []string{"x", "y", "z"} {
		f, err := cast.ToFloat64E(m[axis])
		if m[axis] == nil || err != nil {
			return celery.Command{}, fmt.Errorf("coordinate %s: want a number, got %v", axis, m[axis])
		}
		xyz[i] = f
	}
	return celery.Coordinate(xyz[0], xyz[1], xyz[2]), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
