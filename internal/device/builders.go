package device

import (
	"sort"
	"strings"

	"github.com/larsen-farm/plugintools/pkg/celery"
)

// Builder assembles celery-script commands after checking their arguments.
// Each method returns either a well-formed Command or the validation error
// of the first argument that failed; nothing is sent.
type Builder struct {
	v *Validator
}

// NewBuilder returns a Builder whose failures go to r.
func NewBuilder(r Reporter) *Builder {
	return &Builder{v: NewValidator(r)}
}

// Validator exposes the Builder's argument checker.
func (b *Builder) Validator() *Validator { return b.v }

// SendMessage posts message to the device log. messageType must be one of
// the MessageType domain; each channel one of MessageChannel.
func (b *Builder) SendMessage(message, messageType string, channels ...string) (celery.Command, error) {
	const kind = "send_message"
	if err := b.v.Check(kind, messageType, MessageType); err != nil {
		return celery.Command{}, err
	}
	body := make([]celery.Command, 0, len(channels))
	for _, ch := range channels {
		if err := b.v.Check(kind, ch, MessageChannel); err != nil {
			return celery.Command{}, err
		}
		body = append(body, celery.Channel(ch))
	}
	return celery.Assemble(kind, map[string]any{"message": message, "message_type": messageType}, body...), nil
}

func (b *Builder) axisCommand(kind, axis string) (celery.Command, error) {
	if err := b.v.Check(kind, axis, Axis); err != nil {
		return celery.Command{}, err
	}
	return celery.Assemble(kind, map[string]any{"axis": axis}), nil
}

func (b *Builder) packageCommand(kind, pkg string) (celery.Command, error) {
	if err := b.v.Check(kind, pkg, Package); err != nil {
		return celery.Command{}, err
	}
	return celery.Assemble(kind, map[string]any{"package": pkg}), nil
}

func (b *Builder) pinCommand(kind string, pin int) (celery.Command, error) {
	if err := b.v.Check(kind, pin, PinNumber); err != nil {
		return celery.Command{}, err
	}
	return celery.Assemble(kind, map[string]any{"pin_number": pin}), nil
}

func bare(kind string) (celery.Command, error) {
	return celery.Assemble(kind, nil), nil
}

// Calibrate measures the length of axis (x, y, z or all).
func (b *Builder) Calibrate(axis string) (celery.Command, error) {
	return b.axisCommand("calibrate", axis)
}

// CheckUpdates checks for updates of pkg.
func (b *Builder) CheckUpdates(pkg string) (celery.Command, error) {
	return b.packageCommand("check_updates", pkg)
}

func (b *Builder) EmergencyLock() (celery.Command, error)   { return bare("emergency_lock") }
func (b *Builder) EmergencyUnlock() (celery.Command, error) { return bare("emergency_unlock") }

// Execute runs a web app sequence. The sequence must already be synced to
// the device.
func (b *Builder) Execute(sequenceID int) (celery.Command, error) {
	return celery.Assemble("execute", map[string]any{"sequence_id": sequenceID}), nil
}

// ExecuteScript runs an installed plugin. Input names are namespaced with
// the plugin identifier unless they already carry it, and emitted in name
// order.
func (b *Builder) ExecuteScript(label string, inputs map[string]any) (celery.Command, error) {
	const kind = "execute_script"
	args := map[string]any{"label": label}
	if len(inputs) == 0 {
		return celery.Assemble(kind, args), nil
	}
	plugin := ScriptPrefix(label)
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	body := make([]celery.Command, 0, len(names))
	for _, name := range names {
		input := name
		if !strings.HasPrefix(name, plugin) {
			input = plugin + "_" + name
		}
		body = append(body, celery.Pair(input, inputs[name]))
	}
	return celery.Assemble(kind, args, body...), nil
}

// RunPlugin is ExecuteScript.
func (b *Builder) RunPlugin(label string, inputs map[string]any) (celery.Command, error) {
	return b.ExecuteScript(label, inputs)
}

func (b *Builder) FactoryReset(pkg string) (celery.Command, error) {
	return b.packageCommand("factory_reset", pkg)
}

func (b *Builder) FindHome(axis string) (celery.Command, error) {
	return b.axisCommand("find_home", axis)
}

func (b *Builder) Home(axis string) (celery.Command, error) {
	return b.axisCommand("home", axis)
}

// InstallPlugin installs the plugin whose manifest lives at url.
func (b *Builder) InstallPlugin(url string) (celery.Command, error) {
	return celery.Assemble("install_plugin", map[string]any{"url": url}), nil
}

func (b *Builder) InstallFirstPartyPlugin() (celery.Command, error) {
	return bare("install_first_party_plugin")
}

// MoveAbsolute moves to location plus offset, both coordinate nodes, at
// speed percent of maximum.
func (b *Builder) MoveAbsolute(location, offset celery.Command, speed int) (celery.Command, error) {
	const kind = "move_absolute"
	if err := b.v.CheckCoordinate(location); err != nil {
		return celery.Command{}, err
	}
	if err := b.v.CheckCoordinate(offset); err != nil {
		return celery.Command{}, err
	}
	if err := b.v.Check(kind, speed, Speed); err != nil {
		return celery.Command{}, err
	}
	return celery.Assemble(kind, map[string]any{
		"location": location,
		"offset":   offset,
		"speed":    speed,
	}), nil
}

// MoveRelative moves by the given distances at speed percent of maximum.
func (b *Builder) MoveRelative(x, y, z float64, speed int) (celery.Command, error) {
	const kind = "move_relative"
	if err := b.v.Check(kind, speed, Speed); err != nil {
		return celery.Command{}, err
	}
	return celery.Assemble(kind, map[string]any{"x": x, "y": y, "z": z, "speed": speed}), nil
}

func (b *Builder) PowerOff() (celery.Command, error) { return bare("power_off") }

// ReadPin reads pin (0-69) into label. mode is 0 for digital, 1 for analog.
func (b *Builder) ReadPin(pin int, label string, mode int) (celery.Command, error) {
	const kind = "read_pin"
	if err := b.v.Check(kind, pin, PinNumber); err != nil {
		return celery.Command{}, err
	}
	if err := b.v.Check(kind, mode, PinMode); err != nil {
		return celery.Command{}, err
	}
	return celery.Assemble(kind, map[string]any{"pin_number": pin, "label": label, "pin_mode": mode}), nil
}

func (b *Builder) ReadStatus() (celery.Command, error) { return bare("read_status") }
func (b *Builder) Reboot() (celery.Command, error)     { return bare("reboot") }

// RegisterGPIO binds a Raspberry Pi BCM pin (1-29) to a sequence.
//
// Deprecated: create a pin_bindings record through the web API.
func (b *Builder) RegisterGPIO(sequenceID, pin int) (celery.Command, error) {
	const kind = "register_gpio"
	if err := b.v.Check(kind, pin, GPIOPin); err != nil {
		return celery.Command{}, err
	}
	return celery.Assemble(kind, map[string]any{"sequence_id": sequenceID, "pin_number": pin}), nil
}

// RemovePlugin uninstalls the named plugin.
func (b *Builder) RemovePlugin(pkg string) (celery.Command, error) {
	return celery.Assemble("remove_plugin", map[string]any{"package": pkg}), nil
}

// SetPinIOMode sets pin to input (0), output (1) or input pullup (2).
func (b *Builder) SetPinIOMode(ioMode, pin int) (celery.Command, error) {
	const kind = "set_pin_io_mode"
	if err := b.v.Check(kind, ioMode, PinIOMode); err != nil {
		return celery.Command{}, err
	}
	if err := b.v.Check(kind, pin, PinNumber); err != nil {
		return celery.Command{}, err
	}
	return celery.Assemble(kind, map[string]any{"pin_io_mode": ioMode, "pin_number": pin}), nil
}

// SetServoAngle drives a servo pin (4, 5, 6 or 11) to angle (0-180).
func (b *Builder) SetServoAngle(pin, angle int) (celery.Command, error) {
	const kind = "set_servo_angle"
	if err := b.v.Check(kind, pin, ServoPin); err != nil {
		return celery.Command{}, err
	}
	if err := b.v.Check(kind, angle, ServoAngle); err != nil {
		return celery.Command{}, err
	}
	return celery.Assemble(kind, map[string]any{"pin_number": pin, "pin_value": angle}), nil
}

// SetUserEnv stores key=value in the device's user environment.
func (b *Builder) SetUserEnv(key string, value any) (celery.Command, error) {
	return celery.Assemble("set_user_env", nil, celery.Pair(key, value)), nil
}

func (b *Builder) Sync() (celery.Command, error)      { return bare("sync") }
func (b *Builder) TakePhoto() (celery.Command, error) { return bare("take_photo") }

func (b *Builder) TogglePin(pin int) (celery.Command, error) {
	return b.pinCommand("toggle_pin", pin)
}

// UnregisterGPIO removes a pin binding.
//
// Deprecated: delete the pin_bindings record through the web API.
func (b *Builder) UnregisterGPIO(pin int) (celery.Command, error) {
	return b.pinCommand("unregister_gpio", pin)
}

func (b *Builder) UpdatePlugin(pkg string) (celery.Command, error) {
	return celery.Assemble("update_plugin", map[string]any{"package": pkg}), nil
}

func (b *Builder) Wait(milliseconds int) (celery.Command, error) {
	return celery.Assemble("wait", map[string]any{"milliseconds": milliseconds}), nil
}

// WritePin writes value to pin (0-69). mode is 0 for digital, 1 for analog.
func (b *Builder) WritePin(pin, value, mode int) (celery.Command, error) {
	const kind = "write_pin"
	if err := b.v.Check(kind, pin, PinNumber); err != nil {
		return celery.Command{}, err
	}
	if err := b.v.Check(kind, mode, PinMode); err != nil {
		return celery.Command{}, err
	}
	return celery.Assemble(kind, map[string]any{"pin_number": pin, "pin_value": value, "pin_mode": mode}), nil
}

func (b *Builder) Zero(axis string) (celery.Command, error) {
	return b.axisCommand("zero", axis)
}
