package device

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/larsen-farm/plugintools/pkg/celery"
)

// Domain is a named set of allowed argument values, written as a validator
// tag.
type Domain struct {
	Name string
	Tag  string
}

// Argument domains shared by the builders.
var (
	Axis           = Domain{"axis", "oneof=x y z all"}
	MessageType    = Domain{"message type", "oneof=success busy warn error info fun debug"}
	MessageChannel = Domain{"message channel", "oneof=ticker toast email espeak"}
	Package        = Domain{"package", "oneof=larsen_os arduino_firmware plugin"}
	PinNumber      = Domain{"pin number", "min=0,max=69"}
	PinMode        = Domain{"pin mode", "oneof=0 1"}
	PinIOMode      = Domain{"pin io mode", "oneof=0 1 2"}
	ServoPin       = Domain{"servo pin", "oneof=4 5 6 11"}
	ServoAngle     = Domain{"servo angle", "min=0,max=180"}
	Speed          = Domain{"speed", "min=1,max=100"}
	GPIOPin        = Domain{"gpio pin", "min=1,max=29"}
)

// Reporter receives validation failures. consoleText is meant for a
// terminal, deviceText for the device log.
type Reporter interface {
	ReportError(consoleText, deviceText string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(consoleText, deviceText string)

func (f ReporterFunc) ReportError(consoleText, deviceText string) { f(consoleText, deviceText) }

// Validator checks builder arguments against their domains and reports each
// failure exactly once.
type Validator struct {
	validate *validator.Validate
	reporter Reporter
}

// NewValidator returns a Validator reporting to r. A nil r discards reports.
func NewValidator(r Reporter) *Validator {
	if r == nil {
		r = ReporterFunc(func(string, string) {})
	}
	return &Validator{validate: validator.New(), reporter: r}
}

// Check returns nil when value is inside d. Otherwise the failure is
// reported and a *ValidationError naming kind is returned.
func (v *Validator) Check(kind string, value any, d Domain) error {
	if !v.valid(value, d.Tag) {
		return v.Fail(kind, value)
	}
	return nil
}

// valid treats values the tag cannot be applied to (validator panics on
// those) as outside the domain.
func (v *Validator) valid(value any, tag string) (ok bool) {
	if value == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return v.validate.Var(value, tag) == nil
}

// CheckCoordinate accepts only well-formed coordinate nodes.
func (v *Validator) CheckCoordinate(value any) error {
	if !celery.IsCoordinate(value) {
		return v.Fail("coordinate", value)
	}
	return nil
}

// Fail reports value as invalid for kind and returns the matching error.
func (v *Validator) Fail(kind string, value any) error {
	shown := formatValue(value)
	v.reporter.ReportError(
		fmt.Sprintf("Invalid input `%s` in `%s`", shown, kind),
		fmt.Sprintf("Invalid arg `%s` for `%s`", shown, kind),
	)
	return &ValidationError{Kind: kind, Value: value}
}

func formatValue(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
