package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/larsen-farm/plugintools/internal/device"
	"github.com/larsen-farm/plugintools/internal/pluginconfig"
	"github.com/larsen-farm/plugintools/pkg/celery"
)

// moduleContext holds what the larsen table's functions share during one
// run.
type moduleContext struct {
	ctx    context.Context
	name   string
	dev    Device
	api    WebAPI
	config *pluginconfig.Resolver
	logger zerolog.Logger

	// fatal is the first error that aborted the script.
	fatal error
}

// registerLarsenModule creates the global "larsen" table. Every builder is
// exposed under its name, taking its arguments in declaration order.
func registerLarsenModule(L *lua.LState, m *moduleContext) {
	mod := L.NewTable()

	L.SetField(mod, "name", lua.LString(m.name))
	L.SetField(mod, "send", L.NewFunction(m.luaSend))
	L.SetField(mod, "log", L.NewFunction(m.luaLog))
	L.SetField(mod, "coordinate", L.NewFunction(luaCoordinate))
	L.SetField(mod, "state", L.NewFunction(m.luaState))
	L.SetField(mod, "position", L.NewFunction(m.luaPosition))
	L.SetField(mod, "pin", L.NewFunction(m.luaPin))
	L.SetField(mod, "config", L.NewFunction(m.luaConfig))
	L.SetField(mod, "set_config", L.NewFunction(m.luaSetConfig))
	L.SetField(mod, "api", L.NewFunction(m.luaAPI))

	for _, spec := range device.Builders() {
		L.SetField(mod, spec.Name, L.NewFunction(m.sender(spec)))
	}

	L.SetGlobal("larsen", mod)
}

// builderArgs reads positional builder arguments from the Lua stack.
func builderArgs(L *lua.LState, spec device.BuilderSpec) (map[string]any, error) {
	argv := make([]any, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		argv = append(argv, fromLua(L.Get(i)))
	}
	return spec.Positional(argv)
}

// varStrings collects the string arguments from position from to the top
// of the stack.
func varStrings(L *lua.LState, from int) []string {
	var out []string
	for i := from; i <= L.GetTop(); i++ {
		out = append(out, L.CheckString(i))
	}
	return out
}

// fail returns nil and the error message to Lua. Fatal errors abort the
// script instead.
func (m *moduleContext) fail(L *lua.LState, err error) int {
	if device.IsFatal(err) {
		if m.fatal == nil {
			m.fatal = err
		}
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))
	return 2
}

// sender returns the Lua function for a builder: build, send and return
// the command as a table.
func (m *moduleContext) sender(spec device.BuilderSpec) lua.LGFunction {
	return func(L *lua.LState) int {
		args, err := builderArgs(L, spec)
		if err != nil {
			return m.fail(L, err)
		}
		cmd, err := m.dev.Commands().Build(spec.Name, args)
		if err != nil {
			return m.fail(L, err)
		}
		return m.dispatch(L, cmd, "")
	}
}

func (m *moduleContext) dispatch(L *lua.LState, cmd celery.Command, rpcID string) int {
	res, err := m.dev.Send(m.ctx, cmd, rpcID)
	if err != nil {
		return m.fail(L, err)
	}
	L.Push(commandTable(L, res.Command))
	return 1
}

// luaSend sends a command table: larsen.send(cmd[, rpc_id])
func (m *moduleContext) luaSend(L *lua.LState) int {
	cmd, err := tableCommand(L.CheckTable(1))
	if err != nil {
		return m.fail(L, err)
	}
	return m.dispatch(L, cmd, L.OptString(2, ""))
}

// luaLog posts to the device log: larsen.log(message[, type[, channel...]])
func (m *moduleContext) luaLog(L *lua.LState) int {
	message := L.CheckString(1)
	messageType := L.OptString(2, "info")
	res, err := m.dev.Log(m.ctx, message, messageType, varStrings(L, 3)...)
	if err != nil {
		return m.fail(L, err)
	}
	L.Push(commandTable(L, res.Command))
	return 1
}

// luaCoordinate builds a coordinate node without sending it.
func luaCoordinate(L *lua.LState) int {
	cmd := celery.Coordinate(float64(L.CheckNumber(1)), float64(L.CheckNumber(2)), float64(L.CheckNumber(3)))
	L.Push(commandTable(L, cmd))
	return 1
}

func (m *moduleContext) luaState(L *lua.LState) int {
	state, err := m.dev.BotState(m.ctx)
	if err != nil {
		return m.fail(L, err)
	}
	L.Push(toLua(L, state))
	return 1
}

// luaPosition reads the current position: larsen.position([axis])
func (m *moduleContext) luaPosition(L *lua.LState) int {
	v, err := m.dev.CurrentPosition(m.ctx, L.OptString(1, "all"))
	if err != nil {
		return m.fail(L, err)
	}
	L.Push(toLua(L, v))
	return 1
}

func (m *moduleContext) luaPin(L *lua.LState) int {
	v, err := m.dev.PinValue(m.ctx, L.CheckInt(1))
	if err != nil {
		return m.fail(L, err)
	}
	L.Push(toLua(L, v))
	return 1
}

// luaConfig resolves a plugin input: larsen.config(plugin, name[, type])
func (m *moduleContext) luaConfig(L *lua.LState) int {
	if m.config == nil {
		L.RaiseError("plugin config is not available")
		return 0
	}
	t, err := pluginconfig.ParseValueType(strings.ToLower(L.OptString(3, "int")))
	if err != nil {
		L.ArgError(3, err.Error())
		return 0
	}
	v, err := m.config.GetValue(m.ctx, L.CheckString(1), L.CheckString(2), t)
	if err != nil {
		return m.fail(L, err)
	}
	L.Push(toLua(L, v))
	return 1
}

// luaSetConfig stores an input override: larsen.set_config(plugin, name, value)
func (m *moduleContext) luaSetConfig(L *lua.LState) int {
	if m.config == nil {
		L.RaiseError("plugin config is not available")
		return 0
	}
	res, err := m.config.SetValue(m.ctx, L.CheckString(1), L.CheckString(2), fromLua(L.CheckAny(3)))
	if err != nil {
		return m.fail(L, err)
	}
	L.Push(commandTable(L, res.Command))
	return 1
}

// luaAPI calls the web API: larsen.api(method, endpoint[, id[, payload]]).
// It returns the decoded body and the status code.
func (m *moduleContext) luaAPI(L *lua.LState) int {
	if m.api == nil {
		L.RaiseError("web API is not available")
		return 0
	}
	method := L.CheckString(1)
	endpoint := L.CheckString(2)
	id := ""
	if v := L.Get(3); v != lua.LNil {
		id = v.String()
	}
	var payload any
	if tbl := L.OptTable(4, nil); tbl != nil {
		payload = fromLua(tbl)
	}

	resp, err := m.api.Request(m.ctx, method, endpoint, id, payload)
	if err != nil {
		return m.fail(L, fmt.Errorf("%s %s: %w", strings.ToUpper(method), endpoint, err))
	}
	m.logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Msg("web api request")

	L.Push(toLua(L, resp.JSON))
	L.Push(lua.LNumber(resp.StatusCode))
	return 2
}
