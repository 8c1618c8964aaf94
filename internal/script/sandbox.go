package script

import (
	"strings"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"
)

// safeLibs are the only standard libraries a plugin script gets. os, io,
// debug and package stay closed.
var safeLibs = map[string]lua.LGFunction{
	lua.BaseLibName:   lua.OpenBase,
	lua.TabLibName:    lua.OpenTable,
	lua.StringLibName: lua.OpenString,
	lua.MathLibName:   lua.OpenMath,
}

// chunkLoaders would let a script read or compile code from outside its
// own source.
var chunkLoaders = []string{"dofile", "loadfile", "load", "loadstring"}

// NewSandboxedState returns an LState holding safeLibs only. print is
// rerouted to logger under the script's name.
func NewSandboxedState(name string, logger zerolog.Logger) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for libName, open := range safeLibs {
		L.Push(L.NewFunction(open))
		L.Push(lua.LString(libName))
		L.Call(1, 0)
	}
	for _, g := range chunkLoaders {
		L.SetGlobal(g, lua.LNil)
	}

	L.SetGlobal("print", L.NewFunction(luaPrint(logger.With().Str("script", name).Logger())))
	return L
}

// luaPrint logs its arguments tab-separated at info level. It never reaches
// the device log; scripts use larsen.log for that.
func luaPrint(logger zerolog.Logger) lua.LGFunction {
	return func(L *lua.LState) int {
		var b strings.Builder
		for i := 1; i <= L.GetTop(); i++ {
			if i > 1 {
				b.WriteByte('\t')
			}
			b.WriteString(L.ToStringMeta(L.Get(i)).String())
		}
		logger.Info().Msg(b.String())
		return 0
	}
}
