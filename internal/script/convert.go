package script

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
	lua "github.com/yuin/gopher-lua"

	"github.com/larsen-farm/plugintools/pkg/celery"
)

// toLua converts what the device and web API hand back: decoded JSON
// documents, bot state and celery nodes. Types with no Lua form become nil.
func toLua(L *lua.LState, val any) lua.LValue {
	switch v := val.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(v)
	case bool:
		return lua.LBool(v)
	case float64, float32, int, int32, int64, json.Number:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return lua.LNil
		}
		return lua.LNumber(f)
	case map[string]any:
		tbl := L.CreateTable(0, len(v))
		for key, field := range v {
			tbl.RawSetString(key, toLua(L, field))
		}
		return tbl
	case []any:
		tbl := L.CreateTable(len(v), 0)
		for _, item := range v {
			tbl.Append(toLua(L, item))
		}
		return tbl
	case []string:
		tbl := L.CreateTable(len(v), 0)
		for _, s := range v {
			tbl.Append(lua.LString(s))
		}
		return tbl
	case celery.Command:
		return commandTable(L, v)
	case []celery.Command:
		tbl := L.CreateTable(len(v), 0)
		for _, node := range v {
			tbl.Append(commandTable(L, node))
		}
		return tbl
	}
	return lua.LNil
}

// fromLua converts a script value for a builder argument, a config override
// or a web API payload. Numbers are always float64.
func fromLua(val lua.LValue) any {
	switch v := val.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if n := sequenceLen(v); n > 0 {
			list := make([]any, n)
			for i := range list {
				list[i] = fromLua(v.RawGetInt(i + 1))
			}
			return list
		}
		doc := make(map[string]any)
		v.ForEach(func(k, field lua.LValue) {
			if key, ok := k.(lua.LString); ok {
				doc[string(key)] = fromLua(field)
			}
		})
		return doc
	}
	return nil
}

// sequenceLen is n when tbl holds exactly the keys 1..n, and 0 otherwise.
// {} is a JSON object, not an empty list.
func sequenceLen(tbl *lua.LTable) int {
	n := tbl.MaxN()
	if n == 0 {
		return 0
	}
	keys := 0
	tbl.ForEach(func(lua.LValue, lua.LValue) { keys++ })
	if keys != n {
		return 0
	}
	return n
}

// commandTable is cmd as {kind, args, body}, without body for a leaf node.
func commandTable(L *lua.LState, cmd celery.Command) *lua.LTable {
	tbl := L.CreateTable(0, 3)
	tbl.RawSetString("kind", lua.LString(cmd.Kind))
	args := cmd.Args
	if args == nil {
		args = map[string]any{}
	}
	tbl.RawSetString("args", toLua(L, args))
	if len(cmd.Body) > 0 {
		tbl.RawSetString("body", toLua(L, cmd.Body))
	}
	return tbl
}

// tableCommand reads a node back from a script. A kind-less {x, y, z}
// table is a coordinate.
func tableCommand(tbl *lua.LTable) (celery.Command, error) {
	doc, ok := fromLua(tbl).(map[string]any)
	if !ok {
		return celery.Command{}, fmt.Errorf("%w: expected a table with string keys", celery.ErrMalformed)
	}
	if _, hasKind := doc["kind"]; !hasKind {
		if x, y, z, ok := xyz(doc); ok {
			return celery.Coordinate(x, y, z), nil
		}
	}
	// body = {} arrives as an object; the wire form wants a list.
	if body, ok := doc["body"].(map[string]any); ok && len(body) == 0 {
		delete(doc, "body")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return celery.Command{}, fmt.Errorf("%w: %v", celery.ErrMalformed, err)
	}
	return celery.Parse(data)
}

func xyz(doc map[string]any) (x, y, z float64, ok bool) {
	if len(doc) != 3 {
		return 0, 0, 0, false
	}
	x, okX := doc["x"].(float64)
	y, okY := doc["y"].(float64)
	z, okZ := doc["z"].(float64)
	return x, y, z, okX && okY && okZ
}
