package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// LuaInvoker runs .lua scripts in-process. The script must define a global
// function run(input, log, binder); log(msg) writes to the invocation
// logger and binder.bind(name, value) records an output binding.
type LuaInvoker struct {
	scriptPath    string
	function      string
	configuration map[string]any
}

func NewLuaInvoker(scriptPath, function string, configuration map[string]any) *LuaInvoker {
	return &LuaInvoker{
		scriptPath:    scriptPath,
		function:      function,
		configuration: configuration,
	}
}

func (l *LuaInvoker) ScriptPath() string { return l.scriptPath }

func (l *LuaInvoker) Configuration() map[string]any { return l.configuration }

func (l *LuaInvoker) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	inv = invocationDefaults(inv)

	lState := lua.NewState()
	defer lState.Close()
	if ctx != nil {
		lState.SetContext(ctx)
	}

	// Allow require("os") so scripts can read env vars.
	lState.PreloadModule("os", osModuleLoader)

	absPath, err := filepath.Abs(l.scriptPath)
	if err != nil {
		return nil, fmt.Errorf("script path: %w", err)
	}
	if err := lState.DoFile(absPath); err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}

	fn := lState.GetGlobal("run")
	if fn.Type() == lua.LTNil {
		return nil, fmt.Errorf("script must define global function run(input, log, binder)")
	}
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("run must be a function, got %s", fn.Type().String())
	}

	logger := inv.Logger.With("function", l.function)
	logFn := lState.NewFunction(func(ls *lua.LState) int {
		logger.Info(ls.CheckString(1))
		return 0
	})

	binder := lState.NewTable()
	lState.SetField(binder, "bind", lState.NewFunction(func(ls *lua.LState) int {
		name := ls.CheckString(1)
		value := ls.CheckAny(2)
		inv.Binder.Bind(name, value.String())
		return 0
	}))

	lState.Push(fn)
	lState.Push(lua.LString(inv.Input))
	lState.Push(logFn)
	lState.Push(binder)
	if err := lState.PCall(3, 1, nil); err != nil {
		return nil, fmt.Errorf("run(): %w", err)
	}

	ret := lState.Get(-1)
	lState.Pop(1)

	var output string
	switch ret.Type() {
	case lua.LTNil:
	case lua.LTString, lua.LTNumber, lua.LTBool:
		output = ret.String()
	default:
		return nil, fmt.Errorf("run() must return a string, number, boolean or nil, got %s", ret.Type().String())
	}

	return &Result{Output: output, Bindings: inv.Binder.Values()}, nil
}

// osModuleLoader provides a minimal os module: getenv and time.
func osModuleLoader(lState *lua.LState) int {
	mod := lState.NewTable()
	lState.SetField(mod, "getenv", lState.NewFunction(func(ls *lua.LState) int {
		key := ls.CheckString(1)
		ls.Push(lua.LString(os.Getenv(key)))
		return 1
	}))
	lState.SetField(mod, "time", lState.NewFunction(func(ls *lua.LState) int {
		ls.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	lState.Push(mod)
	return 1
}
