package config

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openmatter/openmatter/pkg/engine"
)

// StarlarkEvaluator compiles user-written Starlark scripts into engine
// guard, predicate, and builder functions. Scripts are executed once at
// compile time to bind their functions; the functions themselves run per
// dispatch or synthesis call with a timeout.
//
// Execution is sandboxed: no filesystem, no network, print suppressed.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator. A zero timeout
// defaults to 30 seconds per call.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// CompileGuard compiles a script defining `guard(fields)` into an engine
// guard function. The guard receives the variant's field values as a dict
// and must return a bool.
func (se *StarlarkEvaluator) CompileGuard(script string) (engine.GuardFunc, error) {
	fn, err := se.compileFunction(script, "guard")
	if err != nil {
		return nil, err
	}

	return func(fields map[string]interface{}) (bool, error) {
		arg, err := toStarlarkValue(mapToInterface(fields))
		if err != nil {
			return false, fmt.Errorf("failed to convert fields: %w", err)
		}
		result, err := se.call(fn, starlark.Tuple{arg})
		if err != nil {
			return false, err
		}
		b, ok := result.(starlark.Bool)
		if !ok {
			return false, fmt.Errorf("guard must return a bool, got %s", result.Type())
		}
		return bool(b), nil
	}, nil
}

// CompilePredicate compiles a script defining `accept(input)` into an
// engine synthesis predicate.
func (se *StarlarkEvaluator) CompilePredicate(script string) (engine.PredicateFunc, error) {
	fn, err := se.compileFunction(script, "accept")
	if err != nil {
		return nil, err
	}

	return func(input interface{}) (bool, error) {
		arg, err := toStarlarkValue(input)
		if err != nil {
			return false, fmt.Errorf("failed to convert input: %w", err)
		}
		result, err := se.call(fn, starlark.Tuple{arg})
		if err != nil {
			return false, err
		}
		b, ok := result.(starlark.Bool)
		if !ok {
			return false, fmt.Errorf("accept must return a bool, got %s", result.Type())
		}
		return bool(b), nil
	}, nil
}

// CompileBuilder compiles a script defining `build(input)` into an engine
// synthesis builder. The function must return a dict of field values.
func (se *StarlarkEvaluator) CompileBuilder(script string) (engine.BuildFunc, error) {
	fn, err := se.compileFunction(script, "build")
	if err != nil {
		return nil, err
	}

	return func(input interface{}) (map[string]interface{}, error) {
		arg, err := toStarlarkValue(input)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input: %w", err)
		}
		result, err := se.call(fn, starlark.Tuple{arg})
		if err != nil {
			return nil, err
		}
		goVal, err := fromStarlarkValue(result)
		if err != nil {
			return nil, fmt.Errorf("failed to convert build result: %w", err)
		}
		if goVal == nil {
			return nil, nil
		}
		fields, ok := goVal.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("build must return a dict, got %s", result.Type())
		}
		return fields, nil
	}, nil
}

// compileFunction executes the script once and binds the named function
// from its globals. Globals are frozen after execution, so the returned
// callable is safe for concurrent calls.
func (se *StarlarkEvaluator) compileFunction(script, name string) (starlark.Callable, error) {
	thread := se.newThread()

	globals, err := starlark.ExecFile(thread, name+".star", script, se.predeclared())
	if err != nil {
		return nil, fmt.Errorf("starlark compilation failed: %w", err)
	}

	val, ok := globals[name]
	if !ok {
		return nil, fmt.Errorf("script does not define %s()", name)
	}
	fn, ok := val.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s is not callable", name)
	}
	return fn, nil
}

// call invokes a compiled function with a fresh thread and the evaluator's
// timeout.
func (se *StarlarkEvaluator) call(fn starlark.Callable, args starlark.Tuple) (starlark.Value, error) {
	thread := se.newThread()

	timer := time.AfterFunc(se.timeout, func() {
		thread.Cancel("timeout")
	})
	defer timer.Stop()

	result, err := starlark.Call(thread, fn, args, nil)
	if err != nil {
		return nil, fmt.Errorf("starlark call failed: %w", err)
	}
	return result, nil
}

func (se *StarlarkEvaluator) newThread() *starlark.Thread {
	return &starlark.Thread{
		Name: "openmatter",
		Print: func(_ *starlark.Thread, msg string) {
			// Suppressed: scripts have no output channel.
		},
	}
}

// predeclared builds the sandboxed environment available to scripts.
func (se *StarlarkEvaluator) predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct":    starlarkstruct.Default,
		"range":     starlark.NewBuiltin("range", builtinRange),
		"enumerate": starlark.NewBuiltin("enumerate", builtinEnumerate),
		"zip":       starlark.NewBuiltin("zip", builtinZip),
	}
}

// mapToInterface widens a field map for the value converter.
func mapToInterface(m map[string]interface{}) interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

// Built-in Starlark functions

// builtinRange implements the range() built-in function.
func builtinRange(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var start, stop, step int64 = 0, 0, 1

	switch len(args) {
	case 1:
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "stop", &stop); err != nil {
			return nil, err
		}
	case 2:
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "start", &start, "stop", &stop); err != nil {
			return nil, err
		}
	case 3:
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "start", &start, "stop", &stop, "step", &step); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("range takes 1 to 3 arguments, got %d", len(args))
	}

	if step == 0 {
		return nil, fmt.Errorf("range step cannot be zero")
	}

	var list []starlark.Value
	if step > 0 {
		for i := start; i < stop; i += step {
			list = append(list, starlark.MakeInt64(i))
		}
	} else {
		for i := start; i > stop; i += step {
			list = append(list, starlark.MakeInt64(i))
		}
	}

	return starlark.NewList(list), nil
}

// builtinEnumerate implements the enumerate() built-in function.
func builtinEnumerate(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var start int64 = 0

	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &start); err != nil {
		return nil, err
	}

	iter := iterable.Iterate()
	defer iter.Done()

	var list []starlark.Value
	var x starlark.Value
	i := start
	for iter.Next(&x) {
		tuple := starlark.Tuple{starlark.MakeInt64(i), x}
		list = append(list, tuple)
		i++
	}

	return starlark.NewList(list), nil
}

// builtinZip implements the zip() built-in function.
func builtinZip(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return starlark.NewList(nil), nil
	}

	iters := make([]starlark.Iterator, len(args))
	for i, arg := range args {
		iterable, ok := arg.(starlark.Iterable)
		if !ok {
			return nil, fmt.Errorf("zip argument %d is not iterable", i)
		}
		iters[i] = iterable.Iterate()
		defer iters[i].Done()
	}

	var list []starlark.Value
	for {
		tuple := make(starlark.Tuple, len(iters))
		for i, iter := range iters {
			if !iter.Next(&tuple[i]) {
				return starlark.NewList(list), nil
			}
		}
		list = append(list, tuple)
	}
}
