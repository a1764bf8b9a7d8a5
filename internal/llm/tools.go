package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// reflectTool adapts an ordinary Go function to Tool. The parameter schema is
// derived once from the input type when the tool is built.
type reflectTool struct {
	name        string
	description string
	params      *Schema

	fn       reflect.Value
	input    reflect.Type
	withCtx  bool
	errorOut int // index of the error result, -1 when fn returns none
	valueOut int // index of the value result, -1 when fn returns none
}

func (t *reflectTool) Name() string        { return t.name }
func (t *reflectTool) Description() string { return t.description }
func (t *reflectTool) Parameters() *Schema { return t.params }

func (t *reflectTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	in := reflect.New(t.input)
	if err := json.Unmarshal(args, in.Interface()); err != nil {
		return nil, fmt.Errorf("%s: decode arguments: %w", t.name, err)
	}
	if err := t.params.checkEnums(args); err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}

	var call []reflect.Value
	if t.withCtx {
		call = append(call, reflect.ValueOf(ctx))
	}
	out := t.fn.Call(append(call, in.Elem()))

	var (
		value any
		err   error
	)
	if t.valueOut >= 0 {
		value = out[t.valueOut].Interface()
	}
	if t.errorOut >= 0 {
		err, _ = out[t.errorOut].Interface().(error)
	}
	return value, err
}

// FuncTool wraps a Go function as a Tool. fn takes (input) or
// (context.Context, input) and returns nothing, an error, a result, or
// (result, error). The input struct's json, desc and enum tags shape the
// parameter schema; enum values are separated by "|". Arguments naming a
// value outside an enum are refused before fn runs.
//
// FuncTool panics when fn does not have one of those shapes.
func FuncTool(name, description string, fn any) Tool {
	t, err := newReflectTool(name, description, fn)
	if err != nil {
		panic("llm.FuncTool: " + err.Error())
	}
	return t
}

func newReflectTool(name, description string, fn any) (*reflectTool, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s: want a func, got %T", name, fn)
	}
	ft := v.Type()

	t := &reflectTool{name: name, description: description, fn: v, errorOut: -1, valueOut: -1}
	switch ft.NumIn() {
	case 1:
		t.input = ft.In(0)
	case 2:
		if ft.In(0) != contextType {
			return nil, fmt.Errorf("%s: first of two arguments must be context.Context", name)
		}
		t.withCtx = true
		t.input = ft.In(1)
	default:
		return nil, fmt.Errorf("%s: want (input) or (context.Context, input), got %d arguments", name, ft.NumIn())
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			t.errorOut = 0
		} else {
			t.valueOut = 0
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("%s: second result must be error", name)
		}
		t.valueOut, t.errorOut = 0, 1
	default:
		return nil, fmt.Errorf("%s: at most two results allowed, got %d", name, ft.NumOut())
	}

	t.params = schemaFor(t.input)
	return t, nil
}
