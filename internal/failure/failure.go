// Package failure describes an unhandled condition caught at the edge of the
// HTTP handler chain.
//
// A Failure is the single, opaque value passed from the error-catching
// middleware to the failure-processing facility and on to renderers. It is
// built from whatever was raised (an error, a runtime error, a string, or an
// arbitrary panic value) so that downstream code never branches on the
// concrete type of the original condition.
package failure

import (
	"errors"
	"fmt"
	"runtime"
)

// Type tags used when the raised value carries no better type name.
const (
	TypePanic = "panic"
	TypeError = "error"
)

// Frame is a single entry of a captured call stack.
type Frame struct {
	Function string `json:"function" xml:"function,attr"`
	File     string `json:"file"     xml:"file,attr"`
	Line     int    `json:"line"     xml:"line,attr"`
}

// Failure is the uniform description of a caught condition.
//
// Fields:
//   - Type: type tag of the raised value (e.g. "*fs.PathError", "panic").
//   - Message: human-readable description.
//   - Code: optional machine-readable code exposed by the error via Code().
//   - Runtime: true when the value is a runtime.Error (nil deref, bounds, ...).
//   - Err: the original error, when the raised value was one.
//   - Trace: stack frames from the raise site outwards.
//   - Stack: raw stack dump as captured by runtime/debug.Stack.
type Failure struct {
	Type    string
	Message string
	Code    string
	Runtime bool
	Err     error
	Trace   []Frame
	Stack   []byte
}

// coder is implemented by errors exposing an application error code.
type coder interface {
	Code() string
}

// Error implements error so a Failure can be logged or wrapped directly.
func (f Failure) Error() string {
	if f.Type == "" {
		return f.Message
	}
	return f.Type + ": " + f.Message
}

// Unwrap returns the original error, if any.
func (f Failure) Unwrap() error { return f.Err }

// FromPanic builds a Failure from a value obtained via recover().
// stack is the raw dump captured in the deferred function and may be nil.
func FromPanic(v any, stack []byte) Failure {
	var f Failure
	switch x := v.(type) {
	case Failure:
		return x
	case runtime.Error:
		f = fromError(x)
		f.Runtime = true
	case error:
		f = fromError(x)
	case string:
		f = Failure{Type: TypePanic, Message: x}
	case fmt.Stringer:
		f = Failure{Type: fmt.Sprintf("%T", x), Message: x.String()}
	case nil:
		f = Failure{Type: TypePanic, Message: "panic(nil)"}
	default:
		f = Failure{Type: fmt.Sprintf("%T", x), Message: fmt.Sprint(x)}
	}
	f.Stack = stack
	f.Trace = ParseStack(stack)
	return f
}

// FromError builds a Failure from an error surfaced without panicking,
// e.g. one attached to the request context by a handler.
func FromError(err error, stack []byte) Failure {
	if err == nil {
		return Failure{Type: TypeError, Message: "unknown error", Stack: stack, Trace: ParseStack(stack)}
	}
	var f Failure
	if errors.As(err, &f) {
		return f
	}
	f = fromError(err)
	var re runtime.Error
	f.Runtime = errors.As(err, &re)
	f.Stack = stack
	f.Trace = ParseStack(stack)
	return f
}

func fromError(err error) Failure {
	f := Failure{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
		Err:     err,
	}
	var c coder
	if errors.As(err, &c) {
		f.Code = c.Code()
	}
	return f
}
