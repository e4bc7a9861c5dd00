// recover.go provides panic capture for code that runs outside a ProcessHost.

package crashline

import (
	"context"
	"fmt"
	"runtime/debug"
)

// PanicError carries a recovered panic value and the stack it was raised on.
type PanicError struct {
	Value any
	Stack string
}

// NewPanicError wraps a recovered value, capturing the current stack.
// Call it from the deferred function that recovered.
func NewPanicError(recovered any) *PanicError {
	return &PanicError{Value: recovered, Stack: string(debug.Stack())}
}

func (e *PanicError) Error() string {
	return "panic: " + formatRecovered(e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// StackTrace implements StackTracer.
func (e *PanicError) StackTrace() string {
	return e.Stack
}

// Recover captures a panic, sends it synchronously and returns the recovered value.
// Unlike ProcessHost.Guard, Recover does NOT re-panic.
//
//	func handler(ctx context.Context) {
//	    defer crashline.Recover(ctx, client)
//	    // code that might panic
//	}
func Recover(ctx context.Context, client *Client) any {
	r := recover()
	if r == nil {
		return nil
	}
	if client != nil {
		client.Send(ctx, NewPanicError(r), TagsFromContext(ctx), CustomDataFromContext(ctx))
	}
	return r
}

// formatRecovered formats a recovered panic value as a string.
func formatRecovered(recovered any) string {
	if recovered == nil {
		return "<nil>"
	}
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", recovered)
}
