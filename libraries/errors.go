package libraries

import "vortex/runtime"

// RegisterErrors installs raise and is_error. raise returns an Error Value
// rather than panicking in Go: the VM's call path (vm.go) treats any
// Error-typed return from a native as a raised exception and unwinds to the
// nearest try/catch, exactly as it does for a VM opcode error.
func RegisterErrors(env *runtime.Environment) {
	native(env, "raise", func(args []runtime.Value) runtime.Value {
		msg := arg(args, 0)
		if msg.IsError() {
			return msg
		}
		if msg.IsString() {
			return runtime.ErrorVal(runtime.RuntimeErrorKind, msg.Str)
		}
		return runtime.ErrorVal(runtime.RuntimeErrorKind, runtime.Pretty(msg))
	})
	native(env, "is_error", func(args []runtime.Value) runtime.Value {
		return runtime.BooleanVal(arg(args, 0).IsError())
	})
	native(env, "error_message", func(args []runtime.Value) runtime.Value {
		e := arg(args, 0)
		if !e.IsError() {
			return runtime.StringVal("")
		}
		return runtime.StringVal(e.Err.Message)
	})
}
