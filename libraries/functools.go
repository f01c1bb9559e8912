package libraries

import "vortex/runtime"

// RegisterFunctools installs rename, grounded directly on the original
// functools module's rename_ native: it rebinds a function Value's display
// name without touching its closure or chunk.
func RegisterFunctools(env *runtime.Environment) {
	native(env, "rename", func(args []runtime.Value) runtime.Value {
		if len(args) != 2 {
			return runtime.ErrorVal(runtime.ArityErrorKind, "rename expects 2 argument(s)")
		}
		fnVal, nameVal := args[0], args[1]
		if !fnVal.IsFunction() {
			return runtime.ErrorVal(runtime.TypeErrorKind, "parameter 'function' must be a function")
		}
		if !nameVal.IsString() {
			return runtime.ErrorVal(runtime.TypeErrorKind, "parameter 'name' must be a string")
		}
		fnVal.Fn.Name = nameVal.Str
		return fnVal
	})
}
