package libraries

import (
	"math"

	"vortex/runtime"
)

func arg(args []runtime.Value, i int) runtime.Value {
	if i < len(args) {
		return args[i]
	}
	return runtime.NoneVal()
}

func native(env *runtime.Environment, name string, fn func(args []runtime.Value) runtime.Value) {
	env.DeclareGlobal(name, runtime.NativeVal(name, fn), true)
}

func mathError(name string) runtime.Value {
	return runtime.ErrorVal(runtime.TypeErrorKind, name+" expects numeric arguments")
}

func unary(name string, f func(float64) float64) func([]runtime.Value) runtime.Value {
	return func(args []runtime.Value) runtime.Value {
		x := arg(args, 0)
		if !x.IsNumber() {
			return mathError(name)
		}
		return runtime.NumberVal(f(x.Num))
	}
}

func binary(name string, f func(float64, float64) float64) func([]runtime.Value) runtime.Value {
	return func(args []runtime.Value) runtime.Value {
		x, y := arg(args, 0), arg(args, 1)
		if !x.IsNumber() || !y.IsNumber() {
			return mathError(name)
		}
		return runtime.NumberVal(f(x.Num, y.Num))
	}
}

// RegisterFMaths installs the extended math namespace as constant globals,
// the host-embedding convention this port uses for standard-library natives
// (see DESIGN.md: imports resolve user-authored modules, natives are
// pre-declared globals).
func RegisterFMaths(env *runtime.Environment) {
	native(env, "pow", binary("pow", math.Pow))
	native(env, "sqrt", unary("sqrt", math.Sqrt))
	native(env, "cbrt", unary("cbrt", math.Cbrt))
	native(env, "hypot", binary("hypot", math.Hypot))

	native(env, "sin", unary("sin", math.Sin))
	native(env, "cos", unary("cos", math.Cos))
	native(env, "tan", unary("tan", math.Tan))
	native(env, "asin", unary("asin", math.Asin))
	native(env, "acos", unary("acos", math.Acos))
	native(env, "atan", unary("atan", math.Atan))
	native(env, "atan2", binary("atan2", math.Atan2))

	native(env, "log", unary("log", math.Log))
	native(env, "log2", unary("log2", math.Log2))
	native(env, "log10", unary("log10", math.Log10))
	native(env, "exp", unary("exp", math.Exp))

	native(env, "floor", unary("floor", math.Floor))
	native(env, "ceil", unary("ceil", math.Ceil))
	native(env, "round", unary("round", math.Round))
	native(env, "trunc", unary("trunc", math.Trunc))
	native(env, "abs", unary("abs", math.Abs))

	native(env, "min", binary("min", math.Min))
	native(env, "max", binary("max", math.Max))

	env.DeclareGlobal("PI", runtime.NumberVal(math.Pi), true)
	env.DeclareGlobal("E", runtime.NumberVal(math.E), true)
	env.DeclareGlobal("INF", runtime.NumberVal(math.Inf(1)), true)
}
