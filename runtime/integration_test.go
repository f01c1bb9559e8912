package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vortex/libraries"
	"vortex/parser"
	"vortex/runtime"
)

// run compiles and executes source against a fresh VM, with a "capture"
// native installed that records every value passed to it, letting tests
// assert on program behavior without needing the CLI's I/O layer.
func run(t *testing.T, source string) (runtime.Value, []runtime.Value, *runtime.Error) {
	t.Helper()
	prog := parser.ParseProgram(source)
	fn := runtime.NewCompiler("").Compile(prog)

	vm := runtime.NewVM(nil)
	libraries.RegisterErrors(vm.Globals)
	var captured []runtime.Value
	vm.Globals.DeclareGlobal("capture", runtime.NativeVal("capture", func(args []runtime.Value) runtime.Value {
		if len(args) > 0 {
			captured = append(captured, args[0])
		}
		return runtime.NoneVal()
	}), true)

	result, err := vm.Run(fn)
	return result, captured, err
}

func TestRun_ArithmeticPrecedence(t *testing.T) {
	_, captured, err := run(t, `capture(1 + 2 * 3)`)
	require.Nil(t, err)
	require.Len(t, captured, 1)
	assert.Equal(t, float64(7), captured[0].Num)
}

func TestRun_IfElseChain(t *testing.T) {
	_, captured, err := run(t, `
	let x = 5
	if (x > 10) {
		capture("big")
	} else if (x > 2) {
		capture("medium")
	} else {
		capture("small")
	}
	`)
	require.Nil(t, err)
	require.Len(t, captured, 1)
	assert.Equal(t, "medium", captured[0].Str)
}

func TestRun_WhileLoopWithBreakAndContinue(t *testing.T) {
	_, captured, err := run(t, `
	let i = 0
	while (i < 10) {
		i = i + 1
		if (i == 3) { continue }
		if (i == 6) { break }
		capture(i)
	}
	`)
	require.Nil(t, err)
	got := make([]float64, len(captured))
	for i, v := range captured {
		got[i] = v.Num
	}
	assert.Equal(t, []float64{1, 2, 4, 5}, got)
}

func TestRun_ForRangeOverList(t *testing.T) {
	_, captured, err := run(t, `
	for range (item, [10, 20, 30]) {
		capture(item)
	}
	`)
	require.Nil(t, err)
	require.Len(t, captured, 3)
	assert.Equal(t, float64(10), captured[0].Num)
	assert.Equal(t, float64(30), captured[2].Num)
}

func TestRun_FunctionCallWithDefaultsAndPacker(t *testing.T) {
	_, captured, err := run(t, `
	funct describe(name, greeting = "hi", ...rest) {
		capture(greeting)
		capture(rest)
	}
	describe("ada")
	describe("ada", "hey", 1, 2)
	`)
	require.Nil(t, err)
	require.Len(t, captured, 4)
	assert.Equal(t, "hi", captured[0].Str)
	assert.Equal(t, 0, len(captured[1].List.Elements))
	assert.Equal(t, "hey", captured[2].Str)
	assert.Equal(t, 2, len(captured[3].List.Elements))
}

func TestRun_ClosureCapturesOuterLocal(t *testing.T) {
	_, captured, err := run(t, `
	funct makeCounter() {
		let count = 0
		funct increment() {
			count = count + 1
			return count
		}
		return increment
	}
	let inc = makeCounter()
	capture(inc())
	capture(inc())
	capture(inc())
	`)
	require.Nil(t, err)
	require.Len(t, captured, 3)
	assert.Equal(t, []float64{1, 2, 3}, []float64{captured[0].Num, captured[1].Num, captured[2].Num})
}

func TestRun_TryCatchUnwindsToHandler(t *testing.T) {
	_, captured, err := run(t, `
	funct boom() {
		raise("bad thing")
	}
	try {
		boom()
		capture("unreachable")
	} catch (e) {
		capture(e)
	}
	`)
	require.Nil(t, err)
	require.Len(t, captured, 1)
	assert.True(t, captured[0].IsError())
}

func TestRun_TypedObjectLiteralAppliesDefaults(t *testing.T) {
	_, captured, err := run(t, `
	type Point {
		x = 0,
		y = 0
	}
	let p = Point { x: 5 }
	capture(p.x)
	capture(p.y)
	`)
	require.Nil(t, err)
	require.Len(t, captured, 2)
	assert.Equal(t, float64(5), captured[0].Num)
	assert.Equal(t, float64(0), captured[1].Num)
}

func TestRun_GeneratorYieldsAcrossResumes(t *testing.T) {
	// Generator state (GeneratorInit/GeneratorDone) lives on the FunctionObj
	// itself, so it's the repeated call to the same name that resumes it,
	// not a separate generator-object value returned from the first call.
	_, captured, err := run(t, `
	gen funct counter() {
		yield 1
		yield 2
		yield 3
	}
	capture(counter())
	capture(counter())
	capture(counter())
	`)
	require.Nil(t, err)
	require.Len(t, captured, 3)
	assert.Equal(t, []float64{1, 2, 3}, []float64{captured[0].Num, captured[1].Num, captured[2].Num})
}

func TestRun_ImportResolvesPublicExportsAndCachesIdentity(t *testing.T) {
	modules := map[string]string{
		"mathconsts": `
		const pi = 3.14
		let hits = 0
		funct bump() {
			hits = hits + 1
			return hits
		}
		`,
	}

	prog := parser.ParseProgram(`
	import "mathconsts" as a
	import "mathconsts" as b
	capture(a.pi)
	capture(a.bump())
	capture(b.bump())
	capture(a == b)
	`)
	fn := runtime.NewCompiler("").Compile(prog)

	vm := runtime.NewVM(nil)
	vm.ImportLoad = func(path, fromImportPath string) (*runtime.FunctionObj, *runtime.Error) {
		src, ok := modules[path]
		if !ok {
			return nil, runtime.NewTypedError(runtime.ImportErrorKind, "module not found: "+path, 0, 0)
		}
		return runtime.NewCompiler(path).Compile(parser.ParseProgram(src)), nil
	}
	var captured []runtime.Value
	vm.Globals.DeclareGlobal("capture", runtime.NativeVal("capture", func(args []runtime.Value) runtime.Value {
		if len(args) > 0 {
			captured = append(captured, args[0])
		}
		return runtime.NoneVal()
	}), true)

	_, err := vm.Run(fn)
	require.Nil(t, err)
	require.Len(t, captured, 4)
	assert.Equal(t, float64(3.14), captured[0].Num)
	// Both aliases resolve to the same cached exports Object, so bump()'s
	// internal counter is shared across them rather than re-run per import.
	assert.Equal(t, float64(1), captured[1].Num)
	assert.Equal(t, float64(2), captured[2].Num)
	assert.True(t, captured[3].Bool)
}

func TestRun_OnChangeHookFiresOnAssignment(t *testing.T) {
	_, captured, err := run(t, `
	let total = 0
	hook onchange(total) funct(old, new) {
		capture(new)
	}
	total = 5
	total = 9
	`)
	require.Nil(t, err)
	require.Len(t, captured, 2)
	assert.Equal(t, float64(5), captured[0].Num)
	assert.Equal(t, float64(9), captured[1].Num)
}
