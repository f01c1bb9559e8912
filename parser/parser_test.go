package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vortex/ast"
)

func TestParseProgram_VarDeclarationAndBinaryExpr(t *testing.T) {
	prog := ParseProgram(`let x = 1 + 2 * 3`)
	require.Len(t, prog.Body, 1)

	decl, ok := prog.Body[0].(*ast.VarDeclaration)
	require.True(t, ok)
	assert.Equal(t, "x", decl.Identifier)
	assert.False(t, decl.Constant)

	bin, ok := decl.Value.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "+", bin.Operator)

	rhs, ok := bin.Right.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "*", rhs.Operator)
}

func TestParseProgram_FunctionWithDefaultsAndPacker(t *testing.T) {
	prog := ParseProgram(`funct greet(name, greeting = "hi", ...rest) {
		return greeting
	}`)
	require.Len(t, prog.Body, 1)

	fn, ok := prog.Body[0].(*ast.FunctionDeclaration)
	require.True(t, ok)
	assert.Equal(t, "greet", fn.Name)
	assert.Equal(t, []string{"name", "greeting", "rest"}, fn.Params)
	assert.Equal(t, "rest", fn.PackerParam)
	_, hasDefault := fn.Defaults["greeting"]
	assert.True(t, hasDefault)
	assert.False(t, fn.IsGenerator)
}

func TestParseProgram_GeneratorFlag(t *testing.T) {
	prog := ParseProgram(`gen funct counter() { yield 1 }`)
	fn := prog.Body[0].(*ast.FunctionDeclaration)
	assert.True(t, fn.IsGenerator)
}

func TestParseProgram_MemberExprDotVsComputed(t *testing.T) {
	prog := ParseProgram(`x.y
x[y]`)
	require.Len(t, prog.Body, 2)

	dot := prog.Body[0].(*ast.MemberExpr)
	assert.False(t, dot.Computed)
	assert.Equal(t, "y", dot.Property.(*ast.Identifier).Symbol)

	computed := prog.Body[1].(*ast.MemberExpr)
	assert.True(t, computed.Computed)
}

func TestParseProgram_MethodCallSetsMethodFlag(t *testing.T) {
	prog := ParseProgram(`obj.method(1, 2)`)
	call := prog.Body[0].(*ast.CallExpr)
	assert.True(t, call.Method)
	assert.Len(t, call.Args, 2)
}

func TestParseProgram_ForRangeLoop(t *testing.T) {
	prog := ParseProgram(`for range (item, items) {
		print(item)
	}`)
	loop := prog.Body[0].(*ast.ForStatement)
	assert.Equal(t, "item", loop.Identifier.Symbol)
	ident, ok := loop.Range.(*ast.Identifier)
	require.True(t, ok)
	assert.Equal(t, "items", ident.Symbol)
}

func TestParseProgram_TryCatch(t *testing.T) {
	prog := ParseProgram(`try {
		risky()
	} catch (e) {
		handle(e)
	}`)
	ts := prog.Body[0].(*ast.TryStatement)
	assert.Equal(t, "e", ts.ErrorVar)
	assert.Len(t, ts.TryBlock.Statements, 1)
	assert.Len(t, ts.CatchBlock.Statements, 1)
}

func TestParseProgram_TypedObjectLiteral(t *testing.T) {
	prog := ParseProgram(`type Point {
		x = 0,
		y = 0
	}
	let p = Point { x: 1, y: 2 }`)
	require.Len(t, prog.Body, 2)

	typeDecl := prog.Body[0].(*ast.TypeDeclaration)
	assert.Equal(t, "Point", typeDecl.Name)
	assert.Len(t, typeDecl.Fields, 2)

	decl := prog.Body[1].(*ast.VarDeclaration)
	lit := decl.Value.(*ast.MapLiteral)
	assert.Equal(t, "Point", lit.TypeName)
	assert.Len(t, lit.Properties, 2)
}

func TestParseProgram_HookDeclaration(t *testing.T) {
	prog := ParseProgram(`let total = 0
	hook onchange(total) funct(old, new) { print(new) }`)
	hook := prog.Body[1].(*ast.HookDeclaration)
	assert.Equal(t, "onchange", hook.Kind)
	assert.Equal(t, "total", hook.Target)
}

func TestParseProgram_MalformedSyntaxPanics(t *testing.T) {
	assert.Panics(t, func() {
		ParseProgram(`let = 1`)
	})
}
