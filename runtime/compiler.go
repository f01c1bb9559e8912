package runtime

import (
	"fmt"

	"vortex/ast"
)

// loopCtx tracks the patch state for one active loop so break/continue can
// be compiled as real jumps: breakCleanup counts the OP_POPs a
// mid-body break must emit before jumping out, since unlike a loop falling
// through normally it bypasses whatever bookkeeping instruction (OP_ITER)
// would otherwise have cleaned the stack up.
type loopCtx struct {
	continueTarget int
	breakCleanup   int
	breakPatches   []int
}

// funcCtx is one function's compile-time scope: its own chunk, its locals
// table, and the upvalue descriptors it has captured so far from enclosing
// functions.
type funcCtx struct {
	parent      *funcCtx
	chunk       *Chunk
	locals      map[string]int
	closedVars  []ClosedVar
	closureIdx  map[string]int
	loops       []*loopCtx
	isTop       bool
	anonCounter int
}

func newFuncCtx(parent *funcCtx, isTop bool) *funcCtx {
	return &funcCtx{
		parent:     parent,
		chunk:      NewChunk(),
		locals:     map[string]int{},
		closureIdx: map[string]int{},
		isTop:      isTop,
	}
}

// Compiler lowers a parsed AST into a Chunk-backed FunctionObj tree.
type Compiler struct {
	cur        *funcCtx
	modulePath string
}

func NewCompiler(modulePath string) *Compiler {
	c := &Compiler{modulePath: modulePath}
	c.cur = newFuncCtx(nil, true)
	return c
}

// Compile lowers a full program into its module-level FunctionObj.
func (c *Compiler) Compile(prog *ast.Program) *FunctionObj {
	for _, stmt := range prog.Body {
		c.compileStmt(stmt)
	}
	c.cur.chunk.AddConstantCode(NoneVal(), 0)
	c.cur.chunk.AddCode(OP_EXIT, 0)
	return &FunctionObj{
		Name: "<module>", PackerIndex: -1,
		NumSlots:   len(c.cur.chunk.Variables),
		Chunk:      c.cur.chunk,
		ImportPath: c.modulePath,
	}
}

func (c *Compiler) resolveLocal(fx *funcCtx, name string) (int, bool) {
	slot, ok := fx.locals[name]
	return slot, ok
}

// resolveUpvalue walks the enclosing function chain, capturing a descriptor
// at every level between the declaring function and this one.
func (c *Compiler) resolveUpvalue(fx *funcCtx, name string) (int, bool) {
	if fx.parent == nil {
		return 0, false
	}
	if idx, ok := fx.closureIdx[name]; ok {
		return idx, true
	}
	if slot, ok := c.resolveLocal(fx.parent, name); ok {
		fx.closedVars = append(fx.closedVars, ClosedVar{Name: name, Index: slot, IsLocal: true})
		idx := len(fx.closedVars) - 1
		fx.closureIdx[name] = idx
		return idx, true
	}
	if idx, ok := c.resolveUpvalue(fx.parent, name); ok {
		fx.closedVars = append(fx.closedVars, ClosedVar{Name: name, Index: idx, IsLocal: false})
		newIdx := len(fx.closedVars) - 1
		fx.closureIdx[name] = newIdx
		return newIdx, true
	}
	return 0, false
}

func (c *Compiler) declareLocal(name string) int {
	slot := c.cur.chunk.DeclareVariable(name)
	c.cur.locals[name] = slot
	return slot
}

func (c *Compiler) compileBlock(b *ast.BlockStatement) {
	for _, stmt := range b.Statements {
		c.compileStmt(stmt)
	}
}

func (c *Compiler) compileStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.VarDeclaration:
		c.compileExpr(n.Value)
		if n.Constant {
			c.cur.chunk.AddCode(OP_MAKE_CONST, 0)
		}
		slot := c.declareLocal(n.Identifier)
		c.cur.chunk.AddOpcode(OP_STORE_VAR, slot, 0)
		if c.cur.isTop {
			c.cur.chunk.MarkPublic(n.Identifier)
		}

	case *ast.IfStatement:
		c.compileExpr(n.Condition)
		jfalse := c.cur.chunk.AddOpcode(OP_POP_JUMP_IF_FALSE, -1, 0)
		c.compileBlock(n.Consequence)
		if n.Alternative != nil {
			jend := c.cur.chunk.AddOpcode(OP_JUMP, -1, 0)
			c.cur.chunk.PatchOperand(jfalse+1, len(c.cur.chunk.Code))
			c.compileBlock(n.Alternative)
			c.cur.chunk.PatchOperand(jend+1, len(c.cur.chunk.Code))
		} else {
			c.cur.chunk.PatchOperand(jfalse+1, len(c.cur.chunk.Code))
		}

	case *ast.WhileStatement:
		start := len(c.cur.chunk.Code)
		c.compileExpr(n.Condition)
		jfalse := c.cur.chunk.AddOpcode(OP_POP_JUMP_IF_FALSE, -1, 0)
		c.pushLoop(start, 0)
		c.compileBlock(n.Body)
		c.cur.chunk.AddOpcode(OP_JUMP_BACK, start, 0)
		c.cur.chunk.PatchOperand(jfalse+1, len(c.cur.chunk.Code))
		c.popLoop()

	case *ast.ForStatement:
		c.compileExpr(n.Range)
		c.cur.chunk.AddConstantCode(NumberVal(0), 0)
		loopStart := len(c.cur.chunk.Code)
		iterAt := c.cur.chunk.AddOpcode(OP_ITER, -1, 0)
		slot := c.declareLocal(n.Identifier.Symbol)
		c.cur.chunk.AddOpcode(OP_STORE_VAR, slot, 0)
		c.pushLoop(loopStart, 2)
		c.compileBlock(n.Body)
		c.cur.chunk.AddOpcode(OP_JUMP_BACK, loopStart, 0)
		c.cur.chunk.PatchOperand(iterAt+1, len(c.cur.chunk.Code))
		c.popLoop()

	case *ast.BreakStatement:
		c.compileBreak()
	case *ast.ContinueStatementNode:
		c.compileContinue()

	case *ast.FunctionDeclaration:
		fn := c.compileFunctionObj(n)
		constIdx := c.cur.chunk.AddConstant(FunctionVal(fn))
		if len(fn.ClosedVarIdx) > 0 {
			c.cur.chunk.AddOpcode(OP_MAKE_CLOSURE, constIdx, 0)
		} else {
			c.cur.chunk.AddOpcode(OP_MAKE_FUNCTION, constIdx, 0)
		}
		if n.Name != "" {
			slot := c.declareLocal(n.Name)
			c.cur.chunk.AddOpcode(OP_STORE_VAR, slot, 0)
			if c.cur.isTop {
				c.cur.chunk.MarkPublic(n.Name)
			}
		} else {
			c.cur.chunk.AddCode(OP_POP, 0)
		}

	case *ast.TypeDeclaration:
		c.compileTypeDeclaration(n)

	case *ast.HookDeclaration:
		c.compileHookDeclaration(n)

	case *ast.ReturnStatement:
		if n.Value != nil {
			c.compileExpr(n.Value)
		} else {
			c.cur.chunk.AddConstantCode(NoneVal(), 0)
		}
		c.cur.chunk.AddCode(OP_RETURN, 0)

	case *ast.YieldStatement:
		if n.Value != nil {
			c.compileExpr(n.Value)
		} else {
			c.cur.chunk.AddConstantCode(NoneVal(), 0)
		}
		c.cur.chunk.AddCode(OP_YIELD, 0)

	case *ast.TryStatement:
		c.compileTryStatement(n)

	case *ast.ImportStatement:
		pathIdx := c.cur.chunk.AddConstant(StringVal(n.Path))
		c.cur.chunk.AddOpcode(OP_IMPORT, pathIdx, 0)
		slot := c.declareLocal(n.Alias)
		c.cur.chunk.AddOpcode(OP_STORE_VAR, slot, 0)

	case *ast.BlockStatement:
		c.compileBlock(n)

	case ast.Expr:
		c.compileExpr(n)
		c.cur.chunk.AddCode(OP_POP, 0)

	default:
		panic(fmt.Sprintf("compiler: unhandled statement node %T", s))
	}
}

func (c *Compiler) pushLoop(continueTarget, breakCleanup int) {
	c.cur.loops = append(c.cur.loops, &loopCtx{continueTarget: continueTarget, breakCleanup: breakCleanup})
}

func (c *Compiler) popLoop() {
	lp := c.cur.loops[len(c.cur.loops)-1]
	for _, pos := range lp.breakPatches {
		c.cur.chunk.PatchOperand(pos+1, len(c.cur.chunk.Code))
	}
	c.cur.loops = c.cur.loops[:len(c.cur.loops)-1]
}

func (c *Compiler) compileBreak() {
	if len(c.cur.loops) == 0 {
		panic("compiler: 'break' outside of a loop")
	}
	lp := c.cur.loops[len(c.cur.loops)-1]
	for i := 0; i < lp.breakCleanup; i++ {
		c.cur.chunk.AddCode(OP_POP, 0)
	}
	pos := c.cur.chunk.AddOpcode(OP_BREAK, -1, 0)
	lp.breakPatches = append(lp.breakPatches, pos)
}

func (c *Compiler) compileContinue() {
	if len(c.cur.loops) == 0 {
		panic("compiler: 'continue' outside of a loop")
	}
	lp := c.cur.loops[len(c.cur.loops)-1]
	c.cur.chunk.AddOpcode(OP_CONTINUE, lp.continueTarget, 0)
}

func (c *Compiler) compileTryStatement(n *ast.TryStatement) {
	tryBeginAt := c.cur.chunk.AddOpcode(OP_TRY_BEGIN, -1, 0)
	c.compileBlock(n.TryBlock)
	c.cur.chunk.AddCode(OP_TRY_END, 0)
	jend := c.cur.chunk.AddOpcode(OP_JUMP, -1, 0)
	c.cur.chunk.PatchOperand(tryBeginAt+1, len(c.cur.chunk.Code))

	errName := n.ErrorVar
	if errName == "" {
		c.cur.anonCounter++
		errName = fmt.Sprintf("$err%d", c.cur.anonCounter)
	}
	slot := c.declareLocal(errName)
	c.cur.chunk.AddOpcode(OP_CATCH_BEGIN, slot, 0)
	c.compileBlock(n.CatchBlock)
	c.cur.chunk.PatchOperand(jend+1, len(c.cur.chunk.Code))
}

// compileTypeDeclaration builds the MAKE_TYPE sequence: a (name, default)
// constant pair per field, pushed in order and consumed by MAKE_TYPE.
func (c *Compiler) compileTypeDeclaration(n *ast.TypeDeclaration) {
	for _, field := range n.Fields {
		c.cur.chunk.AddConstantCode(StringVal(field.Name), 0)
		c.cur.chunk.AddConstantCode(c.evalConstExpr(field.Default), 0)
	}
	c.cur.chunk.AddOpcode(OP_MAKE_TYPE, len(n.Fields), 0)
	slot := c.declareLocal(n.Name)
	c.cur.chunk.AddOpcode(OP_STORE_VAR, slot, 0)
	if c.cur.isTop {
		c.cur.chunk.MarkPublic(n.Name)
	}
}

// evalConstExpr folds a literal default-value expression at compile time.
// FunctionObj.DefaultValues and TypeObj.Defaults are static Values rather
// than re-evaluated expressions, so a non-literal default degrades to None
// (a documented limitation, see DESIGN.md).
func (c *Compiler) evalConstExpr(e ast.Expr) Value {
	switch n := e.(type) {
	case nil:
		return NoneVal()
	case *ast.NumericLiteral:
		return NumberVal(n.Value)
	case *ast.StringLiteral:
		return StringVal(n.Value)
	case *ast.BooleanLiteral:
		return BooleanVal(n.Value)
	case *ast.NoneLiteral:
		return NoneVal()
	default:
		return NoneVal()
	}
}

// compileHookDeclaration resolves Target as a local or captured upvalue and
// emits the matching HOOK_* opcode. Hooks cannot
// target a bare global: on_change/on_access observation only makes sense on
// a slot this frame (or an enclosing one) actually owns.
func (c *Compiler) compileHookDeclaration(n *ast.HookDeclaration) {
	c.compileExpr(n.Handler)
	onChange := n.Kind == "onchange"
	if slot, ok := c.resolveLocal(c.cur, n.Target); ok {
		if onChange {
			c.cur.chunk.AddOpcode(OP_HOOK_ONCHANGE, slot, 0)
		} else {
			c.cur.chunk.AddOpcode(OP_HOOK_ONACCESS, slot, 0)
		}
		return
	}
	if idx, ok := c.resolveUpvalue(c.cur, n.Target); ok {
		if onChange {
			c.cur.chunk.AddOpcode(OP_HOOK_CLOSURE_ONCHANGE, idx, 0)
		} else {
			c.cur.chunk.AddOpcode(OP_HOOK_CLOSURE_ONACCESS, idx, 0)
		}
		return
	}
	panic("compiler: hook target '" + n.Target + "' is not a local or captured variable")
}

// compileFunctionObj compiles a nested function body in its own funcCtx and
// returns the resulting template FunctionObj (closure instantiation happens
// at runtime via OP_MAKE_CLOSURE, see vm.go instantiateClosure).
func (c *Compiler) compileFunctionObj(fd *ast.FunctionDeclaration) *FunctionObj {
	outer := c.cur
	inner := newFuncCtx(outer, false)
	c.cur = inner

	packerIndex := -1
	for i, p := range fd.Params {
		inner.chunk.DeclareVariable(p)
		inner.locals[p] = i
		if p == fd.PackerParam && fd.PackerParam != "" {
			packerIndex = i
		}
	}
	arity := len(fd.Params)
	if packerIndex >= 0 {
		arity--
	}
	var defaultValues []Value
	defaults := 0
	for i, p := range fd.Params {
		if i == packerIndex {
			continue
		}
		if expr, ok := fd.Defaults[p]; ok {
			defaultValues = append(defaultValues, c.evalConstExpr(expr))
			defaults++
		}
	}

	c.compileBlock(fd.Body)
	inner.chunk.AddConstantCode(NoneVal(), 0)
	inner.chunk.AddCode(OP_RETURN, 0)

	fn := &FunctionObj{
		Name:          fd.Name,
		Arity:         arity,
		Defaults:      defaults,
		Params:        fd.Params,
		DefaultValues: defaultValues,
		PackerIndex:   packerIndex,
		NumSlots:      len(inner.chunk.Variables),
		Chunk:         inner.chunk,
		ClosedVarIdx:  inner.closedVars,
		ImportPath:    c.modulePath,
		IsGenerator:   fd.IsGenerator,
	}
	c.cur = outer
	return fn
}

func (c *Compiler) compileExpr(e ast.Expr) {
	switch n := e.(type) {
	case *ast.NumericLiteral:
		c.cur.chunk.AddConstantCode(NumberVal(n.Value), 0)
	case *ast.StringLiteral:
		c.cur.chunk.AddConstantCode(StringVal(n.Value), 0)
	case *ast.BooleanLiteral:
		c.cur.chunk.AddConstantCode(BooleanVal(n.Value), 0)
	case *ast.NoneLiteral:
		c.cur.chunk.AddConstantCode(NoneVal(), 0)
	case *ast.ThisExpr:
		c.cur.chunk.AddCode(OP_LOAD_THIS, 0)

	case *ast.Identifier:
		c.compileIdentifierLoad(n.Symbol)

	case *ast.ArrayLiteral:
		for _, el := range n.Elements {
			c.compileExpr(el)
		}
		c.cur.chunk.AddOpcode(OP_BUILD_LIST, len(n.Elements), 0)

	case *ast.MapLiteral:
		for _, prop := range n.Properties {
			if ident, ok := prop.Key.(*ast.Identifier); ok {
				c.cur.chunk.AddConstantCode(StringVal(ident.Symbol), 0)
			} else {
				c.compileExpr(prop.Key)
			}
			c.compileExpr(prop.Value)
		}
		c.cur.chunk.AddOpcode(OP_MAKE_OBJECT, len(n.Properties), 0)
		if n.TypeName != "" {
			c.compileIdentifierLoad(n.TypeName)
			c.cur.chunk.AddCode(OP_MAKE_TYPED, 0)
			c.cur.chunk.AddCode(OP_TYPE_DEFAULTS, 0)
		}

	case *ast.UnaryExpr:
		c.compileUnaryExpr(n)

	case *ast.BinaryExpr:
		c.compileExpr(n.Left)
		c.compileExpr(n.Right)
		c.cur.chunk.AddCode(binaryOpcode(n.Operator), 0)

	case *ast.UnpackExpr:
		c.compileExpr(n.Inner)
		c.cur.chunk.AddCode(OP_UNPACK, 0)

	case *ast.AssignmentExpr:
		c.compileAssignExpr(n)

	case *ast.MemberExpr:
		c.compileExpr(n.Object)
		if n.Computed {
			c.compileExpr(n.Property)
			c.cur.chunk.AddCode(OP_ACCESSOR, 0)
		} else {
			name := n.Property.(*ast.Identifier).Symbol
			nameIdx := c.cur.chunk.AddConstant(StringVal(name))
			c.cur.chunk.AddOpcode(OP_DOT, nameIdx, 0)
		}

	case *ast.CallExpr:
		c.compileCallExpr(n)

	case *ast.FunctionDeclaration:
		fn := c.compileFunctionObj(n)
		constIdx := c.cur.chunk.AddConstant(FunctionVal(fn))
		if len(fn.ClosedVarIdx) > 0 {
			c.cur.chunk.AddOpcode(OP_MAKE_CLOSURE, constIdx, 0)
		} else {
			c.cur.chunk.AddOpcode(OP_MAKE_FUNCTION, constIdx, 0)
		}

	default:
		panic(fmt.Sprintf("compiler: unhandled expression node %T", e))
	}
}

func binaryOpcode(op string) OpCode {
	switch op {
	case "+":
		return OP_ADD
	case "-":
		return OP_SUBTRACT
	case "*":
		return OP_MULTIPLY
	case "/":
		return OP_DIVIDE
	case "%":
		return OP_MOD
	case "==":
		return OP_EQ_EQ
	case "!=":
		return OP_NOT_EQ
	case "<":
		return OP_LT
	case "<=":
		return OP_LT_EQ
	case ">":
		return OP_GT
	case ">=":
		return OP_GT_EQ
	case "&&":
		return OP_AND
	case "||":
		return OP_OR
	case "..":
		return OP_RANGE
	default:
		panic("compiler: unknown binary operator " + op)
	}
}

func (c *Compiler) compileIdentifierLoad(name string) {
	if slot, ok := c.resolveLocal(c.cur, name); ok {
		c.cur.chunk.AddOpcode(OP_LOAD, slot, 0)
		return
	}
	if idx, ok := c.resolveUpvalue(c.cur, name); ok {
		c.cur.chunk.AddOpcode(OP_LOAD_CLOSURE, idx, 0)
		return
	}
	nameIdx := c.cur.chunk.AddConstant(StringVal(name))
	c.cur.chunk.AddOpcode(OP_LOAD_GLOBAL, nameIdx, 0)
}

// compileUnaryExpr desugars the increment/decrement operators to an
// assignment against `operand +/- 1`, since the preserved opcode set has no
// dedicated increment instruction. `!` and unary `-` map directly.
func (c *Compiler) compileUnaryExpr(n *ast.UnaryExpr) {
	switch n.Operator {
	case "!":
		c.compileExpr(n.Operand)
		c.cur.chunk.AddCode(OP_NOT, 0)
	case "-":
		c.compileExpr(n.Operand)
		c.cur.chunk.AddCode(OP_NEGATE, 0)
	case "++", "--":
		op := "+"
		if n.Operator == "--" {
			op = "-"
		}
		desugared := &ast.AssignmentExpr{
			Assignee: n.Operand,
			Value:    &ast.BinaryExpr{Left: n.Operand, Right: ast.NewNumericLiteral(1), Operator: op},
		}
		c.compileAssignExpr(desugared)
	default:
		panic("compiler: unknown unary operator " + n.Operator)
	}
}

// compileAssignExpr compiles an assignment, leaving the assigned value on
// the stack as the expression's result (OP_SET/OP_SET_PROPERTY already push
// it back; locals and closure cells need an explicit reload since
// STORE_VAR/SET_CLOSURE are consuming stores).
func (c *Compiler) compileAssignExpr(n *ast.AssignmentExpr) {
	switch assignee := n.Assignee.(type) {
	case *ast.Identifier:
		name := assignee.Symbol
		if slot, ok := c.resolveLocal(c.cur, name); ok {
			c.compileExpr(n.Value)
			c.cur.chunk.AddOpcode(OP_STORE_VAR, slot, 0)
			c.cur.chunk.AddOpcode(OP_LOAD, slot, 0)
			return
		}
		if idx, ok := c.resolveUpvalue(c.cur, name); ok {
			c.compileExpr(n.Value)
			c.cur.chunk.AddOpcode(OP_SET_CLOSURE, idx, 0)
			c.cur.chunk.AddOpcode(OP_LOAD_CLOSURE, idx, 0)
			return
		}
		nameIdx := c.cur.chunk.AddConstant(StringVal(name))
		c.cur.chunk.AddOpcode(OP_LOAD_CONST, nameIdx, 0)
		c.compileExpr(n.Value)
		if n.Force {
			c.cur.chunk.AddCode(OP_SET_FORCE, 0)
		} else {
			c.cur.chunk.AddCode(OP_SET, 0)
		}

	case *ast.MemberExpr:
		if assignee.Computed {
			panic("compiler: assignment to a computed index (obj[expr] = value) is not supported by this instruction set")
		}
		c.compileExpr(assignee.Object)
		c.compileExpr(n.Value)
		name := assignee.Property.(*ast.Identifier).Symbol
		nameIdx := c.cur.chunk.AddConstant(StringVal(name))
		c.cur.chunk.AddOpcode(OP_SET_PROPERTY, nameIdx, 0)

	default:
		panic(fmt.Sprintf("compiler: invalid assignment target %T", n.Assignee))
	}
}

// compileCallExpr compiles OP_CALL / OP_CALL_METHOD. A method call
// re-evaluates the receiver expression twice (once to resolve the bound
// method via OP_DOT, once to push it as the CALL_METHOD receiver) since the
// preserved opcode set has no stack-duplicate instruction; see DESIGN.md.
func (c *Compiler) compileCallExpr(n *ast.CallExpr) {
	if n.Method {
		member := n.Callee.(*ast.MemberExpr)
		name := member.Property.(*ast.Identifier).Symbol
		nameIdx := c.cur.chunk.AddConstant(StringVal(name))

		c.compileExpr(member.Object)
		c.cur.chunk.AddOpcode(OP_DOT, nameIdx, 0)
		c.compileExpr(member.Object)
		for _, a := range n.Args {
			c.compileExpr(a)
		}
		c.cur.chunk.AddOpcode(OP_CALL_METHOD, len(n.Args), 0)
		return
	}
	c.compileExpr(n.Callee)
	for _, a := range n.Args {
		c.compileExpr(a)
	}
	c.cur.chunk.AddOpcode(OP_CALL, len(n.Args), 0)
}
