package runtime

import (
	"fmt"
	"math"
)

// ImportLoader compiles or locates a module by import path. main.go wires
// this to the lexer/parser/compiler pipeline; runtime itself cannot import
// those packages because parser already imports runtime (for *Error), which
// would make the dependency cyclic.
type ImportLoader func(path, fromImportPath string) (*FunctionObj, *Error)

// VM is the bytecode Evaluator. One VM instance executes one
// frame stack; it is not safe for concurrent use from multiple goroutines
// (single-threaded cooperative model).
type VM struct {
	stack  []Value
	sp     int
	frames []*CallFrame

	Globals *Environment
	Hoisted *HoistedRegistry
	Config  *Config

	firingHooks map[int64]bool
	ImportLoad  ImportLoader
}

func NewVM(cfg *Config) *VM {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &VM{
		stack:       make([]Value, cfg.InitStackCap),
		Globals:     NewEnvironment(),
		Hoisted:     NewHoistedRegistry(),
		Config:      cfg,
		firingHooks: make(map[int64]bool),
	}
}

func (vm *VM) ensureStack(n int) {
	for n >= len(vm.stack) {
		vm.stack = append(vm.stack, make([]Value, len(vm.stack)+64)...)
	}
}

func (vm *VM) push(v Value) {
	vm.ensureStack(vm.sp)
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(offset int) Value {
	return vm.stack[vm.sp-1-offset]
}

func (vm *VM) frame() *CallFrame { return vm.frames[len(vm.frames)-1] }

// slot returns the address of local/param index idx in frame f, growing the
// stack and the frame's high-water mark as needed.
func (vm *VM) slot(f *CallFrame, idx int) *Value {
	addr := f.FrameStart + idx
	vm.ensureStack(addr)
	if addr >= vm.sp {
		vm.sp = addr + 1
	}
	return &vm.stack[addr]
}

// Run drives entry to completion (OP_EXIT at the outermost frame) and
// returns its final result plus any unhandled error.
func (vm *VM) Run(entry *FunctionObj) (Value, *Error) {
	vm.frames = append(vm.frames, NewCallFrame("main", entry, vm.sp))
	vm.ensureStack(vm.sp + entry.NumSlots)
	vm.sp += entry.NumSlots
	baseDepth := len(vm.frames) - 1
	return vm.dispatch(baseDepth)
}

// dispatch runs until the frame stack unwinds back to baseDepth (exclusive),
// i.e. until the frame pushed to start this call returns or the program hits
// OP_EXIT at depth 0. It is re-entered recursively for nested synchronous
// runs (module imports, host callback re-entry).
func (vm *VM) dispatch(baseDepth int) (Value, *Error) {
	var lastResult Value
	for len(vm.frames) > baseDepth {
		f := vm.frame()
		code := f.Function.Chunk.Code
		if f.IP >= len(code) {
			lastResult = vm.teardown(f, NoneVal())
			continue
		}
		op := OpCode(code[f.IP])
		width := operandWidths[op]
		operand := 0
		if width > 0 {
			operand = readOperand(code, f.IP+1, width)
		}
		f.IP += 1 + width

		switch op {
		case OP_EXIT:
			if vm.sp > f.FrameStart {
				lastResult = vm.pop()
			}
			return lastResult, nil

		case OP_RETURN:
			lastResult = vm.teardown(f, vm.pop())

		case OP_YIELD:
			val := vm.pop()
			f.Function.Suspend(f, vm.stack[f.FrameStart:vm.sp])
			vm.sp = f.FrameStart
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) > baseDepth {
				vm.push(val)
			}
			lastResult = val

		case OP_LOAD_CONST:
			vm.push(f.Function.Chunk.Constants[operand])

		case OP_LOAD_THIS:
			if f.Receiver != nil {
				vm.push(*f.Receiver)
			} else if f.Function.Object != nil {
				vm.push(*f.Function.Object)
			} else {
				vm.push(NoneVal())
			}

		case OP_NEGATE:
			v := vm.pop()
			if !v.IsNumber() {
				if _, rerr := vm.raise(f, TypeErrorKind, "unary - requires a Number"); rerr != nil {
					return Value{}, rerr
				}
				continue
			}
			vm.push(NumberVal(-v.Num))

		case OP_NOT:
			v := vm.pop()
			vm.push(BooleanVal(!v.Truthy()))

		case OP_ADD, OP_SUBTRACT, OP_MULTIPLY, OP_DIVIDE, OP_MOD, OP_POW:
			r := vm.pop()
			l := vm.pop()
			res, aerr := vm.arith(op, l, r)
			if aerr != nil {
				if _, rerr := vm.raiseValue(f, res); rerr != nil {
					return Value{}, rerr
				}
				continue
			}
			vm.push(res)

		case OP_AND:
			r := vm.pop()
			l := vm.pop()
			vm.push(BooleanVal(l.Truthy() && r.Truthy()))

		case OP_OR:
			r := vm.pop()
			l := vm.pop()
			vm.push(BooleanVal(l.Truthy() || r.Truthy()))

		case OP_EQ_EQ:
			r := vm.pop()
			l := vm.pop()
			vm.push(BooleanVal(l.Equals(r)))

		case OP_NOT_EQ:
			r := vm.pop()
			l := vm.pop()
			vm.push(BooleanVal(!l.Equals(r)))

		case OP_LT, OP_LT_EQ, OP_GT, OP_GT_EQ:
			r := vm.pop()
			l := vm.pop()
			if !l.IsNumber() || !r.IsNumber() {
				if _, rerr := vm.raise(f, TypeErrorKind, "comparison requires Numbers"); rerr != nil {
					return Value{}, rerr
				}
				continue
			}
			var b bool
			switch op {
			case OP_LT:
				b = l.Num < r.Num
			case OP_LT_EQ:
				b = l.Num <= r.Num
			case OP_GT:
				b = l.Num > r.Num
			case OP_GT_EQ:
				b = l.Num >= r.Num
			}
			vm.push(BooleanVal(b))

		case OP_RANGE:
			r := vm.pop()
			l := vm.pop()
			if !l.IsNumber() || !r.IsNumber() {
				if _, rerr := vm.raise(f, TypeErrorKind, "range bounds must be Numbers"); rerr != nil {
					return Value{}, rerr
				}
				continue
			}
			vm.push(ListVal(buildRange(l.Num, r.Num)))

		case OP_DOT:
			name := f.Function.Chunk.Constants[operand].Str
			obj := vm.pop()
			v, gerr := vm.getProperty(obj, name)
			if gerr != nil {
				if _, rerr := vm.raiseValue(f, v); rerr != nil {
					return Value{}, rerr
				}
				continue
			}
			vm.push(v)

		case OP_STORE_VAR:
			val := vm.pop()
			slot := vm.slot(f, operand)
			if slot.Meta.IsConst && !slot.Meta.TempNonConst {
				if _, rerr := vm.raise(f, ConstErrorKind, "cannot assign to const local"); rerr != nil {
					return Value{}, rerr
				}
				continue
			}
			old := *slot
			val.Hooks = slot.Hooks
			*slot = val
			vm.fireOnChange(slot, old, val)

		case OP_LOAD:
			slot := vm.slot(f, operand)
			vm.fireOnAccess(slot)
			vm.push(*slot)

		case OP_LOAD_GLOBAL:
			name := f.Function.Chunk.Constants[operand].Str
			if v, ok := vm.Globals.LookupGlobal(name); ok {
				vm.push(v)
			} else if v, ok := vm.Globals.LookupImport(name); ok {
				vm.push(v)
			} else {
				if _, rerr := vm.raise(f, NameErrorKind, "undefined name: "+name); rerr != nil {
					return Value{}, rerr
				}
				continue
			}

		case OP_LOAD_CLOSURE:
			cell := f.Function.ClosedVars[operand]
			vm.fireOnAccess(cell.Location)
			vm.push(cell.Get())

		case OP_SET, OP_SET_FORCE:
			// Stack layout: [..., nameStr, value]. The compiler pushes the
			// target's name as a String constant immediately before the new
			// value for any SET against a global; locals/upvalues compile
			// straight to STORE_VAR/SET_CLOSURE instead.
			val := vm.pop()
			nameVal := vm.pop()
			if serr := vm.Globals.AssignGlobal(nameVal.Str, val, op == OP_SET_FORCE); serr != nil {
				if _, rerr := vm.raiseValue(f, serr.ToValue()); rerr != nil {
					return Value{}, rerr
				}
				continue
			}
			vm.push(val)

		case OP_SET_PROPERTY:
			name := f.Function.Chunk.Constants[operand].Str
			val := vm.pop()
			obj := vm.pop()
			if serr := vm.setProperty(&obj, name, val); serr != nil {
				if _, rerr := vm.raiseValue(f, serr.ToValue()); rerr != nil {
					return Value{}, rerr
				}
				continue
			}
			vm.push(val)

		case OP_SET_CLOSURE:
			val := vm.pop()
			cell := f.Function.ClosedVars[operand]
			old := cell.Get()
			cell.Set(val)
			vm.fireOnChange(cell.Location, old, val)

		case OP_MAKE_CLOSURE:
			tmpl := f.Function.Chunk.Constants[operand].Fn
			vm.push(FunctionVal(vm.instantiateClosure(f, tmpl)))

		case OP_MAKE_TYPE:
			vm.push(vm.makeType(operand))

		case OP_MAKE_TYPED:
			typeVal := vm.pop()
			val := vm.pop()
			if val.Type == ObjectType && typeVal.IsTypeVal() {
				val.Obj.TypeOf = typeVal.TypeOf
				val.Obj.TypeName = typeVal.TypeOf.Name
			}
			vm.push(val)

		case OP_MAKE_OBJECT:
			vm.push(vm.makeObject(operand))

		case OP_TYPE_DEFAULTS:
			obj := vm.pop()
			vm.applyTypeDefaults(&obj)
			vm.push(obj)

		case OP_MAKE_FUNCTION:
			tmpl := f.Function.Chunk.Constants[operand].Fn
			vm.push(FunctionVal(tmpl))

		case OP_MAKE_CONST:
			v := vm.pop()
			v.Meta.IsConst = true
			vm.push(v)

		case OP_MAKE_NON_CONST:
			v := vm.pop()
			v.Meta.IsConst = false
			v.Meta.TempNonConst = true
			vm.push(v)

		case OP_POP:
			vm.pop()

		case OP_POP_CLOSE:
			vm.pop()
			f.Open.closeAll()

		case OP_JUMP, OP_JUMP_BACK, OP_BREAK, OP_CONTINUE:
			f.IP = operand

		case OP_JUMP_IF_FALSE:
			if !vm.peek(0).Truthy() {
				f.IP = operand
			}
		case OP_JUMP_IF_TRUE:
			if vm.peek(0).Truthy() {
				f.IP = operand
			}
		case OP_POP_JUMP_IF_FALSE:
			if !vm.pop().Truthy() {
				f.IP = operand
			}
		case OP_POP_JUMP_IF_TRUE:
			if vm.pop().Truthy() {
				f.IP = operand
			}

		case OP_BUILD_LIST:
			elems := make([]Value, operand)
			for i := operand - 1; i >= 0; i-- {
				elems[i] = vm.pop()
			}
			vm.push(ListVal(elems))

		case OP_ACCESSOR:
			idx := vm.pop()
			container := vm.pop()
			v, aerr := vm.accessor(container, idx)
			if aerr != nil {
				if _, rerr := vm.raiseValue(f, v); rerr != nil {
					return Value{}, rerr
				}
				continue
			}
			vm.push(v)

		case OP_LEN:
			v := vm.pop()
			n, lerr := vm.length(v)
			if lerr != nil {
				if _, rerr := vm.raiseValue(f, n); rerr != nil {
					return Value{}, rerr
				}
				continue
			}
			vm.push(n)

		case OP_CALL:
			if cerr := vm.call(operand, false); cerr != nil {
				return Value{}, cerr
			}

		case OP_CALL_METHOD:
			if cerr := vm.call(operand, true); cerr != nil {
				return Value{}, cerr
			}

		case OP_IMPORT:
			path := f.Function.Chunk.Constants[operand].Str
			v, ierr := vm.doImport(f, path)
			if ierr != nil {
				return Value{}, ierr
			}
			vm.push(v)

		case OP_UNPACK:
			top := vm.peek(0)
			top.Meta.Unpack = true
			vm.stack[vm.sp-1] = top

		case OP_REMOVE_PUSH:
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case OP_SWAP_TOS:
			vm.stack[vm.sp-1], vm.stack[vm.sp-2] = vm.stack[vm.sp-2], vm.stack[vm.sp-1]

		case OP_LOOP, OP_LOOP_END:
			// boundary markers only; BREAK/CONTINUE encode their own jumps.

		case OP_ITER:
			// Stack: [list, index]. Advance or jump to operand when exhausted.
			idx := vm.pop()
			list := vm.peek(0)
			if !list.IsList() {
				if _, rerr := vm.raise(f, TypeErrorKind, "for range target must be a List"); rerr != nil {
					return Value{}, rerr
				}
				continue
			}
			i := int(idx.Num)
			if i >= len(list.List.Elements) {
				vm.pop()
				f.IP = operand
			} else {
				vm.push(NumberVal(float64(i + 1)))
				vm.push(list.List.Elements[i])
			}

		case OP_HOOK_ONCHANGE, OP_HOOK_CLOSURE_ONCHANGE:
			handler := vm.pop()
			vm.installHook(f, operand, op == OP_HOOK_CLOSURE_ONCHANGE, true, handler)

		case OP_HOOK_ONACCESS, OP_HOOK_CLOSURE_ONACCESS:
			handler := vm.pop()
			vm.installHook(f, operand, op == OP_HOOK_CLOSURE_ONACCESS, false, handler)

		case OP_TRY_BEGIN:
			f.pushTry(operand, vm.sp)

		case OP_TRY_END:
			f.popTry()

		case OP_CATCH_BEGIN:
			errVal := vm.pop()
			*vm.slot(f, operand) = errVal

		default:
			if _, rerr := vm.raise(f, TypeErrorKind, fmt.Sprintf("unimplemented opcode %s", op)); rerr != nil {
				return Value{}, rerr
			}
		}
	}
	return lastResult, nil
}

// teardown pops frame f, closes its open upvalues, and pushes result onto
// the caller's stack (if any caller remains below it).
func (vm *VM) teardown(f *CallFrame, result Value) Value {
	f.Open.closeAll()
	vm.sp = f.FrameStart
	vm.frames = vm.frames[:len(vm.frames)-1]
	if len(vm.frames) > 0 {
		vm.push(result)
	}
	if f.Function.IsGenerator {
		f.Function.Done()
	}
	return result
}

func buildRange(a, b float64) []Value {
	var out []Value
	if a <= b {
		for i := a; i <= b; i++ {
			out = append(out, NumberVal(i))
		}
	} else {
		for i := a; i >= b; i-- {
			out = append(out, NumberVal(i))
		}
	}
	return out
}

func (vm *VM) arith(op OpCode, l, r Value) (Value, *Error) {
	if op == OP_ADD {
		if l.IsString() && r.IsString() {
			return StringVal(l.Str + r.Str), nil
		}
		if l.IsList() && r.IsList() {
			combined := append(append([]Value{}, l.List.Elements...), r.List.Elements...)
			return ListVal(combined), nil
		}
	}
	if !l.IsNumber() || !r.IsNumber() {
		e := NewTypedError(TypeErrorKind, fmt.Sprintf("%s requires Numbers, got %s and %s", op, l.Type, r.Type), 0, 0)
		return e.ToValue(), e
	}
	switch op {
	case OP_ADD:
		return NumberVal(l.Num + r.Num), nil
	case OP_SUBTRACT:
		return NumberVal(l.Num - r.Num), nil
	case OP_MULTIPLY:
		return NumberVal(l.Num * r.Num), nil
	case OP_DIVIDE:
		if r.Num == 0 {
			e := NewTypedError(ArithmeticErrKind, "division by zero", 0, 0)
			return e.ToValue(), e
		}
		return NumberVal(l.Num / r.Num), nil
	case OP_MOD:
		if r.Num == 0 {
			e := NewTypedError(ArithmeticErrKind, "modulo by zero", 0, 0)
			return e.ToValue(), e
		}
		return NumberVal(math.Mod(l.Num, r.Num)), nil
	case OP_POW:
		return NumberVal(math.Pow(l.Num, r.Num)), nil
	}
	panic("unreachable arith opcode")
}

func (vm *VM) getProperty(obj Value, name string) (Value, *Error) {
	switch obj.Type {
	case ObjectType:
		if v, ok := obj.Obj.Get(name); ok {
			return v, nil
		}
		e := NewTypedError(KeyErrorKind, "no such field: "+name, 0, 0)
		return e.ToValue(), e
	case ErrorType:
		switch name {
		case "message":
			return StringVal(obj.Err.Message), nil
		case "kind":
			return StringVal(string(obj.Err.Kind)), nil
		}
	}
	e := NewTypedError(TypeErrorKind, "cannot read property ."+name+" of "+obj.Type.String(), 0, 0)
	return e.ToValue(), e
}

func (vm *VM) setProperty(obj *Value, name string, val Value) *Error {
	if obj.Type != ObjectType {
		return NewTypedError(TypeErrorKind, "cannot set property on "+obj.Type.String(), 0, 0)
	}
	if obj.Meta.IsConst && !obj.Meta.TempNonConst {
		return NewTypedError(ConstErrorKind, "cannot assign to const object field: "+name, 0, 0)
	}
	old, _ := obj.Obj.Get(name)
	obj.Obj.Set(name, val)
	vm.fireOnChange(obj, old, val)
	return nil
}

func (vm *VM) accessor(container, idx Value) (Value, *Error) {
	switch container.Type {
	case ListType:
		if !idx.IsNumber() {
			e := NewTypedError(TypeErrorKind, "list index must be a Number", 0, 0)
			return e.ToValue(), e
		}
		i := int(idx.Num)
		n := len(container.List.Elements)
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			e := NewTypedError(IndexErrorKind, "list index out of range", 0, 0)
			return e.ToValue(), e
		}
		return container.List.Elements[i], nil
	case StringType:
		runes := []rune(container.Str)
		i := int(idx.Num)
		if i < 0 {
			i += len(runes)
		}
		if i < 0 || i >= len(runes) {
			e := NewTypedError(IndexErrorKind, "string index out of range", 0, 0)
			return e.ToValue(), e
		}
		return StringVal(string(runes[i])), nil
	case ObjectType:
		if !idx.IsString() {
			e := NewTypedError(TypeErrorKind, "object key must be a String", 0, 0)
			return e.ToValue(), e
		}
		v, ok := container.Obj.Get(idx.Str)
		if !ok {
			e := NewTypedError(KeyErrorKind, "no such key: "+idx.Str, 0, 0)
			return e.ToValue(), e
		}
		return v, nil
	}
	e := NewTypedError(TypeErrorKind, "cannot index into "+container.Type.String(), 0, 0)
	return e.ToValue(), e
}

func (vm *VM) length(v Value) (Value, *Error) {
	switch v.Type {
	case ListType:
		return NumberVal(float64(len(v.List.Elements))), nil
	case StringType:
		return NumberVal(float64(len([]rune(v.Str)))), nil
	case ObjectType:
		return NumberVal(float64(len(v.Obj.Keys))), nil
	}
	e := NewTypedError(TypeErrorKind, "no length for "+v.Type.String(), 0, 0)
	return e.ToValue(), e
}

func (vm *VM) invokeHook(callable Value, args []Value) Value {
	result, err := vm.invoke(callable, args, nil)
	if err != nil {
		return err.ToValue()
	}
	return result
}

// raise builds a fresh Error Value from a taxonomy code + message and
// unwinds to the nearest handler (or returns it as a fatal error).
func (vm *VM) raise(f *CallFrame, kind ErrorKind, msg string) (Value, *Error) {
	e := NewTypedError(kind, msg, vm.currentLine(f), 0)
	return vm.raiseValue(f, e.ToValue())
}

// raiseValue unwinds the frame stack looking for a try handler, truncating
// the operand stack and transferring control to CATCH_BEGIN when one is
// found. A nil *Error return means a handler caught
// it and the dispatch loop should simply continue; a non-nil *Error means it
// was never caught and the whole run aborts.
func (vm *VM) raiseValue(start *CallFrame, errVal Value) (Value, *Error) {
	for i := len(vm.frames) - 1; i >= 0; i-- {
		fr := vm.frames[i]
		if h, ok := fr.popTry(); ok {
			vm.sp = h.SP
			vm.frames = vm.frames[:i+1]
			fr.IP = h.CatchIP
			vm.push(errVal)
			return Value{}, nil
		}
	}
	msg := errVal.Str
	kind := TypeErrorKind
	if errVal.IsError() {
		msg = errVal.Err.Message
		kind = errVal.Err.Kind
	}
	return Value{}, NewTypedError(kind, msg, vm.currentLine(start), 0)
}

func (vm *VM) currentLine(f *CallFrame) int {
	if f == nil || f.IP-1 < 0 || f.IP-1 >= len(f.Function.Chunk.Lines) {
		return 0
	}
	return f.Function.Chunk.Lines[f.IP-1]
}

// instantiateClosure clones a FunctionObj template, resolving each capture
// descriptor against the enclosing frame.
func (vm *VM) instantiateClosure(enclosing *CallFrame, tmpl *FunctionObj) *FunctionObj {
	clone := *tmpl
	clone.ClosedVars = make([]*Closure, len(tmpl.ClosedVarIdx))
	for i, cv := range tmpl.ClosedVarIdx {
		var cell *Closure
		if cv.IsLocal {
			loc := vm.slot(enclosing, cv.Index)
			cell = &Closure{Name: cv.Name, FrameName: enclosing.FrameName, IsLocal: true, Index: cv.Index, Location: loc, InitialLocation: loc}
			enclosing.Open.track(cell)
		} else {
			cell = enclosing.Function.ClosedVars[cv.Index]
		}
		clone.ClosedVars[i] = cell
	}
	return &clone
}

// makeType pops fieldCount (name, default) pairs to build a Type Value
// (the `type` declaration).
func (vm *VM) makeType(fieldCount int) Value {
	t := TypeVal("")
	fields := make([]string, fieldCount)
	for i := fieldCount - 1; i >= 0; i-- {
		def := vm.pop()
		nameV := vm.pop()
		fields[i] = nameV.Str
		t.TypeOf.Defaults[nameV.Str] = def
	}
	t.TypeOf.Fields = fields
	return t
}

func (vm *VM) makeObject(pairCount int) Value {
	o := ObjectVal()
	pairs := make([][2]Value, pairCount)
	for i := pairCount - 1; i >= 0; i-- {
		val := vm.pop()
		key := vm.pop()
		pairs[i] = [2]Value{key, val}
	}
	for _, p := range pairs {
		o.Obj.Set(p[0].Str, p[1])
	}
	return o
}

func (vm *VM) applyTypeDefaults(obj *Value) {
	if obj.Type != ObjectType || obj.Obj.TypeOf == nil {
		return
	}
	for _, name := range obj.Obj.TypeOf.Fields {
		if _, ok := obj.Obj.Get(name); !ok {
			obj.Obj.Set(name, obj.Obj.TypeOf.Defaults[name])
		}
	}
}

func (vm *VM) installHook(f *CallFrame, nameIdx int, closureVariant, onChange bool, handler Value) {
	var slot *Value
	if closureVariant {
		slot = f.Function.ClosedVars[nameIdx].Location
	} else {
		slot = vm.slot(f, nameIdx)
	}
	if slot.Hooks == nil {
		slot.Hooks = &ValueHooks{}
	}
	if onChange {
		slot.Hooks.OnChangeHook = &handler
	} else {
		slot.Hooks.OnAccessHook = &handler
	}
}

// doImport resolves, runs (once) and caches a module's public exports.
func (vm *VM) doImport(f *CallFrame, path string) (Value, *Error) {
	if cached, ok := vm.Globals.LookupImport(path); ok {
		return cached, nil
	}
	if vm.ImportLoad == nil {
		return Value{}, NewTypedError(ImportErrorKind, "no import loader configured", 0, 0)
	}
	modFn, err := vm.ImportLoad(path, f.Function.ImportPath)
	if err != nil {
		return Value{}, err
	}
	frameStart := vm.sp
	modFrame := NewCallFrame(path, modFn, frameStart)
	vm.frames = append(vm.frames, modFrame)
	vm.ensureStack(frameStart + modFn.NumSlots)
	vm.sp = frameStart + modFn.NumSlots
	depth := len(vm.frames) - 1
	if _, rerr := vm.dispatch(depth); rerr != nil {
		return Value{}, rerr
	}
	// OP_EXIT (unlike OP_RETURN/teardown) leaves its own frame on vm.frames
	// and never restores vm.sp, since at the top level Run() just returns
	// once it's seen. Here the module frame is a nested call, so it must be
	// torn down by hand before its locals are read as exports: close any
	// upvalues a module-level function captured over the module's own
	// locals (or a later push from the caller would silently clobber the
	// closed-over stack slot once vm.sp rewinds past it), then restore sp.
	modFrame.Open.closeAll()
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.sp = frameStart
	exports := ObjectVal()
	for _, name := range modFn.Chunk.PublicVariables {
		idx := modFn.Chunk.DeclareVariable(name)
		exports.Obj.Set(name, vm.stack[frameStart+idx])
	}
	vm.Globals.CacheImport(path, exports)
	return exports, nil
}

// call implements OP_CALL / OP_CALL_METHOD, consuming n argument Values plus
// the callee (and receiver, for method calls) already on the stack.
func (vm *VM) call(n int, method bool) *Error {
	rawArgs := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		rawArgs[i] = vm.pop()
	}
	args := expandUnpack(rawArgs)

	var receiver *Value
	if method {
		recv := vm.pop()
		receiver = &recv
	}
	callee := vm.pop()

	switch callee.Type {
	case NativeType:
		result := callee.Native.Function(args)
		if result.IsError() {
			_, rerr := vm.raiseValue(vm.frame(), result)
			return rerr
		}
		vm.push(result)
		return nil
	case FunctionType:
		return vm.callFunction(callee.Fn, args, receiver)
	default:
		_, rerr := vm.raiseValue(vm.frame(), NewTypedError(TypeErrorKind, "cannot call a "+callee.Type.String(), 0, 0).ToValue())
		return rerr
	}
}

func expandUnpack(args []Value) []Value {
	out := make([]Value, 0, len(args))
	for _, a := range args {
		if a.Meta.Unpack && a.IsList() {
			out = append(out, a.List.Elements...)
		} else {
			out = append(out, a)
		}
	}
	return out
}

func (vm *VM) callFunction(fn *FunctionObj, args []Value, receiver *Value) *Error {
	if fn.IsGenerator && fn.GeneratorInit && !fn.GeneratorDone {
		frame, locals, ok := fn.Resume(vm.sp)
		if ok {
			frame.Receiver = receiver
			vm.ensureStack(vm.sp + len(locals))
			copy(vm.stack[vm.sp:], locals)
			vm.sp += len(locals)
			vm.frames = append(vm.frames, frame)
			return nil
		}
	}
	if fn.IsGenerator && fn.GeneratorDone {
		vm.push(NoneVal())
		return nil
	}

	locals, aerr := bindParameters(fn, args)
	if aerr != nil {
		_, rerr := vm.raiseValue(vm.frame(), aerr.ToValue())
		return rerr
	}
	frameStart := vm.sp
	vm.ensureStack(frameStart + fn.NumSlots)
	copy(vm.stack[frameStart:], locals)
	vm.sp = frameStart + fn.NumSlots
	frame := NewCallFrame(fn.Name, fn, frameStart)
	frame.Receiver = receiver
	vm.frames = append(vm.frames, frame)
	if fn.IsGenerator {
		fn.GeneratorInit = true
	}
	return nil
}

// invoke is the host-embedding re-entry point (§6.3): call a Value
// synchronously from Go code and run it to completion.
func (vm *VM) invoke(callable Value, args []Value, receiver *Value) (Value, *Error) {
	baseDepth := len(vm.frames)
	switch callable.Type {
	case NativeType:
		result := callable.Native.Function(args)
		if result.IsError() {
			return Value{}, NewTypedError(result.Err.Kind, result.Err.Message, 0, 0)
		}
		return result, nil
	case FunctionType:
		if err := vm.callFunction(callable.Fn, args, receiver); err != nil {
			return Value{}, err
		}
		return vm.dispatch(baseDepth)
	default:
		return Value{}, NewTypedError(TypeErrorKind, "cannot call a "+callable.Type.String(), 0, 0)
	}
}

// bindParameters implements arity/defaults/packer binding: fixed
// parameters are filled left to right, trailing ones may fall back to
// DefaultValues, and a single packer parameter (if present) collects every
// argument beyond Arity into a List.
func bindParameters(fn *FunctionObj, args []Value) ([]Value, *Error) {
	locals := make([]Value, fn.NumSlots)
	for i := range locals {
		locals[i] = NoneVal()
	}
	nFixed := fn.Arity
	minArgs := nFixed - fn.Defaults
	if fn.PackerIndex >= 0 {
		if len(args) < minArgs {
			return nil, NewTypedError(ArityErrorKind, fmt.Sprintf("%s expects at least %d arguments, got %d", fn.Name, minArgs, len(args)), 0, 0)
		}
	} else if len(args) < minArgs || len(args) > nFixed {
		return nil, NewTypedError(ArityErrorKind, fmt.Sprintf("%s expects %d to %d arguments, got %d", fn.Name, minArgs, nFixed, len(args)), 0, 0)
	}
	for i := 0; i < nFixed; i++ {
		if fn.PackerIndex >= 0 && i == fn.PackerIndex {
			continue
		}
		if i < len(args) {
			locals[i] = args[i]
		} else if di := i - minArgs; di >= 0 && di < len(fn.DefaultValues) {
			locals[i] = fn.DefaultValues[di]
		}
	}
	if fn.PackerIndex >= 0 {
		rest := []Value{}
		if len(args) > nFixed {
			rest = append(rest, args[nFixed:]...)
		}
		locals[fn.PackerIndex] = ListVal(rest)
	}
	return locals, nil
}
