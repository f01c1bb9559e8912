package runtime

import "sync/atomic"

// ValueType tags the active variant of a Value. Order matches the original
// Vortex bytecode's ValueType enum for the first ten entries; Error is an
// eleventh variant added by this port (see DESIGN.md) so the VM can detect a
// raised error by a cheap type switch instead of inspecting object fields.
type ValueType uint8

const (
	NumberType ValueType = iota
	StringType
	BooleanType
	ListType
	TypeType
	ObjectType
	FunctionType
	NativeType
	PointerType
	NoneType
	ErrorType
)

func (t ValueType) String() string {
	switch t {
	case NumberType:
		return "Number"
	case StringType:
		return "String"
	case BooleanType:
		return "Boolean"
	case ListType:
		return "List"
	case TypeType:
		return "Type"
	case ObjectType:
		return "Object"
	case FunctionType:
		return "Function"
	case NativeType:
		return "Native"
	case PointerType:
		return "Pointer"
	case NoneType:
		return "None"
	case ErrorType:
		return "Error"
	default:
		return "Unknown"
	}
}

// Meta mirrors the original Value::meta flag set.
type Meta struct {
	Unpack       bool
	Packer       bool
	IsConst      bool
	TempNonConst bool
}

// ValueHooks holds the optional on_change/on_access observers attached to a
// Value. Allocated lazily; most Values carry a nil *ValueHooks.
type ValueHooks struct {
	OnChangeHook     *Value
	OnChangeHookName string
	OnAccessHook     *Value
	OnAccessHookName string
}

// ListObj is the shared payload behind a List Value. Elements is shared by
// reference across every Value copy that points at the same ListObj.
type ListObj struct {
	Elements []Value
}

// TypeObj is a class-like schema: declared field names each with an optional
// type-constraint Value and an optional default Value.
type TypeObj struct {
	Name     string
	Fields   []string
	Types    map[string]Value
	Defaults map[string]Value
}

// ObjectObj is an instance, optionally of a TypeObj, with insertion-ordered
// keys (Go maps don't preserve order, so Keys tracks it explicitly, matching
// the original struct's separate `keys` vector).
type ObjectObj struct {
	TypeOf   *TypeObj
	TypeName string
	Keys     []string
	Values   map[string]Value
}

func (o *ObjectObj) Get(key string) (Value, bool) {
	v, ok := o.Values[key]
	return v, ok
}

func (o *ObjectObj) Set(key string, v Value) {
	if _, exists := o.Values[key]; !exists {
		o.Keys = append(o.Keys, key)
	}
	o.Values[key] = v
}

// NativeFunctionObj wraps a host-provided callable. It records no arity;
// host functions perform their own argument validation.
type NativeFunctionObj struct {
	Name     string
	Function func(args []Value) Value
}

// PointerObj is the FFI escape hatch: an opaque handle a host attaches
// arbitrary Go state to (see libraries/host.go for how embedders mint and
// retrieve these).
type PointerObj struct {
	Handle string
	Data   interface{}
}

// ErrorObj is the payload of an Error Value, the taxonomy-tagged first-class
// error convention resolved in DESIGN.md / SPEC_FULL.md's Design Notes.
type ErrorObj struct {
	Kind    ErrorKind
	Message string
}

var valueCounter int64

// Value is a dynamically typed tagged union. Scalar fields (Num, Str, Bool)
// are copied by value on assignment; composite fields are shared pointers,
// giving Vortex's List/Object/Function/Native/Pointer reference semantics
// for free through normal Go aliasing.
type Value struct {
	Type  ValueType
	Meta  Meta
	Hooks *ValueHooks
	ID    int64

	Num    float64
	Str    string
	Bool   bool
	List   *ListObj
	TypeOf *TypeObj
	Obj    *ObjectObj
	Fn     *FunctionObj
	Native *NativeFunctionObj
	Ptr    *PointerObj
	Err    *ErrorObj
}

func nextID() int64 { return atomic.AddInt64(&valueCounter, 1) }

func NumberVal(v float64) Value { return Value{Type: NumberType, Num: v, ID: nextID()} }
func StringVal(v string) Value  { return Value{Type: StringType, Str: v, ID: nextID()} }
func BooleanVal(v bool) Value   { return Value{Type: BooleanType, Bool: v, ID: nextID()} }
func NoneVal() Value            { return Value{Type: NoneType, ID: nextID()} }

func ListVal(elems []Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{Type: ListType, List: &ListObj{Elements: elems}, ID: nextID()}
}

func TypeVal(name string) Value {
	return Value{Type: TypeType, TypeOf: &TypeObj{Name: name, Types: map[string]Value{}, Defaults: map[string]Value{}}, ID: nextID()}
}

func ObjectVal() Value {
	return Value{Type: ObjectType, Obj: &ObjectObj{Values: map[string]Value{}}, ID: nextID()}
}

func FunctionVal(fn *FunctionObj) Value {
	return Value{Type: FunctionType, Fn: fn, ID: nextID()}
}

func NativeVal(name string, fn func(args []Value) Value) Value {
	return Value{Type: NativeType, Native: &NativeFunctionObj{Name: name, Function: fn}, ID: nextID()}
}

func PointerVal(handle string, data interface{}) Value {
	return Value{Type: PointerType, Ptr: &PointerObj{Handle: handle, Data: data}, ID: nextID()}
}

func ErrorVal(kind ErrorKind, message string) Value {
	return Value{Type: ErrorType, Err: &ErrorObj{Kind: kind, Message: message}, ID: nextID()}
}

func (v Value) IsNumber() bool   { return v.Type == NumberType }
func (v Value) IsString() bool   { return v.Type == StringType }
func (v Value) IsBoolean() bool  { return v.Type == BooleanType }
func (v Value) IsList() bool     { return v.Type == ListType }
func (v Value) IsTypeVal() bool  { return v.Type == TypeType }
func (v Value) IsObject() bool   { return v.Type == ObjectType }
func (v Value) IsFunction() bool { return v.Type == FunctionType }
func (v Value) IsNative() bool   { return v.Type == NativeType }
func (v Value) IsPointer() bool  { return v.Type == PointerType }
func (v Value) IsNone() bool     { return v.Type == NoneType }
func (v Value) IsError() bool    { return v.Type == ErrorType }

// IsCallable reports whether the Value can appear as a CALL/CALL_METHOD
// target.
func (v Value) IsCallable() bool { return v.Type == FunctionType || v.Type == NativeType }

// Truthy implements Vortex's truthiness rule for JUMP_IF_FALSE/while/if: only
// Boolean false and None are falsy; everything else (including 0 and "") is
// truthy, matching the original tree-walker's `isTruthy`.
func (v Value) Truthy() bool {
	switch v.Type {
	case BooleanType:
		return v.Bool
	case NoneType:
		return false
	default:
		return true
	}
}

// Equals implements OP_EQ_EQ/OP_NOT_EQ. Composite values compare by identity
// except Lists, which compare structurally (needed for e.g. `[1,2]==[1,2]`).
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case NumberType:
		return v.Num == other.Num
	case StringType:
		return v.Str == other.Str
	case BooleanType:
		return v.Bool == other.Bool
	case NoneType:
		return true
	case ListType:
		if v.List == other.List {
			return true
		}
		if len(v.List.Elements) != len(other.List.Elements) {
			return false
		}
		for i := range v.List.Elements {
			if !v.List.Elements[i].Equals(other.List.Elements[i]) {
				return false
			}
		}
		return true
	default:
		return v.ID == other.ID
	}
}
