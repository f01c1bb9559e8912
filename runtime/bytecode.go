package runtime

import "encoding/binary"

// OpCode enumerates VM instructions. The order is taken verbatim from the
// original Vortex bytecode enum (Bytecode.hpp) so that numeric opcode values
// stay stable for anyone who has existing emitters targeting them.
type OpCode uint8

const (
	OP_RETURN OpCode = iota
	OP_YIELD
	OP_LOAD_CONST
	OP_LOAD_THIS
	OP_NEGATE
	OP_ADD
	OP_SUBTRACT
	OP_MULTIPLY
	OP_DIVIDE
	OP_MOD
	OP_POW
	OP_AND
	OP_OR
	OP_NOT
	OP_EQ_EQ
	OP_NOT_EQ
	OP_LT_EQ
	OP_GT_EQ
	OP_LT
	OP_GT
	OP_RANGE
	OP_DOT
	OP_STORE_VAR
	OP_LOAD
	OP_LOAD_GLOBAL
	OP_LOAD_CLOSURE
	OP_SET
	OP_SET_FORCE
	OP_SET_PROPERTY
	OP_SET_CLOSURE
	OP_MAKE_CLOSURE
	OP_MAKE_TYPE
	OP_MAKE_TYPED
	OP_MAKE_OBJECT
	OP_MAKE_FUNCTION
	OP_MAKE_CONST
	OP_MAKE_NON_CONST
	OP_TYPE_DEFAULTS
	OP_POP
	OP_POP_CLOSE
	OP_JUMP_IF_FALSE
	OP_JUMP_IF_TRUE
	OP_POP_JUMP_IF_FALSE
	OP_POP_JUMP_IF_TRUE
	OP_JUMP
	OP_JUMP_BACK
	OP_EXIT
	OP_BREAK
	OP_CONTINUE
	OP_BUILD_LIST
	OP_ACCESSOR
	OP_LEN
	OP_CALL
	OP_CALL_METHOD
	OP_IMPORT
	OP_UNPACK
	OP_REMOVE_PUSH
	OP_SWAP_TOS
	OP_LOOP
	OP_LOOP_END
	OP_ITER
	OP_HOOK_ONCHANGE
	OP_HOOK_CLOSURE_ONCHANGE
	OP_HOOK_ONACCESS
	OP_HOOK_CLOSURE_ONACCESS
	OP_TRY_BEGIN
	OP_TRY_END
	OP_CATCH_BEGIN
)

var opcodeNames = [...]string{
	"RETURN", "YIELD", "LOAD_CONST", "LOAD_THIS", "NEGATE", "ADD", "SUBTRACT",
	"MULTIPLY", "DIVIDE", "MOD", "POW", "AND", "OR", "NOT", "EQ_EQ", "NOT_EQ",
	"LT_EQ", "GT_EQ", "LT", "GT", "RANGE", "DOT", "STORE_VAR", "LOAD",
	"LOAD_GLOBAL", "LOAD_CLOSURE", "SET", "SET_FORCE", "SET_PROPERTY",
	"SET_CLOSURE", "MAKE_CLOSURE", "MAKE_TYPE", "MAKE_TYPED", "MAKE_OBJECT",
	"MAKE_FUNCTION", "MAKE_CONST", "MAKE_NON_CONST", "TYPE_DEFAULTS", "POP",
	"POP_CLOSE", "JUMP_IF_FALSE", "JUMP_IF_TRUE", "POP_JUMP_IF_FALSE",
	"POP_JUMP_IF_TRUE", "JUMP", "JUMP_BACK", "EXIT", "BREAK", "CONTINUE",
	"BUILD_LIST", "ACCESSOR", "LEN", "CALL", "CALL_METHOD", "IMPORT",
	"UNPACK", "REMOVE_PUSH", "SWAP_TOS", "LOOP", "LOOP_END", "ITER",
	"HOOK_ONCHANGE", "HOOK_CLOSURE_ONCHANGE", "HOOK_ONACCESS",
	"HOOK_CLOSURE_ONACCESS", "TRY_BEGIN", "TRY_END", "CATCH_BEGIN",
}

func (op OpCode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return "UNKNOWN"
}

// operandWidths gives the number of immediate bytes each opcode consumes:
// 0 for none, 1 for small inline counts (call arity, build-list/object
// field counts), 4 for constant-pool/jump/slot indices (big-endian uint32).
var operandWidths = map[OpCode]int{
	OP_RETURN: 0, OP_YIELD: 0, OP_LOAD_CONST: 4, OP_LOAD_THIS: 0,
	OP_NEGATE: 0, OP_ADD: 0, OP_SUBTRACT: 0, OP_MULTIPLY: 0, OP_DIVIDE: 0,
	OP_MOD: 0, OP_POW: 0, OP_AND: 0, OP_OR: 0, OP_NOT: 0, OP_EQ_EQ: 0,
	OP_NOT_EQ: 0, OP_LT_EQ: 0, OP_GT_EQ: 0, OP_LT: 0, OP_GT: 0, OP_RANGE: 0,
	OP_DOT: 4, OP_STORE_VAR: 4, OP_LOAD: 4, OP_LOAD_GLOBAL: 4,
	OP_LOAD_CLOSURE: 4, OP_SET: 0, OP_SET_FORCE: 0, OP_SET_PROPERTY: 4,
	OP_SET_CLOSURE: 4, OP_MAKE_CLOSURE: 4, OP_MAKE_TYPE: 1, OP_MAKE_TYPED: 0,
	OP_MAKE_OBJECT: 1, OP_MAKE_FUNCTION: 4, OP_MAKE_CONST: 0,
	OP_MAKE_NON_CONST: 0, OP_TYPE_DEFAULTS: 0, OP_POP: 0, OP_POP_CLOSE: 0,
	OP_JUMP_IF_FALSE: 4, OP_JUMP_IF_TRUE: 4, OP_POP_JUMP_IF_FALSE: 4,
	OP_POP_JUMP_IF_TRUE: 4, OP_JUMP: 4, OP_JUMP_BACK: 4, OP_EXIT: 0,
	OP_BREAK: 4, OP_CONTINUE: 4, OP_BUILD_LIST: 1, OP_ACCESSOR: 0, OP_LEN: 0,
	OP_CALL: 1, OP_CALL_METHOD: 1, OP_IMPORT: 4, OP_UNPACK: 0,
	OP_REMOVE_PUSH: 0, OP_SWAP_TOS: 0, OP_LOOP: 0, OP_LOOP_END: 0,
	OP_ITER: 4, OP_HOOK_ONCHANGE: 4, OP_HOOK_CLOSURE_ONCHANGE: 4,
	OP_HOOK_ONACCESS: 4, OP_HOOK_CLOSURE_ONACCESS: 4, OP_TRY_BEGIN: 4,
	OP_TRY_END: 0, OP_CATCH_BEGIN: 4,
}

// Chunk is an immutable-after-emission bytecode container.
type Chunk struct {
	Code             []byte
	Lines            []int
	Constants        []Value
	Variables        []string
	PublicVariables  []string
	ImportPath       string

	instructionOffsets []int // lazily computed cache, see InstructionOffsets
}

func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 256),
		Lines:     make([]int, 0, 256),
		Constants: make([]Value, 0, 16),
	}
}

// AddCode appends a single opcode byte with no immediate operand and records
// its source line.
func (c *Chunk) AddCode(op OpCode, line int) int {
	ip := len(c.Code)
	c.Code = append(c.Code, byte(op))
	for len(c.Lines) < len(c.Code) {
		c.Lines = append(c.Lines, line)
	}
	return ip
}

// AddOpcode appends an opcode followed by its immediate operand, encoded at
// the width operandWidths prescribes.
func (c *Chunk) AddOpcode(op OpCode, operand int, line int) int {
	ip := c.AddCode(op, line)
	width := operandWidths[op]
	switch width {
	case 1:
		c.Code = append(c.Code, byte(operand))
	case 4:
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(int32(operand)))
		c.Code = append(c.Code, buf[:]...)
	}
	for len(c.Lines) < len(c.Code) {
		c.Lines = append(c.Lines, line)
	}
	return ip
}

// AddConstant appends a Value to the constant pool and returns its index.
// Constants are not deduplicated: Values carry identity (ID) that dedup
// would silently collapse.
func (c *Chunk) AddConstant(v Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// AddConstantCode is a convenience combining AddConstant with an
// OP_LOAD_CONST emission.
func (c *Chunk) AddConstantCode(v Value, line int) int {
	idx := c.AddConstant(v)
	return c.AddOpcode(OP_LOAD_CONST, idx, line)
}

// PatchOperand rewrites the 4-byte operand at byte offset `at` (the position
// immediately after the opcode byte), used to back-patch forward jumps once
// their target is known.
func (c *Chunk) PatchOperand(at int, operand int) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(int32(operand)))
	copy(c.Code[at:at+4], buf[:])
}

func readOperand(code []byte, at int, width int) int {
	switch width {
	case 1:
		return int(code[at])
	case 4:
		return int(int32(binary.BigEndian.Uint32(code[at : at+4])))
	default:
		return 0
	}
}

// InstructionOffsets returns the byte offset of every instruction boundary,
// computing and caching it on first use if the emitter did not supply one.
// The VM does not call it: its ip and jump operands are absolute byte
// offsets into Code.
func (c *Chunk) InstructionOffsets() []int {
	if c.instructionOffsets != nil {
		return c.instructionOffsets
	}
	offsets := make([]int, 0, len(c.Code))
	i := 0
	for i < len(c.Code) {
		offsets = append(offsets, i)
		op := OpCode(c.Code[i])
		i += 1 + operandWidths[op]
	}
	c.instructionOffsets = offsets
	return offsets
}

// DeclareVariable registers a local/global name in this chunk's variable
// table, returning its index for STORE_VAR/LOAD encoding.
func (c *Chunk) DeclareVariable(name string) int {
	for i, n := range c.Variables {
		if n == name {
			return i
		}
	}
	c.Variables = append(c.Variables, name)
	return len(c.Variables) - 1
}

func (c *Chunk) MarkPublic(name string) {
	for _, n := range c.PublicVariables {
		if n == name {
			return
		}
	}
	c.PublicVariables = append(c.PublicVariables, name)
}

// ClosedVar describes one upvalue a FunctionObj must capture at
// OP_MAKE_CLOSURE time.
type ClosedVar struct {
	Name    string
	Index   int
	IsLocal bool
}

// FunctionObj is a compiled function: its chunk plus the metadata needed for
// arity enforcement, closure capture, generator resumption, and method
// binding.
type FunctionObj struct {
	Name          string
	Arity         int
	Defaults      int
	Params        []string
	DefaultValues []Value
	PackerIndex   int // index into Params of the packer parameter, -1 if none
	NumSlots      int // total reserved local slots (params + body locals)
	Chunk         *Chunk
	ClosedVarIdx  []ClosedVar
	ClosedVars    []*Closure
	Object        *Value // bound receiver for methods, nil for free functions
	ImportPath    string

	IsGenerator      bool
	GeneratorInit    bool
	GeneratorDone    bool
	IsTypeGenerator  bool
	generatorState   *generatorState
}

func NewFunctionObj(name string) *FunctionObj {
	return &FunctionObj{Name: name, PackerIndex: -1, Chunk: NewChunk()}
}
