package ast

// NodeType tags a concrete AST node for quick switches without reflection.
type NodeType string

const (
	ProgramNode         NodeType = "Program"
	BinaryExprNode      NodeType = "BinaryExpr"
	UnaryExprNode       NodeType = "UnaryExpr"
	IdentifierNode      NodeType = "Identifier"
	ThisExprNode        NodeType = "ThisExpr"
	NumericLiteralNode  NodeType = "NumericLiteral"
	StringLiteralNode   NodeType = "StringLiteral"
	BooleanLiteralNode  NodeType = "BooleanLiteral"
	NoneLiteralNode     NodeType = "NoneLiteral"
	ArrayLiteralNode    NodeType = "ArrayLiteral"
	MapLiteralNode      NodeType = "MapLiteral"
	VarDeclarationNode  NodeType = "VarDeclaration"
	CallExprNode        NodeType = "CallExpr"
	MemberExprNode      NodeType = "MemberExpr"
	BlockStatementNode  NodeType = "BlockStatement"
	IfStatementNode     NodeType = "IfStatement"
	ForStatementNode    NodeType = "ForStatement"
	WhileStatementNode  NodeType = "WhileStatement"
	AssignmentExprNode  NodeType = "AssignmentExpr"
	ImportStatementNode NodeType = "ImportStatement"
	FunctionDeclNode    NodeType = "FunctionDeclaration"
	ReturnStatementNode NodeType = "ReturnStatement"
	YieldStatementNode  NodeType = "YieldStatement"
	BreakStatementNode  NodeType = "BreakStatement"
	ContinueStatement   NodeType = "ContinueStatement"
	TryStatementNode    NodeType = "TryStatement"
	TypeDeclarationNode NodeType = "TypeDeclaration"
	HookDeclarationNode NodeType = "HookDeclaration"
	UnpackExprNode      NodeType = "UnpackExpr"
	PropertyNode        NodeType = "Property"
)

type Stmt interface {
	Type() NodeType
}

type Expr interface {
	Stmt
	exprMarker()
}

type base struct{ kind NodeType }

func (b base) Type() NodeType { return b.kind }

type exprBase struct{ base }

func (exprBase) exprMarker() {}

// Program is the root of a parsed source file.
type Program struct {
	exprBase
	Body []Stmt
}

func NewProgram() *Program { return &Program{exprBase{base{ProgramNode}}, nil} }

type Identifier struct {
	exprBase
	Symbol string
}

func NewIdentifier(sym string) *Identifier { return &Identifier{exprBase{base{IdentifierNode}}, sym} }

// ThisExpr refers to the bound receiver of the enclosing method, OP_LOAD_THIS.
type ThisExpr struct{ exprBase }

func NewThisExpr() *ThisExpr { return &ThisExpr{exprBase{base{ThisExprNode}}} }

type NumericLiteral struct {
	exprBase
	Value float64
}

func NewNumericLiteral(v float64) *NumericLiteral {
	return &NumericLiteral{exprBase{base{NumericLiteralNode}}, v}
}

type StringLiteral struct {
	exprBase
	Value string
}

func NewStringLiteral(v string) *StringLiteral {
	return &StringLiteral{exprBase{base{StringLiteralNode}}, v}
}

type BooleanLiteral struct {
	exprBase
	Value bool
}

func NewBooleanLiteral(v bool) *BooleanLiteral {
	return &BooleanLiteral{exprBase{base{BooleanLiteralNode}}, v}
}

// NoneLiteral is the literal spelling of the None value (e.g. `none`).
type NoneLiteral struct{ exprBase }

func NewNoneLiteral() *NoneLiteral { return &NoneLiteral{exprBase{base{NoneLiteralNode}}} }

type ArrayLiteral struct {
	exprBase
	Elements []Expr
}

// Property is a single key/value entry of a MapLiteral. Key is an
// Identifier for bare field names, any other Expr for computed keys.
type Property struct {
	base
	Key   Expr
	Value Expr
}

func NewProperty(key, value Expr) *Property { return &Property{base{PropertyNode}, key, value} }

// MapLiteral builds either an anonymous Object (TypeName == "") or a typed
// Object (OP_MAKE_OBJECT followed by OP_TYPE_DEFAULTS against TypeName).
type MapLiteral struct {
	exprBase
	TypeName   string
	Properties []*Property
}

type VarDeclaration struct {
	base
	Identifier string
	Value      Expr
	Constant   bool
}

// CallExpr. Method selects OP_CALL_METHOD (Callee must be a MemberExpr and
// the receiver is threaded through as `this`) over plain OP_CALL.
type CallExpr struct {
	exprBase
	Callee Expr
	Args   []Expr
	Method bool
}

// MemberExpr. Computed true => `obj[prop]` (OP_ACCESSOR). Computed false =>
// `obj.prop` (OP_DOT), Property is always an *Identifier in that case.
type MemberExpr struct {
	exprBase
	Object   Expr
	Property Expr
	Computed bool
}

type BlockStatement struct {
	exprBase
	Statements []Stmt
}

type IfStatement struct {
	base
	Condition   Expr
	Consequence *BlockStatement
	Alternative *BlockStatement
}

// ForStatement is Vortex's only for-loop form: `for range (x, iterable) { }`.
type ForStatement struct {
	base
	Identifier *Identifier
	Range      Expr
	Body       *BlockStatement
}

type WhileStatement struct {
	base
	Condition Expr
	Body      *BlockStatement
}

// AssignmentExpr. Force selects OP_SET_FORCE (bypass is_const) over OP_SET.
type AssignmentExpr struct {
	exprBase
	Assignee Expr
	Value    Expr
	Force    bool
}

type ImportStatement struct {
	base
	Path  string
	Alias string
}

// FunctionDeclaration covers declarations, anonymous expressions (Name ==
// ""), methods (bound to a type), and generators (IsGenerator).
type FunctionDeclaration struct {
	exprBase
	Name        string
	Params      []string
	Defaults    map[string]Expr // trailing parameters with default expressions
	PackerParam string          // name of the trailing packer parameter, if any
	Body        *BlockStatement
	IsGenerator bool
}

type ReturnStatement struct {
	base
	Value Expr
}

// YieldStatement suspends the enclosing generator (OP_YIELD) instead of
// tearing the frame down (OP_RETURN).
type YieldStatement struct {
	base
	Value Expr
}

type BreakStatement struct{ base }

func NewBreakStatement() *BreakStatement { return &BreakStatement{base{BreakStatementNode}} }

type ContinueStatementNode struct{ base }

func NewContinueStatement() *ContinueStatementNode {
	return &ContinueStatementNode{base{ContinueStatement}}
}

type TryStatement struct {
	base
	TryBlock   *BlockStatement
	CatchBlock *BlockStatement
	ErrorVar   string
}

// TypeField is one declared field of a TypeDeclaration: an optional type
// annotation expression (parsed and kept here; the compiler does not emit
// code for it) and an optional default-value expression.
type TypeField struct {
	Name       string
	Annotation Expr
	Default    Expr
}

type TypeDeclaration struct {
	base
	Name   string
	Fields []*TypeField
}

// HookDeclaration installs an on_change/on_access observer on a name already
// in scope. Kind is "onchange" or "onaccess". Closure is not read by the
// compiler, which picks the *_CLOSURE opcode variant itself when Target
// resolves to an upvalue rather than a local.
type HookDeclaration struct {
	base
	Kind    string
	Target  string
	Handler Expr
	Closure bool
}

// UnpackExpr marks its Inner expression as a spread call argument (`...xs`).
type UnpackExpr struct {
	exprBase
	Inner Expr
}

// UnaryExpr covers prefix/postfix ++/-- and the boolean `!` operator.
type UnaryExpr struct {
	exprBase
	Operand  Expr
	Operator string
	Prefix   bool
}

type BinaryExpr struct {
	exprBase
	Left     Expr
	Right    Expr
	Operator string
}
