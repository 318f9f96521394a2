package script

// Pos is a source position used in error reporting.
type Pos struct {
	Line int
	Col  int
}

// Expr is the interface for all expression nodes.
type Expr interface {
	exprNode() // sealed marker
	Position() Pos
}

// Stmt is the interface for all statement nodes.
type Stmt interface {
	stmtNode() // sealed marker
	Position() Pos
}

// Block is an ordered statement list executed under one child scope.
type Block struct {
	Stmts []Stmt
	Pos   Pos
}

// NullLit is the literal null.
type NullLit struct {
	Pos Pos
}

// BoolLit is a boolean literal.
type BoolLit struct {
	Value bool
	Pos   Pos
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
	Pos   Pos
}

// StringPart is one segment of an interpolated string: either literal
// text or an embedded expression, never both.
type StringPart struct {
	Text string
	Expr Expr
}

// StringLit is a string literal, possibly with interpolated expressions.
type StringLit struct {
	Parts []StringPart
	Pos   Pos
}

// ArrayLit is an array literal.
type ArrayLit struct {
	Items []Expr
	Pos   Pos
}

// ObjectField is one field of an object literal.
type ObjectField struct {
	Name  string
	Value Expr
}

// ObjectLit is an object literal.
type ObjectLit struct {
	Fields []ObjectField
	Pos    Pos
}

// Ident is a variable reference.
type Ident struct {
	Name string
	Pos  Pos
}

// BinaryExpr is a binary operator application. Op is the source token,
// e.g. "+", "==", "&&".
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
	Pos   Pos
}

// UnaryExpr is a unary operator application: "-" or "!".
type UnaryExpr struct {
	Op      string
	Operand Expr
	Pos     Pos
}

// MemberExpr is member access, obj.Name.
type MemberExpr struct {
	Object Expr
	Name   string
	Pos    Pos
}

// IndexExpr is index access, a[b].
type IndexExpr struct {
	Target Expr
	Index  Expr
	Pos    Pos
}

// RangeExpr is a..b, an end-exclusive integer range.
type RangeExpr struct {
	Low  Expr
	High Expr
	Pos  Pos
}

// CallExpr is a call. The callee is an identifier naming a lambda or a
// tool, or a member access naming an enum variant constructor.
type CallExpr struct {
	Callee Expr
	Args   []Expr
	Pos    Pos
}

// LambdaLit is an anonymous function literal.
type LambdaLit struct {
	Params []string
	Body   *Block
	Pos    Pos
}

func (e *NullLit) exprNode()    {}
func (e *BoolLit) exprNode()    {}
func (e *NumberLit) exprNode()  {}
func (e *StringLit) exprNode()  {}
func (e *ArrayLit) exprNode()   {}
func (e *ObjectLit) exprNode()  {}
func (e *Ident) exprNode()      {}
func (e *BinaryExpr) exprNode() {}
func (e *UnaryExpr) exprNode()  {}
func (e *MemberExpr) exprNode() {}
func (e *IndexExpr) exprNode()  {}
func (e *RangeExpr) exprNode()  {}
func (e *CallExpr) exprNode()   {}
func (e *LambdaLit) exprNode()  {}

func (e *NullLit) Position() Pos    { return e.Pos }
func (e *BoolLit) Position() Pos    { return e.Pos }
func (e *NumberLit) Position() Pos  { return e.Pos }
func (e *StringLit) Position() Pos  { return e.Pos }
func (e *ArrayLit) Position() Pos   { return e.Pos }
func (e *ObjectLit) Position() Pos  { return e.Pos }
func (e *Ident) Position() Pos      { return e.Pos }
func (e *BinaryExpr) Position() Pos { return e.Pos }
func (e *UnaryExpr) Position() Pos  { return e.Pos }
func (e *MemberExpr) Position() Pos { return e.Pos }
func (e *IndexExpr) Position() Pos  { return e.Pos }
func (e *RangeExpr) Position() Pos  { return e.Pos }
func (e *CallExpr) Position() Pos   { return e.Pos }
func (e *LambdaLit) Position() Pos  { return e.Pos }

// LetStmt declares a name in the current scope.
type LetStmt struct {
	Name  string
	Value Expr
	Pos   Pos
}

// AssignStmt mutates an existing binding in the nearest enclosing scope.
type AssignStmt struct {
	Name  string
	Value Expr
	Pos   Pos
}

// ReturnStmt returns from the enclosing block, optionally with a value.
type ReturnStmt struct {
	Value Expr // nil for a bare return
	Pos   Pos
}

// IfStmt is a conditional with an optional else branch.
type IfStmt struct {
	Cond Expr
	Then *Block
	Else *Block // nil when absent
	Pos  Pos
}

// ExprStmt evaluates an expression for its side effect.
type ExprStmt struct {
	Expr Expr
	Pos  Pos
}

func (s *LetStmt) stmtNode()    {}
func (s *AssignStmt) stmtNode() {}
func (s *ReturnStmt) stmtNode() {}
func (s *IfStmt) stmtNode()     {}
func (s *ExprStmt) stmtNode()   {}

func (s *LetStmt) Position() Pos    { return s.Pos }
func (s *AssignStmt) Position() Pos { return s.Pos }
func (s *ReturnStmt) Position() Pos { return s.Pos }
func (s *IfStmt) Position() Pos     { return s.Pos }
func (s *ExprStmt) Position() Pos   { return s.Pos }
