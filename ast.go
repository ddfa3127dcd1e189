package markup

// ----------------------------- Template AST ---------------------------------

// Node is one element of a template body.
type Node interface {
	node()
}

// Element is a tag. Void elements have no children and no close tag; a
// non-void element with no children still renders its close tag.
type Element struct {
	At         Pos
	Name       Expr
	ID         Expr // nil when the element has no id
	Classes    []Expr
	Attributes []Attribute
	Children   []Node
	Void       bool
}

// Text is static text, escaped once at build time.
type Text struct {
	At    Pos
	Value string
}

// ExprNode renders the value of a host expression.
type ExprNode struct {
	At Pos
	X  Expr
}

// If is a chain of clauses with an optional default.
type If struct {
	At      Pos
	Clauses []IfClause
	Else    []Node
	HasElse bool
}

type IfClause struct {
	Test IfTest
	Body []Node
}

// IfTest is either a boolean expression (Pattern == nil) or a refutable
// binding `let Pattern = X` whose names are visible in the clause body only.
type IfTest struct {
	Pattern Pattern
	X       Expr
}

type Match struct {
	At   Pos
	X    Expr
	Arms []MatchArm
}

type MatchArm struct {
	Pattern Pattern
	Guard   Expr // nil when the arm has no guard
	Body    []Node
}

type For struct {
	At      Pos
	Pattern Pattern
	Iter    Expr
	Body    []Node
}

// RawStmt splices a statement. It writes nothing; its bindings are visible to the
// siblings that follow it.
type RawStmt struct {
	At   Pos
	Stmt *LetStmt
}

func (*Element) node()  {}
func (*Text) node()     {}
func (*ExprNode) node() {}
func (*If) node()       {}
func (*Match) node()    {}
func (*For) node()      {}
func (*RawStmt) node()  {}

// Attribute is either a single name/value pair or, when Spread is set, an
// expression yielding many pairs.
type Attribute struct {
	At     Pos
	Name   Expr
	Value  Expr
	Spread Expr
}

// Field is a declared template parameter. Type is kept as source text.
type Field struct {
	Name string
	Type string
}

// Decl is one compilation unit: a named template, or the body of an anonymous
// fragment (Name empty).
type Decl struct {
	At         Pos
	Attrs      []string
	Name       string
	TypeParams []string
	Fields     []Field
	Where      string
	Children   []Node
	SizeHint   int
}

// ----------------------------- Host expressions -----------------------------

type Expr interface {
	expr()
	Position() Pos
}

// Lit is a literal: int64, float64, string, Char or bool.
type Lit struct {
	At    Pos
	Value any
}

type Ident struct {
	At   Pos
	Name string
}

type Unary struct {
	At Pos
	Op string
	X  Expr
}

type Binary struct {
	At   Pos
	Op   string
	X, Y Expr
}

// RangeExpr is lo..hi or lo..=hi over integers.
type RangeExpr struct {
	At        Pos
	Lo, Hi    Expr
	Inclusive bool
}

// FieldExpr selects a struct field, map key or tuple element (Name "0", "1"...).
type FieldExpr struct {
	At   Pos
	X    Expr
	Name string
}

type IndexExpr struct {
	At       Pos
	X, Index Expr
}

// Call invokes a registered function by name. Macro is set for name!(...).
type Call struct {
	At    Pos
	Func  string
	Args  []Expr
	Macro bool
}

type MethodCall struct {
	At   Pos
	X    Expr
	Name string
	Args []Expr
}

type ArrayLit struct {
	At    Pos
	Elems []Expr
}

type TupleLit struct {
	At    Pos
	Elems []Expr
}

// StructLit instantiates another template of the same set.
type StructLit struct {
	At     Pos
	Name   string
	Fields []FieldInit
}

type FieldInit struct {
	Name  string
	Value Expr
}

// IfExpr is `if c { a } else { b }` in expression position.
type IfExpr struct {
	At   Pos
	Cond Expr
	Then Expr
	Else Expr // nil evaluates to None
}

func (*Lit) expr()        {}
func (*Ident) expr()      {}
func (*Unary) expr()      {}
func (*Binary) expr()     {}
func (*RangeExpr) expr()  {}
func (*FieldExpr) expr()  {}
func (*IndexExpr) expr()  {}
func (*Call) expr()       {}
func (*MethodCall) expr() {}
func (*ArrayLit) expr()   {}
func (*TupleLit) expr()   {}
func (*StructLit) expr()  {}
func (*IfExpr) expr()     {}

func (e *Lit) Position() Pos        { return e.At }
func (e *Ident) Position() Pos      { return e.At }
func (e *Unary) Position() Pos      { return e.At }
func (e *Binary) Position() Pos     { return e.At }
func (e *RangeExpr) Position() Pos  { return e.At }
func (e *FieldExpr) Position() Pos  { return e.At }
func (e *IndexExpr) Position() Pos  { return e.At }
func (e *Call) Position() Pos       { return e.At }
func (e *MethodCall) Position() Pos { return e.At }
func (e *ArrayLit) Position() Pos   { return e.At }
func (e *TupleLit) Position() Pos   { return e.At }
func (e *StructLit) Position() Pos  { return e.At }
func (e *IfExpr) Position() Pos     { return e.At }

// ----------------------------- Patterns -------------------------------------

type Pattern interface {
	pattern()
}

type WildcardPat struct{ At Pos }

type BindPat struct {
	At   Pos
	Name string
}

type LitPat struct {
	At    Pos
	Value any
}

type NonePat struct{ At Pos }

type SomePat struct {
	At    Pos
	Inner Pattern
}

type TuplePat struct {
	At    Pos
	Elems []Pattern
}

// SlicePat matches a slice of exactly len(Elems) elements, or at least that
// many when Rest is set (a trailing `..`).
type SlicePat struct {
	At    Pos
	Elems []Pattern
	Rest  bool
}

type RangePat struct {
	At        Pos
	Lo, Hi    any
	Inclusive bool
}

type OrPat struct {
	At   Pos
	Alts []Pattern
}

func (*WildcardPat) pattern() {}
func (*BindPat) pattern()     {}
func (*LitPat) pattern()      {}
func (*NonePat) pattern()     {}
func (*SomePat) pattern()     {}
func (*TuplePat) pattern()    {}
func (*SlicePat) pattern()    {}
func (*RangePat) pattern()    {}
func (*OrPat) pattern()       {}

// LetStmt binds Pattern to the value of Value.
type LetStmt struct {
	At      Pos
	Pattern Pattern
	Value   Expr
}
