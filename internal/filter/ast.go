package filter

// Expr is a boolean expression over predicate names.
//
// The tree has exactly three node kinds: a predicate reference, a negation,
// and a binary AND/OR. Trees are built by Parse and never mutated.
type Expr interface {
	// Eval evaluates the expression, resolving predicate names through
	// resolve. AND and OR short-circuit left to right.
	Eval(resolve func(name string) bool) bool
}

type binOp int

const (
	opAnd binOp = iota
	opOr
)

func (o binOp) String() string {
	if o == opAnd {
		return "and"
	}
	return "or"
}

type predExpr struct {
	name string
}

func (e predExpr) Eval(resolve func(string) bool) bool {
	return resolve(e.name)
}

type notExpr struct {
	expr Expr
}

func (e notExpr) Eval(resolve func(string) bool) bool {
	return !e.expr.Eval(resolve)
}

type binaryExpr struct {
	op    binOp
	left  Expr
	right Expr
}

func (e binaryExpr) Eval(resolve func(string) bool) bool {
	l := e.left.Eval(resolve)
	if e.op == opAnd {
		if !l {
			return false
		}
		return e.right.Eval(resolve)
	}
	if l {
		return true
	}
	return e.right.Eval(resolve)
}
