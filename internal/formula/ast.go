// internal/formula/ast.go
package formula

/*
 * Formula syntax tree.
 *
 * Three node kinds: Ident (a condition letter or a numeric condition ID),
 * Binary (and/or with two operands) and Group (a parenthesised operand).
 * Groups are kept as distinct nodes so rendering reproduces the grouping the
 * author wrote, including redundant parentheses.
 *
 * Traversal goes through Visitor. A visitor decides itself whether and when
 * to descend into children by calling Walk.
 */

import "strings"

// Op is a binary boolean operator.
type Op int

const (
	OpAnd Op = iota
	OpOr
)

func (o Op) String() string {
	if o == OpAnd {
		return "and"
	}
	return "or"
}

// Node is a formula syntax tree node.
type Node interface {
	Accept(v Visitor) error
	// Pos is the byte offset of the node's first token in the source.
	Pos() int
}

// Ident is a leaf: a condition letter or a condition ID.
type Ident struct {
	Name   string
	Offset int
}

// Binary joins two operands with and/or.
type Binary struct {
	Op    Op
	Left  Node
	Right Node
}

// Group is a parenthesised operand.
type Group struct {
	Inner  Node
	Offset int
}

// Visitor is called once per node by Walk.
type Visitor interface {
	VisitIdent(n *Ident) error
	VisitBinary(n *Binary) error
	VisitGroup(n *Group) error
}

func (n *Ident) Accept(v Visitor) error  { return v.VisitIdent(n) }
func (n *Binary) Accept(v Visitor) error { return v.VisitBinary(n) }
func (n *Group) Accept(v Visitor) error  { return v.VisitGroup(n) }

func (n *Ident) Pos() int  { return n.Offset }
func (n *Binary) Pos() int { return n.Left.Pos() }
func (n *Group) Pos() int  { return n.Offset }

// Walk dispatches n to v.
func Walk(n Node, v Visitor) error {
	return n.Accept(v)
}

// Expr is a parsed formula. Numeric reports whether leaves are condition IDs
// rather than letters.
type Expr struct {
	root    Node
	numeric bool
}

// NewExpr wraps a syntax tree.
func NewExpr(root Node, numeric bool) *Expr {
	return &Expr{root: root, numeric: numeric}
}

// Root returns the top node.
func (e *Expr) Root() Node { return e.root }

// Numeric reports whether the leaves are condition IDs.
func (e *Expr) Numeric() bool { return e.numeric }

// String renders the formula with single spaces and lower case operators.
func (e *Expr) String() string {
	r := &renderer{}
	_ = Walk(e.root, r)
	return r.b.String()
}

// Constants returns the distinct leaf names in order of first appearance.
func (e *Expr) Constants() []string {
	c := &collector{seen: make(map[string]bool)}
	_ = Walk(e.root, c)
	return c.names
}

type renderer struct {
	b strings.Builder
	// and/or operator and operand spellings; defaults render formula text.
	and, or string
	ident   func(string) string
}

func (r *renderer) VisitIdent(n *Ident) error {
	if r.ident != nil {
		r.b.WriteString(r.ident(n.Name))
	} else {
		r.b.WriteString(n.Name)
	}
	return nil
}

func (r *renderer) VisitBinary(n *Binary) error {
	r.operand(n.Left, n.Op)
	r.b.WriteByte(' ')
	switch {
	case n.Op == OpAnd && r.and != "":
		r.b.WriteString(r.and)
	case n.Op == OpOr && r.or != "":
		r.b.WriteString(r.or)
	default:
		r.b.WriteString(n.Op.String())
	}
	r.b.WriteByte(' ')
	r.operand(n.Right, n.Op)
	return nil
}

// operand writes child, adding parentheses when an or-node sits directly
// under an and-node. Parsed trees always carry a Group there already.
func (r *renderer) operand(child Node, parent Op) {
	if b, ok := child.(*Binary); ok && parent == OpAnd && b.Op == OpOr {
		r.b.WriteByte('(')
		_ = Walk(child, r)
		r.b.WriteByte(')')
		return
	}
	_ = Walk(child, r)
}

func (r *renderer) VisitGroup(n *Group) error {
	r.b.WriteByte('(')
	_ = Walk(n.Inner, r)
	r.b.WriteByte(')')
	return nil
}

type collector struct {
	seen  map[string]bool
	names []string
}

func (c *collector) VisitIdent(n *Ident) error {
	if !c.seen[n.Name] {
		c.seen[n.Name] = true
		c.names = append(c.names, n.Name)
	}
	return nil
}

func (c *collector) VisitBinary(n *Binary) error {
	_ = Walk(n.Left, c)
	return Walk(n.Right, c)
}

func (c *collector) VisitGroup(n *Group) error {
	return Walk(n.Inner, c)
}

// rewriter copies a tree, replacing every leaf name through fn.
type rewriter struct {
	fn  func(n *Ident) (string, error)
	out Node
}

func (w *rewriter) VisitIdent(n *Ident) error {
	name, err := w.fn(n)
	if err != nil {
		return err
	}
	w.out = &Ident{Name: name, Offset: n.Offset}
	return nil
}

func (w *rewriter) VisitBinary(n *Binary) error {
	if err := Walk(n.Left, w); err != nil {
		return err
	}
	left := w.out
	if err := Walk(n.Right, w); err != nil {
		return err
	}
	w.out = &Binary{Op: n.Op, Left: left, Right: w.out}
	return nil
}

func (w *rewriter) VisitGroup(n *Group) error {
	if err := Walk(n.Inner, w); err != nil {
		return err
	}
	w.out = &Group{Inner: w.out, Offset: n.Offset}
	return nil
}

func rewrite(root Node, fn func(n *Ident) (string, error)) (Node, error) {
	w := &rewriter{fn: fn}
	if err := Walk(root, w); err != nil {
		return nil, err
	}
	return w.out, nil
}
