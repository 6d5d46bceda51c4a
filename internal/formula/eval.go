package formula

import "fmt"

// Evaluate computes the formula for the given leaf truth values. truth is
// called with each leaf name (letter or ID) and may be called more than
// once per leaf.
func Evaluate(e *Expr, truth func(name string) bool) bool {
	ev := &evaluator{truth: truth}
	_ = Walk(e.root, ev)
	return ev.result
}

type evaluator struct {
	truth  func(string) bool
	result bool
}

func (ev *evaluator) VisitIdent(n *Ident) error {
	ev.result = ev.truth(n.Name)
	return nil
}

func (ev *evaluator) VisitBinary(n *Binary) error {
	_ = Walk(n.Left, ev)
	left := ev.result
	switch n.Op {
	case OpAnd:
		if !left {
			return nil
		}
	case OpOr:
		if left {
			return nil
		}
	default:
		return fmt.Errorf("unknown operator %d", n.Op)
	}
	return Walk(n.Right, ev)
}

func (ev *evaluator) VisitGroup(n *Group) error {
	return Walk(n.Inner, ev)
}
