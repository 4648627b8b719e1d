package constraint

// Node is the interface for all expression tree nodes. A tree is built
// per evaluation and owns its children exclusively.
type Node interface {
	nodeType() string
}

// CompareNode is a single comparison between two numeric operands, one of
// which is the bound candidate value.
type CompareNode struct {
	Op    string
	Left  float64
	Right float64
}

func (n *CompareNode) nodeType() string { return "Compare" }

// AndNode is a conjunction.
type AndNode struct {
	Left  Node
	Right Node
}

func (n *AndNode) nodeType() string { return "And" }

// OrNode is a disjunction.
type OrNode struct {
	Left  Node
	Right Node
}

func (n *OrNode) nodeType() string { return "Or" }

// NotNode negates its operand.
type NotNode struct {
	Operand Node
}

func (n *NotNode) nodeType() string { return "Not" }

// GroupNode is a parenthesized sub-expression.
type GroupNode struct {
	Inner Node
}

func (n *GroupNode) nodeType() string { return "Group" }
