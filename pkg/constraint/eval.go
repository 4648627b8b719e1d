package constraint

import "fmt"

// Evaluate reduces an expression tree to a boolean. AND and OR short-circuit.
func Evaluate(node Node) (bool, error) {
	switch n := node.(type) {
	case *CompareNode:
		return evalCompare(n)
	case *AndNode:
		left, err := Evaluate(n.Left)
		if err != nil || !left {
			return false, err
		}
		return Evaluate(n.Right)
	case *OrNode:
		left, err := Evaluate(n.Left)
		if err != nil || left {
			return left, err
		}
		return Evaluate(n.Right)
	case *NotNode:
		v, err := Evaluate(n.Operand)
		if err != nil {
			return false, err
		}
		return !v, nil
	case *GroupNode:
		return Evaluate(n.Inner)
	default:
		return false, fmt.Errorf("unsupported expression node type: %T", node)
	}
}

func evalCompare(n *CompareNode) (bool, error) {
	switch n.Op {
	case OpLess:
		return n.Left < n.Right, nil
	case OpLessEqual:
		return n.Left <= n.Right, nil
	case OpGreater:
		return n.Left > n.Right, nil
	case OpGreaterEqual:
		return n.Left >= n.Right, nil
	case OpEqual:
		return n.Left == n.Right, nil
	case OpNotEqual:
		return n.Left != n.Right, nil
	default:
		return false, NewUnexpectedOperatorError(-1, n.Op)
	}
}

// EvaluateTokens parses and evaluates a bound token stream.
func EvaluateTokens(tokens []Token) (bool, error) {
	node, err := Parse(tokens)
	if err != nil {
		return false, err
	}
	return Evaluate(node)
}
