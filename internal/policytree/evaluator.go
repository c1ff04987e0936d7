package policytree

import (
	"fmt"

	"github.com/aerugo/simcash/internal/simerrors"
)

// Evaluate walks tree from its root against ctx and returns the resulting
// Decision. It is pure and O(depth): no allocation beyond the returned
// Decision's Args slice, no I/O, no mutation of tree or ctx.
func Evaluate(tree *Tree, ctx Context) (Decision, error) {
	if tree == nil || tree.Root == nil {
		return Decision{}, simerrors.New(simerrors.PolicyInvalid, "tree has no root node")
	}
	return evalNode(tree.Root, ctx, tree.Parameters)
}

func evalNode(n *Node, ctx Context, params map[string]float64) (Decision, error) {
	if n == nil {
		return Decision{}, simerrors.New(simerrors.PolicyInvalid, "nil node reached during evaluation")
	}

	if n.IsAction {
		args := make([]float64, len(n.ActionArgs))
		for i, v := range n.ActionArgs {
			resolved, err := v.resolve(params)
			if err != nil {
				return Decision{}, simerrors.Wrap(simerrors.PolicyInvalid, err, "resolving action argument")
			}
			args[i] = resolved
		}
		return Decision{Action: n.Action, Args: args}, nil
	}

	fieldVal, ok := ctx.field(n.Field)
	if !ok {
		return Decision{}, simerrors.New(simerrors.PolicyInvalid, fmt.Sprintf("unknown context field %q", n.Field))
	}
	rhs, err := n.Value.resolve(params)
	if err != nil {
		return Decision{}, simerrors.Wrap(simerrors.PolicyInvalid, err, "resolving condition operand")
	}

	taken, err := compare(fieldVal, n.Op, rhs)
	if err != nil {
		return Decision{}, err
	}

	if taken {
		return evalNode(n.IfTrue, ctx, params)
	}
	return evalNode(n.IfFalse, ctx, params)
}

func compare(lhs float64, op Op, rhs float64) (bool, error) {
	switch op {
	case OpLT:
		return lhs < rhs, nil
	case OpLE:
		return lhs <= rhs, nil
	case OpGT:
		return lhs > rhs, nil
	case OpGE:
		return lhs >= rhs, nil
	case OpEQ:
		return lhs == rhs, nil
	case OpNE:
		return lhs != rhs, nil
	default:
		return false, simerrors.New(simerrors.PolicyInvalid, fmt.Sprintf("unknown operator %q", op))
	}
}
