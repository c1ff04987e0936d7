package policytree

import (
	"fmt"

	"github.com/aerugo/simcash/internal/simerrors"
)

// ValidatePolicy checks every node of tree against constraints, returning
// every violation found rather than stopping at the first — policies are
// rejected as a batch report before tick 0, per §4.3's Contract clause.
func ValidatePolicy(tree *Tree, constraints ScenarioConstraints) simerrors.List {
	var errs simerrors.List
	if tree == nil || tree.Root == nil {
		return simerrors.List{simerrors.New(simerrors.PolicyInvalid, "tree has no root node")}
	}

	for name, v := range tree.Parameters {
		spec, ok := constraints.GetParameterSpec(name)
		if !ok {
			errs = append(errs, simerrors.New(simerrors.PolicyInvalid,
				fmt.Sprintf("parameter %q is not declared in scenario constraints", name)))
			continue
		}
		if ok, msg := spec.ValidateValue(v); !ok {
			errs = append(errs, simerrors.New(simerrors.PolicyInvalid, msg))
		}
	}

	walkValidate(tree.Root, tree.Type, tree.Parameters, constraints, &errs)
	return errs
}

func walkValidate(n *Node, tt TreeType, params map[string]float64, c ScenarioConstraints, errs *simerrors.List) {
	if n == nil {
		return
	}
	if n.IsAction {
		allowed := DefaultActionsForType(tt)
		if !actionInList(n.Action, allowed) {
			*errs = append(*errs, simerrors.New(simerrors.PolicyInvalid,
				fmt.Sprintf("action %q is not valid for tree type %q", n.Action, tt)))
		} else if !c.IsActionAllowed(tt, n.Action) {
			*errs = append(*errs, simerrors.New(simerrors.PolicyInvalid,
				fmt.Sprintf("action %q disallowed by scenario constraints for tree type %q", n.Action, tt)))
		}
		for _, v := range n.ActionArgs {
			validateValueRef(v, params, errs)
		}
		return
	}

	if !c.IsFieldAllowed(n.Field) {
		*errs = append(*errs, simerrors.New(simerrors.PolicyInvalid,
			fmt.Sprintf("condition references disallowed field %q", n.Field)))
	} else if _, ok := (Context{}).field(n.Field); !ok {
		*errs = append(*errs, simerrors.New(simerrors.PolicyInvalid,
			fmt.Sprintf("condition references unknown field %q", n.Field)))
	}
	switch n.Op {
	case OpLT, OpLE, OpGT, OpGE, OpEQ, OpNE:
	default:
		*errs = append(*errs, simerrors.New(simerrors.PolicyInvalid,
			fmt.Sprintf("unknown operator %q", n.Op)))
	}
	validateValueRef(n.Value, params, errs)

	if n.IfTrue == nil || n.IfFalse == nil {
		*errs = append(*errs, simerrors.New(simerrors.PolicyInvalid,
			fmt.Sprintf("condition on field %q is missing a branch", n.Field)))
		return
	}
	walkValidate(n.IfTrue, tt, params, c, errs)
	walkValidate(n.IfFalse, tt, params, c, errs)
}

func validateValueRef(v Value, params map[string]float64, errs *simerrors.List) {
	if !v.IsParam {
		return
	}
	if _, ok := params[v.ParamName]; !ok {
		*errs = append(*errs, simerrors.New(simerrors.PolicyInvalid,
			fmt.Sprintf("reference to undeclared parameter %q", v.ParamName)))
	}
}
