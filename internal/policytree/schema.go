package policytree

// Schema is a hand-built description of the policy-tree document shape,
// returned by the orchestrator's GetPolicySchema interface (§6). A
// generated-JSON-Schema library was considered but dropped (see DESIGN.md):
// nothing in the retrieved corpus exercises one against a tree-shaped sum
// type, so the shape below is written out explicitly instead of guessed at.
type Schema struct {
	TreeTypes  []string            `json:"tree_types"`
	Fields     []string            `json:"context_fields"`
	Operators  []string            `json:"operators"`
	Actions    map[string][]string `json:"actions_by_tree_type"`
	Parameters []ParameterSchema   `json:"parameters,omitempty"`
}

// ParameterSchema describes one declared tree parameter for schema
// consumers (e.g. a UI building a policy editor).
type ParameterSchema struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Allowed     []string `json:"allowed_values,omitempty"`
	Description string   `json:"description,omitempty"`
}

// BuildSchema renders constraints and the evaluator's fixed field/operator
// vocabulary into a Schema suitable for JSON serialization.
func BuildSchema(constraints ScenarioConstraints) Schema {
	s := Schema{
		TreeTypes: []string{string(PaymentTree), string(BankTree), string(CollateralTree)},
		Fields:    append([]string(nil), FieldNames...),
		Operators: []string{string(OpLT), string(OpLE), string(OpGT), string(OpGE), string(OpEQ), string(OpNE)},
		Actions:   make(map[string][]string),
	}

	for _, tt := range []TreeType{PaymentTree, BankTree, CollateralTree} {
		var names []string
		for _, a := range DefaultActionsForType(tt) {
			if c, ok := constraints.AllowedActions[tt]; ok && !actionInList(a, c) {
				continue
			}
			names = append(names, string(a))
		}
		s.Actions[string(tt)] = names
	}

	for _, p := range constraints.AllowedParameters {
		s.Parameters = append(s.Parameters, ParameterSchema{
			Name:        p.Name,
			Type:        p.ParamType,
			Min:         p.MinValue,
			Max:         p.MaxValue,
			Allowed:     p.AllowedValues,
			Description: p.Description,
		})
	}
	return s
}
