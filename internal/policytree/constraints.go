package policytree

import "fmt"

// ParameterSpec describes one allowed tree parameter: its type and valid
// range or enumeration. Grounded verbatim on
// original_source/api/payment_simulator/ai_cash_mgmt/constraints/
// parameter_spec.py's ParameterSpec.
type ParameterSpec struct {
	Name          string
	ParamType     string // "int", "float", or "enum"
	MinValue      *float64
	MaxValue      *float64
	AllowedValues []string
	Description   string
}

// ValidateValue checks a candidate numeric value against the spec's
// declared range. Enum parameters are validated by name against
// AllowedValues elsewhere, since tree Values are numeric here.
func (p ParameterSpec) ValidateValue(v float64) (bool, string) {
	if p.MinValue != nil && v < *p.MinValue {
		return false, fmt.Sprintf("parameter %q value %v below min %v", p.Name, v, *p.MinValue)
	}
	if p.MaxValue != nil && v > *p.MaxValue {
		return false, fmt.Sprintf("parameter %q value %v above max %v", p.Name, v, *p.MaxValue)
	}
	return true, ""
}

// ScenarioConstraints is the load-time contract a policy is validated
// against: allowed parameters (with ranges), allowed context fields, and
// allowed actions per tree type. Grounded on
// original_source/.../constraints/scenario_constraints.py's
// ScenarioConstraints, including its "no entry for this tree type means
// unconstrained" rule in IsActionAllowed.
type ScenarioConstraints struct {
	AllowedParameters []ParameterSpec
	AllowedFields     []string
	AllowedActions    map[TreeType][]Action
}

func (s ScenarioConstraints) GetParameterSpec(name string) (ParameterSpec, bool) {
	for _, p := range s.AllowedParameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

func (s ScenarioConstraints) IsParameterAllowed(name string) bool {
	_, ok := s.GetParameterSpec(name)
	return ok
}

// IsFieldAllowed reports whether field may appear in a Condition. An empty
// AllowedFields list leaves fields unconstrained, the same way a tree type
// missing from AllowedActions leaves its actions unconstrained.
func (s ScenarioConstraints) IsFieldAllowed(field string) bool {
	if len(s.AllowedFields) == 0 {
		return true
	}
	for _, f := range s.AllowedFields {
		if f == field {
			return true
		}
	}
	return false
}

// IsActionAllowed mirrors the Python contract: a tree type with no entry in
// AllowedActions is treated as unconstrained for that tree type.
func (s ScenarioConstraints) IsActionAllowed(tt TreeType, a Action) bool {
	allowed, ok := s.AllowedActions[tt]
	if !ok {
		return true
	}
	for _, x := range allowed {
		if x == a {
			return true
		}
	}
	return false
}

// DefaultActionsForType returns the built-in whitelist for a tree type,
// used when ScenarioConstraints does not further restrict it. This is the
// spec's tree-type-specific action whitelist (§4.3).
func DefaultActionsForType(tt TreeType) []Action {
	switch tt {
	case PaymentTree:
		return []Action{ActionRelease, ActionHold, ActionDefer, ActionSplit, ActionWithdraw, ActionResubmit, ActionSubmit, ActionQueue}
	case BankTree:
		return []Action{ActionNoAction, ActionPostCollateral, ActionReleaseCollateral}
	case CollateralTree:
		return []Action{ActionPostCollateral, ActionHoldCollateral}
	default:
		return nil
	}
}

func actionInList(a Action, list []Action) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
