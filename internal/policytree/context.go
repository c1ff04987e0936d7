package policytree

// Context is the read-only view a policy tree is evaluated against. Field
// names here are exactly the spec's whitelisted context fields; the
// evaluator rejects any Condition.Field not present in this set (checked
// against the scenario constraints at construction time, per §4.3's
// Contract clause).
type Context struct {
	Amount                 float64
	Priority               float64
	TicksToDeadline        float64
	Balance                float64
	EffectiveLiquidity     float64
	Queue1TotalValue       float64
	SystemTickInDay        float64
	TicksRemainingInDay    float64
	PostedCollateral       float64
	RemainingAmount        float64
	OutgoingQueueSize      float64
	MaxCollateralCapacity  float64
}

// FieldNames enumerates every context field the evaluator understands, in
// a stable order used both for schema generation and for constraint
// validation.
var FieldNames = []string{
	"amount",
	"priority",
	"ticks_to_deadline",
	"balance",
	"effective_liquidity",
	"queue1_total_value",
	"system_tick_in_day",
	"ticks_remaining_in_day",
	"posted_collateral",
	"remaining_amount",
	"outgoing_queue_size",
	"max_collateral_capacity",
}

func (c Context) field(name string) (float64, bool) {
	switch name {
	case "amount":
		return c.Amount, true
	case "priority":
		return c.Priority, true
	case "ticks_to_deadline":
		return c.TicksToDeadline, true
	case "balance":
		return c.Balance, true
	case "effective_liquidity":
		return c.EffectiveLiquidity, true
	case "queue1_total_value":
		return c.Queue1TotalValue, true
	case "system_tick_in_day":
		return c.SystemTickInDay, true
	case "ticks_remaining_in_day":
		return c.TicksRemainingInDay, true
	case "posted_collateral":
		return c.PostedCollateral, true
	case "remaining_amount":
		return c.RemainingAmount, true
	case "outgoing_queue_size":
		return c.OutgoingQueueSize, true
	case "max_collateral_capacity":
		return c.MaxCollateralCapacity, true
	default:
		return 0, false
	}
}
