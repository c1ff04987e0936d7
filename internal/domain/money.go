// Package domain defines the core value types of the settlement kernel:
// money, ticks, agents, obligations, and their lifecycle states. All
// monetary arithmetic is integer cents (INV-money) — no floating point
// value ever participates in a balance computation.
package domain

// Cents is a signed integer amount of money in minor units (cents).
// Balances, credit caps, collateral, and costs are all Cents.
type Cents int64

// Tick is simulated time: a non-negative integer step counter.
type Tick int64

// AgentID is a stable, externally assigned bank identifier.
type AgentID string

// TxID uniquely identifies an obligation for the lifetime of a run.
type TxID string
