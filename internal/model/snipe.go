package model

import "time"

// SnipeStatus is the lifecycle state of a snipe.
//
// Transitions are one-way: pending → dodged, or pending → completed.
// There is no path back into pending and no transition between the two
// terminal states.
type SnipeStatus string

const (
	SnipePending   SnipeStatus = "pending"
	SnipeDodged    SnipeStatus = "dodged"
	SnipeCompleted SnipeStatus = "completed"
)

// Snipe is one scoring event: sniper photographs target inside a group.
//
// Points is the delta the sniper earns if the snipe completes. It is computed
// once, at creation, from the powerup state of both parties, and never
// recomputed — the Powerups snapshot records which modifiers were in play so
// the outcome stays auditable even after powerup state moves on.
type Snipe struct {
	ID        string          `json:"id"`
	SniperID  string          `json:"sniperId"`
	TargetID  string          `json:"targetId"`
	GroupID   string          `json:"groupId"`
	PhotoRef  string          `json:"photoRef"` // opaque reference to the photo service, never interpreted
	Timestamp time.Time       `json:"timestamp"`
	Status    SnipeStatus     `json:"status"`
	Points    int             `json:"points"`
	Powerups  PowerupSnapshot `json:"powerups"`
}

// PowerupSnapshot captures which modifiers affected a snipe at creation.
// When Shield is true the other two are necessarily false: a shielded target
// negates both multipliers before they are applied or consumed.
type PowerupSnapshot struct {
	DoublePoints bool `json:"doublePoints"`
	Shield       bool `json:"shield"`
	HalfPoints   bool `json:"halfPoints"`
}

// Age returns how long the snipe has been open, relative to now.
func (s *Snipe) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}
