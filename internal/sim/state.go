// Package sim implements the deterministic one-dimensional vehicle simulation.
// The whole game state fits in a single value type and advances through a pure
// transition function, so hosts can tick it from any loop without locking.
package sim

import "math"

const (
	// DefaultGoalStart is the lower bound of the goal window for a session.
	DefaultGoalStart int32 = 9000
	// DefaultGoalEnd is the upper bound of the goal window for a session.
	DefaultGoalEnd int32 = 10000

	// StartPositionBase is where the vehicle spawns in the base variant.
	StartPositionBase int32 = 0
	// StartPositionExtended is where the vehicle spawns in the extended variant.
	StartPositionExtended int32 = 500
)

// VehicleState captures the full simulation state for one vehicle. It is a
// plain value: Update consumes the previous state and returns a fresh one, and
// callers discard the old value afterwards.
type VehicleState struct {
	Acceleration int32 `json:"acceleration"`
	Speed        int32 `json:"speed"`
	Position     int32 `json:"position"`
	GoalStart    int32 `json:"goal_start"`
	GoalEnd      int32 `json:"goal_end"`
	Won          bool  `json:"won"`
	Lost         bool  `json:"lost"`
}

// Option adjusts the initial state produced by NewState.
type Option func(*VehicleState)

// WithStartPosition overrides the spawn position; deployments use either
// StartPositionBase or StartPositionExtended.
func WithStartPosition(position int32) Option {
	return func(s *VehicleState) {
		s.Position = position
	}
}

// WithGoalWindow overrides the goal window bounds. GoalStart <= GoalEnd is
// assumed, not enforced.
func WithGoalWindow(start, end int32) Option {
	return func(s *VehicleState) {
		s.GoalStart = start
		s.GoalEnd = end
	}
}

// NewState builds the session-start state: goal window [9000, 10000], vehicle
// at rest at the configured spawn position, no flags set.
func NewState(opts ...Option) VehicleState {
	state := VehicleState{
		GoalStart: DefaultGoalStart,
		GoalEnd:   DefaultGoalEnd,
		Position:  StartPositionBase,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&state)
		}
	}
	return state
}

// Update advances the simulation by one tick and returns the next state.
//
// The throttle supplied now only lands in Acceleration; it reaches Speed on
// the following tick and Position the tick after that, because Speed integrates
// the previous Acceleration and Position integrates the previous Speed. The
// one-tick propagation delay is deliberate and load-bearing for the game feel.
//
// Won and Lost are recomputed from the pre-tick Position and Speed on every
// call and are not sticky: a later tick that no longer satisfies a predicate
// clears the flag again. Winning requires the vehicle at rest strictly inside
// the goal window; stopping exactly on a bound does not count.
//
// Throttle is taken as-is with no range checks. Hosts that want to constrain
// it clamp before calling (see the input package).
func Update(current VehicleState, throttle int32) VehicleState {
	return VehicleState{
		Acceleration: throttle,
		Speed:        floorZero(satAdd(current.Speed, current.Acceleration)),
		Position:     satAdd(current.Position, current.Speed),
		Lost:         current.Position > current.GoalEnd,
		Won:          current.Speed == 0 && current.Position > current.GoalStart && current.Position < current.GoalEnd,
		GoalStart:    current.GoalStart,
		GoalEnd:      current.GoalEnd,
	}
}

// satAdd adds two int32 values and saturates at the representable bounds.
// Wrapping is never acceptable here: a wrapped Position would flip the win and
// loss predicates, so the extremes pin instead.
func satAdd(a, b int32) int32 {
	sum := int64(a) + int64(b)
	if sum > math.MaxInt32 {
		return math.MaxInt32
	}
	if sum < math.MinInt32 {
		return math.MinInt32
	}
	return int32(sum)
}

// floorZero keeps speed non-negative regardless of how hard the vehicle brakes.
func floorZero(v int32) int32 {
	if v < 0 {
		return 0
	}
	return v
}
