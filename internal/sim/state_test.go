package sim

import (
	"math"
	"testing"
)

func TestThrottleSetsAcceleration(t *testing.T) {
	next := Update(VehicleState{}, 1)
	if next.Acceleration != 1 {
		t.Fatalf("unexpected acceleration: got %d want 1", next.Acceleration)
	}
}

func TestThrottleDoesNotAccumulateAcceleration(t *testing.T) {
	current := VehicleState{Acceleration: 1}
	next := Update(current, 1)
	if next.Acceleration != 1 {
		t.Fatalf("unexpected acceleration: got %d want 1", next.Acceleration)
	}
}

func TestSpeedIntegratesPreviousAcceleration(t *testing.T) {
	current := VehicleState{Acceleration: 1, Speed: 0}
	next := Update(current, 0)
	if next.Speed != 1 {
		t.Fatalf("unexpected speed: got %d want 1", next.Speed)
	}
}

func TestPositionIntegratesPreviousSpeed(t *testing.T) {
	current := VehicleState{Speed: 1, Position: 1}
	next := Update(current, 0)
	if next.Position != 2 {
		t.Fatalf("unexpected position: got %d want 2", next.Position)
	}
}

func TestThrottleHasNoImmediateEffectOnSpeedOrPosition(t *testing.T) {
	next := Update(VehicleState{}, 1)
	if next.Speed != 0 || next.Position != 0 {
		t.Fatalf("throttle leaked into same tick: speed %d position %d", next.Speed, next.Position)
	}
}

func TestSpeedNeverGoesNegative(t *testing.T) {
	cases := []struct {
		name    string
		current VehicleState
	}{
		{"hard brake from rest", VehicleState{Acceleration: -50, Speed: 0}},
		{"brake exceeds speed", VehicleState{Acceleration: -10, Speed: 3}},
		{"minimum acceleration", VehicleState{Acceleration: math.MinInt32, Speed: 100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next := Update(tc.current, 0)
			if next.Speed < 0 {
				t.Fatalf("negative speed %d", next.Speed)
			}
		})
	}
}

func TestLostWhenPastGoalEnd(t *testing.T) {
	next := Update(VehicleState{Position: 2, GoalEnd: 1}, 0)
	if !next.Lost {
		t.Fatal("expected lost flag")
	}
}

func TestNotLostBeforeGoalEnd(t *testing.T) {
	next := Update(VehicleState{Position: 1, GoalEnd: 2}, 0)
	if next.Lost {
		t.Fatal("unexpected lost flag")
	}
}

func TestWonWhenStoppedInsideGoalWindow(t *testing.T) {
	next := Update(VehicleState{GoalStart: 1, GoalEnd: 3, Position: 2, Speed: 0}, 0)
	if !next.Won {
		t.Fatal("expected won flag")
	}
}

func TestNotWonOnGoalBoundary(t *testing.T) {
	for _, position := range []int32{1, 3} {
		next := Update(VehicleState{GoalStart: 1, GoalEnd: 3, Position: position, Speed: 0}, 0)
		if next.Won {
			t.Fatalf("won on boundary position %d", position)
		}
	}
}

func TestNotWonWhileMoving(t *testing.T) {
	next := Update(VehicleState{GoalStart: 1, GoalEnd: 3, Position: 2, Speed: 1}, 0)
	if next.Won {
		t.Fatal("won while still moving")
	}
}

func TestFlagsAreNotSticky(t *testing.T) {
	// A vehicle at rest inside the window wins, then an overdue pre-tick
	// position from a later state clears the flag again.
	won := Update(VehicleState{GoalStart: 1, GoalEnd: 3, Position: 2, Speed: 0, Won: true}, 5)
	if !won.Won {
		t.Fatal("expected won flag")
	}
	moving := Update(VehicleState{GoalStart: 1, GoalEnd: 3, Position: 2, Speed: 2, Won: true}, 0)
	if moving.Won {
		t.Fatal("won flag should recompute to false once moving")
	}
	recovered := Update(VehicleState{GoalEnd: 3, Position: 2, Lost: true}, 0)
	if recovered.Lost {
		t.Fatal("lost flag should recompute to false behind goal end")
	}
}

func TestGoalWindowCarriedThrough(t *testing.T) {
	next := Update(VehicleState{GoalStart: 1, GoalEnd: 2}, 7)
	if next.GoalStart != 1 || next.GoalEnd != 2 {
		t.Fatalf("goal window changed: got [%d, %d]", next.GoalStart, next.GoalEnd)
	}
}

func TestAdditionSaturatesInsteadOfWrapping(t *testing.T) {
	high := Update(VehicleState{Position: math.MaxInt32, Speed: 10, GoalEnd: 100}, 0)
	if high.Position != math.MaxInt32 {
		t.Fatalf("position wrapped to %d", high.Position)
	}
	fast := Update(VehicleState{Speed: math.MaxInt32, Acceleration: 1}, 0)
	if fast.Speed != math.MaxInt32 {
		t.Fatalf("speed wrapped to %d", fast.Speed)
	}
}

func TestNewStateDefaults(t *testing.T) {
	state := NewState()
	want := VehicleState{GoalStart: 9000, GoalEnd: 10000}
	if state != want {
		t.Fatalf("unexpected initial state: %+v", state)
	}
}

func TestNewStateExtendedVariant(t *testing.T) {
	state := NewState(WithStartPosition(StartPositionExtended))
	if state.Position != 500 {
		t.Fatalf("unexpected spawn position: got %d want 500", state.Position)
	}
	if state.GoalStart != 9000 || state.GoalEnd != 10000 {
		t.Fatalf("goal window changed: [%d, %d]", state.GoalStart, state.GoalEnd)
	}
}

func TestNewStateCustomGoalWindow(t *testing.T) {
	state := NewState(WithGoalWindow(100, 200))
	if state.GoalStart != 100 || state.GoalEnd != 200 {
		t.Fatalf("unexpected goal window: [%d, %d]", state.GoalStart, state.GoalEnd)
	}
}

func TestFullSessionReachesGoal(t *testing.T) {
	// Accelerate, coast, then brake to rest inside the window and verify the
	// win shows up on the tick after the stop settles.
	state := NewState()
	for i := 0; i < 3; i++ {
		state = Update(state, 30)
	}
	for state.Position < 8800 && !state.Lost {
		state = Update(state, 0)
	}
	for state.Speed > 0 {
		state = Update(state, -30)
	}
	state = Update(state, 0)
	if state.Lost {
		t.Fatalf("overshot the goal window at %d", state.Position)
	}
	if !state.Won {
		t.Fatalf("expected win at rest: %+v", state)
	}
}
