package main

import (
	"throttlerun/broker/internal/camera"
	"throttlerun/broker/internal/config"
	"throttlerun/broker/internal/sim"
)

// session owns the authoritative game state for one connected client: the
// vehicle state machine plus the camera the renderer reads from. Only the
// broker tick loop touches a session, so no locking happens here.
type session struct {
	state    sim.VehicleState
	cam      *camera.Camera
	throttle int32
	tick     uint64
}

// stateFrame is the per-tick payload delivered to the owning client.
type stateFrame struct {
	Type           string           `json:"type"`
	Tick           uint64           `json:"tick"`
	State          sim.VehicleState `json:"state"`
	CameraPosition int32            `json:"camera_position"`
	ScreenPosition int32            `json:"screen_position"`
}

// newSession builds the session-start state for the configured deployment
// variant and camera dimensions.
func newSession(cfg *config.Config) (*session, error) {
	cam, err := camera.New(cfg.CameraScreenSize, cfg.CameraWorldSize)
	if err != nil {
		return nil, err
	}
	return &session{
		state: sim.NewState(sim.WithStartPosition(cfg.StartPosition())),
		cam:   cam,
	}, nil
}

// setThrottle records the latest accepted throttle. It takes effect on the
// next tick and stays in force until replaced, matching how a held pedal
// behaves between input events.
func (s *session) setThrottle(throttle int32) {
	s.throttle = throttle
}

// advance runs one simulation tick and returns the frame for the client.
// The camera trails the vehicle, closing half the remaining gap per tick, so
// the projected position drifts toward screen centre while the vehicle moves.
func (s *session) advance() stateFrame {
	s.state = sim.Update(s.state, s.throttle)
	s.tick++

	s.cam.WorldPosition += (s.state.Position - s.cam.WorldPosition) / 2

	return stateFrame{
		Type:           "state",
		Tick:           s.tick,
		State:          s.state,
		CameraPosition: s.cam.WorldPosition,
		ScreenPosition: s.cam.Project(s.state.Position),
	}
}
