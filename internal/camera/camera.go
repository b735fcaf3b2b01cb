// Package camera maps world coordinates onto a fixed-width screen. It is a
// rendering helper only; nothing here feeds back into the simulation.
package camera

import (
	"fmt"
	"math"
)

// Camera anchors a world window of WorldSize units onto a viewport of
// ScreenSize units. WorldPosition is the camera's own anchor in world
// coordinates; the host moves it between projection calls, Project only
// reads it.
type Camera struct {
	ScreenSize    int32 `json:"screen_size"`
	WorldSize     int32 `json:"world_size"`
	WorldPosition int32 `json:"world_position"`
}

// New constructs a camera at world position 0. A zero worldSize would divide
// by zero in Project, so it is rejected here rather than papered over later.
func New(screenSize, worldSize int32) (*Camera, error) {
	if worldSize == 0 {
		return nil, fmt.Errorf("camera world size must be non-zero")
	}
	return &Camera{ScreenSize: screenSize, WorldSize: worldSize}, nil
}

// Project maps a world coordinate to a screen coordinate:
//
//	screen = ScreenSize * (WorldPosition + WorldSize/2 - world) / WorldSize
//
// The camera's own position lands at ScreenSize/2 and a target WorldSize/2
// units ahead lands at 0, so the axis runs mirrored across the screen. All
// division truncates toward zero, which Go's integer division already does;
// the intermediate product is widened to 64 bits and the result saturates at
// the int32 bounds instead of wrapping.
func (c *Camera) Project(worldPosition int32) int32 {
	offset := int64(c.WorldPosition) + int64(c.WorldSize/2) - int64(worldPosition)
	scaled := int64(c.ScreenSize) * offset / int64(c.WorldSize)
	if scaled > math.MaxInt32 {
		return math.MaxInt32
	}
	if scaled < math.MinInt32 {
		return math.MinInt32
	}
	return int32(scaled)
}
