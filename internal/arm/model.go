package arm

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoJoints is returned when a topology is constructed with no segments.
	ErrNoJoints = errors.New("topology needs at least one segment")

	// ErrBadLength is returned when a topology is constructed with a segment
	// length that is not strictly positive.
	ErrBadLength = errors.New("segment length must be > 0")

	// ErrAngleCount is returned by ComputePose when the angle sequence does not
	// match the topology's joint count.
	ErrAngleCount = errors.New("angle count does not match joint count")
)

// Topology describes the fixed geometry of a planar arm: an ordered chain of
// segment lengths, first entry shoulder-to-elbow, last entry elbow-to-gripper.
// A Topology never changes after construction and is safe to share across
// goroutines.
type Topology struct {
	lengths []float64
}

// NewTopology validates the segment lengths and returns a Topology.
// Every length must be strictly positive.
func NewTopology(lengths []float64) (Topology, error) {
	if len(lengths) == 0 {
		return Topology{}, ErrNoJoints
	}
	for i, l := range lengths {
		if l <= 0 {
			return Topology{}, fmt.Errorf("segment %d: %w (got %v)", i, ErrBadLength, l)
		}
	}
	own := make([]float64, len(lengths))
	copy(own, lengths)
	return Topology{lengths: own}, nil
}

// Joints returns the number of rotational joints in the chain.
func (t Topology) Joints() int {
	return len(t.lengths)
}

// Lengths returns a copy of the segment lengths.
func (t Topology) Lengths() []float64 {
	out := make([]float64, len(t.lengths))
	copy(out, t.lengths)
	return out
}

// Point is a 2D position in the arm's base frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pose is the computed set of joint positions for one instant. Joints holds
// one position per joint, in chain order; Gripper is the end-effector position
// and always equals the last joint position.
type Pose struct {
	Joints  []Point
	Gripper Point
}

// ComputePose runs forward kinematics for the chain: each joint's angle is
// relative to the previous link, so joint i sits at cumulative rotation
// Σ angles[0..i] from the base at the origin. It is a pure function of its
// inputs. NaN or extreme angles are not rejected; they propagate into the
// Pose unchanged.
func ComputePose(t Topology, angles []float64) (Pose, error) {
	if len(t.lengths) == 0 {
		return Pose{}, ErrNoJoints
	}
	if len(angles) != len(t.lengths) {
		return Pose{}, fmt.Errorf("%w: %d angles for %d joints", ErrAngleCount, len(angles), len(t.lengths))
	}

	joints := make([]Point, len(t.lengths))
	var cum float64
	var cur Point
	for i, l := range t.lengths {
		cum += angles[i]
		cur.X += l * math.Cos(cum)
		cur.Y += l * math.Sin(cum)
		joints[i] = cur
	}

	return Pose{Joints: joints, Gripper: joints[len(joints)-1]}, nil
}
