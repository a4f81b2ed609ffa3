package robot

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"armtracker/internal/arm"
)

// ErrInvalidJoint is returned when a command names a joint index outside the
// robot's topology. The whole command is rejected; no angle changes.
var ErrInvalidJoint = errors.New("joint index out of range")

// ErrEmptyCommand is returned when a command names no joints at all.
var ErrEmptyCommand = errors.New("command names no joints")

// Command maps joint indices to absolute target angles in radians. Partial
// commands (a subset of joints) are legal and leave unnamed joints untouched.
type Command map[int]float64

// State is the mutable, versioned angle state of one tracked robot. All access
// goes through ApplyCommand and Snapshot; both hold the robot's own lock, so
// two robots never contend with each other.
type State struct {
	id   string
	topo arm.Topology

	mu        sync.Mutex
	angles    []float64
	version   uint64
	updatedAt time.Time
}

// NewState returns a State with all angles at zero and version 0.
func NewState(id string, topo arm.Topology) *State {
	return &State{
		id:        id,
		topo:      topo,
		angles:    make([]float64, topo.Joints()),
		updatedAt: time.Now().UTC(),
	}
}

// ID returns the robot identifier.
func (s *State) ID() string {
	return s.id
}

// Topology returns the robot's arm topology.
func (s *State) Topology() arm.Topology {
	return s.topo
}

// ApplyCommand applies cmd atomically: all named joints are validated before
// any angle changes, so an out-of-range index leaves the state untouched.
// The version counter advances exactly once per accepted command, giving
// applied commands a total order independent of message arrival order.
func (s *State) ApplyCommand(cmd Command) (uint64, error) {
	if len(cmd) == 0 {
		return 0, ErrEmptyCommand
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for idx := range cmd {
		if idx < 0 || idx >= len(s.angles) {
			return 0, fmt.Errorf("%w: joint %d of %d", ErrInvalidJoint, idx, len(s.angles))
		}
	}
	for idx, angle := range cmd {
		s.angles[idx] = angle
	}
	s.version++
	s.updatedAt = time.Now().UTC()
	return s.version, nil
}

// Snapshot returns a consistent point-in-time copy of the angles together with
// the version that produced them and the last-update timestamp. The returned
// slice is owned by the caller.
func (s *State) Snapshot() (angles []float64, version uint64, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	angles = make([]float64, len(s.angles))
	copy(angles, s.angles)
	return angles, s.version, s.updatedAt
}

// Restore seeds the state from a persisted record, typically once at startup
// before any ingest or ticking runs. Angle sequences of the wrong arity are
// rejected so a topology change in configuration does not resurrect stale
// joint data.
func (s *State) Restore(angles []float64, version uint64, updatedAt time.Time) error {
	if len(angles) != s.topo.Joints() {
		return fmt.Errorf("%w: %d stored angles for %d joints", arm.ErrAngleCount, len(angles), s.topo.Joints())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.angles, angles)
	s.version = version
	s.updatedAt = updatedAt
	return nil
}
