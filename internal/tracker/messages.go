package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"armtracker/internal/arm"
	"armtracker/internal/robot"
)

// ErrDecode is returned when an inbound payload cannot be decoded into a
// joint command. Such messages are dropped, never retried.
var ErrDecode = errors.New("cannot decode command message")

// CommandMessage is the inbound wire format: absolute target angles in
// radians, keyed by decimal joint index.
type CommandMessage struct {
	ID     string             `json:"id"`
	Angles map[string]float64 `json:"angles"`
}

// PoseMessage is the outbound wire format published on every tick. Joints are
// ordered base-to-gripper as [x, y] pairs; Timestamp is nanoseconds since the
// Unix epoch.
type PoseMessage struct {
	MessageID string       `json:"message_id"`
	ID        string       `json:"id"`
	Joints    [][2]float64 `json:"joints"`
	Gripper   [2]float64   `json:"gripper"`
	Version   uint64       `json:"version"`
	Timestamp int64        `json:"timestamp"`
}

// DecodeCommand parses an inbound payload into the sender's robot id and a
// joint command. Any malformed payload, including non-numeric joint keys,
// reports ErrDecode.
func DecodeCommand(body []byte) (string, robot.Command, error) {
	var msg CommandMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(msg.Angles) == 0 {
		return "", nil, fmt.Errorf("%w: no angles", ErrDecode)
	}

	cmd := make(robot.Command, len(msg.Angles))
	for key, angle := range msg.Angles {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return "", nil, fmt.Errorf("%w: joint key %q", ErrDecode, key)
		}
		cmd[idx] = angle
	}
	return msg.ID, cmd, nil
}

// EncodePose builds the outbound payload for one computed pose. Every message
// gets a fresh message id so downstream consumers can deduplicate.
func EncodePose(robotID string, pose arm.Pose, version uint64, ts time.Time) ([]byte, error) {
	joints := make([][2]float64, len(pose.Joints))
	for i, p := range pose.Joints {
		joints[i] = [2]float64{p.X, p.Y}
	}
	msg := PoseMessage{
		MessageID: uuid.NewString(),
		ID:        robotID,
		Joints:    joints,
		Gripper:   [2]float64{pose.Gripper.X, pose.Gripper.Y},
		Version:   version,
		Timestamp: ts.UnixNano(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode pose for %s: %w", robotID, err)
	}
	return payload, nil
}
