package tracker

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"armtracker/internal/arm"
)

func TestDecodeCommand(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		id, cmd, err := DecodeCommand([]byte(`{"id":"r1","angles":{"0":1.5707,"1":0}}`))
		if err != nil {
			t.Fatalf("DecodeCommand: %v", err)
		}
		if id != "r1" {
			t.Errorf("id: got %q", id)
		}
		if len(cmd) != 2 || cmd[0] != 1.5707 || cmd[1] != 0 {
			t.Errorf("command: got %v", cmd)
		}
	})

	t.Run("partial", func(t *testing.T) {
		_, cmd, err := DecodeCommand([]byte(`{"id":"r1","angles":{"1":-2.5}}`))
		if err != nil {
			t.Fatalf("DecodeCommand: %v", err)
		}
		if len(cmd) != 1 || cmd[1] != -2.5 {
			t.Errorf("command: got %v", cmd)
		}
	})

	for name, body := range map[string]string{
		"not_json":        `{angles`,
		"no_angles":       `{"id":"r1"}`,
		"empty_angles":    `{"id":"r1","angles":{}}`,
		"non_numeric_key": `{"id":"r1","angles":{"elbow":1.0}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeCommand([]byte(body))
			if !errors.Is(err, ErrDecode) {
				t.Errorf("expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestEncodePose(t *testing.T) {
	topo, err := arm.NewTopology([]float64{6.0, 6.0})
	if err != nil {
		t.Fatal(err)
	}
	pose, err := arm.ComputePose(topo, []float64{math.Pi / 2, 0})
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2025, 3, 1, 12, 0, 0, 42, time.UTC)

	payload, err := EncodePose("r1", pose, 7, ts)
	if err != nil {
		t.Fatalf("EncodePose: %v", err)
	}

	var msg PoseMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("round-trip: %v", err)
	}
	if msg.ID != "r1" || msg.Version != 7 {
		t.Errorf("header: got %+v", msg)
	}
	if msg.MessageID == "" {
		t.Error("missing message id")
	}
	if msg.Timestamp != ts.UnixNano() {
		t.Errorf("timestamp: got %d, want %d", msg.Timestamp, ts.UnixNano())
	}
	if len(msg.Joints) != 2 {
		t.Fatalf("joints: got %d, want 2", len(msg.Joints))
	}
	if math.Abs(msg.Gripper[1]-12.0) > 1e-9 {
		t.Errorf("gripper y: got %v, want 12", msg.Gripper[1])
	}
	if msg.Gripper != msg.Joints[1] {
		t.Errorf("gripper %v should equal last joint %v", msg.Gripper, msg.Joints[1])
	}
}

func TestEncodePose_freshMessageIDs(t *testing.T) {
	topo, _ := arm.NewTopology([]float64{1.0})
	pose, _ := arm.ComputePose(topo, []float64{0})

	first, _ := EncodePose("r1", pose, 1, time.Now())
	second, _ := EncodePose("r1", pose, 1, time.Now())

	var a, b PoseMessage
	_ = json.Unmarshal(first, &a)
	_ = json.Unmarshal(second, &b)
	if a.MessageID == b.MessageID {
		t.Error("message ids should differ between publishes")
	}
}
