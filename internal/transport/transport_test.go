package transport

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"
)

func recvOne(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	return Delivery{}
}

func TestInMemoryTransport_publishReachesSubscriber(t *testing.T) {
	tr := NewInMemoryTransport()
	defer tr.Close()
	ctx := context.Background()

	sub, err := tr.Subscribe(ctx, "robot.telemetry")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := tr.Publish(ctx, "robot.telemetry", []byte(`{"id":"r1"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	d := recvOne(t, sub)
	if d.Topic != "robot.telemetry" || string(d.Body) != `{"id":"r1"}` {
		t.Errorf("delivery: got %q on %q", d.Body, d.Topic)
	}
}

func TestInMemoryTransport_fanoutToAllSubscribers(t *testing.T) {
	tr := NewInMemoryTransport()
	defer tr.Close()
	ctx := context.Background()

	first, _ := tr.Subscribe(ctx, "visual")
	second, _ := tr.Subscribe(ctx, "visual")

	if err := tr.Publish(ctx, "visual", []byte("pose")); err != nil {
		t.Fatal(err)
	}

	if got := recvOne(t, first); string(got.Body) != "pose" {
		t.Errorf("first subscriber: got %q", got.Body)
	}
	if got := recvOne(t, second); string(got.Body) != "pose" {
		t.Errorf("second subscriber: got %q", got.Body)
	}
}

func TestInMemoryTransport_topicsAreIsolated(t *testing.T) {
	tr := NewInMemoryTransport()
	defer tr.Close()
	ctx := context.Background()

	other, _ := tr.Subscribe(ctx, "rmt_robot")

	if err := tr.Publish(ctx, "visual", []byte("pose")); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-other:
		t.Errorf("rmt_robot subscriber received %q published to visual", d.Body)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInMemoryTransport_publishWithoutSubscribers(t *testing.T) {
	tr := NewInMemoryTransport()
	defer tr.Close()

	if err := tr.Publish(context.Background(), "nobody", []byte("x")); err != nil {
		t.Errorf("publish to topic without subscribers should succeed: %v", err)
	}
}

func TestInMemoryTransport_subscriptionEndsOnCancel(t *testing.T) {
	tr := NewInMemoryTransport()
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := tr.Subscribe(ctx, "robot.telemetry")
	if err != nil {
		t.Fatal(err)
	}

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel not closed after cancel")
		}
	}
}

func TestInMemoryTransport_closeReleasesWatchers(t *testing.T) {
	before := runtime.NumGoroutine()

	tr := NewInMemoryTransport()
	// Background contexts are never cancelled, so only Close can release the
	// per-subscription watchers.
	for i := 0; i < 8; i++ {
		if _, err := tr.Subscribe(context.Background(), "t"); err != nil {
			t.Fatal(err)
		}
	}
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscription watchers still running after Close: %d goroutines, started with %d",
		runtime.NumGoroutine(), before)
}

func TestInMemoryTransport_closedTransportRejectsOps(t *testing.T) {
	tr := NewInMemoryTransport()

	sub, err := tr.Subscribe(context.Background(), "t")
	if err != nil {
		t.Fatal(err)
	}

	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}

	if _, ok := <-sub; ok {
		t.Error("subscription channel should be closed after Close")
	}
	if err := tr.Publish(context.Background(), "t", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close: expected ErrClosed, got %v", err)
	}
	if _, err := tr.Subscribe(context.Background(), "t"); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close: expected ErrClosed, got %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
