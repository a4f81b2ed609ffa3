package tracker

import (
	"context"
	"errors"
	"log/slog"

	"armtracker/internal/platform/metrics"
	"armtracker/internal/robot"
	"armtracker/internal/transport"
)

// ingester drains one robot's inbound subscription and applies decoded
// commands to its state. Nothing in this path touches the network or the
// store, so the transport's delivery loop is never held up beyond
// decode + apply.
type ingester struct {
	state   *robot.State
	log     *slog.Logger
	metrics *metrics.Metrics
}

// run consumes deliveries until the channel closes or ctx is cancelled.
// Malformed messages are dropped and counted; they cannot become well-formed
// by retrying. Rejected commands (out-of-range joint) leave state untouched.
func (in *ingester) run(ctx context.Context, deliveries <-chan transport.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			in.handle(d)
		}
	}
}

func (in *ingester) handle(d transport.Delivery) {
	senderID, cmd, err := DecodeCommand(d.Body)
	if err != nil {
		in.log.Warn("dropping undecodable command",
			slog.String("topic", d.Topic),
			slog.String("error", err.Error()))
		in.metrics.IncCommandDecodeErrors()
		return
	}

	// The inbound topic is per robot, but a message that names a different
	// robot is misrouted rather than malformed; drop it the same way.
	if senderID != "" && senderID != in.state.ID() {
		in.log.Warn("dropping command for different robot",
			slog.String("topic", d.Topic),
			slog.String("sender_id", senderID))
		in.metrics.IncCommandDecodeErrors()
		return
	}

	version, err := in.state.ApplyCommand(cmd)
	if err != nil {
		if errors.Is(err, robot.ErrInvalidJoint) || errors.Is(err, robot.ErrEmptyCommand) {
			in.log.Warn("command rejected", slog.String("error", err.Error()))
			in.metrics.IncCommandsRejected()
			return
		}
		in.log.Error("apply command failed", slog.String("error", err.Error()))
		in.metrics.IncCommandsRejected()
		return
	}

	in.log.Debug("command applied",
		slog.Int("joints", len(cmd)),
		slog.Uint64("version", version))
	in.metrics.IncCommandsApplied()
}
