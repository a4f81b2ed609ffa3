package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"armtracker/internal/platform/metrics"
	"armtracker/internal/transport"
)

// publishTimeout bounds how long one topic's publish may ride out transport
// backpressure before the attempt is abandoned.
const publishTimeout = 2 * time.Second

// TopicResult is the outcome of one topic's publish attempt.
type TopicResult struct {
	Topic string
	Err   error
}

// fanout delivers one encoded pose to every configured outbound topic. Topics
// are independent: one topic's failure never prevents delivery attempts to
// the others, and every failure is reported with the topic attached.
type fanout struct {
	transport transport.Transport
	topics    []string
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// publish submits payload to every topic concurrently and waits for all
// attempts, each bounded by publishTimeout. Failures are logged and counted
// per topic and returned to the caller.
func (f *fanout) publish(ctx context.Context, robotID string, payload []byte) []TopicResult {
	if len(f.topics) == 0 {
		return nil
	}

	results := make([]TopicResult, len(f.topics))
	var wg sync.WaitGroup
	for i, topic := range f.topics {
		wg.Add(1)
		go func(i int, topic string) {
			defer wg.Done()
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			defer cancel()
			results[i] = TopicResult{Topic: topic, Err: f.transport.Publish(pubCtx, topic, payload)}
		}(i, topic)
	}
	wg.Wait()

	for _, res := range results {
		if res.Err != nil {
			f.log.Error("pose publish failed",
				slog.String("robot_id", robotID),
				slog.String("topic", res.Topic),
				slog.String("error", res.Err.Error()))
			f.metrics.IncPublishErrors(res.Topic)
		}
	}
	return results
}
