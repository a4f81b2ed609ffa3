// Package tracker wires command ingest, periodic kinematics, state
// persistence, and pose fan-out together for every configured robot.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"armtracker/internal/arm"
	"armtracker/internal/platform/config"
	"armtracker/internal/platform/logger"
	"armtracker/internal/platform/metrics"
	"armtracker/internal/robot"
	"armtracker/internal/store"
	"armtracker/internal/transport"
)

// ErrUnknownRobot is returned by StopRobot for an id the tracker does not own.
var ErrUnknownRobot = errors.New("unknown robot")

// runner bundles everything the tracker owns for one robot: its state, the
// cancel handles for its two loops, and the channels those loops close on
// exit.
type runner struct {
	state *robot.State

	ingestCancel context.CancelFunc
	tickCancel   context.CancelFunc
	ingestDone   chan struct{}
	tickDone     chan struct{}
}

// stop shuts the runner down in order: ingest first so no new mutations
// arrive, then the scheduler, draining any in-flight tick.
func (r *runner) stop() {
	r.ingestCancel()
	<-r.ingestDone
	r.tickCancel()
	<-r.tickDone
}

// alive reports whether both of the runner's loops are still running.
func (r *runner) alive() bool {
	select {
	case <-r.ingestDone:
		return false
	default:
	}
	select {
	case <-r.tickDone:
		return false
	default:
	}
	return true
}

// Tracker owns the set of tracked robots and their lifecycles. Transport and
// store are injected collaborators; the tracker never opens or closes their
// connections.
type Tracker struct {
	transport transport.Transport
	store     store.Store
	log       *slog.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	robots   map[string]*runner
	started  bool
	starting bool
}

// New returns a Tracker using the given collaborators.
func New(tr transport.Transport, st store.Store, log *slog.Logger, met *metrics.Metrics) *Tracker {
	return &Tracker{
		transport: tr,
		store:     st,
		log:       log,
		metrics:   met,
		robots:    make(map[string]*runner),
	}
}

// Start constructs each configured robot, restores its last-known state from
// the store, and starts its ingest and scheduler loops. ctx bounds the
// startup work only; the loops run until Stop. Any single robot failing to
// construct fails the whole start.
func (t *Tracker) Start(ctx context.Context, robots []config.RobotConfig) error {
	t.mu.Lock()
	if t.started || t.starting {
		t.mu.Unlock()
		return errors.New("tracker already started")
	}
	t.starting = true
	t.mu.Unlock()

	// Construction touches the store, a network call on some backends, so it
	// runs outside the lock; Healthy() keeps answering false in the meantime.
	started := make(map[string]*runner, len(robots))
	for _, cfg := range robots {
		r, err := t.startRobot(ctx, cfg)
		if err != nil {
			for _, s := range started {
				s.stop()
			}
			t.mu.Lock()
			t.starting = false
			t.mu.Unlock()
			return fmt.Errorf("start robot %q: %w", cfg.ID, err)
		}
		started[cfg.ID] = r
	}

	t.mu.Lock()
	t.robots = started
	t.started = true
	t.starting = false
	t.mu.Unlock()

	t.metrics.SetActiveRobots(len(started))
	t.log.Info("tracker started", slog.Int("robots", len(started)))
	return nil
}

func (t *Tracker) startRobot(ctx context.Context, cfg config.RobotConfig) (*runner, error) {
	topo, err := arm.NewTopology(cfg.Topology.JointLengths)
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}

	state := robot.NewState(cfg.ID, topo)
	log := logger.ForRobot(t.log, cfg.ID)

	rec, err := t.store.Load(ctx, cfg.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Info("no stored state, starting from defaults")
	case err != nil:
		return nil, fmt.Errorf("load state: %w", err)
	default:
		if err := state.Restore(rec.Angles, rec.Version, rec.Timestamp); err != nil {
			log.Warn("stored state does not fit topology, starting from defaults",
				slog.String("error", err.Error()))
		} else {
			log.Info("state restored", slog.Uint64("version", rec.Version))
		}
	}

	ingestCtx, ingestCancel := context.WithCancel(context.Background())
	deliveries, err := t.transport.Subscribe(ingestCtx, cfg.InboundTopic)
	if err != nil {
		ingestCancel()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.InboundTopic, err)
	}
	tickCtx, tickCancel := context.WithCancel(context.Background())

	r := &runner{
		state:        state,
		ingestCancel: ingestCancel,
		tickCancel:   tickCancel,
		ingestDone:   make(chan struct{}),
		tickDone:     make(chan struct{}),
	}

	in := &ingester{state: state, log: log, metrics: t.metrics}
	go func() {
		defer close(r.ingestDone)
		in.run(ingestCtx, deliveries)
	}()

	sched := &scheduler{
		state:    state,
		store:    t.store,
		interval: cfg.TickInterval(),
		log:      log,
		metrics:  t.metrics,
		fanout: &fanout{
			transport: t.transport,
			topics:    cfg.OutboundTopics,
			log:       log,
			metrics:   t.metrics,
		},
	}
	go func() {
		defer close(r.tickDone)
		sched.run(tickCtx)
	}()

	log.Info("robot tracking started",
		slog.Int("joints", topo.Joints()),
		slog.String("inbound_topic", cfg.InboundTopic),
		slog.Any("outbound_topics", cfg.OutboundTopics))
	return r, nil
}

// StopRobot stops tracking a single robot. Other robots keep running
// undisturbed.
func (t *Tracker) StopRobot(id string) error {
	t.mu.Lock()
	r, ok := t.robots[id]
	if ok {
		delete(t.robots, id)
	}
	remaining := len(t.robots)
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRobot, id)
	}

	r.stop()
	t.metrics.SetActiveRobots(remaining)
	t.log.Info("robot tracking stopped", slog.String("robot_id", id))
	return nil
}

// Stop shuts down all robots: every ingest loop first, so no new mutations
// arrive, then every scheduler, draining in-flight ticks. Safe to call more
// than once.
func (t *Tracker) Stop() {
	t.mu.Lock()
	robots := t.robots
	t.robots = make(map[string]*runner)
	t.started = false
	t.mu.Unlock()

	for _, r := range robots {
		r.ingestCancel()
		<-r.ingestDone
	}
	for _, r := range robots {
		r.tickCancel()
		<-r.tickDone
	}

	t.metrics.SetActiveRobots(0)
	if len(robots) > 0 {
		t.log.Info("tracker stopped")
	}
}

// Healthy reports whether the tracker has started and every robot's ingest
// and scheduler loops are still running. An external health server polls
// this; the tracker owns no HTTP transport of its own.
func (t *Tracker) Healthy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return false
	}
	for _, r := range t.robots {
		if !r.alive() {
			return false
		}
	}
	return true
}

// ActiveRobots returns how many robots are currently tracked. Used to refresh
// the metrics gauge on scrape.
func (t *Tracker) ActiveRobots() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.robots)
}
