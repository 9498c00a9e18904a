// Package scheduler drives the tick loop: it owns the affect engine and the
// pipeline and advances one sub-step per dwell on an affect-modulated cadence.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/bus"
	tickerr "github.com/danielpatrickdp/affect-tick/internal/errors"
	"github.com/danielpatrickdp/affect-tick/internal/pipeline"
)

// #region types
// CompletionHandler receives pipeline output. Complete runs on the tick
// goroutine and must not block; Supersede cancels work for a dropped event.
type CompletionHandler interface {
	Complete(ctx context.Context, a pipeline.Annotated)
	Supersede(eventID string)
}

// TickContext describes where the loop is. Readers get copies.
type TickContext struct {
	EventID       string
	Tick          uint64
	ElapsedTicks  int
	Stage         pipeline.Stage
	Phase         pipeline.Phase
	SubStep       pipeline.SubStep
	RequiredTicks int
	Budget        Budget
	Interval      time.Duration
	QueueDepth    int
}

// PhaseChange is the payload of bus.PhaseChanged.
type PhaseChange struct {
	Stage   pipeline.Stage
	SubStep pipeline.SubStep
}
// #endregion types

// #region scheduler
// Scheduler is the tick loop. Only the Run goroutine touches the engine and
// the pipeline; other goroutines talk to it through Submit and Stimulate.
type Scheduler struct {
	cfg     Config
	engine  *affect.Engine
	pipe    *pipeline.Pipeline
	handler CompletionHandler
	bus     *bus.Bus
	log     *zap.Logger

	events  chan pipeline.Event
	stimuli chan map[affect.Channel]float64

	// loop-owned
	urgent     []pipeline.Event
	queue      []pipeline.Event
	pending    map[affect.Channel]float64
	tick       uint64
	elapsed    int
	required   int
	budget     Budget
	sub        pipeline.SubStep
	dwell      int
	interval   time.Duration
	currentUrg bool

	// non-urgent events completed since the last urgent start; their
	// decisions may still be running downstream
	settled []string

	snap atomic.Pointer[affect.Snapshot]
	tctx atomic.Pointer[TickContext]
}

// New wires a scheduler. handler and b may be nil.
func New(cfg Config, engine *affect.Engine, pipe *pipeline.Pipeline, handler CompletionHandler, b *bus.Bus, log *zap.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil || pipe == nil {
		return nil, fmt.Errorf("scheduler: engine and pipeline are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		cfg:     cfg,
		engine:  engine,
		pipe:    pipe,
		handler: handler,
		bus:     b,
		log:     log.Named("sched"),
		events:  make(chan pipeline.Event, cfg.QueueSize),
		stimuli: make(chan map[affect.Channel]float64, cfg.StimulusBuffer),
	}
	snap := engine.Snapshot()
	s.snap.Store(&snap)
	s.interval = ComputeTickInterval(snap, cfg)
	s.publishContext()
	return s, nil
}

// SetHandler sets the completion handler. Call before Run.
func (s *Scheduler) SetHandler(h CompletionHandler) { s.handler = h }
// #endregion scheduler

// #region inputs
// Submit enqueues an event for perception. It never blocks. Events without
// an ID get one.
func (s *Scheduler) Submit(ev pipeline.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	select {
	case s.events <- ev:
		return nil
	default:
		return tickerr.Newf(tickerr.CodeRateLimited, "event inbox full (%d)", cap(s.events)).
			WithMetadata("event_id", ev.ID)
	}
}

// Stimulate enqueues affect deltas for the next tick. It never blocks.
func (s *Scheduler) Stimulate(deltas map[affect.Channel]float64) error {
	cp := make(map[affect.Channel]float64, len(deltas))
	for k, v := range deltas {
		cp[k] = v
	}
	select {
	case s.stimuli <- cp:
		return nil
	default:
		return tickerr.New(tickerr.CodeRateLimited, "stimulus inbox full")
	}
}

// Snapshot returns the latest published affect snapshot.
func (s *Scheduler) Snapshot() affect.Snapshot {
	return *s.snap.Load()
}

// Context returns the latest tick context.
func (s *Scheduler) Context() TickContext {
	return *s.tctx.Load()
}
// #endregion inputs

// #region run
// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("tick loop started", zap.Duration("interval", s.interval))
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("tick loop stopped", zap.Uint64("ticks", s.tick))
			return nil
		case <-timer.C:
			s.step(ctx)
			timer.Reset(s.interval)
		}
	}
}

// step performs one tick.
func (s *Scheduler) step(ctx context.Context) {
	s.tick++
	s.applyStimuli()
	snap := s.engine.Snapshot()
	s.snap.Store(&snap)

	s.drainEvents()
	s.maybePreempt()
	if s.pipe.Stage() == pipeline.Idle {
		s.startNext(snap)
	}
	if s.pipe.Stage() != pipeline.Idle {
		s.advance(ctx, snap)
	}

	s.interval = ComputeTickInterval(snap, s.cfg)
	s.publishContext()
	s.publish(bus.TickCompleted, s.pipe.EventID(), snap)
}

func (s *Scheduler) applyStimuli() {
	merged := s.pending
	s.pending = nil
drain:
	for {
		select {
		case d := <-s.stimuli:
			if merged == nil {
				merged = make(map[affect.Channel]float64, len(d))
			}
			for k, v := range d {
				merged[k] += v
			}
		default:
			break drain
		}
	}
	if err := s.engine.UpdateChannels(merged); err != nil {
		s.log.Warn("affect update", zap.Error(err))
	}
}

func (s *Scheduler) drainEvents() {
	for {
		select {
		case ev := <-s.events:
			s.enqueue(ev)
		default:
			return
		}
	}
}

func (s *Scheduler) enqueue(ev pipeline.Event) {
	if ev.Urgent {
		s.urgent = append(s.urgent, ev)
	} else {
		s.queue = append(s.queue, ev)
	}
	for len(s.urgent)+len(s.queue) > s.cfg.QueueSize {
		var dropped pipeline.Event
		if len(s.queue) > 0 {
			dropped, s.queue = s.queue[0], s.queue[1:]
		} else {
			dropped, s.urgent = s.urgent[0], s.urgent[1:]
		}
		s.log.Warn("event queue full, dropping oldest", zap.String("event_id", dropped.ID))
	}
}
// #endregion run

// #region event-lifecycle
// atBoundary reports whether the current event sits on a phase boundary:
// about to start perception or judgment.
func (s *Scheduler) atBoundary() bool {
	if s.dwell != 0 {
		return false
	}
	return s.sub == pipeline.Extroversion || s.sub == pipeline.Feeling
}

// maybePreempt supersedes a non-urgent event when an urgent one is waiting
// and the current event is on a phase boundary.
func (s *Scheduler) maybePreempt() {
	if len(s.urgent) == 0 || s.pipe.Stage() == pipeline.Idle || s.currentUrg || !s.atBoundary() {
		return
	}
	id := s.pipe.Abort()
	s.log.Info("event superseded",
		zap.String("event_id", id),
		zap.String("by", s.urgent[0].ID),
		zap.String("at", s.sub.String()))
	if s.handler != nil {
		s.handler.Supersede(id)
	}
	s.publish(bus.EventSuperseded, id, s.urgent[0].ID)
}

func (s *Scheduler) startNext(snap affect.Snapshot) {
	var ev pipeline.Event
	switch {
	case len(s.urgent) > 0:
		ev, s.urgent = s.urgent[0], s.urgent[1:]
	case len(s.queue) > 0:
		ev, s.queue = s.queue[0], s.queue[1:]
	default:
		return
	}
	if err := s.pipe.Begin(ev, snap); err != nil {
		s.log.Error("begin event", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}
	s.currentUrg = ev.Urgent
	if ev.Urgent {
		s.supersedeSettled(ev.ID)
	}
	s.required = RequiredTicks(snap, s.cfg)
	s.budget = Allocate(s.required, s.cfg.PerceptionShare)
	s.elapsed = 0
	s.sub = pipeline.Extroversion
	s.dwell = 0
	s.log.Debug("event started",
		zap.String("event_id", ev.ID),
		zap.Bool("urgent", ev.Urgent),
		zap.Int("required_ticks", s.required))
	s.publish(bus.PhaseChanged, ev.ID, PhaseChange{Stage: pipeline.Perceiving, SubStep: s.sub})
}

// advance spends one tick on the current sub-step. The sub-step executes on
// the first tick of its dwell; the rest of the dwell is the affect-scaled
// thinking time.
func (s *Scheduler) advance(ctx context.Context, snap affect.Snapshot) {
	if s.dwell == 0 {
		if _, err := s.pipe.Step(ctx, snap); err != nil {
			s.log.Error("pipeline step", zap.Error(err))
		}
	}
	s.dwell++
	s.elapsed++
	if s.dwell < s.budget[s.sub] {
		return
	}

	s.dwell = 0
	if s.sub == pipeline.Closure {
		s.complete(ctx)
		return
	}
	s.sub++
	if s.sub == pipeline.Feeling {
		s.publish(bus.PhaseChanged, s.pipe.EventID(), PhaseChange{Stage: pipeline.Judging, SubStep: s.sub})
	}
}

func (s *Scheduler) complete(ctx context.Context) {
	out, err := s.pipe.Finish()
	if err != nil {
		s.log.Error("finish event", zap.Error(err))
		s.pipe.Abort()
		return
	}
	if len(out.Stimulus) > 0 {
		s.pending = make(map[affect.Channel]float64, len(out.Stimulus))
		for k, v := range out.Stimulus {
			s.pending[k] = v
		}
	}
	s.log.Debug("event complete",
		zap.String("event_id", out.Event.ID),
		zap.String("intent", string(out.Intent)),
		zap.Int("elapsed_ticks", s.elapsed),
		zap.Int("skipped", len(out.Skipped)))
	s.publish(bus.PhaseChanged, out.Event.ID, PhaseChange{Stage: pipeline.Complete, SubStep: pipeline.Closure})
	if !s.currentUrg {
		s.settled = append(s.settled, out.Event.ID)
		if len(s.settled) > s.cfg.QueueSize {
			s.settled = s.settled[1:]
		}
	}
	s.currentUrg = false
	if s.handler != nil {
		s.handler.Complete(ctx, out)
	}
}
// supersedeSettled hands every settled non-urgent event to the handler so
// decisions still in flight for them are cancelled. Finished ones are no-ops.
func (s *Scheduler) supersedeSettled(by string) {
	if s.handler != nil {
		for _, id := range s.settled {
			s.handler.Supersede(id)
		}
	}
	if len(s.settled) > 0 {
		s.log.Debug("settled events superseded",
			zap.Strings("event_ids", s.settled),
			zap.String("by", by))
	}
	s.settled = s.settled[:0]
}
// #endregion event-lifecycle

// #region publish
func (s *Scheduler) publishContext() {
	tc := TickContext{
		EventID:       s.pipe.EventID(),
		Tick:          s.tick,
		ElapsedTicks:  s.elapsed,
		Stage:         s.pipe.Stage(),
		Phase:         s.sub.Phase(),
		SubStep:       s.sub,
		RequiredTicks: s.required,
		Budget:        s.budget,
		Interval:      s.interval,
		QueueDepth:    len(s.urgent) + len(s.queue),
	}
	s.tctx.Store(&tc)
}

func (s *Scheduler) publish(kind bus.Kind, eventID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Notification{Kind: kind, EventID: eventID, Payload: payload})
}
// #endregion publish
