// Package cognition wires the tick loop, the inner dialogue, memory and the
// decision path into one runtime.
package cognition

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/affect-tick/internal/action"
	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/bus"
	"github.com/danielpatrickdp/affect-tick/internal/dialogue"
	tickerr "github.com/danielpatrickdp/affect-tick/internal/errors"
	"github.com/danielpatrickdp/affect-tick/internal/logging"
	"github.com/danielpatrickdp/affect-tick/internal/memory"
	"github.com/danielpatrickdp/affect-tick/internal/oracle"
	"github.com/danielpatrickdp/affect-tick/internal/pipeline"
	"github.com/danielpatrickdp/affect-tick/internal/scheduler"
)

// #region types
// DecisionLog records every decision made.
type DecisionLog interface {
	LogDecision(ctx context.Context, e logging.DecisionEntry) error
}

// Decision is the payload of bus.DecisionMade.
type Decision struct {
	EventID  string
	Response oracle.Response
	Ack      action.Ack
	Recalled int
}

// Components are the parts a Runtime drives. Oracle, Decisions and Watcher
// are optional.
type Components struct {
	Affect    *affect.Engine
	Scheduler *scheduler.Scheduler
	Dialogue  *dialogue.Engine
	Memory    *memory.Service
	Oracle    oracle.Client
	Router    *action.Router
	Decisions DecisionLog
	Watcher   *dialogue.RulesWatcher
	Bus       *bus.Bus
	Logger    *zap.Logger

	// BroadcastContext is how many recent broadcasts go to the oracle.
	BroadcastContext int
}

type inflight struct {
	cancel context.CancelFunc
}
// #endregion types

// #region runtime
// Runtime is the scheduler's completion handler and the owner of every
// long-running goroutine.
type Runtime struct {
	c   Components
	log *zap.Logger

	mu       sync.Mutex
	inflight map[string]*inflight
	wg       sync.WaitGroup
}

// New validates c and registers the runtime as the scheduler's handler.
func New(c Components) (*Runtime, error) {
	if c.Affect == nil || c.Scheduler == nil || c.Dialogue == nil || c.Memory == nil || c.Router == nil {
		return nil, fmt.Errorf("cognition: affect, scheduler, dialogue, memory and router are required")
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	r := &Runtime{
		c:        c,
		log:      c.Logger.Named("cognition"),
		inflight: make(map[string]*inflight),
	}
	c.Scheduler.SetHandler(r)
	return r, nil
}

// Submit hands an event to the tick loop.
func (r *Runtime) Submit(ev pipeline.Event) error { return r.c.Scheduler.Submit(ev) }

// Bus returns the notification bus, which may be nil.
func (r *Runtime) Bus() *bus.Bus { return r.c.Bus }

// Scheduler returns the tick loop.
func (r *Runtime) Scheduler() *scheduler.Scheduler { return r.c.Scheduler }

// Dialogue returns the inner dialogue engine.
func (r *Runtime) Dialogue() *dialogue.Engine { return r.c.Dialogue }

// Memory returns the memory service.
func (r *Runtime) Memory() *memory.Service { return r.c.Memory }

// Run loads long-term memory and runs every loop until ctx is cancelled or
// one of them fails. In-flight decisions are awaited before returning.
func (r *Runtime) Run(ctx context.Context) error {
	if _, err := r.c.Memory.Load(ctx); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.c.Scheduler.Run(gctx) })
	g.Go(func() error { return r.c.Dialogue.Run(gctx) })
	g.Go(func() error { return r.c.Memory.Run(gctx) })
	if r.c.Watcher != nil {
		g.Go(func() error { return r.c.Watcher.Run(gctx) })
	}
	r.log.Info("runtime started")
	err := g.Wait()
	r.wg.Wait()
	r.log.Info("runtime stopped")
	return err
}
// #endregion runtime

// #region completion
// Complete stores the perceived event as a memory, then starts the decision
// path on its own cancellable context. It runs on the tick goroutine and
// does not block.
func (r *Runtime) Complete(ctx context.Context, a pipeline.Annotated) {
	rec, err := r.c.Memory.Store(ctx, RecordFor(a))
	if err != nil {
		r.log.Warn("memory write failed", zap.String("event_id", a.Event.ID), zap.Error(err))
	}

	ectx, cancel := context.WithCancel(ctx)
	f := &inflight{cancel: cancel}
	r.mu.Lock()
	r.inflight[a.Event.ID] = f
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.forget(a.Event.ID, f)
		r.handle(ectx, a, rec.ID)
	}()
}

// Supersede cancels the decision path of eventID if one is running. Its
// memory has already been written and stays.
func (r *Runtime) Supersede(eventID string) {
	r.mu.Lock()
	f, ok := r.inflight[eventID]
	r.mu.Unlock()
	if !ok {
		r.log.Debug("superseded before completion", zap.String("event_id", eventID))
		return
	}
	f.cancel()
	r.log.Info("decision cancelled", zap.String("event_id", eventID))
}

func (r *Runtime) forget(id string, f *inflight) {
	f.cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[id] == f {
		delete(r.inflight, id)
	}
}

// InFlight returns the number of decisions still running.
func (r *Runtime) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// handle reflects and decides concurrently, then dispatches the decision.
func (r *Runtime) handle(ctx context.Context, a pipeline.Annotated, memoryID string) {
	var (
		resp     oracle.Response
		recalled int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.c.Dialogue.Reflect(ReflectRequest(a)); err != nil {
			r.log.Warn("reflection dropped", zap.String("event_id", a.Event.ID), zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		resp, recalled = r.decide(gctx, a, memoryID)
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		r.log.Debug("decision abandoned", zap.String("event_id", a.Event.ID))
		return
	}

	ack := r.c.Router.Route(ctx, resp)
	r.logDecision(ctx, a, resp)
	r.log.Info("decision",
		zap.String("event_id", a.Event.ID),
		zap.String("type", string(resp.DecisionType)),
		zap.Bool("degraded", resp.Degraded),
		zap.Bool("dispatched", ack.OK))
	if r.c.Bus != nil {
		r.c.Bus.Publish(bus.Notification{
			Kind:    bus.DecisionMade,
			EventID: a.Event.ID,
			Payload: Decision{EventID: a.Event.ID, Response: resp, Ack: ack, Recalled: recalled},
		})
	}
}
// #endregion completion

// #region decide
// decide recalls related memories and asks the oracle. A recall with nothing
// confident to recall becomes a clarifying question without an oracle call.
func (r *Runtime) decide(ctx context.Context, a pipeline.Annotated, selfID string) (oracle.Response, int) {
	res, err := r.c.Memory.Retrieve(ctx, memory.Cue{
		Text:       a.Event.Text,
		Keywords:   a.Keywords,
		EmotionTag: a.JudgedWith.Emotion.Label,
		Exclude:    []string{selfID},
	})
	if err != nil {
		r.log.Warn("memory retrieval failed", zap.String("event_id", a.Event.ID), zap.Error(err))
		res = memory.Result{NoConfidentMemory: true}
	}
	if a.Intent == pipeline.IntentRecall && res.NoConfidentMemory {
		q := res.ClarifyingQuestion
		if q == "" {
			q = "What are you referring to?"
		}
		return oracle.Response{
			DecisionType: oracle.DecisionClarify,
			Content:      q,
			Confidence:   1,
			Reason:       "no confident memory",
		}, 0
	}

	req := oracle.Request{
		Event:    a.Event,
		Intent:   a.Intent,
		Hint:     a.DecisionHint,
		Keywords: a.Keywords,
		Affect:   a.JudgedWith,
	}
	for _, t := range r.c.Dialogue.Shared().Recent(r.c.BroadcastContext) {
		req.RecentBroadcasts = append(req.RecentBroadcasts, t.Proposal)
	}
	for _, m := range res.Matches {
		req.Memories = append(req.Memories, m.Record.Summary)
	}

	if r.c.Oracle == nil {
		return oracle.Fallback(req, tickerr.New(tickerr.CodeUnavailable, "no oracle configured")), len(res.Matches)
	}
	resp, err := r.c.Oracle.Request(ctx, req)
	if err != nil {
		resp = oracle.Fallback(req, err)
	}
	return resp, len(res.Matches)
}

func (r *Runtime) logDecision(ctx context.Context, a pipeline.Annotated, resp oracle.Response) {
	if r.c.Decisions == nil {
		return
	}
	affectJSON, err := json.Marshal(a.JudgedWith.Map())
	if err != nil {
		r.log.Warn("marshal affect", zap.Error(err))
	}
	entry := logging.DecisionEntry{
		EventID:      a.Event.ID,
		DecisionType: string(resp.DecisionType),
		Content:      resp.Content,
		Action:       resp.Action,
		Confidence:   resp.Confidence,
		Degraded:     resp.Degraded,
		Reason:       resp.Reason,
		AffectJSON:   string(affectJSON),
	}
	if err := r.c.Decisions.LogDecision(ctx, entry); err != nil {
		r.log.Warn("decision log failed", zap.String("event_id", a.Event.ID), zap.Error(err))
	}
}
// #endregion decide

// #region mapping
const maxSummary = 280

// RecordFor builds the memory record of a perceived event. Importance rises
// with salience, appraisal strength, attention and urgency.
func RecordFor(a pipeline.Annotated) memory.Record {
	summary := a.Event.Text
	if utf8.RuneCountInString(summary) > maxSummary {
		summary = string([]rune(summary)[:maxSummary])
	}
	importance := 0.5*a.Event.Salience + 0.3*math.Abs(a.Appraisal) + 0.2*a.Attention
	if a.Event.Urgent {
		importance += 0.2
	}
	return memory.Record{
		ID:         a.Event.ID,
		Timestamp:  a.Event.ReceivedAt,
		Summary:    summary,
		Keywords:   a.Keywords,
		EmotionTag: a.JudgedWith.Emotion.Label,
		Importance: math.Max(0, math.Min(1, importance)),
	}
}

// ReflectRequest builds the inner-dialogue request for a perceived event.
func ReflectRequest(a pipeline.Annotated) dialogue.Request {
	return dialogue.Request{
		EventID:   a.Event.ID,
		Topic:     a.Event.Text,
		Keywords:  a.Keywords,
		Appraisal: a.Appraisal,
		Intent:    string(a.Intent),
		Affect:    a.JudgedWith,
	}
}
// #endregion mapping
