// Package dialogue runs the inner dialogue: proposals are generated, reframed,
// evaluated and audited, and only broadcast turns reach the shared context.
package dialogue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/bus"
	tickerr "github.com/danielpatrickdp/affect-tick/internal/errors"
	"github.com/danielpatrickdp/affect-tick/internal/personality"
)

// #region engine
// Stats counts turns by outcome.
type Stats struct {
	Turns       int
	Broadcasts  int
	Revisions   int
	Discards    int
	Exhausted   int
	Reframed    int
	SafetyTrips int
}

// Options carries the engine's optional collaborators.
type Options struct {
	Generator Generator    // defaults to TemplateGenerator
	Reframer  *Reframer    // defaults to the embedded rules
	AuditSink AuditSink    // persists every turn when set
	Stimulus  StimulusSink // receives the safety lift when set
	Bus       *bus.Bus
	// Snapshot supplies live affect per turn; when nil the request's snapshot is used.
	Snapshot func() affect.Snapshot
	Logger   *zap.Logger
}

// Engine deliberates one request at a time.
type Engine struct {
	cfg      Config
	weights  personality.Weights
	gen      Generator
	reframer *Reframer
	eval     *Evaluator
	auditor  *Auditor
	shared   *SharedContext
	audit    *AuditLog
	sink     AuditSink
	stim     StimulusSink
	bus      *bus.Bus
	snapFn   func() affect.Snapshot
	log      *zap.Logger
	requests chan Request

	mu       sync.Mutex // serialises deliberation; guards soothing and stats
	soothing int
	stats    Stats
}

// New validates cfg and builds an engine.
func New(cfg Config, weights personality.Weights, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	auditor, err := NewAuditor(cfg)
	if err != nil {
		return nil, err
	}
	rf := opts.Reframer
	if rf == nil {
		if rf, err = NewReframer(log); err != nil {
			return nil, err
		}
	}
	gen := opts.Generator
	if gen == nil {
		gen = TemplateGenerator{NegativeAppraisal: cfg.NegativeAppraisal}
	}
	return &Engine{
		cfg:      cfg,
		weights:  weights,
		gen:      gen,
		reframer: rf,
		eval:     NewEvaluator(cfg.Weights),
		auditor:  auditor,
		shared:   NewSharedContext(cfg.SharedContextSize),
		audit:    NewAuditLog(cfg.AuditLogSize),
		sink:     opts.AuditSink,
		stim:     opts.Stimulus,
		bus:      opts.Bus,
		snapFn:   opts.Snapshot,
		log:      log.Named("dialogue"),
		requests: make(chan Request, cfg.RequestBuffer),
	}, nil
}

// Shared returns the shared context.
func (e *Engine) Shared() *SharedContext { return e.shared }

// Audit returns the audit log.
func (e *Engine) Audit() *AuditLog { return e.audit }

// Reframer returns the active reframer.
func (e *Engine) Reframer() *Reframer { return e.reframer }

// Stats returns a copy of the counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// SoothingRemaining returns how many upcoming turns are forced deliberate.
func (e *Engine) SoothingRemaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.soothing
}
// #endregion engine

// #region run
// Reflect queues req for the deliberation goroutine. It never blocks.
func (e *Engine) Reflect(req Request) error {
	select {
	case e.requests <- req:
		return nil
	default:
		return tickerr.New(tickerr.CodeRateLimited, "dialogue inbox full").WithMetadata("event_id", req.EventID)
	}
}

// Run deliberates queued requests until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-e.requests:
			if _, err := e.Deliberate(ctx, req); err != nil && ctx.Err() == nil {
				e.log.Warn("deliberation failed", zap.String("event_id", req.EventID), zap.Error(err))
			}
		}
	}
}
// #endregion run

// #region deliberate
// Deliberate runs one revision chain for req and returns every turn in it.
// The root turn has chain length 0; a turn at MaxChain is always discarded.
func (e *Engine) Deliberate(ctx context.Context, req Request) ([]InnerTurn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rootID := uuid.NewString()
	var chain []InnerTurn
	var parent *InnerTurn

	for depth := 0; ; depth++ {
		if err := ctx.Err(); err != nil {
			return chain, err
		}
		snap := req.Affect
		if e.snapFn != nil {
			snap = e.snapFn()
		}

		lane, tripped := e.chooseLane(snap, req.EventID)
		draft := Draft{
			Request:  req,
			Lane:     lane,
			Function: e.weights.Dominant(personality.MixFor(lane)),
			Parent:   parent,
		}
		if parent != nil {
			draft.Weakest = parent.Scores.Weakest()
		}
		text, err := e.gen.Propose(ctx, draft)
		if err != nil {
			return chain, fmt.Errorf("propose turn %d: %w", depth, err)
		}

		rf := e.reframer.Reframe(text)
		turn := InnerTurn{
			ID:              uuid.NewString(),
			RootID:          rootID,
			EventID:         req.EventID,
			Lane:            lane,
			Function:        draft.Function,
			Proposal:        rf.Text,
			Original:        text,
			ChainLength:     depth,
			ReframeApplied:  rf.Applied,
			ReframeType:     rf.Type,
			SafetyTriggered: tripped,
			CreatedAt:       time.Now().UTC(),
		}
		if parent != nil {
			turn.ParentTurnID = parent.ID
		}

		evalReq := req
		evalReq.Affect = snap
		turn.Scores, turn.Overall = e.eval.Evaluate(turn.Proposal, evalReq)
		turn.Decision, turn.Reason = e.auditor.Audit(turn, snap.Get(affect.Stress))

		e.record(ctx, turn)
		chain = append(chain, turn)
		if turn.Decision != Revise {
			return chain, nil
		}
		t := turn
		parent = &t
	}
}

// chooseLane applies the safety protocol before the lane rules. Caller holds mu.
func (e *Engine) chooseLane(snap affect.Snapshot, eventID string) (personality.Lane, bool) {
	if e.soothing > 0 {
		e.soothing--
		return personality.Deliberate, false
	}
	if !Distressed(snap, e.cfg) {
		return SelectLane(snap, e.cfg.LaneRules, e.cfg.DefaultLane), false
	}

	e.soothing = e.cfg.SoothingTurns
	e.stats.SafetyTrips++
	trip := tickerr.Newf(tickerr.CodeSafetyTrip, "arousal %.2f with valence %+.2f", snap.Get(affect.Arousal), snap.SignedValence())
	e.log.Warn("safety protocol engaged",
		zap.String("event_id", eventID),
		zap.Int("soothing_turns", e.cfg.SoothingTurns),
		zap.Error(trip))
	if e.stim != nil {
		lift := map[affect.Channel]float64{
			affect.Valence: e.cfg.LiftValence,
			affect.Arousal: e.cfg.LiftArousal,
		}
		if err := e.stim.Stimulate(lift); err != nil {
			e.log.Warn("valence lift not delivered", zap.Error(err))
		}
	}
	e.publish(bus.SafetyTripped, eventID, trip.Message)
	return personality.Deliberate, true
}

// record logs, counts, persists and, for broadcasts, shares a turn. Caller holds mu.
func (e *Engine) record(ctx context.Context, t InnerTurn) {
	e.audit.Append(t)
	e.stats.Turns++
	if t.ReframeApplied {
		e.stats.Reframed++
	}
	switch t.Decision {
	case Broadcast:
		e.stats.Broadcasts++
		e.shared.Add(t)
		e.publish(bus.TurnBroadcast, t.EventID, t)
	case Revise:
		e.stats.Revisions++
	case Discard:
		e.stats.Discards++
		if t.ChainLength >= e.cfg.MaxChain {
			e.stats.Exhausted++
			e.log.Info("revision chain exhausted",
				zap.String("root_id", t.RootID),
				zap.Error(tickerr.Newf(tickerr.CodeExhaustedRevision, "chain length %d", t.ChainLength)))
		}
	}

	e.log.Debug("turn",
		zap.String("event_id", t.EventID),
		zap.String("lane", string(t.Lane)),
		zap.Int("chain", t.ChainLength),
		zap.Float64("overall", t.Overall),
		zap.String("decision", string(t.Decision)),
		zap.String("reframe", t.ReframeType),
		zap.String("proposal", truncate(t.Proposal, 120)))

	if e.sink != nil {
		if err := e.sink.SaveTurn(ctx, t); err != nil {
			e.log.Warn("persist turn", zap.String("turn_id", t.ID), zap.Error(err))
		}
	}
}

func (e *Engine) publish(kind bus.Kind, eventID string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Notification{Kind: kind, EventID: eventID, Payload: payload})
}

// truncate caps s at n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}
// #endregion deliberate
