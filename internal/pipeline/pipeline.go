// Package pipeline runs an event through the eight perception and judgment
// sub-steps, one sub-step per scheduler call.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/personality"
)

const tracerName = "github.com/danielpatrickdp/affect-tick/internal/pipeline"

// #region pipeline
// Pipeline holds the in-progress event. It is owned by a single goroutine.
type Pipeline struct {
	weights personality.Weights
	steps   [NumSubSteps]StepFunc
	log     *zap.Logger
	tracer  trace.Tracer

	stage   Stage
	next    SubStep
	current Annotated
}

// New validates weights and returns an idle pipeline.
func New(weights personality.Weights, log *zap.Logger) (*Pipeline, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		weights: weights,
		steps:   defaultSteps(),
		log:     log.Named("pipeline"),
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// SetStep replaces the implementation of one sub-step.
func (p *Pipeline) SetStep(s SubStep, fn StepFunc) {
	p.steps[s] = fn
}

// Stage returns the current stage.
func (p *Pipeline) Stage() Stage { return p.stage }

// Next returns the sub-step that will run on the next Step call.
func (p *Pipeline) Next() (SubStep, bool) {
	if p.stage != Perceiving && p.stage != Judging {
		return 0, false
	}
	return p.next, true
}

// EventID returns the ID of the event in progress, or "".
func (p *Pipeline) EventID() string {
	if p.stage == Idle {
		return ""
	}
	return p.current.Event.ID
}
// #endregion pipeline

// #region lifecycle
// Begin starts perceiving ev under snap. The pipeline must be idle.
func (p *Pipeline) Begin(ev Event, snap affect.Snapshot) error {
	if p.stage != Idle {
		return fmt.Errorf("pipeline busy with event %s (%s)", p.current.Event.ID, p.stage)
	}
	p.current = Annotated{
		Event:         ev,
		PerceivedWith: snap,
		Stimulus:      make(map[affect.Channel]float64),
	}
	p.next = Extroversion
	p.stage = Perceiving
	return nil
}

// Step runs the next sub-step. snap is captured only when the step opens the
// judgment phase; perception sub-steps use the snapshot given to Begin.
// A failing sub-step is logged and recorded as skipped; Step itself only
// errors when nothing is in progress.
func (p *Pipeline) Step(ctx context.Context, snap affect.Snapshot) (SubStep, error) {
	sub, ok := p.Next()
	if !ok {
		return 0, fmt.Errorf("no sub-step pending (%s)", p.stage)
	}
	if sub == Feeling {
		p.current.JudgedWith = snap
	}

	in := Input{
		Event:  p.current.Event,
		Affect: p.current.PerceivedWith,
		Weight: p.weights.Get(sub.Function()),
		Prior:  p.current,
	}
	if sub.Phase() == Judgment {
		in.Affect = p.current.JudgedWith
	}

	an, err := p.run(ctx, sub, in)
	if err != nil {
		p.log.Warn("sub-step skipped",
			zap.String("event_id", p.current.Event.ID),
			zap.String("substep", sub.String()),
			zap.Error(err))
		p.current.Skipped = append(p.current.Skipped, sub)
	} else {
		an.SubStep = sub
		an.Weight = in.Weight
		p.merge(an)
	}

	p.advance()
	return sub, nil
}

// Finish returns the completed annotation and resets to Idle.
func (p *Pipeline) Finish() (Annotated, error) {
	if p.stage != Complete {
		return Annotated{}, fmt.Errorf("pipeline not complete (%s)", p.stage)
	}
	out := p.current
	if out.Intent == "" {
		out.Intent = IntentStatement
	}
	if out.DecisionHint == "" {
		out.DecisionHint = HintRespond
	}
	out.CompletedAt = time.Now()
	p.reset()
	return out, nil
}

// Abort drops the event in progress and returns its ID.
func (p *Pipeline) Abort() string {
	id := p.EventID()
	p.reset()
	return id
}

// Process runs every sub-step for ev synchronously, using snap for both
// phases. Used by replay and tests.
func (p *Pipeline) Process(ctx context.Context, ev Event, snap affect.Snapshot) (Annotated, error) {
	if err := p.Begin(ev, snap); err != nil {
		return Annotated{}, err
	}
	for p.stage != Complete {
		if _, err := p.Step(ctx, snap); err != nil {
			return Annotated{}, err
		}
	}
	return p.Finish()
}

func (p *Pipeline) advance() {
	if p.next == Closure {
		p.stage = Complete
		return
	}
	p.next++
	if p.next == Feeling {
		p.stage = Judging
	}
}

func (p *Pipeline) reset() {
	p.stage = Idle
	p.next = Extroversion
	p.current = Annotated{}
}
// #endregion lifecycle

// #region run
func (p *Pipeline) run(ctx context.Context, sub SubStep, in Input) (an Annotation, err error) {
	_, span := p.tracer.Start(ctx, "pipeline."+sub.String(),
		trace.WithAttributes(
			attribute.String("event.id", in.Event.ID),
			attribute.String("phase", sub.Phase().String()),
		))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", sub, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
	}()

	fn := p.steps[sub]
	if fn == nil {
		return Annotation{}, fmt.Errorf("%s has no implementation", sub)
	}
	return fn(in)
}

func (p *Pipeline) merge(an Annotation) {
	c := &p.current
	c.Annotations = append(c.Annotations, an)
	if an.Keywords != nil {
		c.Keywords = an.Keywords
	}
	if an.Possibilities != nil {
		c.Possibilities = an.Possibilities
	}
	switch an.SubStep {
	case Extroversion:
		c.Attention = an.Score
	case Introversion:
		c.Reflection = an.Score
	case Openness:
		c.Exploration = an.Score
	}
	if an.Appraisal != nil {
		c.Appraisal = *an.Appraisal
	}
	if an.Intent != "" {
		c.Intent = an.Intent
	}
	if an.Hint != "" {
		c.DecisionHint = an.Hint
	}
	for ch, d := range an.Stimulus {
		c.Stimulus[ch] += d
	}
}
// #endregion run
