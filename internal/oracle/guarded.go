package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	tickerr "github.com/danielpatrickdp/affect-tick/internal/errors"
)

// #region config
// GuardConfig bounds a single oracle decision.
type GuardConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxTries       uint          `yaml:"max_tries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// DefaultGuardConfig returns the default limits.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:        5 * time.Second,
		MaxTries:       3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}
// #endregion config

// #region guarded
// Guarded wraps a Client with a deadline, retry with exponential backoff on
// rate limiting or unavailability, and a local fallback. Its Request never
// fails; a fallback is marked Degraded.
type Guarded struct {
	next Client
	cfg  GuardConfig
	log  *zap.Logger
}

// NewGuarded wraps next.
func NewGuarded(next Client, cfg GuardConfig, log *zap.Logger) *Guarded {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 1
	}
	return &Guarded{next: next, cfg: cfg, log: log.Named("oracle")}
}

// Request asks the wrapped client, falling back on failure.
func (g *Guarded) Request(ctx context.Context, req Request) (Response, error) {
	ctx, span := otel.Tracer("github.com/danielpatrickdp/affect-tick/internal/oracle").Start(ctx, "oracle.Decide",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("event.id", req.Event.ID))

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = g.cfg.InitialBackoff
	exp.MaxInterval = g.cfg.MaxBackoff

	tries := 0
	op := func() (Response, error) {
		tries++
		resp, err := g.next.Request(ctx, req)
		if err == nil {
			return resp, nil
		}
		err = tickerr.FromGRPC(err)
		if tickerr.Retryable(err) {
			g.log.Debug("oracle retry", zap.Int("try", tries), zap.Error(err))
			return Response{}, err
		}
		return Response{}, backoff.Permanent(err)
	}
	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(g.cfg.MaxTries))
	if err == nil {
		span.SetAttributes(attribute.String("decision.type", string(resp.DecisionType)))
		return resp, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !tickerr.IsCode(err, tickerr.CodeTimeout) {
		err = tickerr.Wrap(tickerr.CodeTimeout, "oracle deadline", err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(tickerr.GetCode(err)))
	g.log.Warn("oracle fallback",
		zap.String("event_id", req.Event.ID),
		zap.Int("tries", tries),
		zap.String("code", string(tickerr.GetCode(err))),
		zap.Error(err))
	return Fallback(req, err), nil
}
// #endregion guarded

// #region fallback
// Fallback is the minimal acknowledgement used when the oracle cannot answer.
func Fallback(req Request, cause error) Response {
	content := "Got it. Give me a moment to think that through."
	if req.Event.Urgent {
		content = "Got it. I'm on it."
	}
	return Response{
		DecisionType: DecisionAcknowledge,
		Content:      content,
		Confidence:   0,
		Degraded:     true,
		Reason:       string(tickerr.GetCode(cause)),
	}
}
// #endregion fallback
