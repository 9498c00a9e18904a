// Package oracle talks to the external reasoning service that turns a
// perceived event into a decision.
package oracle

import (
	"context"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/pipeline"
)

// #region types
// DecisionType is what the oracle decided to do with an event.
type DecisionType string

const (
	DecisionRespond     DecisionType = "respond"
	DecisionAct         DecisionType = "act"
	DecisionClarify     DecisionType = "clarify"
	DecisionAcknowledge DecisionType = "acknowledge"
	DecisionObserve     DecisionType = "observe"
)

// Request is everything the oracle sees about one event.
type Request struct {
	Event            pipeline.Event
	Intent           pipeline.Intent
	Hint             pipeline.DecisionHint
	Keywords         []string
	Affect           affect.Snapshot
	RecentBroadcasts []string
	Memories         []string
}

// Response is the oracle's decision. Degraded marks a fallback produced
// locally after the call failed.
type Response struct {
	DecisionType DecisionType `json:"decision_type"`
	Content      string       `json:"content"`
	Action       string       `json:"action,omitempty"`
	Confidence   float64      `json:"confidence"`
	Degraded     bool         `json:"degraded"`
	Reason       string       `json:"reason,omitempty"`
}

// Client requests decisions.
type Client interface {
	Request(ctx context.Context, req Request) (Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (Response, error)

func (f ClientFunc) Request(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }
// #endregion types
