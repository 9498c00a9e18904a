// Package action carries decisions out into the world through named
// capabilities.
package action

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	tickerr "github.com/danielpatrickdp/affect-tick/internal/errors"
	"github.com/danielpatrickdp/affect-tick/internal/oracle"
)

// #region types
// Ack reports the outcome of one dispatch.
type Ack struct {
	Capability string
	OK         bool
	Detail     string
}

// Dispatcher executes named capabilities.
type Dispatcher interface {
	Dispatch(ctx context.Context, name, content string) (Ack, error)
	Capabilities() []string
}

// Capability names used for non-act decisions.
const (
	CapSay     = "say"
	CapAsk     = "ask"
	CapObserve = "observe"
)
// #endregion types

// #region router
// Router maps oracle decisions onto dispatcher capabilities.
type Router struct {
	d   Dispatcher
	log *zap.Logger
}

// NewRouter returns a router over d.
func NewRouter(d Dispatcher, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{d: d, log: log.Named("action")}
}

// Capability returns the capability a response should use.
func Capability(resp oracle.Response) string {
	switch resp.DecisionType {
	case oracle.DecisionAct:
		return resp.Action
	case oracle.DecisionClarify:
		return CapAsk
	case oracle.DecisionObserve:
		return CapObserve
	default:
		return CapSay
	}
}

// Route dispatches resp. An unknown capability or a failed dispatch yields a
// failure ack, never an error.
func (r *Router) Route(ctx context.Context, resp oracle.Response) Ack {
	name := Capability(resp)
	if !r.supports(name) {
		r.log.Warn("unknown capability", zap.String("capability", name))
		return Ack{Capability: name, OK: false, Detail: "unknown capability"}
	}
	ack, err := r.d.Dispatch(ctx, name, resp.Content)
	if err != nil {
		r.log.Warn("dispatch failed", zap.String("capability", name), zap.Error(err))
		return Ack{Capability: name, OK: false, Detail: err.Error()}
	}
	return ack
}

func (r *Router) supports(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range r.d.Capabilities() {
		if c == name {
			return true
		}
	}
	return false
}
// #endregion router

// #region log-dispatcher
// Sent is one dispatch seen by a LogDispatcher.
type Sent struct {
	Capability string
	Content    string
}

// LogDispatcher writes every dispatch to the log and keeps the history.
// It serves development runs and tests.
type LogDispatcher struct {
	log  *zap.Logger
	caps map[string]bool

	mu   sync.Mutex
	sent []Sent
}

// NewLogDispatcher supports say, ask and observe plus any extra capabilities.
func NewLogDispatcher(log *zap.Logger, extra ...string) *LogDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &LogDispatcher{log: log.Named("dispatch"), caps: map[string]bool{CapSay: true, CapAsk: true, CapObserve: true}}
	for _, c := range extra {
		if c = strings.TrimSpace(c); c != "" {
			d.caps[c] = true
		}
	}
	return d
}

func (d *LogDispatcher) Dispatch(ctx context.Context, name, content string) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return Ack{}, err
	}
	if !d.caps[name] {
		return Ack{}, tickerr.Newf(tickerr.CodeNotFound, "capability %q", name)
	}
	d.mu.Lock()
	d.sent = append(d.sent, Sent{Capability: name, Content: content})
	d.mu.Unlock()
	d.log.Info("dispatch", zap.String("capability", name), zap.String("content", content))
	return Ack{Capability: name, OK: true, Detail: fmt.Sprintf("%d bytes", len(content))}, nil
}

func (d *LogDispatcher) Capabilities() []string {
	out := make([]string, 0, len(d.caps))
	for c := range d.caps {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Sent returns the dispatch history.
func (d *LogDispatcher) Sent() []Sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Sent(nil), d.sent...)
}
// #endregion log-dispatcher
