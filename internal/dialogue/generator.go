package dialogue

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/danielpatrickdp/affect-tick/internal/personality"
)

// #region generator
// Draft is what a generator is asked to propose.
type Draft struct {
	Request  Request
	Lane     personality.Lane
	Function personality.Function
	Parent   *InnerTurn // nil for the root turn
	Weakest  Criterion  // set for revisions
}

// Generator proposes inner-dialogue text.
type Generator interface {
	Propose(ctx context.Context, d Draft) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, d Draft) (string, error)

// Propose calls f.
func (f GeneratorFunc) Propose(ctx context.Context, d Draft) (string, error) { return f(ctx, d) }
// #endregion generator

// #region template-generator
var templates = map[personality.Function]string{
	personality.Extroversion: "Let's respond to %s right away.",
	personality.Introversion: "I want to think about what %s means before acting.",
	personality.Sensation:    "The concrete facts about %s are what matter here.",
	personality.Intuition:    "There may be a bigger pattern behind %s.",
	personality.Feeling:      "How %s affects everyone involved matters most.",
	personality.Thinking:     "Looking at %s logically, the next step is to check what is known.",
	personality.Openness:     "There could be several good ways to approach %s.",
	personality.Closure:      "We should settle %s now and move on.",
}

const catastrophePrefix = "This is the worst thing that could happen. "

// TemplateGenerator renders proposals from fixed templates keyed by the
// dominant personality function. It needs no model.
type TemplateGenerator struct {
	// NegativeAppraisal is the appraisal below which reactive drafts catastrophize.
	NegativeAppraisal float64
}

// Propose renders a root proposal or revises the parent's.
func (g TemplateGenerator) Propose(_ context.Context, d Draft) (string, error) {
	if d.Parent != nil {
		return revise(d.Parent.Proposal, d.Weakest, d.Request), nil
	}
	tmpl, ok := templates[d.Function]
	if !ok {
		return "", fmt.Errorf("no template for function %q", d.Function)
	}
	text := fmt.Sprintf(tmpl, topicPhrase(d.Request))
	if d.Lane == personality.Reactive && d.Request.Appraisal < g.NegativeAppraisal {
		text = catastrophePrefix + text
	}
	return text, nil
}

// revise addresses the weakest criterion of the parent proposal.
func revise(text string, weakest Criterion, req Request) string {
	switch weakest {
	case Logic:
		return strings.TrimSpace(text) + " Let me check what is actually known first."
	case Plausibility:
		return "Perhaps " + lowerFirst(strings.TrimSpace(text))
	case Social:
		return strings.TrimSpace(text) + " I understand this may feel hard, and I care about getting it right."
	default:
		return strings.TrimSpace(text) + " Specifically: " + topicPhrase(req) + "."
	}
}

func topicPhrase(req Request) string {
	if len(req.Keywords) > 0 {
		kw := req.Keywords
		if len(kw) > 4 {
			kw = kw[:4]
		}
		return strings.Join(kw, " ")
	}
	if t := strings.TrimSpace(req.Topic); t != "" {
		return "\"" + strings.TrimRight(t, ".!?") + "\""
	}
	return "this"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	// keep "I" and acronyms intact
	if len(r) > 1 && (unicode.IsUpper(r[1]) || (r[0] == 'I' && r[1] == ' ')) {
		return s
	}
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
// #endregion template-generator
