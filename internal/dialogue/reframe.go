package dialogue

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sync/atomic"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

// #region rules
// Rule rewrites one distortion pattern.
type Rule struct {
	Class   string `yaml:"class"`
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// ParseRules decodes and compiles a YAML rule table.
func ParseRules(data []byte) ([]Rule, error) {
	compiled, err := compileRules(data)
	if err != nil {
		return nil, err
	}
	out := make([]Rule, len(compiled))
	for i, c := range compiled {
		out[i] = c.Rule
	}
	return out, nil
}

func compileRules(data []byte) ([]compiledRule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("parse rules: no rules defined")
	}
	out := make([]compiledRule, 0, len(f.Rules))
	for i, r := range f.Rules {
		if r.Class == "" {
			return nil, fmt.Errorf("rule %d: class is required", i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, r.Class, err)
		}
		out = append(out, compiledRule{Rule: r, re: re})
	}
	return out, nil
}
// #endregion rules

// #region reframer
// Reframing is the result of applying the rule table to a proposal.
type Reframing struct {
	Text    string
	Applied bool
	Type    string   // class of the first matching rule
	Classes []string // every class that matched, in rule order
}

// Reframer rewrites cognitive distortions. Rules are swapped atomically, so
// Reframe is safe to call while a reload is in progress.
type Reframer struct {
	rules atomic.Pointer[[]compiledRule]
	log   *zap.Logger
}

// NewReframer returns a reframer loaded with the embedded default rules.
func NewReframer(log *zap.Logger) (*Reframer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reframer{log: log.Named("reframe")}
	if err := r.Load(defaultRules); err != nil {
		return nil, fmt.Errorf("default rules: %w", err)
	}
	return r, nil
}

// Load replaces the rule table. On error the previous table stays active.
func (r *Reframer) Load(data []byte) error {
	compiled, err := compileRules(data)
	if err != nil {
		return err
	}
	r.rules.Store(&compiled)
	r.log.Info("rules loaded", zap.Int("count", len(compiled)))
	return nil
}

// LoadFile replaces the rule table from a file.
func (r *Reframer) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rules: %w", err)
	}
	return r.Load(data)
}

// Len returns the number of active rules.
func (r *Reframer) Len() int {
	return len(*r.rules.Load())
}

// Reframe applies every rule in order.
func (r *Reframer) Reframe(text string) Reframing {
	out := Reframing{Text: text}
	seen := make(map[string]bool)
	for _, rule := range *r.rules.Load() {
		if !rule.re.MatchString(out.Text) {
			continue
		}
		out.Text = rule.re.ReplaceAllString(out.Text, rule.Replace)
		if !out.Applied {
			out.Applied = true
			out.Type = rule.Class
		}
		if !seen[rule.Class] {
			seen[rule.Class] = true
			out.Classes = append(out.Classes, rule.Class)
		}
	}
	return out
}
// #endregion reframer
