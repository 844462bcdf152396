// Package safety decides whether an inbound message may reach the model.
package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// Class names a policy class a message can violate.
type Class string

const (
	ClassNone          Class = ""
	ClassImpersonation Class = "impersonation"
	ClassIllegal       Class = "illegal"
	ClassMinors        Class = "minors"
)

// Kind selects how a rule's patterns are matched against lower-cased text.
type Kind string

const (
	// KindSubstring matches a pattern anywhere in the text.
	KindSubstring Kind = "substring"
	// KindWord matches a pattern only on word boundaries.
	KindWord Kind = "word"
)

// Rule is one row of the policy table.
type Rule struct {
	Class    Class    `yaml:"class"`
	Kind     Kind     `yaml:"kind"`
	Patterns []string `yaml:"patterns"`
	Refusal  string   `yaml:"refusal"`
}

// Verdict is the outcome of Evaluate.
type Verdict struct {
	Allowed bool
	Class   Class
	Refusal string
}

// DefaultRules returns the built-in policy table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Class:    ClassImpersonation,
			Kind:     KindSubstring,
			Patterns: []string{"impersonate", "pretend to be", "screenshot as"},
			Refusal:  "I won't help impersonate a real person.",
		},
		{
			Class:    ClassIllegal,
			Kind:     KindSubstring,
			Patterns: []string{"bomb", "how to make weapon", "explosive", "steal", "hack into"},
			Refusal:  "I can't help with illegal or harmful things.",
		},
		{
			Class:    ClassMinors,
			Kind:     KindWord,
			Patterns: []string{"underage", "minor", "child"},
			Refusal:  "I can't assist with sexual content involving minors.",
		},
	}
}

// ValidateRules checks a policy table before it is compiled.
func ValidateRules(rules []Rule) error {
	for i, r := range rules {
		if r.Class == ClassNone {
			return fmt.Errorf("safety rule %d: class cannot be empty", i)
		}
		if r.Kind != KindSubstring && r.Kind != KindWord {
			return fmt.Errorf("safety rule %d (%s): unknown kind %q", i, r.Class, r.Kind)
		}
		if len(r.Patterns) == 0 {
			return fmt.Errorf("safety rule %d (%s): patterns cannot be empty", i, r.Class)
		}
		for _, p := range r.Patterns {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("safety rule %d (%s): blank pattern", i, r.Class)
			}
		}
		if strings.TrimSpace(r.Refusal) == "" {
			return fmt.Errorf("safety rule %d (%s): refusal cannot be empty", i, r.Class)
		}
	}
	return nil
}

type compiledRule struct {
	Rule
	word *regexp.Regexp
}

// Gate evaluates messages against a compiled policy table.
// A Gate is immutable after construction and safe for concurrent use.
type Gate struct {
	rules []compiledRule
}

// NewGate compiles rules. A nil or empty table falls back to DefaultRules.
func NewGate(rules []Rule) (*Gate, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	g := &Gate{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		cr := compiledRule{Rule: r}
		cr.Patterns = make([]string, len(r.Patterns))
		for i, p := range r.Patterns {
			cr.Patterns[i] = strings.ToLower(strings.TrimSpace(p))
		}
		if r.Kind == KindWord {
			quoted := make([]string, len(cr.Patterns))
			for i, p := range cr.Patterns {
				quoted[i] = regexp.QuoteMeta(p)
			}
			re, err := regexp.Compile(`\b(` + strings.Join(quoted, "|") + `)\b`)
			if err != nil {
				return nil, fmt.Errorf("safety rule %s: %w", r.Class, err)
			}
			cr.word = re
		}
		g.rules = append(g.rules, cr)
	}
	return g, nil
}

// Evaluate classifies text. The first matching rule wins; unmatched text is allowed.
func (g *Gate) Evaluate(text string) Verdict {
	low := strings.ToLower(strings.TrimSpace(text))
	for _, r := range g.rules {
		if r.matches(low) {
			return Verdict{Allowed: false, Class: r.Class, Refusal: r.Refusal}
		}
	}
	return Verdict{Allowed: true}
}

func (r compiledRule) matches(low string) bool {
	if r.word != nil {
		return r.word.MatchString(low)
	}
	for _, p := range r.Patterns {
		if strings.Contains(low, p) {
			return true
		}
	}
	return false
}
