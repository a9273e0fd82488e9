package redact

import (
	"regexp"
)

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Redactor masks patient identifiers in free text. Evidence excerpts pass
// through it before any oracle query so identifiable text never leaves the
// pipeline.
type Redactor struct {
	rules []compiledRule
}

func NewRedactor(cfg RulesConfig) (*Redactor, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &Redactor{rules: compiled}, nil
}

// Redact returns the text with every matching identifier replaced by its
// rule's mask.
func (r *Redactor) Redact(text string) string {
	if r == nil {
		return text
	}
	masked := text
	for _, rule := range r.rules {
		masked = rule.re.ReplaceAllString(masked, rule.rule.Mask)
	}
	return masked
}

// RedactAll masks a batch of excerpts.
func (r *Redactor) RedactAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = r.Redact(text)
	}
	return out
}
