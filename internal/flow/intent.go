package flow

import (
	"strings"
	"unicode"
)

// Intent names what a user asked for in a given region.
type Intent string

// IntentNone is returned when no rule matches.
const IntentNone Intent = ""

// Rule maps keywords to an intent. Tokens must equal a whole word of the message, so
// "1" matches "1" and "option 1" but never "12". Phrases match anywhere in the text.
type Rule struct {
	Intent  Intent
	Tokens  []string
	Phrases []string
}

// Classifier evaluates rules in order; the first match wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier over rules, in priority order.
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the intent of the first matching rule, or IntentNone.
func (c *Classifier) Classify(text string) Intent {
	norm := normalizeText(text)
	if norm == "" {
		return IntentNone
	}
	words := tokenize(norm)
	for _, rule := range c.rules {
		if rule.matches(norm, words) {
			return rule.Intent
		}
	}
	return IntentNone
}

func (r Rule) matches(norm string, words map[string]struct{}) bool {
	for _, tok := range r.Tokens {
		if _, ok := words[tok]; ok {
			return true
		}
	}
	for _, phrase := range r.Phrases {
		if strings.Contains(norm, phrase) {
			return true
		}
	}
	return false
}

// normalizeText lower-cases and trims text, folding keycap emoji such as "1️⃣" to "1".
func normalizeText(text string) string {
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\uFE0F', '\u20E3':
			return -1
		}
		return r
	}, text)
	return strings.ToLower(strings.TrimSpace(text))
}

func tokenize(norm string) map[string]struct{} {
	fields := strings.FieldsFunc(norm, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		words[f] = struct{}{}
	}
	return words
}

// isExactly reports whether the normalized text equals one of the given words.
func isExactly(text string, words ...string) bool {
	norm := normalizeText(text)
	for _, w := range words {
		if norm == w {
			return true
		}
	}
	return false
}
