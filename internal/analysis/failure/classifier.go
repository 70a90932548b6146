package failure

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Kind labels why an exchange with the completion boundary did not produce a reply.
type Kind string

const (
	// Transport means no response was received at all.
	Transport Kind = "transport"
	// QuotaOrLimit means the account ran out of credits or the token cap was hit.
	QuotaOrLimit Kind = "quota_or_limit"
	// Generic covers every other rejection or unusable response.
	Generic Kind = "generic"
)

// Evidence is what the classifier gets to look at.
type Evidence struct {
	Status  int
	Message string // error.message when the body carried one
	Body    string
}

// HasMessage reports whether a structured error message was found.
func (e Evidence) HasMessage() bool {
	return e.Message != ""
}

// Text is the error text rules match against: the structured message when
// present, the raw body otherwise.
func (e Evidence) Text() string {
	if e.HasMessage() {
		return e.Message
	}
	return e.Body
}

type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ParseEvidence inspects a response body for an `error.message` field.
// Non-JSON bodies are kept verbatim.
func ParseEvidence(status int, body []byte) Evidence {
	ev := Evidence{Status: status, Body: string(body)}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ev
	}
	if env.Error != nil {
		ev.Message = env.Error.Message
	}
	return ev
}

// Rule maps matching evidence to a Kind.
type Rule struct {
	Name  string
	Kind  Kind
	Match func(Evidence) bool
}

// MessageContains matches when the error text contains any of phrases.
func MessageContains(phrases ...string) func(Evidence) bool {
	return func(ev Evidence) bool {
		text := ev.Text()
		if text == "" {
			return false
		}
		for _, phrase := range phrases {
			if phrase != "" && strings.Contains(text, phrase) {
				return true
			}
		}
		return false
	}
}

// QuotaRule recognises the provider's wording for exhausted credits and
// exceeded token caps. Wording changes on the provider side break this match.
func QuotaRule() Rule {
	return Rule{
		Name:  "quota-or-limit",
		Kind:  QuotaOrLimit,
		Match: MessageContains("more credits", "max_tokens"),
	}
}

// Classifier evaluates rules in order; the first match wins.
type Classifier struct {
	rules    []Rule
	fallback Kind
}

// NewClassifier builds a classifier that falls back to Generic.
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...), fallback: Generic}
}

// Default returns the classifier used by chat sessions.
func Default() *Classifier {
	return NewClassifier(QuotaRule())
}

// Classify returns the kind of the first matching rule.
func (c *Classifier) Classify(ev Evidence) Kind {
	kind, _ := c.Explain(ev)
	return kind
}

// Explain is Classify plus the name of the rule that fired ("" for fallback).
func (c *Classifier) Explain(ev Evidence) (Kind, string) {
	if c == nil {
		return Generic, ""
	}
	for _, rule := range c.rules {
		if rule.Match != nil && rule.Match(ev) {
			return rule.Kind, rule.Name
		}
	}
	return c.fallback, ""
}

// Excerpt returns at most n runes of s.
func Excerpt(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
