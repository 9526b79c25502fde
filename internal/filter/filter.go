// Package filter implements the minimal rule filter language: a single
// field="value" equality predicate, with anything else falling back to
// match-all. The fallback is part of the language contract so that rules with
// unrecognized expressions keep matching every event in the window.
package filter

import (
	"fmt"
	"regexp"

	"github.com/harrierlabs/harrier/internal/models"
)

// Expr is a parsed filter expression evaluated against enriched events.
type Expr interface {
	Matches(event *models.EnrichedEvent) bool
	String() string
}

// MatchAll matches every event. It is the fallback for empty or
// unrecognized filter queries.
type MatchAll struct{}

func (MatchAll) Matches(*models.EnrichedEvent) bool { return true }
func (MatchAll) String() string                     { return "*" }

// Equals matches events whose named field equals a literal value. The
// event_type, source and host attributes are addressable alongside the
// extracted field bag.
type Equals struct {
	Field string
	Value string
}

func (e Equals) Matches(event *models.EnrichedEvent) bool {
	switch e.Field {
	case "event_type":
		return event.EventType == e.Value
	case "source":
		return event.Source == e.Value
	case "host":
		return event.Host == e.Value
	default:
		return event.Fields[e.Field] == e.Value
	}
}

func (e Equals) String() string {
	return fmt.Sprintf("%s=%q", e.Field, e.Value)
}

// And matches when both operands match. The parser never produces it today;
// it exists so programmatic rule construction can combine predicates.
type And struct {
	Left, Right Expr
}

func (a And) Matches(event *models.EnrichedEvent) bool {
	return a.Left.Matches(event) && a.Right.Matches(event)
}

func (a And) String() string {
	return fmt.Sprintf("(%s AND %s)", a.Left, a.Right)
}

// equalityRe recognizes exactly one field="value" predicate and nothing else.
var equalityRe = regexp.MustCompile(`^\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*"([^"]*)"\s*$`)

// Parse turns a filter query into an expression. A single equality predicate
// parses to Equals; everything else, including the empty string, parses to
// MatchAll. Parse never fails.
func Parse(query string) Expr {
	if m := equalityRe.FindStringSubmatch(query); m != nil {
		return Equals{Field: m[1], Value: m[2]}
	}
	return MatchAll{}
}
