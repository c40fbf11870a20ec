package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
)

// Option configures an Engine at construction, following the functional-
// options idiom used throughout the teacher's NewXxx(...) constructors.
type Option func(*Engine)

// WithLogger sets the logrus.FieldLogger that the engine, the network and
// the query resolver log through; the agenda and TMS take no logger.
// Defaults to a discarding logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

// WithStrategy sets the default conflict-resolution strategy by name
// ("salience", "lex", "mea", "complexity", "simplicity", "random").
// Defaults to "lex".
func WithStrategy(name string) Option {
	return func(e *Engine) { e.defaultStrategy = name }
}

// WithIndexTuning overrides the auto-tuning thresholds from §4.1's
// indexing policy (defaults 100, 0.1, 1000).
func WithIndexTuning(n1 int, s1 float64, n2 int) Option {
	return func(e *Engine) {
		e.tuning = fact.IndexTuning{PromoteAfterQueries: n1, PromoteSelectivity: s1, DemoteAfterIdle: n2}
	}
}

// WithStrictTemplates makes add_rules reject (at parse time, as a Schema
// error) any pattern referencing a fact type with no registered template,
// per §4.2's strict_templates parser option.
func WithStrictTemplates(strict bool) Option {
	return func(e *Engine) { e.strictTemplates = strict }
}
