// Package network implements the discrimination network (C3): a
// RETE-style graph of alpha, beta, conditional-element, test, and
// accumulate nodes that incrementally matches working-memory facts
// against compiled rule conditions and feeds complete matches to
// terminal nodes.
//
// The node shape follows the teacher's PropagationConstraint pattern
// (gitrdm-gokando's pkg/minikanren/propagation.go): every stage
// exposes one narrow method (apply, from input tokens to output tokens)
// and each rule's network is a chain of such stages over shared alpha
// nodes rather than an inheritance hierarchy, matching the "closed,
// small set" design note.
package network

import (
	"fmt"

	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// Env is the binding environment accumulated along one path through the
// network: named pattern bindings to fact handles, and $variable bindings
// to values bound by field tests, test expressions, or accumulate results.
type Env struct {
	Handles map[string]fact.Handle
	Vars    map[string]value.Value
}

func newEnv() *Env {
	return &Env{Handles: map[string]fact.Handle{}, Vars: map[string]value.Value{}}
}

// NewEnv is the exported form of newEnv, used by C5 to seed a backward-chaining
// query's initial binding environment.
func NewEnv() *Env { return newEnv() }

// clone returns a deep-enough copy so that extending a child Env never
// mutates a sibling's view of the same parent token.
func (e *Env) clone() *Env {
	c := newEnv()
	for k, v := range e.Handles {
		c.Handles[k] = v
	}
	for k, v := range e.Vars {
		c.Vars[k] = v
	}
	return c
}

// Clone is the exported form of clone, used by C5 to branch a binding
// environment across independent OR-alternatives without aliasing.
func (e *Env) Clone() *Env { return e.clone() }

// factRef identifies one fact as consumed by a token: its handle and the
// Version it had at match time. Including Version (not Handle alone) in
// token identity means a modify that leaves a fact still matching is still
// treated as a fresh activation — "modify is retract+assert". no-loop only
// blocks a token identical to the rule's last firing, so it does not stop
// this: a self-modifying rule refires until its conditions stop matching.
type factRef struct {
	Handle  fact.Handle
	Version uint64
}

// Token is one partial (or complete) match flowing through the network: the
// ordered sequence of facts consumed so far, keyed by the network path that
// produced it, plus the accumulated binding environment.
type Token struct {
	Facts []factRef
	Env   *Env
}

// key returns a stable identity for the token derived from its fact
// sequence, used for retraction bookkeeping in downstream memories (beta
// join identity is "same left token, same right fact", matching RETE's
// token-identity convention).
func (t *Token) key() string {
	ids := make([]string, len(t.Facts))
	for i, r := range t.Facts {
		ids[i] = fmt.Sprintf("%s@%d", r.Handle, r.Version)
	}
	return fmt.Sprint(ids)
}

// Handles returns the plain fact handles this token consumed, in match
// order, for callers (the agenda, TMS) that only care about identity.
func (t *Token) Handles() []fact.Handle {
	out := make([]fact.Handle, len(t.Facts))
	for i, r := range t.Facts {
		out[i] = r.Handle
	}
	return out
}

func rootToken() *Token {
	return &Token{Env: newEnv()}
}

func (t *Token) extend(f *fact.Fact, binding string, env *Env) *Token {
	facts := make([]factRef, len(t.Facts)+1)
	copy(facts, t.Facts)
	facts[len(t.Facts)] = factRef{Handle: f.Handle, Version: f.Version}
	e := env
	if binding != "" {
		e = env.clone()
		e.Handles[binding] = f.Handle
	}
	return &Token{Facts: facts, Env: e}
}
