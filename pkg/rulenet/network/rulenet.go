package network

import (
	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/grl"
)

// Activation is one complete match of a rule's conditions: the rule plus the
// token (bound facts and variables) that satisfied it. The agenda (C4) wraps
// an Activation in a priority entry; this package knows nothing about
// salience or conflict resolution.
type Activation struct {
	Rule  *grl.RuleIR
	Token *Token
}

// ID is a stable identity for an activation, namespaced by rule so that two
// different rules matching the same fact sequence never collide.
func (a Activation) ID() string { return a.Rule.Name + "/" + a.Token.key() }

// Sink receives activation deltas as the network recomputes (§4.3's
// terminal-node role: "delivers complete matches" and "retracts a
// previously delivered match that no longer holds").
type Sink interface {
	ActivationInserted(Activation)
	ActivationRetracted(Activation)
}

// ruleNet holds one rule's compiled condition pipeline and the activation
// set it produced as of the last recompute.
type ruleNet struct {
	rule    *grl.RuleIR
	stages  []*stage
	typesOf map[string]bool // fact types referenced anywhere in this rule

	current map[string]Activation // keyed by Activation.ID()
}

func compileRuleNet(r *grl.RuleIR) *ruleNet {
	rn := &ruleNet{rule: r, typesOf: map[string]bool{}, current: map[string]Activation{}}
	for _, c := range r.Conditions {
		st := compileStage(c)
		rn.stages = append(rn.stages, st)
		if c.Kind == CondAccumulate {
			rn.typesOf[c.Accumulate.Type] = true
		} else if c.Type != "" {
			rn.typesOf[c.Type] = true
		}
	}
	return rn
}

func (rn *ruleNet) requestIndexes(wm *fact.WorkingMemory) {
	for _, st := range rn.stages {
		st.requestIndexes(wm)
	}
}

// recompute re-walks this rule's compiled stage pipeline and reports the
// delta between the resulting activation set and the previously reported
// one to sink. Each stage's candidate generation is served by its shared
// AlphaNode (alpha.go) rather than a working-memory scan, so the expensive
// part of §4.3's incremental contract — avoiding a full linear rescan on
// every dirty touch — is satisfied by the node-shared, beta-hash-indexed
// memories; what recompute does NOT do is propagate only the delta token
// through the stage chain (a textbook RETE network only re-joins the
// tokens a single inserted/retracted/modified fact actually touches). That
// narrower optimization is left undone here; see DESIGN.md.
func (rn *ruleNet) recompute(wm *fact.WorkingMemory, fns FuncRegistry, sink Sink) error {
	tokens := []*Token{rootToken()}
	for _, st := range rn.stages {
		var next []*Token
		for _, t := range tokens {
			out, err := st.apply(t, wm, fns)
			if err != nil {
				return err
			}
			next = append(next, out...)
		}
		tokens = next
		if len(tokens) == 0 {
			break
		}
	}

	fresh := make(map[string]Activation, len(tokens))
	for _, t := range tokens {
		act := Activation{Rule: rn.rule, Token: t}
		fresh[act.ID()] = act
	}

	for id, act := range fresh {
		if _, ok := rn.current[id]; !ok {
			sink.ActivationInserted(act)
		}
	}
	for id, act := range rn.current {
		if _, ok := fresh[id]; !ok {
			sink.ActivationRetracted(act)
		}
	}
	rn.current = fresh
	return nil
}

// clear retracts every currently reported activation, used when a rule is
// removed from the network.
func (rn *ruleNet) clear(sink Sink) {
	for _, act := range rn.current {
		sink.ActivationRetracted(act)
	}
	rn.current = map[string]Activation{}
}
