package network

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/grl"
)

// Network is the discrimination network (C3): it owns one compiled ruleNet
// per registered rule, subscribes to the WorkingMemory as a fact.Observer,
// and pushes activation deltas to a Sink (the agenda) as facts change.
type Network struct {
	wm   *fact.WorkingMemory
	fns  FuncRegistry
	sink Sink
	log  logrus.FieldLogger

	rules map[string]*ruleNet
	dirty map[string]bool // fact types touched since the last Recompute

	// alphaNodes implements §4.3's structural node sharing: every stage
	// across every rule that tests the same type with the same constant
	// filter conjunction is wired to the same *AlphaNode, keyed by
	// alphaKey. nodesByType lets an incoming fact fan out to exactly the
	// nodes that care about its type without scanning the whole map.
	alphaNodes  map[string]*AlphaNode
	nodesByType map[string][]*AlphaNode
}

// New builds a Network bound to wm. fns resolves function calls used in test
// conditions; it may be nil if no rule uses one. sink receives activation
// deltas; the caller wires it to an agenda.
func New(wm *fact.WorkingMemory, fns FuncRegistry, sink Sink, log logrus.FieldLogger) *Network {
	n := &Network{
		wm:          wm,
		fns:         fns,
		sink:        sink,
		log:         log,
		rules:       map[string]*ruleNet{},
		dirty:       map[string]bool{},
		alphaNodes:  map[string]*AlphaNode{},
		nodesByType: map[string][]*AlphaNode{},
	}
	wm.Subscribe(n)
	return n
}

// alphaNodeFor returns the shared AlphaNode for (typ, the constant subset of
// tests), building and backfilling it from the current working-memory
// extension the first time this (type, filter) combination is requested by
// any rule, and handing back the same node on every later call.
func (n *Network) alphaNodeFor(typ string, tests []FieldTest) *AlphaNode {
	consts := constTests(tests)
	key := alphaKey(typ, consts)
	if an, ok := n.alphaNodes[key]; ok {
		return an
	}
	an := newAlphaNode(typ, consts)
	n.wm.IterType(typ, func(f *fact.Fact) { an.observe(f) })
	n.alphaNodes[key] = an
	n.nodesByType[typ] = append(n.nodesByType[typ], an)
	return an
}

// AddRule compiles r and adds it to the network. Index requests are issued
// immediately (§4.1 rule 1), each stage is wired to its shared alpha memory,
// and the rule is evaluated once against the current working-memory state
// so that pre-existing facts activate it without waiting for an unrelated
// future mutation.
func (n *Network) AddRule(r *grl.RuleIR) error {
	rn := compileRuleNet(r)
	rn.requestIndexes(n.wm)
	for _, st := range rn.stages {
		st.bindAlpha(n)
	}
	n.rules[r.Name] = rn
	return rn.recompute(n.wm, n.fns, n.sink)
}

// RemoveRule retracts every activation the rule currently holds and drops
// it from the network.
func (n *Network) RemoveRule(name string) {
	rn, ok := n.rules[name]
	if !ok {
		return
	}
	rn.clear(n.sink)
	delete(n.rules, name)
}

// ClearRules removes every rule from the network.
func (n *Network) ClearRules() {
	for name := range n.rules {
		n.RemoveRule(name)
	}
}

// OnInsert implements fact.Observer: every alpha node watching this type
// re-tests its filter and incrementally updates its memory and join
// indexes (§4.3's insert propagation rule), before the type is marked dirty
// for the next Recompute.
func (n *Network) OnInsert(f *fact.Fact, seq uint64) {
	n.dirty[f.Type] = true
	for _, an := range n.nodesByType[f.Type] {
		an.observe(f)
	}
}

// OnModify implements fact.Observer, treating the update as the spec's
// modify contract (§4.3): the alpha node drops the old version's entry and
// re-tests the new one, which for an unindexed-field-only change is a
// pure re-put at the same handle.
func (n *Network) OnModify(old, updated *fact.Fact, seq uint64) {
	n.dirty[old.Type] = true
	n.dirty[updated.Type] = true
	for _, an := range n.nodesByType[updated.Type] {
		an.observe(updated)
	}
}

// OnRetract implements fact.Observer: removes f from every alpha memory and
// join index it lived in.
func (n *Network) OnRetract(f *fact.Fact, seq uint64) {
	n.dirty[f.Type] = true
	for _, an := range n.nodesByType[f.Type] {
		an.drop(f.Handle)
	}
}

// Recompute re-derives activations for every rule that references a fact
// type touched since the last call, delivering insert/retract deltas to the
// sink in a deterministic (name-sorted) order so that two runs over the same
// event sequence produce the same activation order.
func (n *Network) Recompute() error {
	if len(n.dirty) == 0 {
		return nil
	}
	names := make([]string, 0, len(n.rules))
	for name, rn := range n.rules {
		for t := range n.dirty {
			if rn.typesOf[t] {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := n.rules[name].recompute(n.wm, n.fns, n.sink); err != nil {
			if n.log != nil {
				n.log.WithError(err).WithField("rule", name).Warn("rule evaluation failed")
			}
			return err
		}
	}
	n.dirty = map[string]bool{}
	return nil
}

// RuleCount reports how many rules are currently compiled into the network.
func (n *Network) RuleCount() int { return len(n.rules) }
