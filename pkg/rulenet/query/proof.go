package query

import (
	"github.com/ruleforge/rulenet/pkg/rulenet/network"
)

// ProofNode is one node of a backward-chaining proof tree (§4.5 p.1-3,
// supplemented in SPEC_FULL.md §4.5 by theRebelliousNerd-codenerd's
// proof_tree.go ProofNode shape: a judgment, its children, and a
// success/fail tag).
type ProofNode struct {
	Goal     string
	Success  bool
	Note     string // "fact", "pattern", "rule:<name>", "negation", "exists", "forall", "test", "accumulate", "memo", "cycle", "depth-exceeded", "missing"
	Children []*ProofNode
}

func leaf(goal, note string, ok bool) *ProofNode {
	return &ProofNode{Goal: goal, Success: ok, Note: note}
}

func branch(goal, note string, ok bool, children ...*ProofNode) *ProofNode {
	return &ProofNode{Goal: goal, Success: ok, Note: note, Children: children}
}

// Solution is one way a goal was proved: the binding environment it produced
// plus the proof subtree establishing it.
type Solution struct {
	Env   *network.Env
	Proof *ProofNode
}

// Result is the outcome of one Solve call (§6's QueryResult).
type Result struct {
	Success      bool
	Bindings     []*network.Env
	MissingFacts []string
	Proof        *ProofNode
}
