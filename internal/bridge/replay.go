package bridge

import "github.com/ethereum/go-ethereum/common"

// ReplayGuard is the insertion-only set of consumed proof hashes. It is not
// safe for concurrent use; Ledger serializes access.
type ReplayGuard struct {
	consumed map[common.Hash]struct{}
}

func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{consumed: make(map[common.Hash]struct{})}
}

// TryConsume records h and reports true, or reports false without changing
// anything when h was already consumed.
func (g *ReplayGuard) TryConsume(h common.Hash) bool {
	if _, ok := g.consumed[h]; ok {
		return false
	}
	g.consumed[h] = struct{}{}
	return true
}

// Contains reports whether h was consumed.
func (g *ReplayGuard) Contains(h common.Hash) bool {
	_, ok := g.consumed[h]
	return ok
}

func (g *ReplayGuard) Len() int {
	return len(g.consumed)
}
