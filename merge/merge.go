// Package merge concatenates the per-source chains produced by the
// input parsers into a single, time-ordered contiguous array -- the
// representation every downstream stage (filter, query, counter)
// operates on.
package merge

import (
	"sort"

	"github.com/dellard/firecracker/chain"
	"github.com/dellard/firecracker/pkt"
)

// Merge flattens every chain in chains and stable-sorts the result by
// (TsSec, TsUsec) ascending. This is the flatten-then-sort algorithm
// spec.md 4.G mandates; see mergeKWay below for the documented-buggy
// alternative this repo deliberately does not call.
func Merge(chains []*chain.Chain) []pkt.Record {
	total := 0
	for _, c := range chains {
		total += c.Count()
	}

	out := make([]pkt.Record, 0, total)
	for _, c := range chains {
		out = append(out, chain.Flatten(c)...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return pkt.Less(&out[i], &out[j])
	})

	return out
}

// mergeKWay merges already-flattened, internally-sorted per-chain
// arrays by repeatedly picking the chain whose head has the smallest
// timestamp, avoiding a full stable sort over the concatenation. It is
// a direct port of the original fc_merge_chains_buggy, including its
// bug: on a timestamp tie between two chains, it keeps whichever
// candidate it happened to scan last, not the one from the
// lowest-indexed chain, so (unlike Merge) it is not stable across
// chains. Per spec.md 9, this variant is documented as buggy and is
// never called from Merge; it is kept only so the alternative is
// discoverable and its divergence from Merge is covered by a test.
func mergeKWay(chains []*chain.Chain) []pkt.Record {
	heads := make([][]pkt.Record, len(chains))
	total := 0
	for i, c := range chains {
		heads[i] = chain.Flatten(c)
		total += len(heads[i])
	}

	out := make([]pkt.Record, 0, total)
	offsets := make([]int, len(chains))

	for len(out) < total {
		candidate := -1
		for i := range chains {
			if offsets[i] >= len(heads[i]) {
				continue
			}
			if candidate < 0 {
				candidate = i
				continue
			}
			// Bug: uses a non-strict comparison direction inherited
			// from the original's "smallest so far" scan, so a tie
			// re-targets the candidate to the later chain index
			// instead of keeping the earlier one.
			if !pkt.Less(&heads[candidate][offsets[candidate]], &heads[i][offsets[i]]) {
				candidate = i
			}
		}
		out = append(out, heads[candidate][offsets[candidate]])
		offsets[candidate]++
	}

	return out
}
