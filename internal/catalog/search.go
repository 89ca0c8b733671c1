package catalog

import (
	"context"
	"sort"

	"leaflens/internal/textutil"
)

// Search ranks entries sharing words with query across names, aliases, and
// tags. Ties break by recency, then ID.
func (s *Snapshot) Search(query string, limit int) []Entry {
	if s == nil || limit == 0 {
		return nil
	}
	hits := map[int]int{}
	seen := map[string]struct{}{}
	for _, token := range textutil.Tokens(query) {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		for _, i := range s.byToken[token] {
			hits[i]++
		}
	}
	if len(hits) == 0 {
		return nil
	}
	ranked := make([]int, 0, len(hits))
	for i := range hits {
		ranked = append(ranked, i)
	}
	sort.Slice(ranked, func(a, b int) bool {
		ea, eb := ranked[a], ranked[b]
		if hits[ea] != hits[eb] {
			return hits[ea] > hits[eb]
		}
		ta, tb := s.entries[ea].Entry.UpdatedAt, s.entries[eb].Entry.UpdatedAt
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return s.entries[ea].Entry.ID < s.entries[eb].Entry.ID
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Entry, len(ranked))
	for i, idx := range ranked {
		out[i] = s.entries[idx].Entry
	}
	return out
}

// LocalSearcher serves keyword search from the current snapshot of a Holder.
type LocalSearcher struct {
	holder *Holder
}

// NewLocalSearcher wraps holder as a Searcher.
func NewLocalSearcher(holder *Holder) *LocalSearcher {
	return &LocalSearcher{holder: holder}
}

// Search implements Searcher.
func (l *LocalSearcher) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.holder.Current().Search(query, limit), nil
}
