package catalog

import (
	"sort"
	"strings"
	"time"

	"leaflens/internal/textutil"
)

// Indexed is an entry with its precomputed phrase keys.
type Indexed struct {
	Entry     Entry
	NameKey   string
	AliasKeys []string
	TagKeys   []string
}

// PhraseRef points at an entry whose name or alias equals a phrase key.
type PhraseRef struct {
	Index int
	Alias bool
}

// Snapshot is an immutable, indexed view of the catalog. It is safe for
// concurrent readers and is never mutated after Build returns.
type Snapshot struct {
	entries   []Indexed
	byID      map[string]int
	byTag     map[string][]int
	byPhrase  map[string][]PhraseRef
	byToken   map[string][]int
	maxTokens int
	source    string
	loadedAt  time.Time
}

// Build indexes entries. Entries are ordered by ID; later duplicates of an ID
// replace earlier ones.
func Build(entries []Entry, source string) *Snapshot {
	dedup := make(map[string]Entry, len(entries))
	for _, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			continue
		}
		dedup[e.ID] = e
	}
	ordered := make([]Entry, 0, len(dedup))
	for _, e := range dedup {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	s := &Snapshot{
		entries:  make([]Indexed, 0, len(ordered)),
		byID:     make(map[string]int, len(ordered)),
		byTag:    map[string][]int{},
		byPhrase: map[string][]PhraseRef{},
		byToken:  map[string][]int{},
		source:   source,
		loadedAt: time.Now().UTC(),
	}
	for i, e := range ordered {
		idx := Indexed{Entry: e, NameKey: textutil.PhraseKey(e.Name)}
		s.byID[e.ID] = i
		tokens := map[string]struct{}{}
		addTokens := func(value string) int {
			words := textutil.Tokens(value)
			for _, w := range words {
				tokens[w] = struct{}{}
			}
			return len(words)
		}

		if idx.NameKey != "" {
			s.byPhrase[idx.NameKey] = append(s.byPhrase[idx.NameKey], PhraseRef{Index: i})
			s.maxTokens = max(s.maxTokens, addTokens(e.Name))
		}
		for _, alias := range e.Aliases {
			key := textutil.PhraseKey(alias)
			if key == "" || key == idx.NameKey || contains(idx.AliasKeys, key) {
				continue
			}
			idx.AliasKeys = append(idx.AliasKeys, key)
			s.byPhrase[key] = append(s.byPhrase[key], PhraseRef{Index: i, Alias: true})
			s.maxTokens = max(s.maxTokens, addTokens(alias))
		}
		for _, tag := range e.Tags {
			key := textutil.PhraseKey(tag)
			if key == "" || contains(idx.TagKeys, key) {
				continue
			}
			idx.TagKeys = append(idx.TagKeys, key)
			s.byTag[key] = append(s.byTag[key], i)
			addTokens(tag)
		}
		for token := range tokens {
			s.byToken[token] = append(s.byToken[token], i)
		}
		s.entries = append(s.entries, idx)
	}
	return s
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

// Len reports the number of entries.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Source is the path or label the snapshot was loaded from.
func (s *Snapshot) Source() string { return s.source }

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// At returns the indexed entry at position i.
func (s *Snapshot) At(i int) *Indexed { return &s.entries[i] }

// Get looks up an entry by ID.
func (s *Snapshot) Get(id string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i].Entry, true
}

// Entries returns a copy of every entry in ID order.
func (s *Snapshot) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, len(s.entries))
	for i := range s.entries {
		out[i] = s.entries[i].Entry
	}
	return out
}

// ByTag returns the positions of entries carrying the tag phrase key.
func (s *Snapshot) ByTag(key string) []int {
	if s == nil {
		return nil
	}
	return s.byTag[key]
}

// ByPhrase returns entries whose name or alias reduces to key.
func (s *Snapshot) ByPhrase(key string) []PhraseRef {
	if s == nil {
		return nil
	}
	return s.byPhrase[key]
}

// MaxPhraseTokens is the word count of the longest name or alias, bounding the
// n-gram window used to find names in free text.
func (s *Snapshot) MaxPhraseTokens() int {
	if s == nil {
		return 0
	}
	return s.maxTokens
}
