package match

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"leaflens/internal/annotation"
	"leaflens/internal/catalog"
	"leaflens/internal/config"
	"leaflens/internal/textutil"
)

// Confidence bands per strongest signal. A name found in detected text always
// outranks entries supported by alias hits or feature overlap alone.
const (
	nameBandLow     = 80
	nameBandHigh    = 100
	aliasBandLow    = 50
	aliasBandHigh   = 79
	featureBandHigh = 79
)

// Candidate is one ranked catalog match.
type Candidate struct {
	CatalogEntryID string  `json:"catalogEntryId"`
	Name           string  `json:"name"`
	RawScore       float64 `json:"rawScore"`
	Confidence     int     `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
	LowConfidence  bool    `json:"lowConfidence"`
}

// Engine scores composites against catalog snapshots.
type Engine struct {
	cfg config.Matching
}

// NewEngine returns an Engine using the configured weights and floor.
func NewEngine(cfg config.Matching) *Engine {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 5
	}
	if cfg.Saturation <= 0 {
		cfg.Saturation = 1.5
	}
	return &Engine{cfg: cfg}
}

// Floor is the confidence below which candidates are flagged.
func (e *Engine) Floor() int { return e.cfg.ConfidenceFloor }

type tally struct {
	index      int
	overlap    float64
	labelHits  int
	entityHits int
	nameHit    bool
	aliasHit   string
	matched    map[string]struct{}
}

// Match ranks snapshot entries against composite. It never fails; an empty
// result means no entry shared any signal with the composite.
func (e *Engine) Match(composite annotation.Composite, snap *catalog.Snapshot) []Candidate {
	out := []Candidate{}
	if composite.IsEmpty() || snap.Len() == 0 {
		return out
	}

	tallies := map[int]*tally{}
	get := func(i int) *tally {
		t, ok := tallies[i]
		if !ok {
			t = &tally{index: i, matched: map[string]struct{}{}}
			tallies[i] = t
		}
		return t
	}

	for _, label := range composite.Labels {
		key := textutil.PhraseKey(label.Description)
		for _, i := range snap.ByTag(key) {
			t := get(i)
			if t.once("label:" + key) {
				t.overlap += e.cfg.LabelWeight * label.Score
				t.labelHits++
			}
		}
	}
	for _, entity := range composite.WebEntities {
		key := textutil.PhraseKey(entity.Description)
		hit := func(i int) {
			t := get(i)
			if t.once("entity:" + key) {
				t.overlap += e.cfg.EntityWeight * entity.Score
				t.entityHits++
			}
		}
		for _, i := range snap.ByTag(key) {
			hit(i)
		}
		for _, ref := range snap.ByPhrase(key) {
			hit(ref.Index)
		}
	}
	e.scanText(composite.Text, snap, get)

	for _, t := range tallies {
		entry := snap.At(t.index).Entry
		raw := t.overlap
		switch {
		case t.nameHit:
			raw += e.cfg.NameWeight
		case t.aliasHit != "":
			raw += e.cfg.AliasWeight
		}
		if raw <= 0 {
			continue
		}
		confidence := e.confidence(raw, t)
		out = append(out, Candidate{
			CatalogEntryID: entry.ID,
			Name:           entry.Name,
			RawScore:       raw,
			Confidence:     confidence,
			Reasoning:      reasoning(t),
			LowConfidence:  confidence < e.cfg.ConfidenceFloor,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.RawScore != b.RawScore {
			return a.RawScore > b.RawScore
		}
		ea, _ := snap.Get(a.CatalogEntryID)
		eb, _ := snap.Get(b.CatalogEntryID)
		if !ea.UpdatedAt.Equal(eb.UpdatedAt) {
			return ea.UpdatedAt.After(eb.UpdatedAt)
		}
		return a.CatalogEntryID < b.CatalogEntryID
	})
	if len(out) > e.cfg.MaxCandidates {
		out = out[:e.cfg.MaxCandidates]
	}
	return out
}

func (t *tally) once(key string) bool {
	if _, ok := t.matched[key]; ok {
		return false
	}
	t.matched[key] = struct{}{}
	return true
}

// scanText slides word windows over the detected text and looks each window up
// in the name and alias index.
func (e *Engine) scanText(text string, snap *catalog.Snapshot, get func(int) *tally) {
	words := textutil.Tokens(text)
	window := snap.MaxPhraseTokens()
	for start := range words {
		for n := 1; n <= window && start+n <= len(words); n++ {
			phrase := strings.Join(words[start:start+n], " ")
			for _, ref := range snap.ByPhrase(phrase) {
				t := get(ref.Index)
				if ref.Alias {
					if t.aliasHit == "" {
						t.aliasHit = phrase
					}
				} else {
					t.nameHit = true
				}
			}
		}
	}
}

// confidence maps raw onto the band of the strongest signal with a saturating
// curve, so more evidence always raises confidence but never past the band.
func (e *Engine) confidence(raw float64, t *tally) int {
	low, high := 0, featureBandHigh
	switch {
	case t.nameHit:
		low, high = nameBandLow, nameBandHigh
	case t.aliasHit != "":
		low, high = aliasBandLow, aliasBandHigh
	}
	curve := 1 - math.Exp(-raw/e.cfg.Saturation)
	value := int(math.Round(float64(low) + float64(high-low)*curve))
	return min(high, max(low, value))
}

func reasoning(t *tally) string {
	var parts []string
	if t.labelHits > 0 {
		parts = append(parts, fmt.Sprintf("label match: %d %s", t.labelHits, plural(t.labelHits, "feature")))
	}
	if t.entityHits > 0 {
		parts = append(parts, fmt.Sprintf("web entity match: %d %s", t.entityHits, plural(t.entityHits, "entity", "entities")))
	}
	switch {
	case t.nameHit:
		parts = append(parts, "name found in detected text")
	case t.aliasHit != "":
		parts = append(parts, fmt.Sprintf("alias %q found in detected text", t.aliasHit))
	}
	return strings.Join(parts, "; ")
}

func plural(n int, forms ...string) string {
	if n == 1 {
		return forms[0]
	}
	if len(forms) > 1 {
		return forms[1]
	}
	return forms[0] + "s"
}
