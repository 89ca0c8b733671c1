package annotation

import (
	"math"
	"sort"
	"strings"

	"leaflens/internal/textutil"
)

// DefaultRepetitionBonus is added per extra occurrence of a feature.
const DefaultRepetitionBonus = 0.15

// Merger combines annotation sets from photos of the same subject.
type Merger struct {
	bonus float64
}

// NewMerger returns a Merger using bonus per repeated occurrence. A negative
// bonus falls back to DefaultRepetitionBonus.
func NewMerger(bonus float64) *Merger {
	if bonus < 0 {
		bonus = DefaultRepetitionBonus
	}
	return &Merger{bonus: bonus}
}

// Merge uses the default repetition bonus.
func Merge(sets []Set) Composite {
	return NewMerger(DefaultRepetitionBonus).Merge(sets)
}

type accumulator struct {
	description string
	sum         float64
	count       int
}

// Merge is total over zero or more sets. Labels and entities are grouped by
// folded description; each group scores mean + bonus*(count-1), capped at 1.
// Distinct text blocks are joined with newlines in first-seen order.
func (m *Merger) Merge(sets []Set) Composite {
	composite := Composite{
		Labels:      []CompositeFeature{},
		WebEntities: []CompositeFeature{},
		Sources:     len(sets),
	}
	labels := map[string]*accumulator{}
	entities := map[string]*accumulator{}
	var texts []string
	seenText := map[string]struct{}{}

	for _, set := range sets {
		accumulate(labels, set.Labels)
		accumulate(entities, set.WebEntities)
		block := strings.TrimSpace(set.Text)
		if block == "" {
			continue
		}
		if _, ok := seenText[block]; ok {
			continue
		}
		seenText[block] = struct{}{}
		texts = append(texts, block)
	}

	composite.Labels = m.finish(labels)
	composite.WebEntities = m.finish(entities)
	composite.Text = strings.Join(texts, "\n")
	return composite
}

// accumulate adds one set's features. A key repeated inside the same set counts
// once, at its highest score, so occurrences track how many photos saw it. The
// lexically smallest spelling is kept for display so order never matters.
func accumulate(into map[string]*accumulator, features []Feature) {
	best := map[string]Feature{}
	for _, f := range features {
		key := textutil.FoldKey(f.Description)
		if key == "" {
			continue
		}
		if prev, ok := best[key]; !ok || f.Score > prev.Score {
			best[key] = f
		}
	}
	for key, f := range best {
		acc, ok := into[key]
		if !ok {
			acc = &accumulator{description: strings.TrimSpace(f.Description)}
			into[key] = acc
		} else if d := strings.TrimSpace(f.Description); d < acc.description {
			acc.description = d
		}
		acc.sum += clamp01(f.Score)
		acc.count++
	}
}

func (m *Merger) finish(groups map[string]*accumulator) []CompositeFeature {
	out := make([]CompositeFeature, 0, len(groups))
	for key, acc := range groups {
		mean := acc.sum / float64(acc.count)
		out = append(out, CompositeFeature{
			Key:         key,
			Description: acc.description,
			MeanScore:   mean,
			Score:       math.Min(1, mean+m.bonus*float64(acc.count-1)),
			Occurrences: acc.count,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
