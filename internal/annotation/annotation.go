package annotation

// Feature is a scored description: a label or a web entity.
type Feature struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// Set is the per-image output of one analysis call. It is transient and never
// persisted on its own.
type Set struct {
	Labels      []Feature `json:"labels"`
	WebEntities []Feature `json:"webEntities"`
	Text        string    `json:"text,omitempty"`
}

// Empty reports whether the analysis found nothing. An empty set is a valid
// result, distinct from a failed call.
func (s Set) Empty() bool {
	return len(s.Labels) == 0 && len(s.WebEntities) == 0 && s.Text == ""
}

// CompositeFeature is a merged feature keyed by its folded description.
type CompositeFeature struct {
	Key         string  `json:"key"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	MeanScore   float64 `json:"meanScore"`
	Occurrences int     `json:"occurrences"`
}

// Composite is the merge of every analyzed image of one scan.
type Composite struct {
	Labels      []CompositeFeature `json:"labels"`
	WebEntities []CompositeFeature `json:"webEntities"`
	Text        string             `json:"text"`
	Sources     int                `json:"sources"`
}

// IsEmpty reports whether the composite carries no signal.
func (c Composite) IsEmpty() bool {
	return len(c.Labels) == 0 && len(c.WebEntities) == 0 && c.Text == ""
}

// TopDescriptions returns up to n descriptions, labels before entities, in
// score order. Used to build keyword queries.
func (c Composite) TopDescriptions(n int) []string {
	out := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for _, group := range [][]CompositeFeature{c.Labels, c.WebEntities} {
		for _, f := range group {
			if len(out) >= n {
				return out
			}
			if _, ok := seen[f.Key]; ok {
				continue
			}
			seen[f.Key] = struct{}{}
			out = append(out, f.Description)
		}
	}
	return out
}
