package analysis

import (
	"strings"

	"leaflens/internal/annotation"
)

// Payload is the JSON annotation document returned by the HTTP analyzer and
// requested from generative backends.
type Payload struct {
	Labels      []PayloadFeature `json:"labels"`
	WebEntities []PayloadFeature `json:"web_entities"`
	Text        string           `json:"text"`
}

// PayloadFeature is one scored description.
type PayloadFeature struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// Set converts the payload, dropping blank descriptions and clamping scores
// to [0,1].
func (p Payload) Set() annotation.Set {
	return annotation.Set{
		Labels:      features(p.Labels),
		WebEntities: features(p.WebEntities),
		Text:        strings.TrimSpace(p.Text),
	}
}

func features(in []PayloadFeature) []annotation.Feature {
	var out []annotation.Feature
	for _, f := range in {
		desc := strings.TrimSpace(f.Description)
		if desc == "" {
			continue
		}
		out = append(out, annotation.Feature{Description: desc, Score: min(1, max(0, f.Score))})
	}
	return out
}
