package expression

// MinScore and MaxScore bound the landmarker's native score range.
const (
	MinScore = 0.0
	MaxScore = 1.0
)

// RawEntry is a blend shape score as reported by the landmarker.
type RawEntry struct {
	Name  string
	Score float64
}

// Entry is one validated blend shape score.
// Name always carries the raw landmarker name so categories the enum does not
// know can still be routed by name.
type Entry struct {
	Category Category `json:"-"`
	Name     string   `json:"category"`
	Score    float64  `json:"score"`
}

// Weights is an ordered set of entries, unique by name.
// A Weights value is never mutated after construction.
type Weights []Entry

// New validates raw landmarker output.
// Scores are clamped to [MinScore, MaxScore]; duplicate names keep the first
// occurrence; entries with an empty name are dropped.
func New(raw []RawEntry) Weights {
	if len(raw) == 0 {
		return nil
	}

	out := make(Weights, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, r := range raw {
		if r.Name == "" {
			continue
		}
		if _, dup := seen[r.Name]; dup {
			continue
		}
		seen[r.Name] = struct{}{}

		cat, _ := ParseCategory(r.Name)
		out = append(out, Entry{
			Category: cat,
			Name:     r.Name,
			Score:    clampScore(r.Score),
		})
	}
	return out
}

// Score returns the score for c, if present.
func (w Weights) Score(c Category) (float64, bool) {
	for _, e := range w {
		if e.Category == c {
			return e.Score, true
		}
	}
	return 0, false
}

// Len returns the number of entries.
func (w Weights) Len() int {
	return len(w)
}

func clampScore(v float64) float64 {
	// NaN compares false against both bounds; treat it as no activation.
	if v != v {
		return MinScore
	}
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
