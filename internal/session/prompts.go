package session

import (
	"sort"

	"github.com/dgnsrekt/promptdj/internal/lyria"
)

// Prompt is one steerable text prompt.
type Prompt struct {
	ID     string
	Text   string
	Weight float64
	// CC is the external controller number bound to the prompt.
	CC    int
	Color string
}

// Snapshot is a full prompt set keyed by prompt ID.
type Snapshot map[string]Prompt

// Clone returns a copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// IDs returns the prompt IDs in sorted order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FilteredSet holds prompt texts the service has refused.
type FilteredSet map[string]struct{}

// Add records text as filtered.
func (f FilteredSet) Add(text string) {
	f[text] = struct{}{}
}

// Has reports whether text has been filtered.
func (f FilteredSet) Has(text string) bool {
	_, ok := f[text]
	return ok
}

// List returns the filtered texts in sorted order.
func (f FilteredSet) List() []string {
	out := make([]string, 0, len(f))
	for text := range f {
		out = append(out, text)
	}
	sort.Strings(out)
	return out
}

// ActivePrompts returns the prompts that should be sent: nonzero weight and
// not filtered. The result is ordered by prompt ID.
func ActivePrompts(s Snapshot, filtered FilteredSet) []lyria.WeightedPrompt {
	var out []lyria.WeightedPrompt
	for _, id := range s.IDs() {
		p := s[id]
		if p.Weight == 0 || filtered.Has(p.Text) {
			continue
		}
		out = append(out, lyria.WeightedPrompt{Text: p.Text, Weight: p.Weight})
	}
	return out
}
