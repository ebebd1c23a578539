// Package skills groups near-duplicate skill labels under one canonical
// skill.
//
// Labels are compared pairwise; every pair at or above the similarity
// threshold is an edge of an undirected graph and each connected component
// becomes one canonical skill. The canonical member is the most frequently
// used label, ties going to the lexicographically first name, so the result
// does not depend on input order.
package skills

import (
	"sort"
	"strings"
	"unicode"

	"github.com/okian/retention/internal/domain/hr"
)

// DefaultThreshold is the trigram similarity at which two labels are merged.
const DefaultThreshold = 0.8

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithThreshold sets the similarity threshold. Values outside (0,1] are ignored.
func WithThreshold(t float64) Option {
	return func(n *Normalizer) {
		if t > 0 && t <= 1 {
			n.threshold = t
		}
	}
}

// Normalizer canonicalizes skill catalogs.
type Normalizer struct {
	threshold float64
}

// New returns a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Threshold returns the configured similarity threshold.
func (n *Normalizer) Threshold() float64 { return n.threshold }

// Canonicalize maps every skill id to the id of its canonical skill.
// freq counts how often each skill id is used; missing ids count as zero.
func (n *Normalizer) Canonicalize(catalog []hr.Skill, freq map[string]int) map[string]string {
	skills := dedupe(catalog)
	grams := make([]map[string]struct{}, len(skills))
	for i, s := range skills {
		grams[i] = trigrams(normalize(s.Name))
	}

	uf := newUnionFind(len(skills))
	for i := range skills {
		for j := i + 1; j < len(skills); j++ {
			if jaccard(grams[i], grams[j]) >= n.threshold {
				uf.union(i, j)
			}
		}
	}

	best := make(map[int]int)
	for i := range skills {
		root := uf.find(i)
		cur, ok := best[root]
		if !ok || preferred(skills[i], skills[cur], freq) {
			best[root] = i
		}
	}

	out := make(map[string]string, len(skills))
	for i, s := range skills {
		out[s.ID] = skills[best[uf.find(i)]].ID
	}
	return out
}

// Groups returns the canonical id of each cluster with its member ids,
// sorted for stable output.
func Groups(mapping map[string]string) map[string][]string {
	out := make(map[string][]string)
	for id, canon := range mapping {
		out[canon] = append(out[canon], id)
	}
	for _, ids := range out {
		sort.Strings(ids)
	}
	return out
}

// Frequencies counts skill usage across employee assessments and position
// requirements.
func Frequencies(ds *hr.Dataset) map[string]int {
	freq := make(map[string]int)
	for _, es := range ds.EmployeeSkills {
		freq[es.SkillID]++
	}
	for _, ps := range ds.PositionSkills {
		freq[ps.SkillID]++
	}
	return freq
}

// Similarity is the Jaccard index of the character trigrams of two labels
// after case and punctuation folding.
func Similarity(a, b string) float64 {
	return jaccard(trigrams(normalize(a)), trigrams(normalize(b)))
}

func preferred(a, b hr.Skill, freq map[string]int) bool {
	if freq[a.ID] != freq[b.ID] {
		return freq[a.ID] > freq[b.ID]
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

func dedupe(catalog []hr.Skill) []hr.Skill {
	seen := make(map[string]int, len(catalog))
	out := make([]hr.Skill, 0, len(catalog))
	for _, s := range catalog {
		if i, ok := seen[s.ID]; ok {
			out[i] = s
			continue
		}
		seen[s.ID] = len(out)
		out = append(out, s)
	}
	return out
}

func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space && b.Len() > 0 {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

func trigrams(s string) map[string]struct{} {
	out := make(map[string]struct{})
	if s == "" {
		return out
	}
	r := []rune(" " + s + " ")
	if len(r) < 3 {
		out[string(r)] = struct{}{}
		return out
	}
	for i := 0; i+3 <= len(r); i++ {
		out[string(r[i:i+3])] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for g := range a {
		if _, ok := b[g]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
