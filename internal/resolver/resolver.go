// Package resolver maps human-supplied names (people, skills, traits,
// careers, aspirations) onto stored entities. It is the seam between
// free-text model output and typed storage, so its matching order and
// tie-break are deterministic.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/nugget/heirloom/internal/legacy"
)

// ErrNotFound is returned when no entity matches a name.
var ErrNotFound = errors.New("no matching entity")

// DefaultThreshold is the minimum token score for a fuzzy match.
const DefaultThreshold = 0.5

// Source lists the candidates of a kind. Person candidates are scoped
// to a legacy; catalog kinds ignore the scope.
type Source interface {
	Named(ctx context.Context, kind legacy.Kind, legacyID string) ([]legacy.Named, error)
}

// Resolver resolves names against a Source.
type Resolver struct {
	src       Source
	threshold float64
}

// New creates a resolver using DefaultThreshold.
func New(src Source) *Resolver {
	return &Resolver{src: src, threshold: DefaultThreshold}
}

// ResolveByName returns the single entity of kind best matching name.
// scope is the legacy ID for person lookups.
func (r *Resolver) ResolveByName(ctx context.Context, kind legacy.Kind, name, scope string) (legacy.Named, error) {
	if strings.TrimSpace(name) == "" {
		return legacy.Named{}, fmt.Errorf("%w: empty %s name", ErrNotFound, kind)
	}
	candidates, err := r.src.Named(ctx, kind, scope)
	if err != nil {
		return legacy.Named{}, fmt.Errorf("list %s candidates: %w", kind, err)
	}
	best, ok := Match(name, candidates, r.threshold)
	if !ok {
		return legacy.Named{}, fmt.Errorf("%w: no %s named %q", ErrNotFound, kind, name)
	}
	return best, nil
}

// Match picks the best candidate for name. Matching runs in tiers:
// exact (case-insensitive), then substring in either direction, then
// token-overlap scoring at or above threshold where only the top score
// survives. The first tier with any match wins. Ties within it go to
// active entities, then (substring tier only) the closest length, then
// the most recently created, then the highest ID.
func Match(name string, candidates []legacy.Named, threshold float64) (legacy.Named, bool) {
	query := normalize(name)
	if query == "" {
		return legacy.Named{}, false
	}

	var exact, substr []ranked
	for _, c := range candidates {
		target := normalize(c.Name)
		if target == "" {
			continue
		}
		switch {
		case target == query:
			exact = append(exact, ranked{Named: c})
		case strings.Contains(target, query) || strings.Contains(query, target):
			substr = append(substr, ranked{Named: c, distance: abs(len(target) - len(query))})
		}
	}
	if len(exact) > 0 {
		return pick(exact), true
	}
	if len(substr) > 0 {
		return pick(substr), true
	}

	qTokens := tokenize(query)
	var fuzzy []ranked
	bestScore := 0.0
	for _, c := range candidates {
		score := tokenMatchScore(qTokens, tokenize(normalize(c.Name)))
		if score < threshold {
			continue
		}
		switch {
		case score > bestScore+1e-9:
			bestScore = score
			fuzzy = []ranked{{Named: c}}
		case score > bestScore-1e-9:
			fuzzy = append(fuzzy, ranked{Named: c})
		}
	}
	if len(fuzzy) > 0 {
		return pick(fuzzy), true
	}
	return legacy.Named{}, false
}

// ranked is a candidate with its length distance from the query.
type ranked struct {
	legacy.Named
	distance int
}

// pick applies the tie-break to a non-empty tier.
func pick(tier []ranked) legacy.Named {
	sort.SliceStable(tier, func(i, j int) bool {
		a, b := tier[i], tier[j]
		if a.Active != b.Active {
			return a.Active
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return tier[0].Named
}

// normalize lowercases, drops possessive suffixes and collapses
// whitespace.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("’s", "", "'s", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// tokenize splits on anything that is not a letter or digit and drops
// single-character tokens.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	result := make([]string, 0, len(fields))
	for _, t := range fields {
		if len([]rune(t)) > 1 {
			result = append(result, t)
		}
	}
	return result
}

// tokenMatchScore scores how well the query tokens are covered by the
// target tokens, from 0 to 1.
func tokenMatchScore(query, target []string) float64 {
	if len(query) == 0 || len(target) == 0 {
		return 0
	}

	matches := 0.0
	for _, q := range query {
		bestMatch := 0.0
		for _, t := range target {
			score := 0.0
			switch {
			case t == q:
				score = 1.0
			case strings.Contains(t, q) || strings.Contains(q, t):
				score = 0.8
			case sharedPrefix(q, t) >= 4:
				score = 0.6
			}
			if score > bestMatch {
				bestMatch = score
			}
		}
		matches += bestMatch
	}
	return matches / float64(len(query))
}

// sharedPrefix returns the length in runes of the common prefix.
func sharedPrefix(a, b string) int {
	ar, br := []rune(a), []rune(b)
	n := 0
	for n < len(ar) && n < len(br) && ar[n] == br[n] {
		n++
	}
	return n
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
