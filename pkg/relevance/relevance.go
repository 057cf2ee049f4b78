// Package relevance scores tender notices for healthcare and diagnostics relevance.
package relevance

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"tender-ingest/pkg/domain"
)

// Contribution weights. They sum to 1.0.
const (
	CPVWeight         = 0.5
	TitleWeight       = 0.3
	DescriptionWeight = 0.2
)

// Result is the outcome of scoring a single notice.
type Result struct {
	Score   float64
	Matched []string
}

type keyword struct {
	original string
	folded   string
}

// Scorer is immutable once built and safe for concurrent use.
type Scorer struct {
	// cpv holds configured codes stripped of trailing zeros, so "33100000"
	// is stored as "331" and covers every code below it.
	cpv      map[string]bool
	keywords []keyword
}

// NewScorer builds a scorer from the healthcare CPV set and the keyword list.
// A configured code matches itself and its descendants in the CPV tree.
// Keywords are matched as case-insensitive substrings; empty and duplicate
// entries are dropped, keeping the first spelling seen.
func NewScorer(cpvCodes []string, keywords []string) *Scorer {
	s := &Scorer{cpv: make(map[string]bool, len(cpvCodes))}
	for _, code := range cpvCodes {
		if c := cpvKey(code); c != "" {
			s.cpv[cpvPrefix(c)] = true
		}
	}

	fold := cases.Fold()
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		folded := fold.String(kw)
		if seen[folded] {
			continue
		}
		seen[folded] = true
		s.keywords = append(s.keywords, keyword{original: kw, folded: folded})
	}
	return s
}

// WithKeywords returns a scorer sharing the CPV set with extra keywords appended.
func (s *Scorer) WithKeywords(extra []string) *Scorer {
	if len(extra) == 0 {
		return s
	}
	all := make([]string, 0, len(s.keywords)+len(extra))
	for _, kw := range s.keywords {
		all = append(all, kw.original)
	}
	all = append(all, extra...)
	ext := NewScorer(nil, all)
	ext.cpv = s.cpv
	return ext
}

// Score computes the relevance of n from its CPV codes, title and description.
func (s *Scorer) Score(n *domain.TenderNotice) Result {
	var res Result
	if n == nil {
		return res
	}
	listed := make(map[string]bool)
	add := func(v string) {
		if !listed[v] {
			listed[v] = true
			res.Matched = append(res.Matched, v)
		}
	}

	cpvHit := false
	for _, code := range n.CPVCodes {
		if c := cpvKey(code); c != "" && s.coversCPV(c) {
			cpvHit = true
			add(c)
		}
	}
	if cpvHit {
		res.Score += CPVWeight
	}

	fold := cases.Fold()
	if hits := s.match(fold.String(n.Title)); len(hits) > 0 {
		res.Score += TitleWeight
		for _, kw := range hits {
			add(kw)
		}
	}
	if hits := s.match(fold.String(n.Description)); len(hits) > 0 {
		res.Score += DescriptionWeight
		for _, kw := range hits {
			add(kw)
		}
	}

	return res
}

// Apply scores n and stores the result on it.
func (s *Scorer) Apply(n *domain.TenderNotice) Result {
	res := s.Score(n)
	if n != nil {
		n.HealthcareRelevanceScore = res.Score
		n.MatchedKeywords = res.Matched
	}
	return res
}

// match returns the keywords found in text ordered by first occurrence. Keywords
// starting at the same offset keep their configured order.
func (s *Scorer) match(text string) []string {
	if text == "" {
		return nil
	}
	type hit struct {
		kw  string
		pos int
	}
	var hits []hit
	for _, kw := range s.keywords {
		if i := strings.Index(text, kw.folded); i >= 0 {
			hits = append(hits, hit{kw: kw.original, pos: i})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return a.pos - b.pos })

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.kw
	}
	return out
}

// coversCPV reports whether code or one of its ancestors is configured.
func (s *Scorer) coversCPV(code string) bool {
	for n := 2; n <= len(code); n++ {
		if s.cpv[code[:n]] {
			return true
		}
	}
	return false
}

// cpvPrefix drops trailing zeros but keeps the two-digit division.
func cpvPrefix(code string) string {
	p := strings.TrimRight(code, "0")
	if len(p) < 2 {
		p = code[:2]
	}
	return p
}

// cpvKey reduces a code like "33696000-5" to its eight digits.
func cpvKey(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexByte(code, '-'); i >= 0 {
		code = code[:i]
	}
	if len(code) != 8 {
		return ""
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return code
}
