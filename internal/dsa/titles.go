// Package dsa provides the fuzzy course-title index.
// Uses go-radix for compressed prefix trees over normalized titles and words.
package dsa

import (
	"sort"
	"strings"
	"unicode"

	"github.com/armon/go-radix"
)

// minPrefixLen is the shortest query or word fragment matched by prefix.
const minPrefixLen = 3

// minOverlap is the fraction of query words that must hit a title.
const minOverlap = 0.5

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "of": {}, "to": {}, "in": {},
	"on": {}, "for": {}, "with": {}, "course": {}, "lesson": {}, "about": {},
}

// TitleIndex resolves loose course names to canonical titles.
//
// Two radix trees back it: normalized full titles, and individual title
// words mapped to the titles that contain them.
//
// Lookup order is exact, then prefix, then word overlap.
// Not safe for concurrent mutation; callers guard Add.
type TitleIndex struct {
	titles *radix.Tree // normalized title -> canonical title
	words  *radix.Tree // word -> []string canonical titles
	size   int
}

// NewTitleIndex creates an empty index.
func NewTitleIndex() *TitleIndex {
	return &TitleIndex{titles: radix.New(), words: radix.New()}
}

// Add inserts a canonical title. Re-adding a title is a no-op.
func (t *TitleIndex) Add(title string) {
	norm := Normalize(title)
	if norm == "" {
		return
	}
	if _, updated := t.titles.Insert(norm, title); updated {
		return
	}
	t.size++

	for _, w := range strings.Fields(norm) {
		existing, _ := t.words.Get(w)
		list, _ := existing.([]string)
		t.words.Insert(w, append(list, title))
	}
}

// Len returns the number of titles.
func (t *TitleIndex) Len() int {
	return t.size
}

// Titles returns all canonical titles in normalized-key order.
func (t *TitleIndex) Titles() []string {
	out := make([]string, 0, t.size)
	t.titles.Walk(func(_ string, v interface{}) bool {
		out = append(out, v.(string))
		return false
	})
	return out
}

// Resolve returns the best canonical title for name, or false when nothing
// matches well enough.
func (t *TitleIndex) Resolve(name string) (string, bool) {
	norm := Normalize(name)
	if norm == "" {
		return "", false
	}

	if v, ok := t.titles.Get(norm); ok {
		return v.(string), true
	}

	if len(norm) >= minPrefixLen {
		var best string
		t.titles.WalkPrefix(norm, func(k string, v interface{}) bool {
			if best == "" || len(v.(string)) < len(best) {
				best = v.(string)
			}
			return false
		})
		if best != "" {
			return best, true
		}
	}

	return t.resolveByWords(norm)
}

func (t *TitleIndex) resolveByWords(norm string) (string, bool) {
	var terms []string
	for _, w := range strings.Fields(norm) {
		if _, stop := stopwords[w]; !stop {
			terms = append(terms, w)
		}
	}
	if len(terms) == 0 {
		return "", false
	}

	scores := make(map[string]int)
	for _, term := range terms {
		hits := make(map[string]struct{})
		if v, ok := t.words.Get(term); ok {
			for _, title := range v.([]string) {
				hits[title] = struct{}{}
			}
		}
		if len(term) >= minPrefixLen {
			t.words.WalkPrefix(term, func(_ string, v interface{}) bool {
				for _, title := range v.([]string) {
					hits[title] = struct{}{}
				}
				return false
			})
		}
		for title := range hits {
			scores[title]++
		}
	}

	type candidate struct {
		title string
		score int
	}
	var candidates []candidate
	for title, score := range scores {
		if float64(score)/float64(len(terms)) >= minOverlap {
			candidates = append(candidates, candidate{title, score})
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if len(candidates[i].title) != len(candidates[j].title) {
			return len(candidates[i].title) < len(candidates[j].title)
		}
		return candidates[i].title < candidates[j].title
	})
	return candidates[0].title, true
}

// Normalize lowercases s and collapses every run of non-alphanumerics to one space.
func Normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}
