package service

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/HendryAvila/devlog/internal/devlog"
)

const (
	// DefaultRelatedLimit is the number of related entries returned when
	// the caller asks for none in particular.
	DefaultRelatedLimit = 10
	// maxKeywords bounds the searches one discovery runs.
	maxKeywords = 8
	// perKeywordHits bounds the entries read per keyword.
	perKeywordHits = 50
)

// RelatedEntry is an entry found by DiscoverRelated with the keywords it
// matched.
type RelatedEntry struct {
	Entry        *devlog.Entry `json:"entry"`
	MatchedTerms []string      `json:"matchedTerms"`
	Score        int           `json:"score"`
}

// DiscoverRelated finds entries of the project that share significant
// words with text. Each keyword is searched on its own and entries are
// ranked by how many keywords they match, then by most recent update.
// Archived entries take part so past work is found too.
func (s *DevlogService) DiscoverRelated(ctx context.Context, projectID int64, text string, limit int) ([]RelatedEntry, error) {
	if projectID <= 0 {
		return nil, invalidf("projectId is required")
	}
	keywords := extractKeywords(text)
	if len(keywords) == 0 {
		return nil, invalidf("text has no significant words to search for")
	}
	if limit <= 0 || limit > devlog.MaxPageSize {
		limit = DefaultRelatedLimit
	}

	byID := map[int64]*RelatedEntry{}
	f := devlog.Filter{ProjectID: projectID, Archived: devlog.ArchiveInclude}
	for _, kw := range keywords {
		page, err := s.store.Search(ctx, kw, f, devlog.Pagination{Limit: perKeywordHits})
		if err != nil {
			return nil, err
		}
		for _, e := range page.Items {
			r, ok := byID[e.ID]
			if !ok {
				r = &RelatedEntry{Entry: e}
				byID[e.ID] = r
			}
			r.MatchedTerms = append(r.MatchedTerms, kw)
			r.Score++
		}
	}

	out := make([]RelatedEntry, 0, len(byID))
	for _, r := range byID {
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b RelatedEntry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := b.Entry.UpdatedAt.Compare(a.Entry.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Entry.ID, a.Entry.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// extractKeywords lowercases text, drops punctuation, short words and
// stop words, and keeps the first maxKeywords distinct words.
func extractKeywords(text string) []string {
	var keywords []string
	seen := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}<>`*#-/")
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"was": true, "one": true, "our": true, "out": true, "has": true,
	"its": true, "let": true, "may": true, "who": true, "did": true,
	"get": true, "how": true, "new": true, "now": true, "old": true,
	"see": true, "way": true, "too": true, "use": true, "that": true,
	"with": true, "have": true, "this": true, "will": true, "your": true,
	"from": true, "they": true, "been": true, "each": true, "which": true,
	"their": true, "there": true, "about": true, "would": true, "make": true,
	"like": true, "just": true, "over": true, "such": true, "take": true,
	"also": true, "into": true, "than": true, "them": true, "then": true,
	"some": true, "what": true, "when": true, "were": true, "other": true,
	"could": true, "after": true, "should": true, "need": true, "needs": true,
	"add": true, "fix": true, "update": true, "implement": true, "work": true,
}
