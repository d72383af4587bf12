package filter

import (
	"strings"

	"github.com/amishk599/synopsis/internal/model"
)

// RecordFilter drops records the enrichment service cannot meaningfully summarize:
// records without a description, records tagged with an excluded genre, and
// records whose title contains an excluded keyword. Matching is case-insensitive.
type RecordFilter struct {
	excludeGenres        []string
	titleExcludeKeywords []string
}

// NewRecordFilter returns a filter with the given exclusion lists. Empty lists exclude nothing.
func NewRecordFilter(excludeGenres []string, titleExcludeKeywords []string) *RecordFilter {
	return &RecordFilter{
		excludeGenres:        excludeGenres,
		titleExcludeKeywords: titleExcludeKeywords,
	}
}

// Match returns true if the record should be sent for enrichment.
func (f *RecordFilter) Match(rec model.Record) bool {
	if strings.TrimSpace(rec.Description) == "" {
		return false
	}
	if rec.Title.Display() == "" {
		return false
	}

	for _, g := range f.excludeGenres {
		if rec.HasGenre(g) {
			return false
		}
	}

	romaji := strings.ToLower(rec.Title.Romaji)
	english := strings.ToLower(rec.Title.English)
	for _, kw := range f.titleExcludeKeywords {
		kw = strings.ToLower(kw)
		if strings.Contains(romaji, kw) || strings.Contains(english, kw) {
			return false
		}
	}

	return true
}
