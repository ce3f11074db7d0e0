package filter

import (
	"strings"

	"github.com/amishk599/jobintel/internal/model"
)

// ListingFilter decides which raw listings are worth publishing. A listing
// must carry at least one of title, company or url. Include lists are
// "match any", exclude lists are "reject any". Matching is case-insensitive
// substring; empty lists are ignored.
type ListingFilter struct {
	includeTitles []string
	excludeTitles []string
	excludeLocs   []string
}

// NewListingFilter lower-cases every keyword once up front.
func NewListingFilter(includeTitles, excludeTitles, excludeLocations []string) *ListingFilter {
	return &ListingFilter{
		includeTitles: lowerAll(includeTitles),
		excludeTitles: lowerAll(excludeTitles),
		excludeLocs:   lowerAll(excludeLocations),
	}
}

// Match reports whether l should be kept.
func (f *ListingFilter) Match(l model.RawListing) bool {
	if !LooksLikeJob(l) {
		return false
	}

	title := strings.ToLower(l.Title)
	location := strings.ToLower(l.Location)

	if len(f.includeTitles) > 0 && !containsAny(title, f.includeTitles) {
		return false
	}
	if containsAny(title, f.excludeTitles) {
		return false
	}
	if containsAny(location, f.excludeLocs) {
		return false
	}
	return true
}

// Apply returns the listings that pass Match, preserving order.
func (f *ListingFilter) Apply(listings []model.RawListing) []model.RawListing {
	kept := make([]model.RawListing, 0, len(listings))
	for _, l := range listings {
		if f.Match(l) {
			kept = append(kept, l)
		}
	}
	return kept
}

// LooksLikeJob is true when the listing has a title, company or url.
// Metadata entries in feeds carry none of them.
func LooksLikeJob(l model.RawListing) bool {
	return strings.TrimSpace(l.Title) != "" ||
		strings.TrimSpace(l.Company) != "" ||
		strings.TrimSpace(l.URL) != ""
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
