package filter

import (
	"testing"

	"github.com/amishk599/jobintel/internal/model"
)

func listing(title, location string) model.RawListing {
	return model.RawListing{Title: title, Location: location, URL: "https://example.com/j"}
}

func TestListingFilter_Match(t *testing.T) {
	tests := []struct {
		name          string
		includeTitles []string
		excludeTitles []string
		excludeLocs   []string
		listing       model.RawListing
		wantMatch     bool
	}{
		{
			name:      "empty lists pass all",
			listing:   listing("Any Role", "Anywhere"),
			wantMatch: true,
		},
		{
			name:          "include keyword hit",
			includeTitles: []string{"engineer"},
			listing:       listing("Backend Engineer", "Remote"),
			wantMatch:     true,
		},
		{
			name:          "include keyword miss",
			includeTitles: []string{"engineer"},
			listing:       listing("Account Executive", "Remote"),
			wantMatch:     false,
		},
		{
			name:          "excluded title case insensitive",
			excludeTitles: []string{"RECRUITER"},
			listing:       listing("Technical Recruiter", "Remote"),
			wantMatch:     false,
		},
		{
			name:        "excluded location",
			excludeLocs: []string{"london"},
			listing:     listing("Backend Engineer", "London, UK"),
			wantMatch:   false,
		},
		{
			name:          "blank keywords ignored",
			includeTitles: []string{"  "},
			listing:       listing("Designer", ""),
			wantMatch:     true,
		},
		{
			name:      "metadata entry rejected",
			listing:   model.RawListing{ID: "legal", Date: "2026-01-01"},
			wantMatch: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewListingFilter(tt.includeTitles, tt.excludeTitles, tt.excludeLocs)
			if got := f.Match(tt.listing); got != tt.wantMatch {
				t.Errorf("Match() = %v, want %v", got, tt.wantMatch)
			}
		})
	}
}

func TestListingFilter_ApplyKeepsOrder(t *testing.T) {
	f := NewListingFilter(nil, []string{"sales"}, nil)
	in := []model.RawListing{
		listing("A Engineer", ""),
		listing("Sales Lead", ""),
		listing("B Engineer", ""),
	}

	got := f.Apply(in)
	if len(got) != 2 || got[0].Title != "A Engineer" || got[1].Title != "B Engineer" {
		t.Errorf("Apply() = %+v", got)
	}
}

func TestLooksLikeJob(t *testing.T) {
	if LooksLikeJob(model.RawListing{Title: "  "}) {
		t.Error("whitespace title should not count")
	}
	if !LooksLikeJob(model.RawListing{Company: "Acme"}) {
		t.Error("company alone should count")
	}
}
