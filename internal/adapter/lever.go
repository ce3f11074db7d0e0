package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/amishk599/jobintel/internal/model"
)

const leverBaseURL = "https://api.lever.co/v0/postings"

type leverCategories struct {
	Location     string   `json:"location"`
	AllLocations []string `json:"allLocations"`
}

type leverJob struct {
	ID            string          `json:"id"`
	Text          string          `json:"text"`
	Categories    leverCategories `json:"categories"`
	CreatedAt     int64           `json:"createdAt"`
	WorkplaceType string          `json:"workplaceType"`
	HostedURL     string          `json:"hostedUrl"`
}

// LeverAdapter fetches listings from one Lever postings page.
type LeverAdapter struct {
	companySlug string
	companyName string
	client      *http.Client
}

// NewLeverAdapter creates a new adapter for a Lever board.
func NewLeverAdapter(companySlug string, companyName string, client *http.Client) *LeverAdapter {
	return &LeverAdapter{
		companySlug: companySlug,
		companyName: companyName,
		client:      client,
	}
}

// FetchJobs lists the board. createdAt is unix milliseconds.
func (a *LeverAdapter) FetchJobs(ctx context.Context) ([]model.RawListing, error) {
	label := "lever fetch for " + a.companySlug
	body, err := get(ctx, a.client, fmt.Sprintf("%s/%s?mode=json", leverBaseURL, a.companySlug), nil, label)
	if err != nil {
		return nil, err
	}

	var leverJobs []leverJob
	if err := json.Unmarshal(body, &leverJobs); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}

	listings := make([]model.RawListing, 0, len(leverJobs))
	for _, lj := range leverJobs {
		// Prefer allLocations when present.
		location := lj.Categories.Location
		if len(lj.Categories.AllLocations) > 0 {
			location = strings.Join(lj.Categories.AllLocations, ", ")
		}
		// Lever reports remote/hybrid separately from the location text.
		if wt := strings.TrimSpace(lj.WorkplaceType); wt != "" && wt != "unspecified" &&
			!strings.Contains(strings.ToLower(location), strings.ToLower(wt)) {
			location = strings.TrimSpace(location + " (" + wt + ")")
		}

		listings = append(listings, model.RawListing{
			ID:       lj.ID,
			Title:    lj.Text,
			Company:  a.companyName,
			Location: location,
			URL:      lj.HostedURL,
			Epoch:    lj.CreatedAt,
		})
	}
	return listings, nil
}
