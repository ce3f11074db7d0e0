package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/amishk599/jobintel/internal/model"
)

const ashbyBaseURL = "https://api.ashbyhq.com/posting-api/job-board"

type ashbyJob struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Location    string `json:"location"`
	JobURL      string `json:"jobUrl"`
	PublishedAt string `json:"publishedAt"`
	IsListed    bool   `json:"isListed"`
	IsRemote    bool   `json:"isRemote"`
}

type ashbyResponse struct {
	Jobs []ashbyJob `json:"jobs"`
}

// AshbyAdapter fetches listings from one Ashby job board.
type AshbyAdapter struct {
	boardToken  string
	companyName string
	client      *http.Client
}

// NewAshbyAdapter creates a new adapter for an Ashby job board.
func NewAshbyAdapter(boardToken string, companyName string, client *http.Client) *AshbyAdapter {
	return &AshbyAdapter{
		boardToken:  boardToken,
		companyName: companyName,
		client:      client,
	}
}

// FetchJobs lists the board, skipping unlisted postings.
func (a *AshbyAdapter) FetchJobs(ctx context.Context) ([]model.RawListing, error) {
	label := "ashby fetch for " + a.boardToken
	body, err := get(ctx, a.client, fmt.Sprintf("%s/%s", ashbyBaseURL, a.boardToken), nil, label)
	if err != nil {
		return nil, err
	}

	var ashbyResp ashbyResponse
	if err := json.Unmarshal(body, &ashbyResp); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}

	listings := make([]model.RawListing, 0, len(ashbyResp.Jobs))
	for _, aj := range ashbyResp.Jobs {
		if !aj.IsListed {
			continue
		}
		location := aj.Location
		if aj.IsRemote && location == "" {
			location = "Remote"
		}
		listings = append(listings, model.RawListing{
			ID:       aj.ID,
			Title:    aj.Title,
			Company:  a.companyName,
			Location: location,
			URL:      aj.JobURL,
			Date:     aj.PublishedAt,
		})
	}
	return listings, nil
}
