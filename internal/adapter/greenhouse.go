package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/amishk599/jobintel/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

type greenhouseJob struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Location    greenhouseLocation `json:"location"`
	AbsoluteURL string             `json:"absolute_url"`
	FirstPub    string             `json:"first_published"`
	UpdatedAt   string             `json:"updated_at"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// GreenhouseAdapter fetches listings from one Greenhouse public board.
type GreenhouseAdapter struct {
	boardToken  string
	companyName string
	client      *http.Client
}

// NewGreenhouseAdapter creates a new adapter for a Greenhouse board.
func NewGreenhouseAdapter(boardToken string, companyName string, client *http.Client) *GreenhouseAdapter {
	return &GreenhouseAdapter{
		boardToken:  boardToken,
		companyName: companyName,
		client:      client,
	}
}

// FetchJobs lists the board. The posted date is first_published, falling back
// to updated_at.
func (a *GreenhouseAdapter) FetchJobs(ctx context.Context) ([]model.RawListing, error) {
	label := "greenhouse fetch for " + a.boardToken
	body, err := get(ctx, a.client, fmt.Sprintf("%s/%s/jobs", greenhouseBaseURL, a.boardToken), nil, label)
	if err != nil {
		return nil, err
	}

	var ghResp greenhouseResponse
	if err := json.Unmarshal(body, &ghResp); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}

	listings := make([]model.RawListing, 0, len(ghResp.Jobs))
	for _, gj := range ghResp.Jobs {
		date := gj.FirstPub
		if date == "" {
			date = gj.UpdatedAt
		}
		listings = append(listings, model.RawListing{
			ID:       strconv.FormatInt(gj.ID, 10),
			Title:    gj.Title,
			Company:  a.companyName,
			Location: gj.Location.Name,
			URL:      gj.AbsoluteURL,
			Date:     date,
		})
	}
	return listings, nil
}
