package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/amishk599/jobintel/internal/model"
)

const remoteOKURL = "https://remoteok.com/api"

// RemoteOKAdapter fetches the public RemoteOK feed. The feed is a JSON array
// whose first element is a legal notice rather than a job.
type RemoteOKAdapter struct {
	url    string
	client *http.Client
}

// NewRemoteOKAdapter creates an adapter for the RemoteOK API.
func NewRemoteOKAdapter(client *http.Client) *RemoteOKAdapter {
	return &RemoteOKAdapter{url: remoteOKURL, client: client}
}

// FetchJobs keeps only array elements carrying position, company or url.
func (a *RemoteOKAdapter) FetchJobs(ctx context.Context) ([]model.RawListing, error) {
	const label = "remoteok fetch"
	header := http.Header{}
	header.Set("User-Agent", "jobintel-scraper/1.0")
	header.Set("Accept", "application/json")

	body, err := get(ctx, a.client, a.url, header, label)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: invalid JSON", label)
	}

	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("%s: %w", label, errors.New("response is not an array"))
	}

	var listings []model.RawListing
	root.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		if !item.Get("position").Exists() && !item.Get("company").Exists() && !item.Get("url").Exists() {
			return true
		}

		l := model.RawListing{
			ID:       item.Get("id").String(),
			Slug:     item.Get("slug").String(),
			Title:    item.Get("position").String(),
			Company:  item.Get("company").String(),
			Location: item.Get("location").String(),
			URL:      item.Get("url").String(),
			Date:     item.Get("date").String(),
		}
		// epoch is unix seconds.
		if epoch := item.Get("epoch").Int(); epoch > 0 {
			l.Epoch = epoch * 1000
		}
		listings = append(listings, l)
		return true
	})
	return listings, nil
}
