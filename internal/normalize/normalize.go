// Package normalize maps source-specific raw listings onto the canonical
// JobRecord shape.
package normalize

import (
	"log/slog"
	"strings"
	"time"

	"github.com/amishk599/jobintel/internal/model"
)

// dateLayouts are tried in order against RawListing.Date.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Record normalizes one raw listing. It returns false when the title or URL is
// empty after trimming; such records are rejected, not errors.
func Record(source string, raw model.RawListing) (model.JobRecord, bool) {
	title := strings.TrimSpace(raw.Title)
	url := strings.TrimSpace(raw.URL)
	if title == "" || url == "" {
		return model.JobRecord{}, false
	}

	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = strings.TrimSpace(raw.Slug)
	}

	return model.JobRecord{
		Source:      strings.TrimSpace(source),
		SourceJobID: id,
		Title:       title,
		Company:     strings.TrimSpace(raw.Company),
		Location:    strings.TrimSpace(raw.Location),
		URL:         url,
		PostedAt:    ParseDate(raw.Date, raw.Epoch),
	}, true
}

// All normalizes every listing, dropping rejects and logging how many were
// dropped.
func All(source string, raws []model.RawListing, logger *slog.Logger) ([]model.JobRecord, int) {
	records := make([]model.JobRecord, 0, len(raws))
	rejected := 0
	for _, raw := range raws {
		rec, ok := Record(source, raw)
		if !ok {
			rejected++
			continue
		}
		records = append(records, rec)
	}

	if rejected > 0 {
		logger.Warn("rejected listings missing title or url",
			"source", source,
			"rejected", rejected,
			"kept", len(records),
		)
	}
	return records, rejected
}

// ParseDate converts an origin date string, or failing that a unix-millis
// epoch, into a UTC timestamp. Absent or unparsable input yields nil.
func ParseDate(value string, epochMillis int64) *time.Time {
	value = strings.TrimSpace(value)
	if value != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	if epochMillis > 0 {
		t := time.UnixMilli(epochMillis).UTC()
		return &t
	}
	return nil
}
