package transitland

import (
	"errors"
	"time"
)

var (
	// ErrMissingAPIKey is returned when no transit.land API key is configured.
	ErrMissingAPIKey = errors.New("transit.land API key not set")
	// ErrNoFeedVersions is returned when a feed has no archived versions.
	ErrNoFeedVersions = errors.New("no feed versions found for feed")
)

// FeedVersion is one fetched snapshot of a feed, as listed by transit.land.
type FeedVersion struct {
	ID                   int64     `json:"id"`
	SHA1                 string    `json:"sha1"`
	FetchedAt            time.Time `json:"fetched_at"`
	URL                  string    `json:"url"`
	EarliestCalendarDate string    `json:"earliest_calendar_date"`
	LatestCalendarDate   string    `json:"latest_calendar_date"`
}

type feedVersionsResponse struct {
	FeedVersions []FeedVersion `json:"feed_versions"`
	Meta         struct {
		After int64  `json:"after"`
		Next  string `json:"next"`
	} `json:"meta"`
}
