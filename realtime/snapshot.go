// Package realtime captures GTFS-Realtime feed messages as raw protobuf snapshots.
package realtime

import (
	"context"
	"fmt"
	"path"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/theoremus-urban-solutions/transitdata/internal/httpclient"
)

// Module names one GTFS-Realtime endpoint kind.
type Module string

const (
	TripUpdates      Module = "trip_updates"
	VehiclePositions Module = "vehicle_positions"
	ServiceAlerts    Module = "service_alerts"
)

// Endpoint is a module paired with the URL it is served from.
type Endpoint struct {
	Module Module
	URL    string
}

// Endpoints lists the configured endpoints, skipping empty URLs.
func Endpoints(tripUpdates, vehiclePositions, serviceAlerts string) []Endpoint {
	var out []Endpoint
	for _, e := range []Endpoint{
		{TripUpdates, tripUpdates},
		{VehiclePositions, vehiclePositions},
		{ServiceAlerts, serviceAlerts},
	} {
		if e.URL != "" {
			out = append(out, e)
		}
	}
	return out
}

// Summary describes a decoded FeedMessage.
type Summary struct {
	Version        string `yaml:"version" json:"version"`
	Incrementality string `yaml:"incrementality" json:"incrementality"`
	Timestamp      int64  `yaml:"timestamp" json:"timestamp"`
	Entities       int    `yaml:"entities" json:"entities"`
	TripUpdates    int    `yaml:"trip_updates" json:"trip_updates"`
	Vehicles       int    `yaml:"vehicles" json:"vehicles"`
	Alerts         int    `yaml:"alerts" json:"alerts"`
	Deleted        int    `yaml:"deleted" json:"deleted"`
}

// Snapshot is one fetched feed message.
type Snapshot struct {
	Module  Module
	URL     string
	Raw     []byte
	Summary Summary
}

// Time returns the header timestamp as UTC time.
func (s *Snapshot) Time() time.Time {
	return time.Unix(s.Summary.Timestamp, 0).UTC()
}

// Fetcher downloads realtime feeds.
type Fetcher struct {
	http *httpclient.Client
	now  func() time.Time
}

// NewFetcher creates a fetcher on top of the shared HTTP client settings.
func NewFetcher(cfg httpclient.Config) *Fetcher {
	return &Fetcher{http: httpclient.New(cfg), now: time.Now}
}

// Fetch downloads and decodes the feed at url. A message without a header
// timestamp is stamped with the fetch time.
func (f *Fetcher) Fetch(ctx context.Context, module Module, url string) (*Snapshot, error) {
	resp, err := f.http.Get(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", module, err)
	}
	_, sum, err := Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s from %s: %w", module, url, err)
	}
	if sum.Timestamp == 0 {
		sum.Timestamp = f.now().Unix()
	}
	return &Snapshot{Module: module, URL: url, Raw: resp.Body, Summary: sum}, nil
}

// Decode parses a FeedMessage. Missing required fields are tolerated since
// producers often omit them.
func Decode(raw []byte) (*gtfsrtpb.FeedMessage, Summary, error) {
	var fm gtfsrtpb.FeedMessage
	if err := (proto.UnmarshalOptions{AllowPartial: true}).Unmarshal(raw, &fm); err != nil {
		return nil, Summary{}, err
	}
	return &fm, Summarize(&fm), nil
}

// Summarize counts entities by kind.
func Summarize(fm *gtfsrtpb.FeedMessage) Summary {
	var s Summary
	if h := fm.GetHeader(); h != nil {
		s.Version = h.GetGtfsRealtimeVersion()
		s.Incrementality = h.GetIncrementality().String()
		s.Timestamp = int64(h.GetTimestamp())
	}
	s.Entities = len(fm.GetEntity())
	for _, e := range fm.GetEntity() {
		if e.GetIsDeleted() {
			s.Deleted++
		}
		if e.GetTripUpdate() != nil {
			s.TripUpdates++
		}
		if e.GetVehicle() != nil {
			s.Vehicles++
		}
		if e.GetAlert() != nil {
			s.Alerts++
		}
	}
	return s
}

// Key is the storage key of a snapshot.
func Key(feed string, module Module, timestamp int64) string {
	return path.Join("realtime", feed, fmt.Sprintf("%s_%d.pb", module, timestamp))
}

// Pattern matches every snapshot key of one feed module.
func Pattern(feed string, module Module) string {
	return path.Join("realtime", feed, string(module)+"_*.pb")
}
