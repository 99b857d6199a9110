package transitdata

import (
	"bytes"
	"context"
	"fmt"

	"github.com/theoremus-urban-solutions/transitdata/config"
	"github.com/theoremus-urban-solutions/transitdata/realtime"
	"github.com/theoremus-urban-solutions/transitdata/store"
)

// realtimeJob snapshots the GTFS-Realtime endpoints of one feed.
type realtimeJob struct {
	feed      config.Feed
	endpoints []realtime.Endpoint
}

func newRealtimeJob(f config.Feed) *realtimeJob {
	rt := f.Realtime
	return &realtimeJob{
		feed:      f,
		endpoints: realtime.Endpoints(rt.TripUpdatesURL, rt.VehiclePositionsURL, rt.ServiceAlertsURL),
	}
}

func (j *realtimeJob) Name() string { return "realtime " + j.feed.Name }

func (j *realtimeJob) Plan(_ context.Context, _ *Runner) []Result {
	out := make([]Result, 0, len(j.endpoints))
	for _, e := range j.endpoints {
		out = append(out, Result{
			Job:    j.Name(),
			Key:    realtime.Pattern(j.feed.Name, e.Module),
			Status: StatusPlanned,
			Detail: e.URL,
		})
	}
	return out
}

func (j *realtimeJob) Run(ctx context.Context, r *Runner) []Result {
	out := make([]Result, 0, len(j.endpoints))
	for _, e := range j.endpoints {
		out = append(out, j.snapshot(ctx, r, e))
	}
	return out
}

func (j *realtimeJob) snapshot(ctx context.Context, r *Runner, e realtime.Endpoint) Result {
	snap, err := r.realtime.Fetch(ctx, e.Module, e.URL)
	if err != nil {
		return failed(j.Name(), "", err)
	}
	key := realtime.Key(j.feed.Name, e.Module, snap.Summary.Timestamp)

	// a feed that has not advanced its header timestamp is the same snapshot
	if _, ok := r.manifest.Get(key); ok {
		if _, err := r.store.Stat(ctx, key); err == nil {
			return Result{Job: j.Name(), Key: key, Status: StatusUnchanged}
		}
	}

	obj, err := r.store.Put(ctx, key, bytes.NewReader(snap.Raw))
	if err != nil {
		return failed(j.Name(), key, err)
	}
	sum := snap.Summary
	r.manifest.Upsert(store.Artifact{
		Key:       key,
		Dataset:   "realtime",
		Feed:      j.feed.Name,
		Slot:      string(e.Module),
		Checksum:  obj.Checksum,
		Size:      obj.Size,
		FetchedAt: snap.Time(),
		StoredAt:  r.now().UTC(),
		SourceURL: e.URL,
		Attributes: map[string]string{
			"gtfs_realtime_version": sum.Version,
			"incrementality":        sum.Incrementality,
			"entities":              fmt.Sprint(sum.Entities),
			"trip_updates":          fmt.Sprint(sum.TripUpdates),
			"vehicles":              fmt.Sprint(sum.Vehicles),
			"alerts":                fmt.Sprint(sum.Alerts),
		},
	})
	return Result{Job: j.Name(), Key: key, Status: StatusStored, Detail: fmt.Sprintf("%d entities", sum.Entities)}
}
