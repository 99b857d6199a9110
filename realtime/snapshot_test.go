package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/theoremus-urban-solutions/transitdata/internal/httpclient"
)

func feedMessage(t *testing.T, ts uint64) []byte {
	t.Helper()
	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
		},
		Entity: []*gtfsrtpb.FeedEntity{
			{
				Id:         proto.String("tu-1"),
				TripUpdate: &gtfsrtpb.TripUpdate{Trip: &gtfsrtpb.TripDescriptor{TripId: proto.String("t1")}},
			},
			{
				Id:      proto.String("vp-1"),
				Vehicle: &gtfsrtpb.VehiclePosition{Trip: &gtfsrtpb.TripDescriptor{TripId: proto.String("t1")}},
			},
			{
				Id:      proto.String("vp-2"),
				Vehicle: &gtfsrtpb.VehiclePosition{},
			},
			{
				Id:    proto.String("al-1"),
				Alert: &gtfsrtpb.Alert{},
			},
			{
				Id:        proto.String("gone"),
				IsDeleted: proto.Bool(true),
			},
		},
	}
	if ts > 0 {
		fm.Header.Timestamp = proto.Uint64(ts)
	}
	b, err := proto.Marshal(fm)
	require.NoError(t, err)
	return b
}

func TestDecode(t *testing.T) {
	_, sum, err := Decode(feedMessage(t, 1735689600))
	require.NoError(t, err)

	assert.Equal(t, Summary{
		Version:        "2.0",
		Incrementality: "FULL_DATASET",
		Timestamp:      1735689600,
		Entities:       5,
		TripUpdates:    1,
		Vehicles:       2,
		Alerts:         1,
		Deleted:        1,
	}, sum)
}

func TestDecode_Garbage(t *testing.T) {
	_, _, err := Decode([]byte("<html>not protobuf</html>"))
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	body := feedMessage(t, 1735689600)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewFetcher(httpclient.Config{MaxRetries: -1, RateLimit: 100, RateBurst: 10})
	snap, err := f.Fetch(context.Background(), VehiclePositions, srv.URL+"/vp.pb")
	require.NoError(t, err)
	assert.Equal(t, body, snap.Raw)
	assert.Equal(t, 2, snap.Summary.Vehicles)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), snap.Time())
}

func TestFetch_StampsMissingTimestamp(t *testing.T) {
	body := feedMessage(t, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewFetcher(httpclient.Config{MaxRetries: -1, RateLimit: 100, RateBurst: 10})
	f.now = func() time.Time { return time.Unix(1700000000, 0) }

	snap, err := f.Fetch(context.Background(), TripUpdates, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), snap.Summary.Timestamp)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), snap.Time())
	assert.Equal(t, "realtime/mwrta/trip_updates_1700000000.pb", Key("mwrta", snap.Module, snap.Summary.Timestamp))
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewFetcher(httpclient.Config{MaxRetries: -1, RateLimit: 100, RateBurst: 10})
	_, err := f.Fetch(context.Background(), ServiceAlerts, srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 403")
}

func TestEndpointsAndKey(t *testing.T) {
	eps := Endpoints("", "http://x/vp", "http://x/sa")
	require.Len(t, eps, 2)
	assert.Equal(t, VehiclePositions, eps[0].Module)
	assert.Equal(t, ServiceAlerts, eps[1].Module)

	assert.Equal(t, "realtime/mwrta/trip_updates_1735689600.pb", Key("mwrta", TripUpdates, 1735689600))
	assert.Equal(t, "realtime/mwrta/service_alerts_*.pb", Pattern("mwrta", ServiceAlerts))
}
