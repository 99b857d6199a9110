package lodes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/transitdata/internal/httpclient"
)

const odCSV = `w_geocode,h_geocode,S000,SA01,SA02,SA03,SE01,SE02,SE03,SI01,SI02,SI03,createdate
250017001001000,250017001001001,1,0,1,0,0,0,1,0,0,1,20231016
250017001001000,250017002002012,3,1,1,1,1,1,1,0,1,2,20231016
`

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// lehd serves ma_od_main_JT00_2022.csv.gz only.
func lehd(t *testing.T, heads *int32) *httptest.Server {
	body := gzipped(t, odCSV)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			atomic.AddInt32(heads, 1)
		}
		if r.URL.Path != "/LODES8/ma/od/ma_od_main_JT00_2022.csv.gz" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("ETag", `"od-2022"`)
		w.Header().Set("Last-Modified", "Mon, 16 Oct 2023 10:00:00 GMT")
		_, _ = w.Write(body)
	}))
}

func newTestClient(baseURL string) *Client {
	c := NewClient(Config{
		BaseURL: baseURL,
		HTTP:    httpclient.Config{MaxRetries: -1, RateLimit: 1000, RateBurst: 100},
	})
	c.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestURL(t *testing.T) {
	c := NewClient(Config{})
	assert.Equal(t,
		"https://lehd.ces.census.gov/data/lodes/LODES8/ma/od/ma_od_main_JT00_2022.csv.gz",
		c.URL("MA", "main", "jt00", 2022))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "lodes/lodes_od_ma_2022.csv", Key("MA", 2022, ""))
	assert.Equal(t, "lodes/lodes_od_ri_2021.parquet", Key("ri", 2021, "parquet"))

	assert.Equal(t, "lodes/lodes_od_ma_2022.csv", Job{State: "MA", Part: "main", JobType: "jt00"}.Key(2022))
	assert.Equal(t, "lodes/lodes_od_ma_2022_main_jt01.csv", Job{State: "MA", JobType: "JT01"}.Key(2022))
	assert.Equal(t, "lodes/lodes_od_ma_2022_aux_jt00.parquet", Job{State: "ma", Part: "aux", Format: "parquet"}.Key(2022))
}

func TestLatestYear(t *testing.T) {
	var heads int32
	srv := lehd(t, &heads)
	defer srv.Close()

	year, err := newTestClient(srv.URL).LatestYear(context.Background(), "MA", "main", "JT00")
	require.NoError(t, err)
	assert.Equal(t, 2022, year)
	assert.Equal(t, int32(3), atomic.LoadInt32(&heads), "2024, 2023, 2022")
}

func TestLatestYear_NoneAvailable(t *testing.T) {
	var heads int32
	srv := lehd(t, &heads)
	defer srv.Close()

	_, err := newTestClient(srv.URL).LatestYear(context.Background(), "ri", "main", "JT00")
	assert.ErrorIs(t, err, ErrNoYearAvailable)
}

func TestProbeAndDownload(t *testing.T) {
	var heads int32
	srv := lehd(t, &heads)
	defer srv.Close()
	c := newTestClient(srv.URL)

	meta, err := c.Probe(context.Background(), Job{State: "MA", Year: 2022})
	require.NoError(t, err)
	assert.Equal(t, 2022, meta.Year)
	assert.Equal(t, `"od-2022"`, meta.ETag)
	assert.True(t, meta.Same(`"od-2022"`, ""))
	assert.False(t, meta.Same(`"od-2021"`, meta.LastModified))

	var out bytes.Buffer
	n, err := c.Download(context.Background(), meta, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(odCSV)), n)
	assert.Equal(t, odCSV, out.String())
}

func TestProbe_LatestYear(t *testing.T) {
	var heads int32
	srv := lehd(t, &heads)
	defer srv.Close()

	meta, err := newTestClient(srv.URL).Probe(context.Background(), Job{State: "ma"})
	require.NoError(t, err)
	assert.Equal(t, 2022, meta.Year)
	assert.True(t, strings.HasSuffix(meta.URL, "ma_od_main_JT00_2022.csv.gz"))
}

func TestDownload_NotGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Download(context.Background(), Meta{URL: srv.URL + "/x.csv.gz"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestMetaSame(t *testing.T) {
	tests := []struct {
		name       string
		meta       Meta
		etag, last string
		want       bool
	}{
		{"etag match", Meta{ETag: "a"}, "a", "", true},
		{"etag differs", Meta{ETag: "a", LastModified: "x"}, "b", "x", false},
		{"last-modified fallback", Meta{LastModified: "x"}, "", "x", true},
		{"nothing known", Meta{}, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.meta.Same(tt.etag, tt.last))
		})
	}
}

func TestJobString(t *testing.T) {
	assert.Equal(t, "lodes ma main JT00 latest", Job{State: "MA"}.String())
	assert.Equal(t, "lodes ma aux JT01 2021", Job{State: "MA", Part: "aux", JobType: "jt01", Year: 2021}.String())
}
