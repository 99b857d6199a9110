// Package lodes downloads LEHD Origin-Destination Employment Statistics.
package lodes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/theoremus-urban-solutions/transitdata/internal/httpclient"
)

const (
	DefaultBaseURL = "https://lehd.ces.census.gov/data/lodes"
	DefaultVersion = "LODES8"

	// FirstYear is the earliest year published in LODES8.
	FirstYear = 2002
)

// ErrNoYearAvailable is returned when no published year is found for a state.
var ErrNoYearAvailable = errors.New("no LODES year available")

// Job identifies one OD extract. Year 0 selects the latest published year.
type Job struct {
	State   string
	Year    int
	Part    string // main or aux
	JobType string // JT00..JT09
	Format  string // csv or parquet
}

func (j Job) normalize() Job {
	j.State = strings.ToLower(j.State)
	if j.Part == "" {
		j.Part = "main"
	}
	if j.JobType == "" {
		j.JobType = "JT00"
	}
	j.JobType = strings.ToUpper(j.JobType)
	if j.Format == "" {
		j.Format = "csv"
	}
	return j
}

func (j Job) String() string {
	j = j.normalize()
	year := "latest"
	if j.Year > 0 {
		year = fmt.Sprint(j.Year)
	}
	return fmt.Sprintf("lodes %s %s %s %s", j.State, j.Part, j.JobType, year)
}

// Key is the storage key of the main JT00 extract for state and year.
func Key(state string, year int, format string) string {
	return Job{State: state, Format: format}.Key(year)
}

// Key is the storage key of the extract for the resolved year. Extracts other
// than main JT00 carry their part and job type in the name.
func (j Job) Key(year int) string {
	j = j.normalize()
	name := fmt.Sprintf("lodes_od_%s_%d", j.State, year)
	if j.Part != "main" || j.JobType != "JT00" {
		name += "_" + j.Part + "_" + strings.ToLower(j.JobType)
	}
	return path.Join("lodes", name+"."+j.Format)
}

// Meta describes the remote file backing an extract.
type Meta struct {
	URL          string
	Year         int
	ETag         string
	LastModified string
}

// Same reports whether two metas describe the same remote content.
func (m Meta) Same(etag, lastModified string) bool {
	if m.ETag != "" && etag != "" {
		return m.ETag == etag
	}
	return m.LastModified != "" && m.LastModified == lastModified
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Version string
	HTTP    httpclient.Config
}

// Client fetches LODES files.
type Client struct {
	http    *httpclient.Client
	base    string
	version string
	now     func() time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	return &Client{
		http:    httpclient.New(cfg.HTTP),
		base:    strings.TrimSuffix(cfg.BaseURL, "/"),
		version: cfg.Version,
		now:     time.Now,
	}
}

// URL builds the download URL of an OD file.
func (c *Client) URL(state, part, jobType string, year int) string {
	st := strings.ToLower(state)
	return fmt.Sprintf("%s/%s/%s/od/%s_od_%s_%s_%d.csv.gz",
		c.base, c.version, st, st, part, strings.ToUpper(jobType), year)
}

// LatestYear probes backwards from last year for the newest published file.
func (c *Client) LatestYear(ctx context.Context, state, part, jobType string) (int, error) {
	for year := c.now().Year() - 1; year >= FirstYear; year-- {
		_, err := c.http.Head(ctx, c.URL(state, part, jobType, year))
		if err == nil {
			return year, nil
		}
		if !httpclient.IsNotFound(err) {
			return 0, fmt.Errorf("probe %s %d: %w", state, year, err)
		}
	}
	return 0, fmt.Errorf("%w: %s %s %s", ErrNoYearAvailable, state, part, jobType)
}

// Probe resolves the year of job and returns the remote file's validators.
func (c *Client) Probe(ctx context.Context, job Job) (Meta, error) {
	job = job.normalize()
	year := job.Year
	if year == 0 {
		var err error
		if year, err = c.LatestYear(ctx, job.State, job.Part, job.JobType); err != nil {
			return Meta{}, err
		}
	}
	u := c.URL(job.State, job.Part, job.JobType, year)
	resp, err := c.http.Head(ctx, u)
	if err != nil {
		return Meta{}, fmt.Errorf("probe %s: %w", job, err)
	}
	return Meta{
		URL:          u,
		Year:         year,
		ETag:         resp.Headers.Get("ETag"),
		LastModified: resp.Headers.Get("Last-Modified"),
	}, nil
}

// Download fetches the gzipped OD file described by meta and writes the
// decompressed CSV to w.
func (c *Client) Download(ctx context.Context, meta Meta, w io.Writer) (int64, error) {
	spool, err := os.CreateTemp("", "lodes-*.csv.gz")
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	if _, _, err := c.http.Stream(ctx, &httpclient.Request{Path: meta.URL}, spool); err != nil {
		return 0, fmt.Errorf("download %s: %w", meta.URL, err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	gz, err := gzip.NewReader(spool)
	if err != nil {
		return 0, fmt.Errorf("gunzip %s: %w", meta.URL, err)
	}
	defer gz.Close()

	n, err := io.Copy(w, gz)
	if err != nil {
		return n, fmt.Errorf("gunzip %s: %w", meta.URL, err)
	}
	return n, nil
}
