package transitdata

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/theoremus-urban-solutions/transitdata/config"
	"github.com/theoremus-urban-solutions/transitdata/gtfs"
	"github.com/theoremus-urban-solutions/transitdata/internal/logging"
	"github.com/theoremus-urban-solutions/transitdata/retention"
	"github.com/theoremus-urban-solutions/transitdata/store"
)

// gtfsJob archives the versions of one feed selected by its policies.
type gtfsJob struct {
	feed     config.Feed
	policies []retention.Policy
}

func newGTFSJob(f config.Feed) (*gtfsJob, error) {
	policies, err := policiesFor(f)
	if err != nil {
		return nil, err
	}
	return &gtfsJob{feed: f, policies: policies}, nil
}

func (j *gtfsJob) Name() string { return "gtfs " + j.feed.Name }

func (j *gtfsJob) selections(ctx context.Context, r *Runner) ([]retention.Selection, error) {
	versions, err := r.transitland.FeedVersions(ctx, j.feed.FeedKey, retention.MinimumListing(j.policies))
	if err != nil {
		return nil, err
	}
	return retention.Select(j.feed.FeedKey, versions, j.policies), nil
}

func (j *gtfsJob) Plan(ctx context.Context, r *Runner) []Result {
	sels, err := j.selections(ctx, r)
	if err != nil {
		return []Result{failed(j.Name(), "", err)}
	}
	out := make([]Result, 0, len(sels))
	for _, s := range sels {
		status := StatusPlanned
		if j.unchanged(ctx, r, s.Key, s.Version.SHA1) {
			status = StatusUnchanged
		}
		out = append(out, Result{
			Job:    j.Name(),
			Key:    s.Key,
			Status: status,
			Detail: fmt.Sprintf("%s %s fetched %s", s.Slot, s.Version.SHA1, s.Version.FetchedAt.UTC().Format("2006-01-02")),
		})
	}
	stored := r.manifest.Keys(fmt.Sprintf("gtfs/%s/", j.feed.FeedKey))
	for _, k := range retention.Stale(j.feed.FeedKey, stored, sels) {
		out = append(out, Result{Job: j.Name(), Key: k, Status: StatusPlanned, Detail: "prune"})
	}
	return out
}

func (j *gtfsJob) Run(ctx context.Context, r *Runner) []Result {
	sels, err := j.selections(ctx, r)
	if err != nil {
		return []Result{failed(j.Name(), "", err)}
	}

	out := make([]Result, 0, len(sels))
	for _, s := range sels {
		out = append(out, j.fetch(ctx, r, s))
	}

	stored := r.manifest.Keys(fmt.Sprintf("gtfs/%s/", j.feed.FeedKey))
	for _, k := range retention.Stale(j.feed.FeedKey, stored, sels) {
		if err := r.store.Delete(ctx, k); err != nil {
			out = append(out, failed(j.Name(), k, err))
			continue
		}
		r.manifest.Remove(k)
		out = append(out, Result{Job: j.Name(), Key: k, Status: StatusPruned})
	}
	return out
}

// unchanged reports whether key already holds the version with sha.
func (j *gtfsJob) unchanged(ctx context.Context, r *Runner, key, sha string) bool {
	a, ok := r.manifest.Get(key)
	if !ok || a.SHA1 != sha {
		return false
	}
	_, err := r.store.Stat(ctx, key)
	return err == nil
}

func (j *gtfsJob) fetch(ctx context.Context, r *Runner, s retention.Selection) Result {
	if j.unchanged(ctx, r, s.Key, s.Version.SHA1) {
		return Result{Job: j.Name(), Key: s.Key, Status: StatusUnchanged}
	}

	tmp, err := os.CreateTemp("", "gtfs-*.zip")
	if err != nil {
		return failed(j.Name(), s.Key, err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	sha, err := j.download(ctx, r, s, tmp)
	if err != nil {
		return failed(j.Name(), s.Key, err)
	}
	if sha != s.Version.SHA1 {
		// the latest endpoint raced a new version; accept what was served
		logging.Warnf("%s: %s served %s instead of listed %s", j.Name(), s.Key, sha, s.Version.SHA1)
		if j.unchanged(ctx, r, s.Key, sha) {
			return Result{Job: j.Name(), Key: s.Key, Status: StatusUnchanged}
		}
	}

	summary, err := gtfs.Inspect(tmp.Name())
	if err != nil {
		return failed(j.Name(), s.Key, fmt.Errorf("reject %s: %w", sha, err))
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return failed(j.Name(), s.Key, err)
	}
	obj, err := r.store.Put(ctx, s.Key, tmp)
	if err != nil {
		return failed(j.Name(), s.Key, err)
	}

	a := store.Artifact{
		Key:       s.Key,
		Dataset:   "gtfs",
		Feed:      j.feed.Name,
		Slot:      string(s.Slot),
		SHA1:      sha,
		Checksum:  obj.Checksum,
		Size:      obj.Size,
		StoredAt:  r.now().UTC(),
		SourceURL: s.Version.URL,
		GTFS:      summary,
		Attributes: map[string]string{
			"feed_key": j.feed.FeedKey,
		},
	}
	if sha == s.Version.SHA1 {
		a.FetchedAt = s.Version.FetchedAt.UTC()
		a.Attributes["feed_version_id"] = fmt.Sprint(s.Version.ID)
	}
	r.manifest.Upsert(a)
	logging.Infof("%s: stored %s (%s, %d routes) at %s", j.Name(), s.Key, sha, summary.Routes, r.store.Location(s.Key))
	return Result{Job: j.Name(), Key: s.Key, Status: StatusStored, Detail: sha}
}

// download writes the selected archive to f and returns its sha1. A recent
// selection served through the latest endpoint falls back to the versioned
// download when the latest version moved on.
func (j *gtfsJob) download(ctx context.Context, r *Runner, s retention.Selection, f *os.File) (string, error) {
	h := sha1.New()
	if s.UseLatestEndpoint {
		if _, err := r.transitland.DownloadLatest(ctx, j.feed.FeedKey, io.MultiWriter(f, h)); err != nil {
			return "", err
		}
		sha := hex.EncodeToString(h.Sum(nil))
		if sha == s.Version.SHA1 || s.Slot == retention.SlotLatest {
			return sha, nil
		}
		if err := rewind(f, h); err != nil {
			return "", err
		}
	}

	if _, err := r.transitland.DownloadVersion(ctx, s.Version.SHA1, io.MultiWriter(f, h)); err != nil {
		return "", err
	}
	sha := hex.EncodeToString(h.Sum(nil))
	if sha != s.Version.SHA1 {
		return "", fmt.Errorf("checksum mismatch for %s: got %s", s.Version.SHA1, sha)
	}
	return sha, nil
}

func rewind(f *os.File, h hash.Hash) error {
	h.Reset()
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.Seek(0, io.SeekStart)
	return err
}
