package transitdata

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/theoremus-urban-solutions/transitdata/lodes"
	"github.com/theoremus-urban-solutions/transitdata/store"
)

// lodesJob keeps one state/year OD extract.
type lodesJob struct {
	job lodes.Job
}

func (j *lodesJob) Name() string { return j.job.String() }

func (j *lodesJob) format() string {
	if j.job.Format == "" {
		return "csv"
	}
	return j.job.Format
}

func (j *lodesJob) unchanged(ctx context.Context, r *Runner, key string, meta lodes.Meta) bool {
	a, ok := r.manifest.Get(key)
	if !ok || !meta.Same(a.ETag, a.LastModified) {
		return false
	}
	_, err := r.store.Stat(ctx, key)
	return err == nil
}

func (j *lodesJob) Plan(ctx context.Context, r *Runner) []Result {
	meta, err := r.lodes.Probe(ctx, j.job)
	if err != nil {
		return []Result{failed(j.Name(), "", err)}
	}
	key := j.job.Key(meta.Year)
	status := StatusPlanned
	if j.unchanged(ctx, r, key, meta) {
		status = StatusUnchanged
	}
	return []Result{{Job: j.Name(), Key: key, Status: status, Detail: meta.URL}}
}

func (j *lodesJob) Run(ctx context.Context, r *Runner) []Result {
	meta, err := r.lodes.Probe(ctx, j.job)
	if err != nil {
		return []Result{failed(j.Name(), "", err)}
	}
	key := j.job.Key(meta.Year)
	if j.unchanged(ctx, r, key, meta) {
		return []Result{{Job: j.Name(), Key: key, Status: StatusUnchanged}}
	}
	return []Result{j.fetch(ctx, r, key, meta)}
}

func (j *lodesJob) fetch(ctx context.Context, r *Runner, key string, meta lodes.Meta) Result {
	csvFile, err := os.CreateTemp("", "lodes-*.csv")
	if err != nil {
		return failed(j.Name(), key, err)
	}
	defer func() {
		_ = csvFile.Close()
		_ = os.Remove(csvFile.Name())
	}()

	if _, err := r.lodes.Download(ctx, meta, csvFile); err != nil {
		return failed(j.Name(), key, err)
	}
	if _, err := csvFile.Seek(0, io.SeekStart); err != nil {
		return failed(j.Name(), key, err)
	}

	attrs := map[string]string{
		"state":    j.job.State,
		"year":     fmt.Sprint(meta.Year),
		"part":     j.job.Part,
		"job_type": j.job.JobType,
		"format":   j.format(),
	}

	var body io.Reader = csvFile
	if j.format() == "parquet" {
		pq, err := os.CreateTemp("", "lodes-*.parquet")
		if err != nil {
			return failed(j.Name(), key, err)
		}
		defer func() {
			_ = pq.Close()
			_ = os.Remove(pq.Name())
		}()
		rows, err := lodes.ConvertToParquet(csvFile, pq)
		if err != nil {
			return failed(j.Name(), key, err)
		}
		if _, err := pq.Seek(0, io.SeekStart); err != nil {
			return failed(j.Name(), key, err)
		}
		attrs["rows"] = fmt.Sprint(rows)
		body = pq
	}

	obj, err := r.store.Put(ctx, key, body)
	if err != nil {
		return failed(j.Name(), key, err)
	}
	r.manifest.Upsert(store.Artifact{
		Key:          key,
		Dataset:      "lodes",
		Checksum:     obj.Checksum,
		Size:         obj.Size,
		StoredAt:     r.now().UTC(),
		SourceURL:    meta.URL,
		ETag:         meta.ETag,
		LastModified: meta.LastModified,
		Attributes:   attrs,
	})
	return Result{Job: j.Name(), Key: key, Status: StatusStored, Detail: meta.URL}
}
