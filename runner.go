package transitdata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/theoremus-urban-solutions/transitdata/catalog"
	"github.com/theoremus-urban-solutions/transitdata/config"
	"github.com/theoremus-urban-solutions/transitdata/internal/httpclient"
	"github.com/theoremus-urban-solutions/transitdata/internal/logging"
	"github.com/theoremus-urban-solutions/transitdata/lodes"
	"github.com/theoremus-urban-solutions/transitdata/realtime"
	"github.com/theoremus-urban-solutions/transitdata/retention"
	"github.com/theoremus-urban-solutions/transitdata/store"
	"github.com/theoremus-urban-solutions/transitdata/transitland"
)

// ReadmeKey is where the generated data-directory README is stored.
const ReadmeKey = "README.md"

// lodesTimeout bounds a single LODES download; state files run to tens of MB.
const lodesTimeout = 10 * time.Minute

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("a refresh run is already in progress")

// Status is the outcome of one job step.
type Status string

const (
	StatusStored    Status = "stored"
	StatusUnchanged Status = "unchanged"
	StatusPruned    Status = "pruned"
	StatusFailed    Status = "failed"
	StatusPlanned   Status = "planned"
)

// Run statuses recorded in the manifest.
const (
	RunSuccess = "success"
	RunPartial = "partial"
	RunFailed  = "failed"
)

// Result reports what a job did with one storage key.
type Result struct {
	Job    string
	Key    string
	Status Status
	Detail string
	Err    error
}

// RunOptions narrows a run.
type RunOptions struct {
	// Feed limits GTFS and realtime jobs to one feed (name or key).
	Feed string
	// Only limits the run to one dataset: gtfs, realtime or lodes.
	Only string
}

type job interface {
	Name() string
	Run(ctx context.Context, r *Runner) []Result
	Plan(ctx context.Context, r *Runner) []Result
}

// Runner refreshes the configured datasets into a store.
type Runner struct {
	cfg         *config.AppConfig
	store       store.Store
	manifest    *store.Manifest
	transitland *transitland.Client
	lodes       *lodes.Client
	realtime    *realtime.Fetcher
	datasets    []catalog.Dataset

	running atomic.Bool
	saveMu  sync.Mutex
	now     func() time.Time
}

// NewRunner wires the clients for cfg and loads the manifest from st. A
// transit.land API key is required when feeds are configured.
func NewRunner(ctx context.Context, cfg *config.AppConfig, st store.Store) (*Runner, error) {
	m, err := store.LoadManifest(ctx, st)
	if err != nil {
		return nil, err
	}

	tlCfg := cfg.Transitland
	timeout := time.Duration(tlCfg.TimeoutMS) * time.Millisecond

	r := &Runner{
		cfg:      cfg,
		store:    st,
		manifest: m,
		lodes: lodes.NewClient(lodes.Config{
			BaseURL: cfg.LODES.BaseURL,
			Version: cfg.LODES.Version,
			HTTP:    httpclient.Config{Timeout: lodesTimeout, MaxRetries: tlCfg.MaxRetries},
		}),
		realtime: realtime.NewFetcher(httpclient.Config{Timeout: timeout, MaxRetries: tlCfg.MaxRetries}),
		datasets: catalog.Merge(catalog.Default(), cfg.Catalog.Datasets),
		now:      time.Now,
	}

	if len(cfg.Feeds) > 0 {
		r.transitland, err = transitland.NewClient(transitland.Config{
			BaseURL:    tlCfg.BaseURL,
			APIKey:     tlCfg.APIKey,
			Timeout:    timeout,
			RateLimit:  tlCfg.RateLimit,
			RateBurst:  tlCfg.RateBurst,
			MaxRetries: tlCfg.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set %s)", err, tlCfg.APIKeyEnv)
		}
	}
	return r, nil
}

// Manifest returns the live manifest.
func (r *Runner) Manifest() *store.Manifest { return r.manifest }

// Running reports whether a run is in progress.
func (r *Runner) Running() bool { return r.running.Load() }

func (r *Runner) jobs(opts RunOptions) ([]job, error) {
	var jobs []job

	if opts.Only == "" || opts.Only == "gtfs" || opts.Only == "realtime" {
		feeds, err := r.cfg.SelectFeeds(opts.Feed)
		if err != nil {
			return nil, err
		}
		for _, f := range feeds {
			if opts.Only != "realtime" {
				gj, err := newGTFSJob(f)
				if err != nil {
					return nil, err
				}
				jobs = append(jobs, gj)
			}
			if opts.Only != "gtfs" && f.Realtime.Enabled() {
				jobs = append(jobs, newRealtimeJob(f))
			}
		}
	}

	if opts.Only == "" || opts.Only == "lodes" {
		for _, j := range r.cfg.LODES.Jobs {
			jobs = append(jobs, &lodesJob{job: lodes.Job{
				State:   j.State,
				Year:    j.Year,
				Part:    j.Part,
				JobType: j.JobType,
				Format:  j.Format,
			}})
		}
	}

	switch opts.Only {
	case "", "gtfs", "realtime", "lodes":
	default:
		return nil, fmt.Errorf("unknown dataset %q (want gtfs, realtime or lodes)", opts.Only)
	}
	return jobs, nil
}

// Run executes every job, saves the manifest and returns the run record. The
// returned error aggregates job failures; the run is still recorded.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (store.Run, error) {
	if !r.running.CompareAndSwap(false, true) {
		return store.Run{}, ErrRunInProgress
	}
	defer r.running.Store(false)
	return r.run(ctx, opts)
}

// RunAsync starts a run in the background and reports whether it started.
func (r *Runner) RunAsync(ctx context.Context, opts RunOptions) bool {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer r.running.Store(false)
		if _, err := r.run(ctx, opts); err != nil {
			logging.Errorf("background run: %v", err)
		}
	}()
	return true
}

func (r *Runner) run(ctx context.Context, opts RunOptions) (store.Run, error) {
	jobs, err := r.jobs(opts)
	if err != nil {
		return store.Run{}, err
	}

	run := store.Run{ID: uuid.NewString(), Started: r.now().UTC()}
	logging.Infof("run %s: %d jobs", run.ID, len(jobs))

	results := r.execute(ctx, jobs, job.Run)

	var merr *multierror.Error
	for _, res := range results {
		switch res.Status {
		case StatusStored:
			run.Stored++
		case StatusUnchanged:
			run.Unchanged++
		case StatusPruned:
			run.Pruned++
		case StatusFailed:
			run.Failed++
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", res.Job, res.Err))
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", res.Job, res.Err))
		}
	}
	run.Status = runStatus(run)
	run.Finished = r.now().UTC()
	r.manifest.AppendRun(run)

	if err := r.persist(ctx); err != nil {
		merr = multierror.Append(merr, err)
	}
	logging.Infof("run %s %s: stored=%d unchanged=%d pruned=%d failed=%d",
		run.ID, run.Status, run.Stored, run.Unchanged, run.Pruned, run.Failed)
	return run, merr.ErrorOrNil()
}

// Plan reports what a run would fetch without downloading or storing anything.
func (r *Runner) Plan(ctx context.Context, opts RunOptions) ([]Result, error) {
	jobs, err := r.jobs(opts)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx, jobs, job.Plan), nil
}

func (r *Runner) execute(ctx context.Context, jobs []job, step func(job, context.Context, *Runner) []Result) []Result {
	perJob := make([][]Result, len(jobs))

	var g errgroup.Group
	g.SetLimit(max(1, r.cfg.Run.Concurrency))
	for i, j := range jobs {
		g.Go(func() error {
			logging.Debugf("start %s", j.Name())
			perJob[i] = step(j, ctx, r)
			return nil
		})
	}
	_ = g.Wait()

	var out []Result
	for _, rs := range perJob {
		for _, res := range rs {
			if res.Status == StatusFailed {
				logging.Errorf("%s: %v", res.Job, res.Err)
			} else {
				logging.Debugf("%s: %s %s", res.Job, res.Status, res.Key)
			}
		}
		out = append(out, rs...)
	}
	return out
}

func runStatus(run store.Run) string {
	switch {
	case run.Failed == 0:
		return RunSuccess
	case run.Stored+run.Unchanged+run.Pruned > 0:
		return RunPartial
	}
	return RunFailed
}

// persist saves the manifest and, when enabled, the README.
func (r *Runner) persist(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	if err := r.manifest.Save(ctx, r.store); err != nil {
		return err
	}
	if !r.cfg.Run.WriteReadme {
		return nil
	}
	var buf bytes.Buffer
	if err := catalog.RenderReadme(&buf, r.datasets, r.manifest.Artifacts()); err != nil {
		return fmt.Errorf("render readme: %w", err)
	}
	if _, err := r.store.Put(ctx, ReadmeKey, &buf); err != nil {
		return fmt.Errorf("write readme: %w", err)
	}
	return nil
}

func failed(jobName, key string, err error) Result {
	return Result{Job: jobName, Key: key, Status: StatusFailed, Err: err}
}

func policiesFor(f config.Feed) ([]retention.Policy, error) {
	out := make([]retention.Policy, 0, len(f.Policies))
	for _, p := range f.Policies {
		pol, err := retention.ParsePolicy(p.Kind, p.MaxDepth, p.Count)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", f.Name, err)
		}
		out = append(out, pol)
	}
	return out, nil
}
