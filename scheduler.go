package transitdata

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/theoremus-urban-solutions/transitdata/internal/logging"
)

// Scheduler runs the refresh pipeline on a fixed interval.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	opts     RunOptions
}

func NewScheduler(r *Runner, interval time.Duration, opts RunOptions) *Scheduler {
	return &Scheduler{runner: r, interval: interval, opts: opts}
}

// Start runs the pipeline immediately and then every interval until ctx is done.
// Overlapping ticks are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	logging.Infof("scheduling refresh every %v", s.interval)
	_, err := scheduler.Every(s.interval).Do(func() {
		logging.Infof("scheduled refresh")
		if _, err := s.runner.Run(ctx, s.opts); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				logging.Warnf("scheduled refresh skipped: %v", err)
				return
			}
			logging.Errorf("scheduled refresh: %v", err)
		}
	})
	if err != nil {
		return err
	}

	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	logging.Infof("scheduler stopped")
	return nil
}
