// Package rollup runs the nightly spend aggregation job.
package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/promptmeter/spendgate/internal/metrics"
	"github.com/promptmeter/spendgate/internal/storage"
)

// runTimeout bounds one rollup pass over all team/customer pairs.
const runTimeout = 5 * time.Minute

// Job aggregates the previous UTC day's spend per team/customer pair
// and publishes the totals as logs and gauges.
type Job struct {
	store   storage.SpendLogStore
	metrics *metrics.Collector
	logger  *slog.Logger
	cron    *cron.Cron

	// overridable for tests
	now func() time.Time
}

// New creates a rollup job. collector may be nil.
func New(store storage.SpendLogStore, collector *metrics.Collector, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		store:   store,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
	}
}

// Start validates the schedule and begins running the job on it.
func (j *Job) Start(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid rollup schedule %q: %w", schedule, err)
	}

	j.cron = cron.New()
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return fmt.Errorf("scheduling rollup: %w", err)
	}
	j.cron.Start()

	j.logger.Info("rollup job scheduled", slog.String("schedule", schedule))
	return nil
}

// Stop halts the scheduler. Does not interrupt a pass in flight.
func (j *Job) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}

func (j *Job) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("rollup pass failed", slog.String("error", err.Error()))
	}
}

// RunOnce aggregates the previous UTC day for every team/customer pair
// that produced spend in that window.
func (j *Job) RunOnce(ctx context.Context) error {
	today := j.now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -1)
	end := today.Add(-time.Nanosecond)

	pairs, err := j.store.TeamCustomerPairs(ctx, start, end)
	if err != nil {
		return fmt.Errorf("listing team/customer pairs: %w", err)
	}

	for _, pair := range pairs {
		days, err := j.store.SpendByTeamAndCustomer(ctx, start, end, pair.TeamID, pair.EndUser)
		if err != nil {
			return fmt.Errorf("aggregating spend for team %s: %w", pair.TeamID, err)
		}

		var spend float64
		var tokens int64
		for _, day := range days {
			spend += day.TotalSpend
			tokens += day.TotalTokens
		}

		if j.metrics != nil {
			j.metrics.SetRollupSpend(pair.TeamID, pair.EndUser, spend)
		}
		j.logger.Info("daily spend rollup",
			slog.String("day", start.Format("2006-01-02")),
			slog.String("team_id", pair.TeamID),
			slog.String("end_user", pair.EndUser),
			slog.Float64("spend", spend),
			slog.Int64("total_tokens", tokens),
		)
	}

	j.logger.Info("rollup pass complete",
		slog.String("day", start.Format("2006-01-02")),
		slog.Int("pairs", len(pairs)),
	)
	return nil
}
