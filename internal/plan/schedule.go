package plan

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Daily runs a job once at start and then every day at Hour in Loc.
type Daily struct {
	Loc    *time.Location
	Hour   int
	Now    func() time.Time
	Logger *zap.Logger
}

// Next returns the first scheduled time strictly after now.
func (d *Daily) Next(now time.Time) time.Time {
	now = now.In(d.Loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), d.Hour, 0, 0, 0, d.Loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run calls job immediately and then once per day until ctx is done.
func (d *Daily) Run(ctx context.Context, job func(context.Context)) error {
	now := d.Now
	if now == nil {
		now = time.Now
	}

	// Run immediately once at startup
	job(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := d.Next(now())
		d.Logger.Info("next plan run scheduled", zap.Time("at", next))

		timer := time.NewTimer(next.Sub(now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			job(ctx)
		}
	}
}
