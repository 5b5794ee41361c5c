// Package jobs schedules the background maintenance of the API process.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
)

// Reconciler repairs cases whose progress drifted from their latest progress record.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

var _ Reconciler = (cases.Service)(nil)

// Scheduler runs the reconciliation on a cron schedule until stopped.
type Scheduler struct {
	cron    *cron.Cron
	svc     Reconciler
	logger  core.Logger
	timeout time.Duration
}

// NewScheduler registers the reconciliation job. schedule accepts the standard 5 fields and
// descriptors such as "@every 10m".
func NewScheduler(schedule string, svc Reconciler, logger core.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		svc:     svc,
		logger:  logger,
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(schedule, s.Run); err != nil {
		return nil, errors.Wrapf(err, "parsing reconcile schedule %q", schedule)
	}
	return s, nil
}

// Run reconciles every case once.
func (s *Scheduler) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.svc.ReconcileAll(ctx)
	if err != nil {
		s.logger.Error(fmt.Sprintf("reconciling cases: %v", err), err)
		return
	}
	if n > 0 {
		s.logger.Info(fmt.Sprintf("reconciled %d case(s)", n))
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents further runs and waits for the running one, if any, until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
