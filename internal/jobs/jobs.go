// Package jobs runs periodic maintenance: expired session cleanup and
// abandoning orders that never got a payment confirmation.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"blogshop/internal/metrics"
)

type Store interface {
	PurgeSessions(ctx context.Context, now time.Time) (int64, error)
	AbandonStaleOrders(ctx context.Context, cutoff time.Time) (int64, error)
}

type Scheduler struct {
	cron       *cron.Cron
	store      Store
	log        logrus.FieldLogger
	staleAfter time.Duration
	now        func() time.Time
}

func New(store Store, log logrus.FieldLogger, staleAfter time.Duration) *Scheduler {
	cl := cron.PrintfLogger(log)
	return &Scheduler{
		cron:       cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		store:      store,
		log:        log,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Register schedules both jobs. An empty spec disables that job.
func (s *Scheduler) Register(sessionSpec, orderSpec string) error {
	if sessionSpec != "" {
		if _, err := s.cron.AddFunc(sessionSpec, s.run("purge_sessions", s.PurgeSessions)); err != nil {
			return fmt.Errorf("schedule session purge: %w", err)
		}
	}
	if orderSpec != "" {
		if _, err := s.cron.AddFunc(orderSpec, s.run("sweep_orders", s.SweepOrders)); err != nil {
			return fmt.Errorf("schedule order sweep: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

func (s *Scheduler) run(name string, fn func(context.Context) error) func() {
	return func() {
		err := fn(context.Background())
		metrics.RecordJob(name, err)
		if err != nil {
			s.log.WithError(err).WithField("job", name).Error("job failed")
		}
	}
}

func (s *Scheduler) PurgeSessions(ctx context.Context) error {
	n, err := s.store.PurgeSessions(ctx, s.now())
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.WithField("count", n).Info("expired sessions purged")
	}
	return nil
}

// SweepOrders abandons orders stuck before payment for longer than
// staleAfter.
func (s *Scheduler) SweepOrders(ctx context.Context) error {
	n, err := s.store.AbandonStaleOrders(ctx, s.now().Add(-s.staleAfter))
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.WithField("count", n).Warn("stale orders abandoned")
	}
	return nil
}
