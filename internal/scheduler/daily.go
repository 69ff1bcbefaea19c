// Package scheduler runs recurring background jobs.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
	"github.com/tabletab/api/internal/service"
)

// Scheduler owns the nightly report job.
type Scheduler struct {
	cron    *gocron.Scheduler
	reports *service.ReportService
	log     *logrus.Logger
}

func New(reports *service.ReportService, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:    gocron.NewScheduler(time.UTC),
		reports: reports,
		log:     log,
	}
}

// Start schedules the jobs and runs them in the background.
// Runs shortly after midnight so the previous day is fully closed.
func (s *Scheduler) Start() error {
	if _, err := s.cron.Every(1).Day().At("00:05").Do(s.logDailySummary); err != nil {
		return err
	}
	s.cron.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// logDailySummary generates yesterday's P&L and writes it to the log.
// Failures are logged and retried at the next tick, nothing persists.
func (s *Scheduler) logDailySummary() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -1)

	summary, err := s.reports.GenerateSummary(ctx, start, end)
	if err != nil {
		s.log.WithError(err).Error("daily summary generation failed")
		return
	}

	s.log.WithFields(logrus.Fields{
		"date":         start.Format("2006-01-02"),
		"revenue":      summary.TotalRevenue.String(),
		"gross_profit": summary.GrossProfit.String(),
		"net_profit":   summary.NetProfit.String(),
		"orders_items": len(summary.Items),
	}).Info("daily summary")
}
