package main

import (
	"log/slog"
	"time"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
	"github.com/RezaTaheri01/telegram-store-bot/internal/scheduler"
)

const (
	jobPriceRefresh = "price_refresh"
	jobReconcile    = "reconcile"
	jobRetryFailed  = "retry_failed"
)

type jobSet struct {
	priceRefresh scheduler.JobFunc
	reconcile    scheduler.JobFunc
	retryFailed  scheduler.JobFunc
}

// intervals returns each job's period from the runtime settings.
func intervals(s models.Settings) map[string]time.Duration {
	return map[string]time.Duration{
		jobPriceRefresh: s.PriceDelay,
		jobReconcile:    s.NetworkDelay,
		jobRetryFailed:  s.FailedTxDelay,
	}
}

func registerJobs(sup *scheduler.Supervisor, s models.Settings, jobs jobSet) error {
	every := intervals(s)
	for name, fn := range map[string]scheduler.JobFunc{
		jobPriceRefresh: jobs.priceRefresh,
		jobReconcile:    jobs.reconcile,
		jobRetryFailed:  jobs.retryFailed,
	} {
		if err := sup.Register(name, every[name], fn); err != nil {
			return err
		}
	}
	return nil
}

// rescheduleJobs applies changed delays to the running jobs.
func rescheduleJobs(sup *scheduler.Supervisor, s models.Settings, log *slog.Logger) {
	for name, every := range intervals(s) {
		if err := sup.Reschedule(name, every); err != nil {
			log.Error("reschedule job", "job", name, "every", every, "error", err)
		}
	}
}
