package syncerimpl

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	pkgerrors "github.com/ousepachn/insta-media-sync/pkg/errors"
)

// ScheduleSync runs the configured usernames through a scrape-then-verify
// cycle on the configured cron schedule, plus a daily cleanup of old run
// history. Usernames are processed sequentially; the external APIs are
// rate limited and parallel users would just trip that faster.
func (s *SyncerImpl) ScheduleSync(ctx context.Context) error {
	usernames := s.Config.SyncUsernames()
	if len(usernames) == 0 {
		s.Logger.Info("No usernames configured for scheduled sync, scheduler disabled")
		return nil
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.CronJob(s.Config.Sync.CronSchedule, false),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				s.Logger.Info("Context cancelled, stopping scheduled sync")
				return
			}
			taskCtx, cancel := context.WithTimeout(ctx, 2*time.Hour)
			defer cancel()

			s.Logger.Info("Starting scheduled sync", "usernames", len(usernames))
			for _, username := range usernames {
				s.runScheduled(taskCtx, username)
			}
			s.Logger.Info("Scheduled sync finished")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DailyJob(
			1,
			gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0)),
		),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			cleanupCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()

			deleted, err := s.RunLog.CleanupOldRecords(cleanupCtx, "720h")
			if err != nil {
				s.Logger.Error("Failed to clean up old run records", "error", err)
				return
			}
			s.Logger.Info("Run history cleanup completed", "rows_deleted", deleted)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule run history cleanup: %w", err)
	}

	scheduler.Start()
	s.Logger.Info("Sync scheduler started",
		"cron", s.Config.Sync.CronSchedule, "usernames", len(usernames))

	go func() {
		<-ctx.Done()
		s.Logger.Info("Stopping sync scheduler")
		if err := scheduler.Shutdown(); err != nil {
			s.Logger.Error("Failed to shut down scheduler", "error", err)
		}
	}()

	return nil
}

func (s *SyncerImpl) runScheduled(ctx context.Context, username string) {
	if _, err := s.Scrape(ctx, username, s.Config.Sync.MaxPosts, true); err != nil {
		if pkgerrors.IsRunInProgress(err) {
			s.Logger.Info("Skipping scheduled scrape, a run is already active", "username", username)
			return
		}
		s.Logger.Error("Scheduled scrape failed", "username", username, "error", err)
		return
	}

	if _, err := s.Verify(ctx, username); err != nil {
		s.Logger.Error("Scheduled verify failed", "username", username, "error", err)
	}
}
