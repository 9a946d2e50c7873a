// Package listeners holds the background jobs the server schedules.
package listeners

import (
	"context"
	"time"

	"RiderGuard/internal/presence"
	"RiderGuard/pkg/backup"
	"RiderGuard/pkg/scheduler"

	"go.uber.org/zap"
)

// PresenceSweeper marks couriers offline once their last location is older
// than OfflineAfter. Couriers in an emergency are never touched.
type PresenceSweeper struct {
	Presence     *presence.Projection
	OfflineAfter time.Duration
	Now          func() time.Time
	Log          *zap.Logger
}

func (s *PresenceSweeper) Run(ctx context.Context) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	swept, err := s.Presence.MarkStaleOffline(ctx, now().Add(-s.OfflineAfter))
	if err != nil {
		log.Warn("presence sweep failed", zap.Error(err))
		return
	}
	if len(swept) > 0 {
		log.Info("couriers marked offline", zap.Int("count", len(swept)))
	}
}

// BackupJob writes a database snapshot.
type BackupJob struct {
	Backuper *backup.Backuper
	Log      *zap.Logger
}

func (j *BackupJob) Run(ctx context.Context) {
	if _, err := j.Backuper.Run(ctx); err != nil && j.Log != nil {
		j.Log.Warn("backup failed", zap.Error(err))
	}
}

// Jobs describes what Register schedules. Empty specs or nil jobs are
// skipped.
type Jobs struct {
	SweepSpec  string
	Sweeper    *PresenceSweeper
	BackupSpec string
	Backup     *BackupJob
}

// Register adds the configured jobs to cr.
func Register(cr *scheduler.Cron, jobs Jobs) error {
	if jobs.Sweeper != nil && jobs.SweepSpec != "" {
		if _, err := cr.Add("presence_sweep", jobs.SweepSpec, jobs.Sweeper); err != nil {
			return err
		}
	}
	if jobs.Backup != nil && jobs.BackupSpec != "" {
		if _, err := cr.Add("backup", jobs.BackupSpec, jobs.Backup); err != nil {
			return err
		}
	}
	return nil
}
