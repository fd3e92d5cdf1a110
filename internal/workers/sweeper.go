package workers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taskdeck/taskdeck/internal/database"
	logpkg "github.com/taskdeck/taskdeck/internal/logger"
	"github.com/taskdeck/taskdeck/internal/queue"
)

const (
	// DefaultSweepInterval is how often the sweeper looks for untitled threads
	DefaultSweepInterval = 5 * time.Minute

	// DefaultSweepBatchSize caps how many threads one sweep enqueues
	DefaultSweepBatchSize = 100

	// sweepJobTTL bounds how long an enqueued title job stays valid. A stale
	// job is garbage collected rather than titling a thread the user has
	// long since renamed or deleted.
	sweepJobTTL = 24 * time.Hour
)

// Sweeper periodically enqueues title jobs for threads that have
// accumulated a conversation but still have no title. Jobs are idempotent
// on the titler side, so enqueueing a thread twice is wasteful but harmless.
type Sweeper struct {
	jobQueue   queue.JobQueue
	threadRepo database.ThreadStore
	logger     *zap.Logger
	interval   time.Duration
	batchSize  int
}

// NewSweeper creates a new sweeper. A non-positive interval or batch size
// falls back to the defaults.
func NewSweeper(jobQueue queue.JobQueue, threadRepo database.ThreadStore, logger *zap.Logger, interval time.Duration, batchSize int) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &Sweeper{
		jobQueue:   jobQueue,
		threadRepo: threadRepo,
		logger:     logger,
		interval:   interval,
		batchSize:  batchSize,
	}
}

// Start runs the sweep loop until ctx is cancelled. The first sweep happens
// immediately so a restart does not wait a full interval.
func (s *Sweeper) Start(ctx context.Context) error {
	if err := s.Sweep(ctx); err != nil {
		s.logger.Warn("sweep_failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Warn("sweep_failed", zap.Error(err))
			}
		}
	}
}

// Sweep enqueues one title job per untitled thread, up to the batch size
func (s *Sweeper) Sweep(ctx context.Context) error {
	threads, err := s.threadRepo.ListUntitled(ctx, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list untitled threads: %w", err)
	}

	enqueued := 0
	for _, thread := range threads {
		threadID := thread.ID
		job := queue.NewJob(queue.JobTypeThreadTitle, thread.UserID, &threadID)
		notAfter := time.Now().Add(sweepJobTTL)
		job.NotAfter = &notAfter

		if err := s.jobQueue.Enqueue(ctx, job); err != nil {
			s.logger.Warn("failed_to_enqueue_title_job",
				zap.String("thread_id", logpkg.SanitizeUserID(thread.ID.String())),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		s.logger.Info("enqueued_title_jobs", zap.Int("count", enqueued))
	}
	return nil
}
