package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taskdeck/taskdeck/internal/database"
	logpkg "github.com/taskdeck/taskdeck/internal/logger"
	"github.com/taskdeck/taskdeck/internal/models"
	"github.com/taskdeck/taskdeck/internal/queue"
	"github.com/taskdeck/taskdeck/internal/services/ai"
	"github.com/taskdeck/taskdeck/internal/validation"
)

// TitleSourceMessages is how many messages from the start of a thread are
// sent to the model when generating a title. The opening exchange carries
// the topic; later messages rarely change it.
const TitleSourceMessages = 6

// ThreadTitler processes thread title jobs: it reads the opening messages
// of an untitled thread, asks the AI provider for a short title, and stores
// it on the thread.
type ThreadTitler struct {
	aiProvider  ai.AIProvider
	threadRepo  database.ThreadStore
	messageRepo database.MessageStore
	jobQueue    queue.JobQueue // For re-enqueueing jobs with delays
	logger      *zap.Logger
}

// NewThreadTitler creates a new thread titler
func NewThreadTitler(
	aiProvider ai.AIProvider,
	threadRepo database.ThreadStore,
	messageRepo database.MessageStore,
	jobQueue queue.JobQueue,
	logger *zap.Logger,
) *ThreadTitler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThreadTitler{
		aiProvider:  aiProvider,
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
		jobQueue:    jobQueue,
		logger:      logger,
	}
}

// ProcessThreadTitleJob generates and stores a title for the thread named by
// the job. Threads that vanished, changed owner, or were titled in the
// meantime are skipped without error so the message is acked rather than
// retried.
func (w *ThreadTitler) ProcessThreadTitleJob(ctx context.Context, job *queue.Job) error {
	if job.ThreadID == nil {
		return fmt.Errorf("thread_id is required for thread title job")
	}

	thread, err := w.threadRepo.GetByID(ctx, *job.ThreadID)
	if errors.Is(err, database.ErrNotFound) {
		// Thread was deleted after the job was enqueued
		w.logger.Info("thread_gone_skipping_title",
			zap.String("thread_id", logpkg.SanitizeUserID(job.ThreadID.String())),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get thread: %w", err)
	}

	if thread.UserID != job.UserID {
		return fmt.Errorf("thread does not belong to user")
	}

	// Titled since enqueue, nothing to do
	if thread.Title != nil && *thread.Title != "" {
		return nil
	}

	messages, err := w.messageRepo.ListByThread(ctx, thread.ID)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}
	// Too little conversation to name; the sweeper will pick the thread
	// up again once it grows.
	if len(messages) < 2 {
		return nil
	}

	turns := make([]ai.Turn, 0, TitleSourceMessages)
	for _, msg := range messages {
		if len(turns) == TitleSourceMessages {
			break
		}
		turns = append(turns, ai.Turn{Role: string(msg.Role), Content: msg.Content})
	}

	title, err := w.aiProvider.TitleThread(ctx, turns)
	if err != nil {
		return fmt.Errorf("failed to generate title: %w", err)
	}

	title = validation.Truncate(validation.Sanitize(title), models.MaxThreadTitleLength)
	if title == "" {
		w.logger.Warn("empty_title_from_provider",
			zap.String("thread_id", logpkg.SanitizeUserID(thread.ID.String())),
		)
		return nil
	}

	thread.Title = &title
	if err := w.threadRepo.Update(ctx, thread); err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}

	w.logger.Info("thread_titled",
		zap.String("thread_id", logpkg.SanitizeUserID(thread.ID.String())),
		zap.String("user_id", logpkg.SanitizeUserID(thread.UserID.String())),
		zap.String("title", title),
	)
	return nil
}

// ProcessJob processes a job based on its type
func (w *ThreadTitler) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	// Check if job should be processed now (respect NotBefore)
	if !job.ShouldProcess() {
		w.logger.Debug("job_not_ready",
			zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
			zap.Timep("not_before", job.NotBefore),
		)
		// Ack and let the delayed re-enqueue bring it back
		if ackErr := msg.Ack(); ackErr != nil {
			w.logger.Warn("failed_to_ack_deferred_job",
				zap.String("error", logpkg.SanitizeError(ackErr)),
			)
		}
		return nil
	}

	switch job.Type {
	case queue.JobTypeThreadTitle:
		if err := w.ProcessThreadTitleJob(ctx, job); err != nil {
			return w.handleJobError(ctx, msg, job, err)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	default:
		if nackErr := msg.Nack(false); nackErr != nil { // Unknown job type, send to DLQ
			w.logger.Warn("failed_to_nack_unknown_job", zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// handleJobError decides the fate of a failed job. Quota errors and rate
// limits get a delayed re-enqueue through the delayed exchange; other
// errors retry immediately until MaxRetries, then land in the DLQ.
func (w *ThreadTitler) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	if ai.IsQuotaError(err) {
		retryDelay := ai.GetRetryDelay(err, job.RetryCount)
		notBefore := time.Now().Add(retryDelay)

		w.logger.Warn("job_quota_exceeded",
			zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)

		delayedJob := w.delayedRetry(job, notBefore)

		if ackErr := msg.Ack(); ackErr != nil {
			w.logger.Warn("failed_to_ack_before_reenqueue", zap.Error(ackErr))
		}

		if w.jobQueue != nil {
			if enqueueErr := w.jobQueue.Enqueue(ctx, delayedJob); enqueueErr != nil {
				return fmt.Errorf("quota exhausted, failed to re-enqueue: %w", enqueueErr)
			}
			w.logger.Info("job_reenqueued",
				zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
				zap.Time("not_before", notBefore),
			)
			return nil
		}

		// No queue access, nack without requeue to prevent spam
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Warn("failed_to_nack_quota_job", zap.Error(nackErr))
		}
		return fmt.Errorf("quota exhausted (job %s): %w", job.ID, err)
	}

	if ai.IsRateLimitError(err) {
		retryDelay := ai.GetRetryDelay(err, job.RetryCount)

		w.logger.Warn("job_rate_limited",
			zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)

		if job.CanRetry() && w.jobQueue != nil {
			notBefore := time.Now().Add(retryDelay)
			delayedJob := w.delayedRetry(job, notBefore)

			if ackErr := msg.Ack(); ackErr != nil {
				w.logger.Warn("failed_to_ack_before_reenqueue", zap.Error(ackErr))
			}

			if enqueueErr := w.jobQueue.Enqueue(ctx, delayedJob); enqueueErr != nil {
				if nackErr := msg.Nack(true); nackErr != nil {
					w.logger.Warn("failed_to_nack_rate_limited_job", zap.Error(nackErr))
				}
				return fmt.Errorf("rate limited, failed to re-enqueue: %w", enqueueErr)
			}

			w.logger.Info("job_reenqueued",
				zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
				zap.Time("not_before", notBefore),
			)
			return nil
		}

		if job.CanRetry() {
			job.IncrementRetry()
			if nackErr := msg.Nack(true); nackErr != nil {
				w.logger.Warn("failed_to_nack_rate_limited_job", zap.Error(nackErr))
			}
			return fmt.Errorf("rate limited (will retry): %w", err)
		}
	}

	if job.CanRetry() {
		job.IncrementRetry()
		w.logger.Warn("job_failed_will_retry",
			zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
			zap.Int("attempt", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err),
		)
		if nackErr := msg.Nack(true); nackErr != nil {
			w.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	w.logger.Error("job_failed_sending_to_dlq",
		zap.String("job_id", logpkg.SanitizeUserID(job.ID.String())),
		zap.Int("max_retries", job.MaxRetries),
		zap.Error(err),
	)
	if nackErr := msg.Nack(false); nackErr != nil {
		w.logger.Warn("failed_to_nack_job_to_dlq", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}

// delayedRetry clones the job with NotBefore set and the retry count bumped
func (w *ThreadTitler) delayedRetry(job *queue.Job, notBefore time.Time) *queue.Job {
	return &queue.Job{
		ID:         job.ID,
		Type:       job.Type,
		UserID:     job.UserID,
		ThreadID:   job.ThreadID,
		NotBefore:  &notBefore,
		NotAfter:   job.NotAfter,
		Metadata:   job.Metadata,
		CreatedAt:  job.CreatedAt,
		RetryCount: job.RetryCount + 1,
		MaxRetries: job.MaxRetries,
	}
}
