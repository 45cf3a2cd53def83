package cachestore

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-tracker-web/internal/jobs"
)

const inlineRetryDelay = time.Second

// Scheduler arranges for a stale key to be refetched later.
type Scheduler interface {
	ScheduleRefetch(ctx context.Context, key Key) error
}

// QueueScheduler publishes refetch jobs to a job queue whose consumer runs
// Store.HandleRefetchJob.
type QueueScheduler struct {
	publisher  jobs.Publisher
	maxRetries int
}

func NewQueueScheduler(publisher jobs.Publisher, maxRetries int) *QueueScheduler {
	return &QueueScheduler{publisher: publisher, maxRetries: maxRetries}
}

func (q *QueueScheduler) ScheduleRefetch(ctx context.Context, key Key) error {
	return q.publisher.PublishRefetch(ctx, &jobs.RefetchJob{
		Key:        key.String(),
		Reason:     jobs.RefetchReasonSettled,
		MaxRetries: q.maxRetries,
	})
}

// HandleRefetchJob is the jobs.JobHandler for refetch jobs.
func (s *Store) HandleRefetchJob(ctx context.Context, job jobs.Job) error {
	rj, ok := job.(*jobs.RefetchJob)
	if !ok {
		return fmt.Errorf("HandleRefetchJob: unexpected job type %q", job.GetType())
	}
	key, err := ParseKey(rj.Key)
	if err != nil {
		return fmt.Errorf("HandleRefetchJob: %w", err)
	}
	if err := s.Refetch(ctx, key); err != nil {
		return fmt.Errorf("HandleRefetchJob: refetch %s: %w", key, err)
	}
	return nil
}

func (s *Store) scheduleRefetch(key Key) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	log := s.log.With().Str("cache_key", key.String()).Logger()

	if s.scheduler != nil {
		go func() {
			defer s.wg.Done()
			if err := s.scheduler.ScheduleRefetch(s.baseCtx, key); err != nil {
				log.Error().Err(err).Msg("failed to schedule refetch")
			}
		}()
		return
	}

	go func() {
		defer s.wg.Done()
		var err error
		for attempt := 0; attempt <= s.retries; attempt++ {
			if attempt > 0 {
				select {
				case <-s.baseCtx.Done():
					return
				case <-time.After(time.Duration(attempt) * inlineRetryDelay):
				}
			}
			if err = s.Refetch(s.baseCtx, key); err == nil {
				return
			}
			if s.baseCtx.Err() != nil {
				return
			}
		}
		log.Warn().Err(err).Int("retries", s.retries).Msg("refetch failed")
	}()
}
