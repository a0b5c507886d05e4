package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	idempotencyPurgeJobName = "idempotency_key_purge"
	purgeTimeout            = time.Minute
)

// IdempotencyPurger deletes stored booking responses older than a cutoff.
type IdempotencyPurger interface {
	PurgeIdempotencyKeys(ctx context.Context, cutoff time.Time) (int64, error)
}

// RegisterIdempotencyPurge schedules removal of Idempotency-Key responses older than retention.
func RegisterIdempotencyPurge(s *Service, purger IdempotencyPurger, retention, interval time.Duration, now func() time.Time) error {
	if purger == nil {
		return fmt.Errorf("idempotency purge requires a store")
	}
	if retention <= 0 {
		return fmt.Errorf("idempotency retention must be positive")
	}
	if now == nil {
		now = time.Now
	}

	jobLogger := log.With().
		Str("component", "idempotency_purge_job").
		Str("job_name", idempotencyPurgeJobName).
		Logger()

	_, err := s.AddIntervalJob(idempotencyPurgeJobName, interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		if _, err := purgeOnce(ctx, purger, now().Add(-retention)); err != nil {
			jobLogger.Error().Err(err).Msg("Idempotency purge failed")
		}
	})
	return err
}

func purgeOnce(ctx context.Context, purger IdempotencyPurger, cutoff time.Time) (int64, error) {
	deleted, err := purger.PurgeIdempotencyKeys(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		log.Ctx(ctx).Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Purged expired idempotency keys")
	}
	return deleted, nil
}
