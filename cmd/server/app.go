// cmd/server/app.go
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtslots/internal/api/bookings"
	"github.com/codr1/courtslots/internal/api/schedules"
	"github.com/codr1/courtslots/internal/availability"
	"github.com/codr1/courtslots/internal/config"
	"github.com/codr1/courtslots/internal/db"
	"github.com/codr1/courtslots/internal/email"
	"github.com/codr1/courtslots/internal/events"
	"github.com/codr1/courtslots/internal/ratelimit"
	"github.com/codr1/courtslots/internal/scheduler"
	"github.com/codr1/courtslots/internal/slotlock"
	"github.com/codr1/courtslots/internal/tracing"
)

// app owns every long-lived dependency of the server.
type app struct {
	db        *db.DB
	redis     *redis.Client
	publisher *events.Publisher
	notifier  *email.Notifier
	limiter   *ratelimit.Limiter
	scheduler *scheduler.Service
	shutdown  tracing.ShutdownFunc
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			if closeErr := a.Close(context.WithoutCancel(ctx)); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to release partially initialized dependencies")
			}
		}
	}()

	if a.shutdown, err = tracing.Setup(ctx, cfg); err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	if a.db, err = db.NewFromConfig(cfg); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var locker availability.Locker
	switch cfg.Booking.LockBackend {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err = a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		locker = slotlock.NewRedis(a.redis, cfg.Booking.LockTTL, cfg.App.Name+":slotlock")
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis slot locks")
	default:
		locker = slotlock.NewMemory()
	}

	var listeners []availability.ConfirmationListener
	if cfg.Kafka.Enabled {
		a.publisher = events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		listeners = append(listeners, a.publisher)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Publishing booking events to Kafka")
	}

	var cancellations bookings.CancellationNotifier
	if cfg.Email.Enabled {
		sender, sesErr := email.NewSESClient(ctx, cfg.Email.AccessKeyID, cfg.Email.SecretAccessKey, cfg.Email.Region, cfg.Email.Sender)
		if sesErr != nil {
			return nil, fmt.Errorf("create SES client: %w", sesErr)
		}
		a.notifier = email.NewNotifier(sender)
		listeners = append(listeners, a.notifier)
		cancellations = a.notifier
	}

	a.limiter = ratelimit.New(&ratelimit.Config{MaxPerIP: cfg.Booking.AttemptsPerMinute})

	bookings.InitHandlers(bookings.Deps{
		DB:         a.db,
		Locker:     locker,
		Listeners:  listeners,
		Limiter:    a.limiter,
		Notifier:   cancellations,
		TrustProxy: cfg.App.TrustProxy,
	})
	schedules.InitHandlers(a.db, nil)

	if a.scheduler, err = scheduler.New(); err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	err = scheduler.RegisterIdempotencyPurge(a.scheduler, a.db, cfg.Booking.IdempotencyRetention, cfg.Booking.PurgeInterval, nil)
	if err != nil {
		return nil, fmt.Errorf("register idempotency purge: %w", err)
	}

	return a, nil
}

// Close stops background work first, then drains outbound notifications, then closes stores.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.scheduler != nil {
		if err := a.scheduler.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.notifier != nil {
		a.notifier.Wait()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka publisher: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}
