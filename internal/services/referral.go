package services

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"minetap/internal/datastore"
	"minetap/internal/datastore/redis_store"
	"minetap/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/uptrace/bun"
)

// ServiceReferral drains the outbox of mining status changes and re-rates
// the referrer of each affected user. Runs in its own transactions, never
// the triggering user's: a user and their referrer mining concurrently
// must not deadlock on each other's rows.
type ServiceReferral struct {
	container          *do.Injector
	redisDB            redis.UniversalClient
	readonlyPostgresDB *bun.DB

	serviceMining *ServiceMining
}

func NewServiceReferral(container *do.Injector) (*ServiceReferral, error) {
	redisDB, err := do.InvokeNamed[redis.UniversalClient](container, "redis-db")
	if err != nil {
		return nil, err
	}

	readonlyPostgresDB, err := do.InvokeNamed[*bun.DB](container, "db-readonly")
	if err != nil {
		return nil, err
	}

	serviceMining, err := do.Invoke[*ServiceMining](container)
	if err != nil {
		return nil, err
	}

	return &ServiceReferral{container, redisDB, readonlyPostgresDB, serviceMining}, nil
}

// RunWorker consumes referral events until ctx is done. Failures are
// logged and dropped; the reconciler is the convergence guarantee.
func (service *ServiceReferral) RunWorker(ctx context.Context) error {
	log.Println("referral propagation worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, err := redis_store.PopReferralEvent(ctx, service.redisDB, REFERRAL_WORKER_POP_TIMEOUT)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Println("pop referral event:", err)
			continue
		}

		if event == nil {
			continue
		}

		if err := service.Propagate(ctx, event); err != nil {
			log.Println("propagate referral event:", "user:", event.UserID, "reason:", event.Reason, err)
		}
	}
}

// Propagate re-rates the referrer of the event's user, if that referrer is
// currently mining.
func (service *ServiceReferral) Propagate(ctx context.Context, event *models.ReferralEvent) error {
	user, err := datastore.FindUserByID(ctx, service.readonlyPostgresDB, event.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	if user.ReferredBy == nil {
		return nil
	}

	_, err = service.serviceMining.UpdateMiningRate(ctx, *user.ReferredBy)
	if err != nil && errors.Is(err, ErrNoActiveSession) {
		// referrer not mining, nothing to re-rate
		return nil
	}

	return err
}
