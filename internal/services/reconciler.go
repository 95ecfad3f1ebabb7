package services

import (
	"context"
	"log"
	"time"

	"minetap/internal/datastore"

	"github.com/go-redsync/redsync/v4"
	"github.com/samber/do"
	"github.com/uptrace/bun"
)

// ServiceReconciler re-derives the correct rate for every active session
// from current referral counts. Best-effort propagation can miss updates;
// this is the convergence guarantee.
type ServiceReconciler struct {
	container          *do.Injector
	rs                 *redsync.Redsync
	postgresDB         *bun.DB
	readonlyPostgresDB *bun.DB

	serviceMining *ServiceMining
	serviceConfig *ServiceConfig
}

func NewServiceReconciler(container *do.Injector) (*ServiceReconciler, error) {
	rs, err := do.Invoke[*redsync.Redsync](container)
	if err != nil {
		return nil, err
	}

	postgresDB, err := do.Invoke[*bun.DB](container)
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

	serviceConfig, err := do.Invoke[*ServiceConfig](container)
	if err != nil {
		return nil, err
	}

	return &ServiceReconciler{container, rs, postgresDB, readonlyPostgresDB, serviceMining, serviceConfig}, nil
}

// RunOnce sweeps all active sessions. Single-flight: if a previous run
// still holds the lock, this run is skipped entirely.
func (service *ServiceReconciler) RunOnce(ctx context.Context) error {
	mutex := service.rs.NewMutex(LockKeyReconciler())
	if err := mutex.TryLock(); err != nil {
		log.Println("reconciler already running, skipping")
		return nil
	}

	// nolint:errcheck
	defer mutex.Unlock()

	started := time.Now()
	duration := service.serviceMining.sessionDuration(ctx)

	checked := 0
	corrected := 0
	limit := RECONCILE_PAGE_SIZE

	var cursorStartedAt time.Time
	var cursorID string

	for {
		sessions, err := datastore.ListActiveMiningSessions(ctx, service.readonlyPostgresDB, limit, cursorStartedAt, cursorID)
		if err != nil {
			return err
		}

		if len(sessions) == 0 {
			break
		}

		last := sessions[len(sessions)-1]
		cursorStartedAt, cursorID = last.StartedAt, last.ID

		for _, session := range sessions {
			checked++

			// expired sessions get finalized through the one accrual path
			if session.Expired(time.Now()) {
				if _, err := service.serviceMining.AccrueSession(ctx, session.ID); err != nil {
					log.Println("reconcile finalize:", "session:", session.ID, err)
				}
				continue
			}

			activeReferrals, err := datastore.CountActiveReferrals(ctx, service.readonlyPostgresDB, session.UserID, duration, time.Now())
			if err != nil {
				log.Println("reconcile count referrals:", "user:", session.UserID, err)
				continue
			}

			if !rateDrifted(session.CurrentRate, MiningRate(session.BaseReward, activeReferrals)) {
				continue
			}

			if _, err := service.serviceMining.UpdateMiningRate(ctx, session.UserID); err != nil {
				log.Println("reconcile rate:", "user:", session.UserID, err)
				continue
			}
			corrected++
		}
	}

	log.Println("reconciler done:", "checked:", checked, "corrected:", corrected, "took:", time.Since(started))
	return nil
}
