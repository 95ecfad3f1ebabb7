package main

import (
	"context"
	"log"
	"time"

	"minetap/internal/services"

	"github.com/robfig/cron/v3"
	"github.com/samber/do"
)

type ReconcileJob struct {
	serviceReconciler *services.ServiceReconciler
	serviceConfig     *services.ServiceConfig
}

func NewReconcileJob(container *do.Injector) (*ReconcileJob, error) {
	serviceReconciler, err := do.Invoke[*services.ServiceReconciler](container)
	if err != nil {
		return nil, err
	}

	serviceConfig, err := do.Invoke[*services.ServiceConfig](container)
	if err != nil {
		return nil, err
	}

	return &ReconcileJob{serviceReconciler, serviceConfig}, nil
}

func (j *ReconcileJob) Start(cronRunner *cron.Cron) {
	timeline, err := j.serviceConfig.GetStringConfig(context.Background(), services.CONFIG_CRONJOB_TIME_RECONCILE, services.DEFAULT_CRON_TIME_RECONCILE)
	if err != nil {
		log.Println("reconcile schedule config:", err)
	}

	_, err = cronRunner.AddFunc(timeline, j.runScheduledTask)
	log.Println("Reconcile Cronjob start at:", time.Now().Format("2006-01-02 15:04:05"), "cron:", timeline, err)
}

func (j *ReconcileJob) runScheduledTask() {
	ctx := context.Background()
	log.Println("Start reconciling mining rates ...")
	if err := j.serviceReconciler.RunOnce(ctx); err != nil {
		log.Println("reconcile run:", err)
		return
	}
	log.Println("Mining rates reconciled")
}
