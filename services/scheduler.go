// services/scheduler.go
package services

import (
	"context"
	"log"

	"github.com/go-co-op/gocron/v2"
)

// StartSyncScheduler runs the fleet-wide activity sync once per hour on the
// hour. Failures are logged only; the next tick retries.
func (s *SyncService) StartSyncScheduler() {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("❌ Failed to create scheduler: %v", err)
		return
	}

	_, err = sched.NewJob(
		gocron.CronJob("0 * * * *", false),
		gocron.NewTask(func() {
			log.Println("🔄 Running scheduled activity sync...")
			s.SyncAll(context.Background())
			log.Println("✅ Scheduled sync completed")
		}),
	)
	if err != nil {
		log.Printf("❌ Failed to schedule hourly sync: %v", err)
		return
	}

	sched.Start()
}
