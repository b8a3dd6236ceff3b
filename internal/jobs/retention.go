package jobs

import (
	"time"

	"whatsapp-backend/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Retention deletes processed webhook events after the configured number of
// days. Unprocessed events are kept for inspection regardless of age.
type Retention struct {
	db   *gorm.DB
	days int
	cron *cron.Cron
}

func NewRetention(db *gorm.DB, days int) *Retention {
	return &Retention{db: db, days: days, cron: cron.New()}
}

// Start schedules the nightly sweep. It returns immediately; the cron
// scheduler runs on its own goroutine until Stop is called.
func (r *Retention) Start() error {
	if _, err := r.cron.AddFunc("@daily", func() {
		if err := r.Sweep(); err != nil {
			log.Error().Err(err).Msg("webhook retention sweep failed")
		}
	}); err != nil {
		return err
	}
	r.cron.Start()
	log.Info().Int("days", r.days).Msg("webhook retention job scheduled")
	return nil
}

func (r *Retention) Stop() {
	r.cron.Stop()
}

// Sweep runs one pass of the cleanup.
func (r *Retention) Sweep() error {
	cutoff := time.Now().AddDate(0, 0, -r.days)
	res := r.db.Where("processed = ? AND created_at < ?", true, cutoff).
		Delete(&models.WebhookEvent{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Info().Int64("deleted", res.RowsAffected).Time("cutoff", cutoff).
			Msg("pruned processed webhook events")
	}
	return nil
}
