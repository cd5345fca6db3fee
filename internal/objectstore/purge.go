package objectstore

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"annotate/internal/domain"
)

// DefaultPurgeSchedule sweeps expired links every fifteen minutes.
const DefaultPurgeSchedule = "*/15 * * * *"

// Purger deletes expired signed links on a cron schedule.
type Purger struct {
	links domain.LinkStore
	cron  *cron.Cron
	now   func() time.Time
}

func NewPurger(links domain.LinkStore) *Purger {
	return &Purger{links: links, now: time.Now}
}

// Start schedules the sweep. An empty schedule uses DefaultPurgeSchedule.
func (p *Purger) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { p.Sweep(ctx) }); err != nil {
		return err
	}
	c.Start()
	p.cron = c
	log.Printf("objectstore: link purge scheduled (%s)", schedule)
	return nil
}

// Sweep runs one purge and returns how many links were removed.
func (p *Purger) Sweep(ctx context.Context) int64 {
	n, err := p.links.PurgeExpired(ctx, p.now())
	if err != nil {
		log.Printf("objectstore: purge failed: %v", err)
		return 0
	}
	if n > 0 {
		log.Printf("objectstore: purged %d expired links", n)
	}
	return n
}

// Stop halts the schedule and waits for a running sweep.
func (p *Purger) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
		p.cron = nil
	}
}
