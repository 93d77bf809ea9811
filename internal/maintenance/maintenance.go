// Package maintenance runs the periodic housekeeping jobs: sweeping expired
// agent-config cache entries and reporting the active session count.
package maintenance

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/user/voiceline/internal/configcache"
	"github.com/user/voiceline/internal/registry"
)

// Scheduler owns the cron ticker for the housekeeping jobs.
type Scheduler struct {
	cache    configcache.Cache
	registry *registry.Registry
	schedule string
	cron     *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler sweeping on the given cron schedule. An empty
// schedule defaults to once a minute.
func New(cache configcache.Cache, reg *registry.Registry, schedule string) *Scheduler {
	if schedule == "" {
		schedule = "* * * * *"
	}
	return &Scheduler{
		cache:    cache,
		registry: reg,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the sweep job and starts the cron ticker.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("maintenance scheduled", "schedule", s.schedule)
	return nil
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) sweep() {
	removed := s.cache.Sweep()
	if removed > 0 {
		slog.Info("swept expired agent configs", "removed", removed)
	}
	slog.Debug("maintenance tick", "active_sessions", s.registry.Len())
}
