package maintenance

import (
	"context"
	"testing"

	"github.com/user/voiceline/internal/registry"
	"github.com/user/voiceline/internal/types"
)

type countingCache struct {
	sweeps int
}

func (c *countingCache) Get(context.Context, types.AgentID) (*types.AgentConfig, bool) {
	return nil, false
}
func (c *countingCache) Put(context.Context, types.AgentID, *types.AgentConfig) {}
func (c *countingCache) Sweep() int {
	c.sweeps++
	return 2
}

func TestSweepInvokesCache(t *testing.T) {
	cache := &countingCache{}
	s := New(cache, registry.New(), "")

	s.sweep()
	s.sweep()

	if cache.sweeps != 2 {
		t.Errorf("expected 2 sweeps, got %d", cache.sweeps)
	}
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := New(&countingCache{}, registry.New(), "not a schedule")
	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestStartAndStop(t *testing.T) {
	s := New(&countingCache{}, registry.New(), "@every 1h")
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.Stop()
}
