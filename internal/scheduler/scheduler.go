package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"aigent/internal/config"
	"aigent/internal/ipc"
	"aigent/internal/memtier"
	"aigent/internal/runtime"
	"aigent/internal/vault"
)

const (
	// pollInterval is how often the gated background tasks (passive sleep,
	// nightly consolidation) re-check their due condition; compaction runs
	// on its own bare ticker and the proactive check on its own
	// proactive_interval_minutes ticker.
	pollInterval = 5 * time.Minute

	minTurnQuietBeforeSleep = 5 * time.Minute
	minNightlyGap           = 22 * time.Hour
	minIdleBeforeNightly    = 15 * time.Minute

	humanEditContentCap = 800
)

// Scheduler owns the five background tasks of spec §4.13 and their
// shutdown lifecycle.
type Scheduler struct {
	cfg   *config.Config
	state *ipc.DaemonState
	vlt   *vault.Vault
	watch *vault.Watcher

	wg sync.WaitGroup

	mu              sync.Mutex
	lastSleepAt     time.Time
	lastCompactedAt time.Time
}

// New builds a Scheduler. vlt/watch may be nil if no vault is configured,
// in which case the vault-watcher task is skipped.
func New(cfg *config.Config, state *ipc.DaemonState, vlt *vault.Vault, watch *vault.Watcher) *Scheduler {
	return &Scheduler{cfg: cfg, state: state, vlt: vlt, watch: watch}
}

// Start spawns every background task as a goroutine. Each exits when ctx
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.spawn(ctx, s.compactionLoop)
	s.spawn(ctx, s.passiveSleepLoop)
	s.spawn(ctx, s.nightlyConsolidationLoop)
	s.spawn(ctx, s.proactiveLoop)
	if s.watch != nil {
		s.watch.Start(ctx)
		s.spawn(ctx, s.vaultWatcherLoop)
	}
}

// Wait blocks until every task has exited (after ctx cancellation).
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) spawn(ctx context.Context, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

// compactionLoop runs every 24h, holding the memory lock for the whole
// pass (spec §4.13's "holds lock for whole pass").
func (s *Scheduler) compactionLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.state.WithMemory(func(mem *memtier.Manager) error {
				_, err := mem.CompactEpisodic(7)
				return err
			})
			if err != nil {
				slog.Warn("scheduler: compaction pass failed", "err", err)
			}
		}
	}
}

// passiveSleepLoop fires every sleep_interval_hours (default 8), skipping
// a cycle if the last turn was under 5 minutes ago, and follows it with a
// lightweight forgetting pass.
func (s *Scheduler) passiveSleepLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maybeRunPassiveSleep(ctx)
		}
	}
}

func (s *Scheduler) maybeRunPassiveSleep(ctx context.Context) {
	interval := time.Duration(s.cfg.Memory.SleepIntervalHours) * time.Hour
	if interval <= 0 {
		interval = 8 * time.Hour
	}

	s.mu.Lock()
	due := time.Since(s.lastSleepAt) >= interval
	s.mu.Unlock()
	if !due {
		return
	}

	if last := s.state.LastTurnAtSnapshot(); !last.IsZero() && time.Since(last) < minTurnQuietBeforeSleep {
		return
	}

	err := s.state.WithMemory(func(mem *memtier.Manager) error {
		_, err := s.state.Runtime.RunAgenticSleep(ctx, mem)
		if err != nil {
			return err
		}
		if days := s.cfg.Memory.ForgetEpisodicAfterDays; days > 0 {
			mem.RunForgettingPass(days, s.cfg.Memory.ForgetMinConfidence)
		}
		return nil
	})
	if err != nil {
		slog.Warn("scheduler: passive sleep cycle failed", "err", err)
		return
	}

	s.mu.Lock()
	s.lastSleepAt = time.Now()
	s.mu.Unlock()
}

// nightlyConsolidationLoop fires the multi-agent sleep pass once per
// night, inside the configured quiet window, with a minimum 22h gap and
// at least 15 minutes of conversational idle time.
func (s *Scheduler) nightlyConsolidationLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maybeRunNightlyConsolidation(ctx)
		}
	}
}

func (s *Scheduler) maybeRunNightlyConsolidation(ctx context.Context) {
	now := time.Now()
	hour := currentHour(now, s.cfg.Memory.Timezone)
	if !InWindow(hour, s.cfg.Memory.NightSleepStartHour, s.cfg.Memory.NightSleepEndHour) {
		return
	}
	if since := now.Sub(s.state.LastMultiAgentSleepAt()); !s.state.LastMultiAgentSleepAt().IsZero() && since < minNightlyGap {
		return
	}
	if last := s.state.LastTurnAtSnapshot(); !last.IsZero() && time.Since(last) < minIdleBeforeNightly {
		return
	}

	err := s.state.WithMemory(func(mem *memtier.Manager) error {
		_, err := s.state.Runtime.RunMultiAgentSleep(ctx, mem, s.cfg.Memory.MultiAgentSleepBatch)
		return err
	})
	if err != nil {
		slog.Warn("scheduler: nightly multi-agent consolidation failed", "err", err)
		return
	}
	s.state.MarkMultiAgentSleepRun(now)
}

// proactiveLoop checks whether anything warrants an unprompted message,
// respecting the configured DND window and cooldown.
func (s *Scheduler) proactiveLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Memory.ProactiveIntervalMin) * time.Minute
	if interval <= 0 {
		return // proactive checks disabled
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maybeRunProactiveCheck(ctx)
		}
	}
}

func (s *Scheduler) maybeRunProactiveCheck(ctx context.Context) {
	now := time.Now()
	hour := currentHour(now, s.cfg.Memory.Timezone)
	if InWindow(hour, s.cfg.Memory.ProactiveDNDStartHour, s.cfg.Memory.ProactiveDNDEndHour) {
		return
	}

	cooldown := time.Duration(s.cfg.Memory.ProactiveCooldownMin) * time.Minute
	if last := s.state.LastProactiveAt(); !last.IsZero() && now.Sub(last) < cooldown {
		return
	}

	var out *runtime.ProactiveOutput
	err := s.state.WithMemory(func(mem *memtier.Manager) error {
		out = s.state.Runtime.RunProactiveCheck(ctx, mem)
		if out == nil {
			return nil
		}
		_, err := mem.Record(memtier.Episodic, "[proactive] "+out.Message, "proactive")
		return err
	})
	if err != nil {
		slog.Warn("scheduler: proactive check failed", "err", err)
		return
	}
	if out == nil {
		return
	}

	s.state.Broadcast.Publish(runtime.EventProactiveMessage(out.Message))
	s.state.MarkProactiveSent(now)
}

// vaultWatcherLoop ingests human edits to the vault's fixed summary files
// as memory entries.
func (s *Scheduler) vaultWatcherLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.watch.Events():
			if !ok {
				return
			}
			s.recordHumanEdit(ev)
		}
	}
}

func (s *Scheduler) recordHumanEdit(ev vault.EditEvent) {
	content := strings.TrimSpace(ev.Content)
	if len(content) > humanEditContentCap {
		content = content[:humanEditContentCap]
	}
	note := fmt.Sprintf("[human-edit] %s was updated in the vault:\n%s", ev.Filename, content)

	err := s.state.WithMemory(func(mem *memtier.Manager) error {
		_, err := mem.RecordTagged(ev.Tier, note, "human-edit", []string{"human_edit"})
		return err
	})
	if err != nil {
		slog.Warn("scheduler: failed to record human vault edit", "filename", ev.Filename, "err", err)
	}
}
