package ipc

import (
	"context"
	"sync"
	"time"

	"aigent/internal/config"
	"aigent/internal/memtier"
	"aigent/internal/runtime"
	"aigent/internal/tools"
)

const recentTurnsCapacity = 8

// DaemonState is the single piece of shared state every connection
// handler and background scheduler task operates on, guarded by one
// mutex. Grounded on original_source/crates/runtime/src/server.rs's
// DaemonState.
type DaemonState struct {
	mu sync.Mutex

	Runtime     *runtime.Runtime
	Memory      *memtier.Manager
	Registry    *tools.Registry
	Broadcast   *Broadcaster
	RecentTurns []runtime.ConversationTurn
	TurnCount   int
	StartedAt   time.Time
	LastTurnAt  time.Time

	lastProactiveAt       time.Time
	lastMultiAgentSleepAt time.Time
}

// NewDaemonState wires a fresh DaemonState around an already-constructed
// runtime, memory manager and tool registry.
func NewDaemonState(rt *runtime.Runtime, mem *memtier.Manager, registry *tools.Registry) *DaemonState {
	return &DaemonState{
		Runtime:   rt,
		Memory:    mem,
		Registry:  registry,
		Broadcast: NewBroadcaster(),
		StartedAt: time.Now(),
	}
}

// takeMemory swaps the memory manager out from under the lock for the
// duration of a long LLM call, so other connections aren't blocked on
// network I/O. The caller MUST call putMemory with the same manager once
// done, even on error paths.
func (d *DaemonState) takeMemory() *memtier.Manager {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem := d.Memory
	d.Memory = nil
	return mem
}

func (d *DaemonState) putMemory(mem *memtier.Manager) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Memory = mem
}

// withMemory runs fn with the memory manager taken out from under the
// lock, restoring it afterward regardless of fn's outcome.
func (d *DaemonState) withMemory(fn func(mem *memtier.Manager) error) error {
	mem := d.takeMemory()
	defer d.putMemory(mem)
	return fn(mem)
}

// WithMemory is withMemory exported for the scheduler (C15), which lives
// in a separate package but must honor the same swap-for-long-calls
// discipline as connection handlers.
func (d *DaemonState) WithMemory(fn func(mem *memtier.Manager) error) error {
	return d.withMemory(fn)
}

// LastTurnAtSnapshot returns the timestamp of the most recent completed
// turn, read under the lock.
func (d *DaemonState) LastTurnAtSnapshot() time.Time {
	return d.snapshotLastTurnAt()
}

// MarkProactiveSent records that a proactive message was just emitted, for
// the scheduler's cooldown gate.
func (d *DaemonState) MarkProactiveSent(at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastProactiveAt = at
}

// LastProactiveAt returns the last time a proactive message was emitted.
func (d *DaemonState) LastProactiveAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastProactiveAt
}

// MarkMultiAgentSleepRun records that a multi-agent (nightly) sleep pass
// just completed, for the scheduler's min-gap gate.
func (d *DaemonState) MarkMultiAgentSleepRun(at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastMultiAgentSleepAt = at
}

// LastMultiAgentSleepAt returns the last time a multi-agent sleep pass ran.
func (d *DaemonState) LastMultiAgentSleepAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastMultiAgentSleepAt
}

func (d *DaemonState) recordTurn(turn runtime.ConversationTurn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.RecentTurns = append(d.RecentTurns, turn)
	if len(d.RecentTurns) > recentTurnsCapacity {
		d.RecentTurns = d.RecentTurns[len(d.RecentTurns)-recentTurnsCapacity:]
	}
	d.TurnCount++
	d.LastTurnAt = time.Now()
}

func (d *DaemonState) snapshotTurns() []runtime.ConversationTurn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]runtime.ConversationTurn(nil), d.RecentTurns...)
}

func (d *DaemonState) snapshotLastTurnAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.LastTurnAt
}

// Status builds the DaemonStatus snapshot returned by GetStatus.
func (d *DaemonState) Status(cfg *config.Config) DaemonStatus {
	mem := d.takeMemory()
	var stats memtier.Stats
	if mem != nil {
		stats = mem.Stats()
	}
	d.putMemory(mem)

	var toolNames []string
	for _, s := range d.Registry.Specs() {
		toolNames = append(toolNames, s.Name)
	}

	return DaemonStatus{
		BotName:           cfg.Agent.Name,
		Provider:          cfg.PrimaryProvider(),
		Model:             cfg.ActiveModel(),
		ThinkingLevel:     cfg.Agent.ThinkingLevel,
		MemoryTotal:       stats.Total,
		MemoryCore:        stats.ByTier[memtier.Core],
		MemoryUserProfile: stats.ByTier[memtier.UserProfile],
		MemoryReflective:  stats.ByTier[memtier.Reflective],
		MemorySemantic:    stats.ByTier[memtier.Semantic],
		MemoryProcedural:  stats.ByTier[memtier.Procedural],
		MemoryEpisodic:    stats.ByTier[memtier.Episodic],
		UptimeSecs:        int64(time.Since(d.StartedAt).Seconds()),
		AvailableTools:    toolNames,
	}
}

// RunAgenticSleep executes one agentic sleep pass over the current memory
// snapshot, swapping memory out under the lock for the duration of the LLM
// calls, and returns the resulting summary.
func (d *DaemonState) RunAgenticSleep(ctx context.Context) (memtier.SleepSummary, error) {
	var summary memtier.SleepSummary
	err := d.withMemory(func(mem *memtier.Manager) error {
		s, err := d.Runtime.RunAgenticSleep(ctx, mem)
		summary = s
		return err
	})
	return summary, err
}

// RunMultiAgentSleep executes the four-specialist deliberation sleep pass,
// swapping memory out under the lock for its duration.
func (d *DaemonState) RunMultiAgentSleep(ctx context.Context, batchSize int) (memtier.SleepSummary, error) {
	var summary memtier.SleepSummary
	err := d.withMemory(func(mem *memtier.Manager) error {
		s, err := d.Runtime.RunMultiAgentSleep(ctx, mem, batchSize)
		summary = s
		return err
	})
	return summary, err
}
