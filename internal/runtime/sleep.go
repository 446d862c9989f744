package runtime

import (
	"context"

	"aigent/internal/memtier"
	"aigent/internal/sleep"
)

// RunAgenticSleep runs one LLM-driven sleep pass (C9) over mem: generate
// structured insights, apply them, then let Apply's call into
// mem.RunSleepCycle perform the usual heuristic distillation and vault
// sync on top. Falls back to a plain RunSleepCycle if insight generation
// fails (no usable LLM reply), mirroring Rust's SleepGenerationResult::
// PassiveFallback.
func (rt *Runtime) RunAgenticSleep(ctx context.Context, mem *memtier.Manager) (memtier.SleepSummary, error) {
	insights, ok := sleep.Generate(ctx, rt.router, rt.primary(), mem, rt.Config.Agent.Name, rt.Config.Agent.UserName)
	if !ok {
		return mem.RunSleepCycle()
	}
	return sleep.Apply(mem, insights)
}

// RunMultiAgentSleep runs the four-specialist deliberation pipeline over
// mem, batched by batchSize, then applies the merged insights.
func (rt *Runtime) RunMultiAgentSleep(ctx context.Context, mem *memtier.Manager, batchSize int) (memtier.SleepSummary, error) {
	insights := sleep.GenerateMultiAgent(ctx, rt.router, rt.primary(), mem, rt.Config.Agent.Name, rt.Config.Agent.UserName, batchSize)
	return sleep.Apply(mem, insights)
}
