package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"aigent/internal/config"
	"aigent/internal/ipc"
	"aigent/internal/llm"
	"aigent/internal/memtier"
	"aigent/internal/runtime"
	"aigent/internal/tools"
)

func TestInWindowHandlesOrdinaryAndWrappingRanges(t *testing.T) {
	cases := []struct {
		hour, start, end int
		want             bool
	}{
		{hour: 23, start: 22, end: 6, want: true},
		{hour: 3, start: 22, end: 6, want: true},
		{hour: 12, start: 22, end: 6, want: false},
		{hour: 9, start: 8, end: 17, want: true},
		{hour: 17, start: 8, end: 17, want: false},
		{hour: 7, start: 8, end: 17, want: false},
		{hour: 0, start: 22, end: 22, want: true},
		{hour: 12, start: 22, end: 22, want: true},
		{hour: 23, start: 22, end: 22, want: true},
	}
	for _, c := range cases {
		if got := InWindow(c.hour, c.start, c.end); got != c.want {
			t.Errorf("InWindow(%d, %d, %d) = %v, want %v", c.hour, c.start, c.end, got, c.want)
		}
	}
}

func TestCurrentHourFallsBackToUTCOnBadTimezone(t *testing.T) {
	now := time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)
	if got := currentHour(now, "Not/AZone"); got != 14 {
		t.Errorf("expected fallback to UTC hour 14, got %d", got)
	}
}

func testScheduler(t *testing.T) (*Scheduler, *config.Config) {
	t.Helper()
	cfg := config.New()
	cfg.Agent.Name = "Aigent"
	cfg.LLM.Provider = "ollama"
	cfg.Daemon.SocketPath = filepath.Join(t.TempDir(), "aigent.sock")

	provider := &fakeProvider{name: "ollama", content: "hello"}
	router := llm.NewRouter(provider, provider, llm.RetryConfig{MaxRetries: 0})
	policy := tools.NewPolicy(cfg)
	registry := tools.NewRegistry(policy, tools.NewApprovalGate(nil, 0))
	rt := runtime.New(cfg, router, registry)

	log := memtier.NewEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	mem := memtier.NewManager(log)

	state := ipc.NewDaemonState(rt, mem, registry)
	return New(cfg, state, nil, nil), cfg
}

type fakeProvider struct {
	name    string
	content string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: f.content, Provider: f.name}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req llm.ChatRequest, sink llm.TokenSink) (*llm.ChatResponse, error) {
	if sink != nil {
		sink(f.content)
	}
	return &llm.ChatResponse{Content: f.content, Provider: f.name}, nil
}

func TestMaybeRunPassiveSleepSkipsWhenNotYetDue(t *testing.T) {
	s, cfg := testScheduler(t)
	cfg.Memory.SleepIntervalHours = 8
	s.lastSleepAt = time.Now().Add(-1 * time.Hour)

	s.maybeRunPassiveSleep(context.Background())

	if time.Since(s.lastSleepAt) < 30*time.Minute {
		t.Error("expected passive sleep to be skipped (and lastSleepAt left untouched) when not yet due")
	}
}

func TestMaybeRunNightlyConsolidationRespectsWindowGate(t *testing.T) {
	s, cfg := testScheduler(t)
	cfg.Memory.NightSleepStartHour = 22
	cfg.Memory.NightSleepEndHour = 6
	// currentHour uses real now(), so just assert the pure InWindow law
	// the gate is built on, rather than depending on wall-clock time here.
	if InWindow(12, cfg.Memory.NightSleepStartHour, cfg.Memory.NightSleepEndHour) {
		t.Error("midday should fall outside the default night window")
	}
	if !InWindow(23, cfg.Memory.NightSleepStartHour, cfg.Memory.NightSleepEndHour) {
		t.Error("23:00 should fall inside the default night window")
	}
}
