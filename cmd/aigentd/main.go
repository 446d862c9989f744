// Command aigentd is the long-running personal-assistant daemon: it wires
// the memory substrate (C1-C9), the LLM router (C10), the tool executor
// (C11), the runtime (C13), the IPC server (C14) and the scheduler (C15)
// together and serves spec §6's daemon lifecycle (start/stop/restart/
// status over a pid file, lock file and Unix domain socket).
//
// Uses the same kong-based CLI scaffolding (build-time version variables,
// Globals embedded for top-level flag visibility) as the rest of this
// codebase, generalized from a workflow runner's CLI to the daemon
// lifecycle commands spec §6 names; the pid/lock/socket bookkeeping has no
// prior analogue here and is built fresh in internal/daemonctl against
// spec §5/§6.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"aigent/internal/config"
	"aigent/internal/credentials"
	"aigent/internal/daemonctl"
	"aigent/internal/ipc"
	"aigent/internal/llm"
	"aigent/internal/logging"
	"aigent/internal/memtier"
	"aigent/internal/runtime"
	"aigent/internal/scheduler"
	"aigent/internal/tools"
	"aigent/internal/vault"
	"aigent/internal/vectorindex"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// embeddingDim is the vector width the sqlite-vec index is created with;
// it must match whatever embedding model the configured provider serves
// (e.g. nomic-embed-text). Not yet exposed as a config knob.
const embeddingDim = 768

// CLI is the kong command tree. Daemon holds the spec §6 lifecycle verbs;
// Version reports build metadata. Globals is embedded so its flags are
// visible at the top level and can also be passed as a Run(...) binding.
type CLI struct {
	Globals

	Daemon  DaemonCmd  `cmd:"" help:"Manage the aigentd daemon lifecycle."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Globals carries flags shared by every subcommand.
type Globals struct {
	Workspace string `help:"Workspace root; runtime/memory files live under <workspace>/.aigent." type:"path"`
	Config    string `help:"Path to agent.toml (defaults to <workspace>/agent.toml)."`
}

// DaemonCmd groups the start/stop/restart/status verbs.
type DaemonCmd struct {
	Start   StartCmd   `cmd:"" help:"Start the daemon in the foreground."`
	Stop    StopCmd    `cmd:"" help:"Stop a running daemon."`
	Restart RestartCmd `cmd:"" help:"Restart the daemon."`
	Status  StatusCmd  `cmd:"" help:"Report whether the daemon is running and its memory snapshot."`
}

// StartCmd starts the daemon. It does not itself fork into the
// background — process supervision (systemd, launchd, a shell `&`) is an
// external concern, matching spec §1's "concrete tool implementations ...
// out of scope" posture for anything not named by the core contracts.
type StartCmd struct {
	Force bool `help:"Steal the lock from a stale daemon.lock if the owning pid is no longer running."`
}

// StopCmd signals a running daemon to shut down gracefully.
type StopCmd struct{}

// RestartCmd stops then starts.
type RestartCmd struct {
	Force bool `help:"Steal the lock from a stale daemon.lock if the owning pid is no longer running."`
}

// StatusCmd queries GetStatus over the IPC socket.
type StatusCmd struct{}

// VersionCmd prints build metadata.
type VersionCmd struct{}

func (v *VersionCmd) Run(g *Globals) error {
	fmt.Printf("aigentd %s (commit %s, built %s)\n", version, commit, buildTime)
	return nil
}

type paths struct {
	workspace  string
	runtimeDir string
	memoryDir  string
	pidPath    string
	lockPath   string
	logPath    string
	modePath   string
	eventLog   string
	indexPath  string
	lexPath    string
	vectorPath string
	vaultDir   string
}

func resolvePaths(g *Globals) (paths, error) {
	ws := g.Workspace
	if ws == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return paths{}, fmt.Errorf("resolving workspace: %w", err)
		}
		ws = cwd
	}
	runtimeDir := filepath.Join(ws, ".aigent", "runtime")
	memoryDir := filepath.Join(ws, ".aigent", "memory")
	return paths{
		workspace:  ws,
		runtimeDir: runtimeDir,
		memoryDir:  memoryDir,
		pidPath:    filepath.Join(runtimeDir, "daemon.pid"),
		lockPath:   filepath.Join(runtimeDir, "daemon.lock"),
		logPath:    filepath.Join(runtimeDir, "daemon.log"),
		modePath:   filepath.Join(runtimeDir, "daemon.mode"),
		eventLog:   filepath.Join(memoryDir, "events.jsonl"),
		indexPath:  filepath.Join(memoryDir, "index.bbolt"),
		lexPath:    filepath.Join(memoryDir, "lexindex.bleve"),
		vectorPath: filepath.Join(memoryDir, "vectors.sqlite"),
		vaultDir:   filepath.Join(ws, "vault"),
	}, nil
}

func loadConfig(g *Globals, ws string) (*config.Config, error) {
	path := g.Config
	if path == "" {
		path = filepath.Join(ws, "agent.toml")
	}
	if _, err := os.Stat(path); err != nil {
		return config.New(), nil
	}
	return config.LoadFile(path)
}

func (c *StartCmd) Run(g *Globals) error {
	_ = godotenv.Load()

	p, err := resolvePaths(g)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(g, p.workspace)
	if err != nil {
		return err
	}
	if cfg.Agent.WorkspacePath == "" {
		cfg.Agent.WorkspacePath = p.workspace
	}

	if c.Force {
		stealStaleLock(p.pidPath, p.lockPath)
	}

	lock, err := daemonctl.AcquireLock(p.lockPath)
	if err != nil {
		return fmt.Errorf("another aigentd instance appears to be running: %w", err)
	}
	defer lock.Release()

	if err := daemonctl.WritePID(p.pidPath); err != nil {
		return err
	}
	defer os.Remove(p.pidPath)

	logFile, err := os.OpenFile(p.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	logging.SetDefault(logging.New(logFile, false))
	log := logging.Default().WithComponent("aigentd")
	_ = os.WriteFile(p.modePath, []byte("running"), 0o644)

	if cfg.Tools.SandboxEnabled {
		tools.EnableSandboxReexec()
	}

	state, registry, mem, vlt, watcher, cleanup, err := buildDaemon(cfg, p)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := ipc.NewServer(cfg, state)
	if err != nil {
		return fmt.Errorf("binding ipc socket: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(cfg, state, vlt, watcher)
	sched.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Info().Msg("received shutdown signal")
		case <-srv.ShutdownRequested():
			log.Info().Msg("received Shutdown command over ipc")
		}
		cancel()
	}()

	log.Info().
		Str("socket", cfg.Daemon.SocketPath).
		Int("tools", len(registry.Specs())).
		Int("memory_entries", mem.Stats().Total).
		Msg("aigentd started")

	if err := srv.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("ipc server exited with error")
		return err
	}
	sched.Wait()
	_ = os.WriteFile(p.modePath, []byte("stopped"), 0o644)
	return nil
}

// buildDaemon wires the memory substrate, LLM router, tool registry and
// runtime together. Returns a cleanup func that closes every owned
// resource (secondary index, lexical index, vector index, vault watcher).
func buildDaemon(cfg *config.Config, p paths) (*ipc.DaemonState, *tools.Registry, *memtier.Manager, *vault.Vault, *vault.Watcher, func(), error) {
	creds := credentials.New()

	ollama := llm.NewOllamaAdapter(creds.OllamaBaseURL(cfg.LLM.OllamaBaseURL), cfg.LLM.OllamaModel, 4096)
	openrouter := llm.NewOpenRouterAdapter(creds.OpenRouterAPIKey(), cfg.LLM.OpenRouterModel, 4096)
	retry := llm.DefaultRetryConfig()
	router := llm.NewRouter(ollama, openrouter, retry)

	eventLog := memtier.NewEventLog(p.eventLog)

	idx, err := memtier.OpenIndex(p.indexPath, 256)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("opening secondary index: %w", err)
	}

	lex, err := memtier.OpenLexIndex(p.lexPath)
	if err != nil {
		idx.Close()
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("opening lexical index: %w", err)
	}

	vec, err := vectorindex.Open(p.vectorPath, embeddingDim)
	if err != nil {
		idx.Close()
		lex.Close()
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("opening vector index: %w", err)
	}

	vlt, err := vault.New(p.vaultDir)
	if err != nil {
		idx.Close()
		lex.Close()
		vec.Close()
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("opening vault: %w", err)
	}
	watcher, err := vault.NewWatcher(vlt)
	if err != nil {
		idx.Close()
		lex.Close()
		vec.Close()
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("starting vault watcher: %w", err)
	}

	embedder := func(text string) ([]float32, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return router.Embed(ctx, cfg.PrimaryProvider(), text)
	}

	mem := memtier.NewManager(eventLog,
		memtier.WithIndex(idx),
		memtier.WithLexIndex(lex),
		memtier.WithVectorIndex(vec),
		memtier.WithVault(vlt),
		memtier.WithEmbedder(embedder),
	)

	cleanup := func() {
		watcher.Stop()
		vec.Close()
		lex.Close()
		idx.Close()
	}

	if err := mem.Replay(); err != nil {
		cleanup()
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("replaying event log: %w", err)
	}

	seedIdentity(mem, cfg)

	policy := tools.NewPolicy(cfg)
	// Always wire a gate so Registry.Run never dereferences a nil
	// *ApprovalGate; with no approval channel configured it auto-denies,
	// matching spec §4.9.
	approval := tools.NewApprovalGate(nil, 2*time.Minute)
	if cfg.Safety.ApprovalRequired {
		approval = tools.NewUnboundedQueueApprovalGate(2 * time.Minute)
	}
	registry := tools.NewRegistry(policy, approval)

	rt := runtime.New(cfg, router, registry)
	state := ipc.NewDaemonState(rt, mem, registry)

	return state, registry, mem, vlt, watcher, cleanup, nil
}

// seedIdentity records the configured agent/user names as Core entries the
// very first time the daemon runs against an empty memory store, per spec
// §8 scenario 1 ("manager auto-seeds Core with user_name, bot_name").
// Subsequent runs are no-ops since Record is content-deduplicated.
func seedIdentity(mem *memtier.Manager, cfg *config.Config) {
	if mem.Stats().ByTier[memtier.Core] > 0 {
		return
	}
	if cfg.Agent.UserName != "" {
		if _, err := mem.Record(memtier.Core, fmt.Sprintf("the user's name is %s", cfg.Agent.UserName), "onboarding:identity"); err != nil {
			logging.Default().WithComponent("aigentd").Warn().Err(err).Msg("failed to seed user identity")
		}
	}
	name := cfg.Agent.Name
	if name == "" {
		name = "Aigent"
	}
	if _, err := mem.Record(memtier.Core, fmt.Sprintf("my name is %s", name), "onboarding:identity"); err != nil {
		logging.Default().WithComponent("aigentd").Warn().Err(err).Msg("failed to seed agent identity")
	}
}

func stealStaleLock(pidPath, lockPath string) {
	pid, err := daemonctl.ReadPID(pidPath)
	if err != nil {
		return
	}
	if daemonctl.IsRunning(pid) {
		return
	}
	os.Remove(lockPath)
	os.Remove(pidPath)
}

func (c *StopCmd) Run(g *Globals) error {
	p, err := resolvePaths(g)
	if err != nil {
		return err
	}
	pid, err := daemonctl.ReadPID(p.pidPath)
	if err != nil {
		return fmt.Errorf("no running daemon found: %w", err)
	}
	if !daemonctl.IsRunning(pid) {
		return fmt.Errorf("pid %d in %s is not running", pid, p.pidPath)
	}
	if err := daemonctl.SendSignal(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling pid %d: %w", pid, err)
	}
	fmt.Printf("sent SIGTERM to aigentd (pid %d)\n", pid)
	return nil
}

func (c *RestartCmd) Run(g *Globals) error {
	stop := &StopCmd{}
	if err := stop.Run(g); err == nil {
		p, _ := resolvePaths(g)
		for i := 0; i < 50; i++ {
			if pid, err := daemonctl.ReadPID(p.pidPath); err != nil || !daemonctl.IsRunning(pid) {
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
	start := &StartCmd{Force: c.Force}
	return start.Run(g)
}

func (c *StatusCmd) Run(g *Globals) error {
	cfg, err := loadConfigForStatus(g)
	if err != nil {
		return err
	}
	conn, err := net.DialTimeout("unix", cfg.Daemon.SocketPath, 2*time.Second)
	if err != nil {
		fmt.Println("aigentd is not running (socket unreachable)")
		return nil
	}
	defer conn.Close()

	req, _ := json.Marshal(ipc.ClientCommand{Kind: ipc.KindGetStatus})
	req = append(req, '\n')
	if _, err := conn.Write(req); err != nil {
		return err
	}
	dec := json.NewDecoder(conn)
	var ev ipc.ServerEvent
	if err := dec.Decode(&ev); err != nil {
		return fmt.Errorf("reading status: %w", err)
	}
	if ev.Status == nil {
		return fmt.Errorf("daemon returned no status")
	}
	s := ev.Status
	fmt.Printf("aigentd running: %s (%s/%s)\n", s.BotName, s.Provider, s.Model)
	fmt.Printf("uptime: %ds\n", s.UptimeSecs)
	fmt.Printf("memory: total=%d core=%d profile=%d reflective=%d semantic=%d procedural=%d episodic=%d\n",
		s.MemoryTotal, s.MemoryCore, s.MemoryUserProfile, s.MemoryReflective, s.MemorySemantic, s.MemoryProcedural, s.MemoryEpisodic)
	fmt.Printf("tools: %v\n", s.AvailableTools)
	return nil
}

func loadConfigForStatus(g *Globals) (*config.Config, error) {
	p, err := resolvePaths(g)
	if err != nil {
		return nil, err
	}
	return loadConfig(g, p.workspace)
}

func main() {
	// Must run before kong parses anything: if this process invocation is
	// the sandboxed re-exec of a run_shell child, it execs into the real
	// command and never returns.
	if tools.RunSandboxReexecIfChild(os.Args) {
		return
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("aigentd"),
		kong.Description("Personal-assistant memory daemon."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
