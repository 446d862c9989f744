package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"aigent/internal/config"
	"aigent/internal/memtier"
	"aigent/internal/runtime"
)

// Server is the Unix domain socket IPC server (C14). Grounded on
// original_source/crates/runtime/src/server.rs's run_unified_daemon and
// handle_connection.
type Server struct {
	cfg      *config.Config
	state    *DaemonState
	listener net.Listener

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// NewServer binds the Unix domain socket at cfg.Daemon.SocketPath,
// removing any stale socket file first.
func NewServer(cfg *config.Config, state *DaemonState) (*Server, error) {
	path := cfg.Daemon.SocketPath
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("ipc: removing stale socket %s: %w", path, err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc: listening on %s: %w", path, err)
	}

	return &Server{
		cfg:        cfg,
		state:      state,
		listener:   ln,
		shutdownCh: make(chan struct{}),
	}, nil
}

// ShutdownRequested returns a channel closed when a client sends Shutdown.
func (s *Server) ShutdownRequested() <-chan struct{} { return s.shutdownCh }

// Serve accepts connections until ctx is cancelled or Shutdown is
// requested. The socket file is removed on exit.
func (s *Server) Serve(ctx context.Context) error {
	defer os.Remove(s.cfg.Daemon.SocketPath)

	go func() {
		select {
		case <-ctx.Done():
		case <-s.shutdownCh:
		}
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-s.shutdownCh:
				return nil
			default:
				slog.Warn("ipc: accept failed", "err", err)
				return err
			}
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) requestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return
	}
	line := scanner.Bytes()
	cmd, err := parseCommand(line)
	if err != nil {
		slog.Warn("ipc: malformed command, dropping connection", "err", err)
		return
	}

	switch cmd.Kind {
	case KindSubmitTurn:
		s.handleSubmitTurn(ctx, conn, cmd)
	case KindSubscribe:
		s.handleSubscribe(ctx, conn)
	case KindGetStatus:
		writeEvent(conn, eventStatus(s.state.Status(s.cfg)))
	case KindGetMemoryPeek:
		s.handleMemoryPeek(conn, cmd)
	case KindListTools:
		writeEvent(conn, eventToolList(s.state.Registry.Specs()))
	case KindExecuteTool:
		s.handleExecuteTool(ctx, conn, cmd)
	case KindReloadConfig:
		writeEvent(conn, eventAck("config reload is not yet supported; restart the daemon"))
	case KindRunSleepCycle:
		s.handleRunSleepCycle(ctx, conn)
	case KindShutdown:
		s.requestShutdown()
		writeEvent(conn, eventAck("shutting down"))
	case KindPing:
		writeEvent(conn, eventAck("pong"))
	default:
		slog.Warn("ipc: unknown command kind", "kind", cmd.Kind)
	}
}

func (s *Server) handleSubscribe(ctx context.Context, conn net.Conn) {
	events, unsubscribe := s.state.Broadcast.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, eventBackend(event)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMemoryPeek(conn net.Conn, cmd ClientCommand) {
	limit := cmd.Limit
	if limit <= 0 {
		limit = 1
	}
	var contents []string
	_ = s.state.withMemory(func(mem *memtier.Manager) error {
		for _, e := range mem.Recent(limit) {
			contents = append(contents, e.Content)
		}
		return nil
	})
	writeEvent(conn, eventMemoryPeek(contents))
}

func (s *Server) handleExecuteTool(ctx context.Context, conn net.Conn, cmd ClientCommand) {
	out, err := s.state.Registry.Run(ctx, cmd.Tool, cmd.Args)
	if err != nil {
		writeEvent(conn, eventToolResult(ToolResult{Success: false, Output: err.Error()}))
		return
	}
	writeEvent(conn, eventToolResult(ToolResult{Success: out.Success, Output: out.Output}))
}

func (s *Server) handleRunSleepCycle(ctx context.Context, conn net.Conn) {
	summary, err := s.state.RunAgenticSleep(ctx)
	if err != nil {
		writeEvent(conn, eventAck("sleep cycle failed: "+err.Error()))
		return
	}
	writeEvent(conn, eventAck("sleep cycle complete: "+summary.Distilled))
}

// handleSubmitTurn runs one turn end-to-end: Thinking, streamed Tokens,
// MemoryUpdated, any sleep-summary tokens if auto-sleep fires, then a
// terminal Done or Error. source != "tui" additionally broadcasts
// ExternalTurn up front and mirrors Token/Done/Error to subscribers.
func (s *Server) handleSubmitTurn(ctx context.Context, conn net.Conn, cmd ClientCommand) {
	external := cmd.Source != "" && cmd.Source != "tui"

	if external {
		s.state.Broadcast.Publish(runtime.EventExternalTurn(cmd.User))
	}

	writeEvent(conn, eventBackend(runtime.EventThinking()))

	sink := func(chunk string) {
		tok := runtime.EventToken(chunk)
		writeEvent(conn, eventBackend(tok))
		if external {
			s.state.Broadcast.Publish(tok)
		}
	}

	recentTurns := s.state.snapshotTurns()
	lastTurnAt := s.state.snapshotLastTurnAt()

	var reply string
	err := s.state.withMemory(func(mem *memtier.Manager) error {
		toolSpecs := s.state.Registry.Specs()
		r, toolEvents, err := s.state.Runtime.RespondAndRemember(ctx, mem, cmd.User, recentTurns, lastTurnAt, toolSpecs, sink)
		for _, e := range toolEvents {
			writeEvent(conn, eventBackend(e))
			if external {
				s.state.Broadcast.Publish(e)
			}
		}
		if err != nil {
			return err
		}
		reply = r

		if events := s.state.Runtime.InlineReflect(ctx, mem, cmd.User, reply); len(events) > 0 {
			for _, e := range events {
				writeEvent(conn, eventBackend(e))
			}
		}
		return nil
	})

	if err != nil {
		errEvent := runtime.EventError(err.Error())
		writeEvent(conn, eventBackend(errEvent))
		if external {
			s.state.Broadcast.Publish(errEvent)
		}
		return
	}

	s.state.recordTurn(runtime.ConversationTurn{User: cmd.User, Assistant: reply})
	writeEvent(conn, eventBackend(runtime.EventMemoryUpdated()))

	if s.cfg.Memory.AutoSleepTurnInterval > 0 && s.state.TurnCount%s.cfg.Memory.AutoSleepTurnInterval == 0 {
		summary, err := s.state.RunAgenticSleep(ctx)
		if err != nil {
			slog.Warn("ipc: auto sleep cycle failed", "err", err)
		} else {
			writeEvent(conn, eventBackend(runtime.EventToken("[sleep] "+summary.Distilled)))
		}
	}

	doneEvent := runtime.EventDone()
	writeEvent(conn, eventBackend(doneEvent))
	if external {
		s.state.Broadcast.Publish(doneEvent)
	}
}

func writeEvent(conn net.Conn, event ServerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	_, err = conn.Write(data)
	return err
}
