package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := testConfig()
	cfg.Agent.WorkspacePath = t.TempDir()
	cfg.Safety.AllowShell = true
	return NewRegistry(NewPolicy(cfg), NewApprovalGate(nil, 0))
}

func TestRegistryRunUnknownTool(t *testing.T) {
	r := testRegistry(t)
	out, err := r.Run(context.Background(), "does_not_exist", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Success {
		t.Error("expected failure for unknown tool")
	}
}

func TestRegistryReadWriteRoundTrip(t *testing.T) {
	r := testRegistry(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")

	out, err := r.Run(context.Background(), "write", map[string]string{"path": path, "content": "hello"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected write success, got %+v", out)
	}

	out, err = r.Run(context.Background(), "read", map[string]string{"path": path})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !out.Success || out.Output != "hello" {
		t.Errorf("expected read back 'hello', got %+v", out)
	}
}

func TestRegistryCapabilityGateDeniesRunShellWhenDisallowed(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.WorkspacePath = t.TempDir()
	cfg.Safety.AllowShell = false
	r := NewRegistry(NewPolicy(cfg), NewApprovalGate(nil, 0))

	out, err := r.Run(context.Background(), "run_shell", map[string]string{"command": "echo hi"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Success {
		t.Error("expected run_shell denied by capability gate")
	}
}

func TestRegistryApprovalGateAutoDeniesWhenRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.WorkspacePath = t.TempDir()
	cfg.Safety.AllowShell = true
	cfg.Safety.ApprovalRequired = true
	r := NewRegistry(NewPolicy(cfg), NewApprovalGate(nil, 0))

	out, err := r.Run(context.Background(), "run_shell", map[string]string{"command": "echo hi"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Success {
		t.Error("expected auto-deny with no configured approval channel")
	}
}

func TestRegistrySpecsExcludesDisabledTools(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.WorkspacePath = t.TempDir()
	cfg.Safety.ToolDenylist = []string{"run_shell"}
	r := NewRegistry(NewPolicy(cfg), NewApprovalGate(nil, 0))

	for _, s := range r.Specs() {
		if s.Name == "run_shell" {
			t.Error("expected run_shell excluded from specs when denylisted")
		}
	}
}

func TestGlobToolFindsFiles(t *testing.T) {
	r := testRegistry(t)
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0o644)

	out, err := r.Run(context.Background(), "glob", map[string]string{"pattern": filepath.Join(dir, "*.txt")})
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected glob success, got %+v", out)
	}
}

func TestGrepToolFindsMatch(t *testing.T) {
	r := testRegistry(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("hello\nworld\n"), 0o644)

	out, err := r.Run(context.Background(), "grep", map[string]string{"pattern": "wor.d", "path": path})
	if err != nil {
		t.Fatalf("grep: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected grep success, got %+v", out)
	}
}

func TestRunShellToolExecutesCommand(t *testing.T) {
	r := testRegistry(t)
	out, err := r.Run(context.Background(), "run_shell", map[string]string{"command": "echo hello"})
	if err != nil {
		t.Fatalf("run_shell: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected run_shell success, got %+v", out)
	}
}
