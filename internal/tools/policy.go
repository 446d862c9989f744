package tools

import (
	"fmt"
	"strings"

	"aigent/internal/config"
)

// Policy gates tool execution against spec §6's [safety]/[tools]/[git]
// configuration. Grounded on the call-site shape registry.go's tool
// constructors expect from a policy gate (CheckPath/CheckCommand/
// CheckDomain/IsToolEnabled), rebuilt here directly against this
// codebase's actual config sections since no policy package implementation
// itself was available to adapt, only the call sites that reference one.
type Policy struct {
	Workspace string

	approvalRequired bool
	allowShell       bool
	allowWASM        bool
	allowlist        map[string]bool
	denylist         map[string]bool
	exemptFromGate   map[string]bool

	trustedRepos      []string
	trustedWritePaths []string
	allowSystemRead   bool
}

// NewPolicy builds a Policy from loaded configuration.
func NewPolicy(cfg *config.Config) *Policy {
	p := &Policy{
		Workspace:         cfg.Agent.WorkspacePath,
		approvalRequired:  cfg.Safety.ApprovalRequired,
		allowShell:        cfg.Safety.AllowShell,
		allowWASM:         cfg.Safety.AllowWASM,
		allowlist:         toSet(cfg.Safety.ToolAllowlist),
		denylist:          toSet(cfg.Safety.ToolDenylist),
		exemptFromGate:    toSet(cfg.Safety.ApprovalExemptTools),
		trustedRepos:      cfg.Git.TrustedRepos,
		trustedWritePaths: cfg.Git.TrustedWritePaths,
		allowSystemRead:   cfg.Git.AllowSystemRead,
	}
	return p
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

// IsToolEnabled applies the allow/deny lists: an explicit denylist entry
// always wins; a non-empty allowlist is otherwise a closed set.
func (p *Policy) IsToolEnabled(name string) bool {
	if p.denylist[name] {
		return false
	}
	if len(p.allowlist) > 0 {
		return p.allowlist[name]
	}
	return true
}

// CheckCapability applies the per-tool capability gate named in spec §4.9
// ("run_shell requires allow_shell").
func (p *Policy) CheckCapability(name string) (bool, string) {
	switch name {
	case "run_shell":
		if !p.allowShell {
			return false, "run_shell is disabled (safety.allow_shell is false)"
		}
	case "run_wasm":
		if !p.allowWASM {
			return false, "run_wasm is disabled (safety.allow_wasm is false)"
		}
	}
	if !p.IsToolEnabled(name) {
		return false, fmt.Sprintf("%s is not in the configured tool allowlist, or is denylisted", name)
	}
	return true, ""
}

// RequiresApproval reports whether name must pass the approval gate.
func (p *Policy) RequiresApproval(name string) bool {
	if !p.approvalRequired {
		return false
	}
	return !p.exemptFromGate[name]
}

// CheckPath gates filesystem access against git.trusted_write_paths /
// allow_system_read.
func (p *Policy) CheckPath(toolName, path string) (bool, string) {
	if toolName == "write" || toolName == "edit" {
		if len(p.trustedWritePaths) > 0 && !pathWithinAny(path, p.trustedWritePaths) {
			return false, fmt.Sprintf("%s is outside the configured trusted write paths", path)
		}
	}
	if toolName == "read" && !p.allowSystemRead && looksSystemPath(path) {
		return false, fmt.Sprintf("%s looks like a system path and git.allow_system_read is false", path)
	}
	return true, ""
}

// CheckCommand gates run_shell's command string. Deliberately minimal: the
// real isolation boundary is the sandbox (sandbox_linux.go), not string
// matching on the command text.
func (p *Policy) CheckCommand(toolName, command string) (bool, string) {
	if toolName == "run_shell" && !p.allowShell {
		return false, "run_shell is disabled (safety.allow_shell is false)"
	}
	return true, ""
}

// CheckDomain gates web_fetch against trusted_repos (reused here as a
// generic trusted-host allowlist when non-empty).
func (p *Policy) CheckDomain(toolName, domain string) (bool, string) {
	if len(p.trustedRepos) == 0 {
		return true, ""
	}
	for _, t := range p.trustedRepos {
		if strings.EqualFold(t, domain) || strings.HasSuffix(domain, "."+t) {
			return true, ""
		}
	}
	return false, fmt.Sprintf("%s is not in git.trusted_repos", domain)
}

func pathWithinAny(path string, roots []string) bool {
	for _, root := range roots {
		if strings.HasPrefix(path, root) {
			return true
		}
	}
	return false
}

func looksSystemPath(path string) bool {
	for _, prefix := range []string{"/etc", "/sys", "/proc", "/root", "/boot"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
