package tools

import "os/exec"

// SandboxProfile controls how aggressive the platform sandbox is, grounded
// on original_source/crates/exec/src/sandbox.rs's SandboxProfile enum.
type SandboxProfile int

const (
	// SandboxStrict is the default for run_shell: minimal syscall surface.
	SandboxStrict SandboxProfile = iota
	// SandboxGitFriendly widens the allow-list for commands that shell out to
	// git/curl and need DNS + TLS.
	SandboxGitFriendly
)

// applySandbox configures cmd with whatever platform isolation this build
// supports before it is started. A failure to configure the sandbox must
// not crash the daemon (spec §4.9) — applySandbox only ever adjusts cmd
// in-place and never returns an error for that reason; platform-specific
// failures are logged by the caller from the command's actual run error.
func applySandbox(cmd *exec.Cmd, profile SandboxProfile, workspace string) {
	applyPlatformSandbox(cmd, profile, workspace)
}
