//go:build !linux

package tools

import "os/exec"

// applyPlatformSandbox is a no-op outside Linux: macOS's sandbox_init-based
// profile (original_source/crates/exec/src/sandbox.rs's apply_macos) needs
// cgo to call the private Darwin API, which this module avoids, so run_shell
// runs unsandboxed elsewhere and relies on the capability/allow-list/approval
// gates above it in Registry.Run.
func applyPlatformSandbox(cmd *exec.Cmd, profile SandboxProfile, workspace string) {}

// RunSandboxReexecIfChild is a no-op outside Linux.
func RunSandboxReexecIfChild(args []string) bool { return false }

// EnableSandboxReexec is a no-op outside Linux: there is no self-reexec
// step to arm since applyPlatformSandbox never performs one on this
// platform.
func EnableSandboxReexec() {}
