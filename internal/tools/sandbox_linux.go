//go:build linux

package tools

import (
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// sandboxChildEnvVar marks a re-exec of this binary as the sandboxed child
// half of a run_shell invocation: the self-reexec trick stands in for the
// Rust original's pre_exec hook (which Go's os/exec has no equivalent for),
// grounded on original_source/crates/exec/src/sandbox.rs's apply_to_child,
// called "between fork and exec" there and here between re-exec and the
// final syscall.Exec into the user's shell command.
const sandboxChildEnvVar = "AIGENT_SANDBOX_CHILD"

// commandDenylist approximates sandbox.rs's seccomp BPF syscall allow-list
// as a policy-level check on the command name, since no BPF-assembler
// library is available in this module's dependency set (see DESIGN.md).
// It denies known privilege-escalation and namespace-breakout binaries;
// everything else is allowed through to the real syscall surface.
var commandDenylist = map[string]bool{
	"sudo": true, "su": true, "doas": true,
	"mount": true, "umount": true, "unshare": true, "nsenter": true,
	"chroot": true, "setcap": true, "capsh": true,
	"insmod": true, "rmmod": true, "modprobe": true,
	"reboot": true, "shutdown": true, "halt": true,
}

// reexecSelf gates the self-reexec step: it only works when the running
// binary's main() calls RunSandboxReexecIfChild on startup (cmd/aigentd
// does). Test binaries and other entrypoints don't, so it defaults off and
// cmd/aigentd turns it on explicitly during daemon startup.
var reexecSelf = false

// EnableSandboxReexec turns on the self-reexec sandboxing step. Call once,
// early, from an entrypoint whose main() also calls RunSandboxReexecIfChild.
func EnableSandboxReexec() { reexecSelf = true }

func applyPlatformSandbox(cmd *exec.Cmd, profile SandboxProfile, workspace string) {
	if len(cmd.Args) == 0 {
		return
	}
	denied := commandDenylist[cmd.Args[0]]
	if len(cmd.Args) > 2 {
		if fields := strings.Fields(cmd.Args[2]); len(fields) > 0 && commandDenylist[fields[0]] {
			denied = true
		}
	}
	if denied {
		// bash -c "<denied binary> ..." — block before spawn by rewriting the
		// command into a guaranteed failure; Execute() checks this and fails
		// the tool call instead of crashing the daemon.
		cmd.Args = []string{"false"}
		cmd.Path, _ = exec.LookPath("false")
		return
	}

	if !reexecSelf {
		return
	}

	// Re-exec through ourselves so the child can call PR_SET_NO_NEW_PRIVS
	// and unshare a UTS namespace before the real command replaces it via
	// execve — these must happen in the child only, never in the long-lived
	// daemon process.
	self, err := os.Executable()
	if err != nil {
		return
	}
	realArgs := cmd.Args
	cmd.Path = self
	cmd.Args = append([]string{self, sandboxReexecArg}, realArgs...)
	cmd.Env = append(cmd.Env, sandboxChildEnvVar+"=1")
}

const sandboxReexecArg = "__aigent_sandbox_exec__"

// RunSandboxReexecIfChild checks whether this process invocation is the
// sandboxed child half of a run_shell call, applies PR_SET_NO_NEW_PRIVS and
// UTS namespace isolation, then execve's into the real command and never
// returns. cmd/aigentd's main() calls this before any other startup work.
// Ordinary daemon invocations return false immediately and are unaffected.
func RunSandboxReexecIfChild(args []string) bool {
	if len(args) < 2 || args[1] != sandboxReexecArg || os.Getenv(sandboxChildEnvVar) == "" {
		return false
	}
	realArgs := args[2:]
	if len(realArgs) == 0 {
		os.Exit(127)
	}

	// PR_SET_NO_NEW_PRIVS: inherited across execve, cannot be unset; hard
	// guarantee the spawned shell cannot escalate via setuid/setcap binaries.
	_ = unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0)

	// UTS namespace isolation so the child cannot impersonate the host by
	// changing its hostname. Requires CAP_SYS_ADMIN; skipped silently in
	// unprivileged containers, matching sandbox.rs's non-fatal fallback.
	if err := unix.Unshare(unix.CLONE_NEWUTS); err == nil {
		_ = unix.Sethostname([]byte("aigent-sandbox"))
	}

	binary, err := exec.LookPath(realArgs[0])
	if err != nil {
		os.Exit(127)
	}
	_ = syscall.Exec(binary, realArgs, os.Environ())
	os.Exit(127)
	return true
}
