// Package daemonctl manages the daemon's pid/lock file lifecycle (spec
// §5's "file locks on pid/lock files use OS advisory locks and are
// released on drop", spec §6's runtime/daemon.{pid,lock} layout), built on
// golang.org/x/sys/unix's flock wrapper, already pulled in by
// internal/tools/sandbox_linux.go.
package daemonctl

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Lock is an OS advisory lock on a file, held for the life of the process
// that acquired it. Release drops it; the kernel also drops it implicitly
// if the process dies, matching spec §5's "released on drop".
type Lock struct {
	file *os.File
}

// AcquireLock takes an exclusive, non-blocking advisory lock on path,
// creating it if needed. Returns an error if another process already
// holds it.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("daemonctl: creating runtime dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("daemonctl: opening lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("daemonctl: %s is already locked by another instance: %w", path, err)
	}
	return &Lock{file: f}, nil
}

// Release drops the lock and closes the underlying file.
func (l *Lock) Release() error {
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	return l.file.Close()
}

// WritePID writes the current process's pid to path, overwriting any
// existing content.
func WritePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("daemonctl: creating runtime dir: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReadPID reads a previously written pid file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("daemonctl: reading pid file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("daemonctl: pid file %s does not contain a valid pid: %w", path, err)
	}
	return pid, nil
}

// IsRunning reports whether pid refers to a live process, probed with
// signal 0 (no actual signal delivered).
func IsRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// SendSignal delivers sig to pid, e.g. for a graceful `daemon stop`.
func SendSignal(pid int, sig os.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("daemonctl: finding process %d: %w", pid, err)
	}
	return proc.Signal(sig)
}
