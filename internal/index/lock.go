// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrLocked means another watch process owns the library.
var ErrLocked = errors.New("library is locked by another process")

// LockGrace is how long a lock file without a readable PID counts as held.
// The owner creates the file before writing its PID.
var LockGrace = 10 * time.Second

// ProcessLock is an exclusive, non-blocking lock file holding the owner's
// PID. A lock left by a process that no longer exists is taken over.
type ProcessLock struct {
	path string
}

// AcquireLock creates path exclusively. It fails immediately with
// ErrLocked when a live process holds it.
func AcquireLock(path string) (*ProcessLock, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("writing lock %s: %w", path, errors.Join(werr, cerr))
			}
			return &ProcessLock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("creating lock %s: %w", path, err)
		}

		pid, ok := lockOwner(path)
		if ok && processAlive(pid) {
			return nil, fmt.Errorf("%w: pid %d holds %s", ErrLocked, pid, path)
		}
		if !ok && lockFresh(path) {
			return nil, fmt.Errorf("%w: %s is being written", ErrLocked, path)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale lock %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, path)
}

// Release removes the lock file.
func (l *ProcessLock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("releasing lock %s: %w", l.path, err)
	}
	return nil
}

// lockOwner reads the PID from path. ok is false when the file holds no
// valid PID.
func lockOwner(path string) (pid int, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// lockFresh reports whether path was modified within LockGrace.
func lockFresh(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(fi.ModTime()) < LockGrace
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
