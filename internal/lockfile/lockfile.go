// Package lockfile guards a FormCadence state directory so that only one
// server writes the SQLite ledger and export staging area at a time.
//
// The lock is an flock(2) on a file inside the directory; the kernel drops it
// when the process exits, even on a crash.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "formcadence.lock"

// Info is the holder record written into the lock file.
type Info struct {
	PID     int
	StudyID string
	Started time.Time
}

func (i Info) String() string {
	var parts []string
	if i.PID > 0 {
		parts = append(parts, "pid="+strconv.Itoa(i.PID))
	}
	if i.StudyID != "" {
		parts = append(parts, "study="+i.StudyID)
	}
	if !i.Started.IsZero() {
		parts = append(parts, "started="+i.Started.UTC().Format(time.RFC3339))
	}
	return strings.Join(parts, " ")
}

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive lock on stateDir for studyID. It fails fast with
// a *LockError naming the current holder when another process has it.
func Acquire(stateDir, studyID string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		slog.Error("Lock.Acquire: failed to create state directory", "error", err, "stateDir", stateDir)
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// O_TRUNC would wipe the holder's record before we know we own the lock.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		slog.Error("Lock.Acquire: failed to open lock file", "error", err, "path", lockPath)
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := ReadInfo(lockPath)
		file.Close()
		slog.Error("Lock.Acquire: state directory is in use", "error", err, "path", lockPath, "holder", holder.String())
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	info := Info{PID: os.Getpid(), StudyID: studyID, Started: time.Now()}
	if err := writeInfo(file, info); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		slog.Error("Lock.Acquire: failed to write holder record", "error", err, "path", lockPath)
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("Lock.Acquire: state directory locked", "path", lockPath, "pid", info.PID, "studyID", studyID)
	return &Lock{file: file, path: lockPath}, nil
}

func writeInfo(f *os.File, info Info) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	record := fmt.Sprintf("pid=%d\nstudy=%s\nstarted=%s\n", info.PID, info.StudyID, info.Started.UTC().Format(time.RFC3339))
	if _, err := f.WriteString(record); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		slog.Warn("Lock.Acquire: failed to sync lock file", "error", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks and removes the lock file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove while still holding the lock so a successor never sees our record.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: failed to remove lock file", "error", err, "path", l.path)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lock.Release: failed to unlock", "error", err, "path", l.path)
	}
	err := l.file.Close()
	l.file = nil
	slog.Info("Lock.Release: state directory unlocked", "path", l.path)
	return err
}

// LockError reports that another process holds the state directory.
type LockError struct {
	LockPath string
	Holder   Info
	Cause    error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another FormCadence instance is using this state directory (lock file %s)", e.LockPath)
	if h := e.Holder.String(); h != "" {
		state := "running"
		if e.Holder.PID > 0 && !isProcessRunning(e.Holder.PID) {
			state = "not running, stale lock"
		}
		fmt.Fprintf(&b, "; holder %s (%s)", h, state)
	}
	fmt.Fprintf(&b, "; remove %s only if no other instance is running", e.LockPath)
	return b.String()
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// ReadInfo parses the holder record of a lock file. Missing or malformed
// fields are left zero.
func ReadInfo(lockPath string) Info {
	var info Info
	f, err := os.Open(lockPath)
	if err != nil {
		return info
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil {
				info.PID = pid
			}
		case "study":
			info.StudyID = value
		case "started":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				info.Started = t
			}
		}
	}
	return info
}

// isProcessRunning probes pid with signal 0.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
