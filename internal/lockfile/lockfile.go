// Package lockfile implements the per-workspace lock marker file.
//
// A lock is a JSON marker stored inside the workspace directory itself, so
// it survives independently of the metadata database. Marker creation uses
// O_CREATE|O_EXCL, which is the only cross-process ordering primitive in
// warren: two processes racing to lock the same workspace have exactly one
// winner.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// FileName is the lock marker file name inside a workspace directory.
const FileName = ".warren.lock"

// Type identifies how a lock is reclaimed.
type Type string

const (
	// TypePID marks a lock tied to a live process. It becomes stale when
	// that process exits.
	TypePID Type = "pid"

	// TypePersistent marks a lock that survives process exit and requires
	// an explicit unlock.
	TypePersistent Type = "persistent"
)

// Info is the contents of a lock marker file.
type Info struct {
	Type      Type      `json:"type"`
	PID       int       `json:"pid,omitempty"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Command   string    `json:"command"`
	Owner     string    `json:"owner,omitempty"`
}

// AlreadyLockedError indicates a live lock is held by someone else.
type AlreadyLockedError struct {
	Dir    string
	Holder Info
}

func (e *AlreadyLockedError) Error() string {
	holder := e.Holder.Owner
	if holder == "" {
		holder = fmt.Sprintf("pid %d on %s", e.Holder.PID, e.Holder.Hostname)
	}
	return fmt.Sprintf("workspace %s is locked by %s (%s)", e.Dir, holder, e.Holder.Command)
}

// Options configures a lock acquisition.
type Options struct {
	// Command is a human-readable label for the operation holding the lock.
	Command string

	// Owner optionally identifies who acquired the lock.
	Owner string

	// Persistent creates a lock that survives process exit and must be
	// explicitly unlocked.
	Persistent bool
}

func markerPath(dir string) string {
	return filepath.Join(dir, FileName)
}

// Acquire creates the lock marker for the given workspace directory.
//
// If a marker already exists and is stale it is removed and acquisition is
// retried once. A live marker results in an AlreadyLockedError.
func Acquire(dir string, opts Options) (*Info, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("get hostname: %w", err)
	}

	info := Info{
		Type:      TypePID,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now().UTC(),
		Command:   opts.Command,
		Owner:     opts.Owner,
	}
	if opts.Persistent {
		info.Type = TypePersistent
		info.PID = 0
	}

	for attempt := 0; ; attempt++ {
		err := createMarker(dir, info)
		if err == nil {
			// Persistent locks outlive the process and are never
			// released by the exit handler.
			if info.Type == TypePID {
				registerAcquired(dir)
			}
			return &info, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}

		holder, readErr := Read(dir)
		if readErr != nil {
			return nil, readErr
		}
		if holder == nil {
			// Marker vanished between create and read; retry.
			if attempt > 2 {
				return nil, fmt.Errorf("lock %s: retries exhausted", dir)
			}
			continue
		}
		if attempt == 0 && IsStale(holder) {
			if err := os.Remove(markerPath(dir)); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("clear stale lock: %w", err)
			}
			continue
		}
		return nil, &AlreadyLockedError{Dir: dir, Holder: *holder}
	}
}

func createMarker(dir string, info Info) error {
	file, err := os.OpenFile(markerPath(dir), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return err
		}
		return fmt.Errorf("create lock marker: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		file.Close()
		os.Remove(markerPath(dir))
		return fmt.Errorf("marshal lock info: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(markerPath(dir))
		return fmt.Errorf("write lock marker: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(markerPath(dir))
		return fmt.Errorf("close lock marker: %w", err)
	}
	return nil
}

// Read returns the lock info for a workspace directory, or nil if the
// workspace is not locked.
func Read(dir string) (*Info, error) {
	data, err := os.ReadFile(markerPath(dir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lock marker: %w", err)
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("unmarshal lock marker: %w", err)
	}
	return &info, nil
}

// IsStale reports whether a lock can be reclaimed.
//
// Persistent locks are never stale. A pid lock is stale only when it was
// taken on this host and its process is no longer alive; locks from other
// hosts are never ours to reclaim.
func IsStale(info *Info) bool {
	if info == nil || info.Type == TypePersistent {
		return false
	}

	hostname, err := os.Hostname()
	if err != nil || info.Hostname != hostname {
		return false
	}

	return !processAlive(info.PID)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user.
	return errors.Is(err, syscall.EPERM)
}

// Release removes the lock marker for a workspace directory.
//
// Without force, callers are expected to have verified ownership; no
// ownership check happens here. Returns true when a marker was removed.
func Release(dir string, force bool) (bool, error) {
	_ = force // both paths remove unconditionally; force documents intent

	err := os.Remove(markerPath(dir))
	if os.IsNotExist(err) {
		unregisterAcquired(dir)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove lock marker: %w", err)
	}
	unregisterAcquired(dir)
	return true, nil
}

// ClearStale removes the lock marker only if it is stale. Returns true when
// a stale marker was removed.
func ClearStale(dir string) (bool, error) {
	info, err := Read(dir)
	if err != nil {
		return false, err
	}
	if info == nil || !IsStale(info) {
		return false, nil
	}

	err = os.Remove(markerPath(dir))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove stale lock marker: %w", err)
	}
	return true, nil
}
