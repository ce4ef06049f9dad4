// Package locking provides named, inter-process mutual exclusion backed by
// lock files on the local filesystem. Locks are holder-aware: the lock file
// records the holder's pid, so a lock left behind by a crashed process is
// detected and reclaimed instead of blocking forever.
package locking

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// pollInterval is how long an acquirer backs off before re-checking a lock
// held by a live process.
const pollInterval = 100 * time.Millisecond

// record is the JSON content of a lock file.
type record struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
	Resource   string    `json:"resource"`
}

// Lock represents a held file lock. Release must be called on every exit
// path; callers typically defer it immediately after Acquire.
type Lock struct {
	path     string
	pid      int
	released bool
}

// AcquisitionTimeoutError is returned when the lock is still held by a live
// process after the acquisition timeout elapses.
type AcquisitionTimeoutError struct {
	Path      string
	HolderPID int
	Timeout   time.Duration
}

func (e *AcquisitionTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for lock %s held by pid %d",
		e.Timeout, e.Path, e.HolderPID)
}

// Troubleshoot returns expanded guidance for the error.
func (e *AcquisitionTimeoutError) Troubleshoot() string {
	return fmt.Sprintf("another deployer process (pid %d) is operating on the same environment; wait for it to finish or, if it is wedged, stop it and re-run the command", e.HolderPID)
}

// CreateFailedError is returned when the lock file cannot be created or read
// for reasons other than contention.
type CreateFailedError struct {
	Path string
	Err  error
}

func (e *CreateFailedError) Error() string {
	return fmt.Sprintf("cannot create lock %s: %v", e.Path, e.Err)
}

func (e *CreateFailedError) Unwrap() error { return e.Err }

// Acquire obtains the lock at path, waiting up to timeout for a live holder
// to release it. A lock file whose recorded holder is no longer running is
// deleted and re-acquired immediately.
//
// The lock file is created with O_CREATE|O_EXCL so creation is atomic on the
// filesystem: there is no check-then-create window for two processes to slip
// through.
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)

	for {
		held, err := tryAcquire(path)
		if err != nil {
			return nil, err
		}
		if held != nil {
			return held, nil
		}

		holder, stale, err := inspect(path)
		if err != nil {
			return nil, err
		}
		if stale {
			log.Debug().Str("lock", path).Int("holder_pid", holder).
				Msg("reclaiming stale lock from dead process")
			// Remove and retry immediately. A concurrent reclaimer may have
			// removed it first; that is fine, the next tryAcquire decides.
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, &CreateFailedError{Path: path, Err: err}
			}
			continue
		}

		if time.Now().After(deadline) {
			return nil, &AcquisitionTimeoutError{Path: path, HolderPID: holder, Timeout: timeout}
		}
		time.Sleep(pollInterval)
	}
}

// tryAcquire attempts the atomic create-exclusive. It returns (nil, nil) when
// the file already exists.
func tryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, nil
		}
		return nil, &CreateFailedError{Path: path, Err: err}
	}

	rec := record{
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UTC(),
		Resource:   path,
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(rec); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, &CreateFailedError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, &CreateFailedError{Path: path, Err: err}
	}

	return &Lock{path: path, pid: rec.PID}, nil
}

// inspect reads the existing lock file and reports its holder pid and whether
// the holder is dead (the lock is stale). A lock file that vanished or is
// unparsable is treated as stale: either the holder released it between our
// create attempt and now, or it crashed mid-write.
func inspect(path string) (holderPID int, stale bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, true, nil
		}
		return 0, false, &CreateFailedError{Path: path, Err: err}
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, true, nil
	}
	if !processAlive(rec.PID) {
		return rec.PID, true, nil
	}
	return rec.PID, false, nil
}

// processAlive reports whether a process with the given pid exists. Signal 0
// performs the existence check without delivering anything.
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

// Release deletes the lock file, but only while it still records this lock's
// pid. The guard prevents a recovered-from-crash race: if our lock was
// reclaimed as stale and re-acquired by another process, releasing must not
// delete the new holder's file.
func (l *Lock) Release() error {
	if l.released {
		return nil
	}
	l.released = true

	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil || rec.PID != l.pid {
		log.Warn().Str("lock", l.path).Int("recorded_pid", rec.PID).
			Msg("lock no longer ours, leaving it in place")
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}

// HolderPID returns the pid recorded in the lock.
func (l *Lock) HolderPID() int { return l.pid }
