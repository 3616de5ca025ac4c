// Package pidfile enforces single-instance mutual exclusion via an
// exclusively-locked PID file, the persisted state named in the external
// interfaces contract. No library in the retrieved examples wraps
// flock-based PID locking, so this stays on the standard library plus
// syscall.Flock — see DESIGN.md.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
)

// PIDFile holds an exclusive advisory lock on a file containing this
// process's PID in decimal, released by Release.
type PIDFile struct {
	path string
	file *os.File
}

// Acquire creates (or opens) path and takes an exclusive, non-blocking
// lock. A second instance pointed at the same path fails fast with a
// wrapped syscall.EWOULDBLOCK.
func Acquire(path string) (*PIDFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("pidfile: open %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("pidfile: lock %s held by another instance: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("pidfile: truncate %s: %w", path, err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("pidfile: write %s: %w", path, err)
	}

	return &PIDFile{path: path, file: f}, nil
}

// Release unlocks and removes the PID file.
func (p *PIDFile) Release() error {
	if p.file == nil {
		return nil
	}
	_ = syscall.Flock(int(p.file.Fd()), syscall.LOCK_UN)
	_ = p.file.Close()
	return os.Remove(p.path)
}
