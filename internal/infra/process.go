// Package infra implements infrastructure concerns (storage, processes, metrics).
package infra

import (
	"os"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// ProcessLister reports which app names currently have a live process.
type ProcessLister interface {
	Running(names []string) (map[string]bool, error)
}

// ProcessManagerImpl implements domain.ProcessManager and ProcessLister using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() *ProcessManagerImpl {
	return &ProcessManagerImpl{}
}

// FindByName returns PIDs of processes matching the pattern (case-insensitive).
func (pm *ProcessManagerImpl) FindByName(pattern string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var found []int
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if matchesName(name, pattern) {
			found = append(found, int(p.Pid))
		}
	}
	return found, nil
}

// Running scans the process table once and reports, per name, whether any
// process matches it. Names without a match are present and false.
func (pm *ProcessManagerImpl) Running(names []string) (map[string]bool, error) {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = false
	}
	if len(names) == 0 {
		return out, nil
	}

	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	self := int32(os.Getpid())
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		procName, err := p.Name()
		if err != nil {
			continue
		}
		for _, n := range names {
			if !out[n] && matchesName(procName, n) {
				out[n] = true
			}
		}
	}
	return out, nil
}

// Kill terminates a process by PID using SIGKILL.
func (pm *ProcessManagerImpl) Kill(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return p.Kill()
}

// IsRunning checks if a PID exists and is running.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	// On Unix, FindProcess always succeeds
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// matchesName compares a process name to an app name, case-insensitively.
// The app name may be a fragment of the process name.
func matchesName(procName, appName string) bool {
	if appName == "" {
		return false
	}
	return strings.EqualFold(procName, appName) ||
		strings.Contains(strings.ToLower(procName), strings.ToLower(appName))
}

// Ensure ProcessManagerImpl implements domain.ProcessManager and ProcessLister.
var (
	_ domain.ProcessManager = (*ProcessManagerImpl)(nil)
	_ ProcessLister         = (*ProcessManagerImpl)(nil)
)
