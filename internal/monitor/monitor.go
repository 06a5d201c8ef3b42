// Package monitor persists the last authoritative lifecycle state of
// each instance.
//
// The LXD daemon is the source of truth for everything else about an
// instance, so local persistence is deliberately small: one YAML file
// per instance under the data directory, rewritten on every
// authoritative state change.
package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rokaw/multipass/internal/vm"
)

// record is the on-disk state file format.
type record struct {
	State     vm.State  `yaml:"state"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// FileMonitor is a file-backed vm.StatusMonitor.
type FileMonitor struct {
	dataDir string
	logger  *zap.Logger
	now     func() time.Time
}

// NewFileMonitor returns a monitor writing under dataDir, creating it
// if needed.
func NewFileMonitor(dataDir string, logger *zap.Logger) (*FileMonitor, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	return &FileMonitor{dataDir: dataDir, logger: logger, now: time.Now}, nil
}

// PersistStateFor writes the instance's state file. Persistence is
// best-effort: failures are logged, not surfaced, since the in-memory
// state remains authoritative for the running process.
func (m *FileMonitor) PersistStateFor(name string, state vm.State) {
	data, err := yaml.Marshal(record{State: state, UpdatedAt: m.now()})
	if err != nil {
		m.logger.Error("failed to marshal state record", zap.String("name", name), zap.Error(err))
		return
	}

	if err := os.WriteFile(m.statePath(name), data, 0o644); err != nil {
		m.logger.Error("failed to persist instance state", zap.String("name", name), zap.Error(err))
		return
	}

	m.logger.Debug("persisted instance state", zap.String("name", name), zap.Stringer("state", state))
}

// StateFor reads back the last persisted state for an instance,
// returning vm.StateUnknown when nothing was ever persisted.
func (m *FileMonitor) StateFor(name string) (vm.State, error) {
	data, err := os.ReadFile(m.statePath(name))
	if os.IsNotExist(err) {
		return vm.StateUnknown, nil
	}
	if err != nil {
		return vm.StateUnknown, fmt.Errorf("failed to read state for %s: %w", name, err)
	}

	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return vm.StateUnknown, fmt.Errorf("failed to parse state for %s: %w", name, err)
	}

	return rec.State, nil
}

// Remove deletes the instance's state file. Missing files are fine.
func (m *FileMonitor) Remove(name string) error {
	err := os.Remove(m.statePath(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state for %s: %w", name, err)
	}
	return nil
}

func (m *FileMonitor) statePath(name string) string {
	return filepath.Join(m.dataDir, name+".yaml")
}
