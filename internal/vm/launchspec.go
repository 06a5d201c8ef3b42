package vm

import (
	"fmt"
	"os"
	"regexp"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"github.com/rokaw/multipass/internal/units"
)

// instance names must be DNS-friendly: LXD rejects anything else.
var nameRE = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// LaunchSpec is the user-facing YAML description of an instance to
// launch. It is normalized and validated before being turned into a
// Description.
type LaunchSpec struct {
	Name              string   `yaml:"name"`
	SSHUsername       string   `yaml:"ssh_username,omitempty"`
	CPUs              int      `yaml:"cpus,omitempty"`
	Memory            string   `yaml:"memory,omitempty"`
	Disk              string   `yaml:"disk,omitempty"`
	Image             string   `yaml:"image,omitempty"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"`
	Timezone          string   `yaml:"timezone,omitempty"`
}

// LoadLaunchSpec loads a launch spec from a YAML file, applies
// defaults and validates it.
func LoadLaunchSpec(path string) (*LaunchSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read launch spec %s: %w", path, err)
	}

	var spec LaunchSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse launch spec %s: %w", path, err)
	}

	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid launch spec %s: %w", path, err)
	}

	return &spec, nil
}

// Normalize fills in defaults for optional fields.
func (s *LaunchSpec) Normalize() {
	if s.SSHUsername == "" {
		s.SSHUsername = "ubuntu"
	}
	if s.CPUs == 0 {
		s.CPUs = 1
	}
	if s.Memory == "" {
		s.Memory = "1G"
	}
	if s.Disk == "" {
		s.Disk = "5G"
	}
	if s.Image == "" {
		s.Image = "default"
	}
}

// Validate checks the spec for errors a user can fix.
func (s *LaunchSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !nameRE.MatchString(s.Name) {
		return fmt.Errorf("invalid instance name %q: must start with a letter and contain only lowercase letters, digits and hyphens", s.Name)
	}
	if s.CPUs < 1 {
		return fmt.Errorf("cpus must be at least 1, got %d", s.CPUs)
	}
	if _, err := units.Parse(s.Memory); err != nil {
		return fmt.Errorf("invalid memory size: %w", err)
	}
	if _, err := units.Parse(s.Disk); err != nil {
		return fmt.Errorf("invalid disk size: %w", err)
	}
	for i, key := range s.SSHAuthorizedKeys {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
			return fmt.Errorf("invalid SSH key at index %d: %w", i, err)
		}
	}
	return nil
}

// MemorySize returns the parsed memory size. Validate must have
// succeeded first.
func (s *LaunchSpec) MemorySize() units.MemorySize {
	return units.MustParse(s.Memory)
}

// DiskSize returns the parsed disk size. Validate must have succeeded
// first.
func (s *LaunchSpec) DiskSize() units.MemorySize {
	return units.MustParse(s.Disk)
}
