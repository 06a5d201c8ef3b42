// Package output provides formatters for displaying instances in
// various formats (table, YAML, JSON).
package output

import (
	"fmt"

	"github.com/rokaw/multipass/internal/vm"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format for declarative consumption.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

// InstanceRecord is one instance as presented to the user.
type InstanceRecord struct {
	Name    string   `json:"name" yaml:"name"`
	State   vm.State `json:"state" yaml:"state"`
	IPv4    string   `json:"ipv4,omitempty" yaml:"ipv4,omitempty"`
	Release string   `json:"release,omitempty" yaml:"release,omitempty"`
}

// Formatter formats instance records for output.
type Formatter interface {
	// FormatInstance formats a single instance record.
	FormatInstance(rec InstanceRecord) (string, error)

	// FormatInstanceList formats a list of instance records.
	FormatInstanceList(recs []InstanceRecord) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}
