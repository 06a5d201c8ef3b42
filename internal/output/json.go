package output

import (
	"encoding/json"
	"fmt"
)

// JSONFormatter formats instance records as JSON.
type JSONFormatter struct{}

// FormatInstance formats a single instance as JSON.
func (f *JSONFormatter) FormatInstance(rec InstanceRecord) (string, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal instance to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

// FormatInstanceList formats a list of instances as a JSON array.
func (f *JSONFormatter) FormatInstanceList(recs []InstanceRecord) (string, error) {
	if len(recs) == 0 {
		return "[]\n", nil
	}

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal instances to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
