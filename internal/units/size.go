// Package units provides memory/disk size parsing and formatting.
//
// Sizes are expressed as a positive integer with an optional binary
// unit suffix: "512M", "10G", "3K", or a plain byte count. Suffixes
// use binary multipliers (K = 1024, M = 1024^2, G = 1024^3).
package units

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	kib = int64(1024)
	mib = kib * 1024
	gib = mib * 1024
)

var sizeRE = regexp.MustCompile(`^([0-9]+)([KMGkmg])?(i?[Bb])?$`)

// MemorySize is an amount of memory or disk space in bytes.
//
// The zero value is zero bytes.
type MemorySize struct {
	bytes int64
}

// Parse parses a size string like "512M", "10G" or "1073741824".
func Parse(s string) (MemorySize, error) {
	match := sizeRE.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil {
		return MemorySize{}, fmt.Errorf("invalid memory size %q", s)
	}

	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return MemorySize{}, fmt.Errorf("invalid memory size %q: %w", s, err)
	}

	switch strings.ToUpper(match[2]) {
	case "K":
		n *= kib
	case "M":
		n *= mib
	case "G":
		n *= gib
	}

	return MemorySize{bytes: n}, nil
}

// MustParse parses a size string and panics on error. Intended for
// constants and tests.
func MustParse(s string) MemorySize {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromBytes returns a MemorySize of n bytes.
func FromBytes(n int64) MemorySize {
	return MemorySize{bytes: n}
}

// InBytes returns the size in bytes.
func (m MemorySize) InBytes() int64 {
	return m.bytes
}

// IsZero reports whether the size is zero.
func (m MemorySize) IsZero() bool {
	return m.bytes == 0
}

// LessThan reports whether m is strictly smaller than other.
func (m MemorySize) LessThan(other MemorySize) bool {
	return m.bytes < other.bytes
}

// String formats the size using the largest suffix that divides it
// evenly, falling back to a plain byte count.
func (m MemorySize) String() string {
	switch {
	case m.bytes >= gib && m.bytes%gib == 0:
		return fmt.Sprintf("%dG", m.bytes/gib)
	case m.bytes >= mib && m.bytes%mib == 0:
		return fmt.Sprintf("%dM", m.bytes/mib)
	case m.bytes >= kib && m.bytes%kib == 0:
		return fmt.Sprintf("%dK", m.bytes/kib)
	default:
		return strconv.FormatInt(m.bytes, 10)
	}
}
