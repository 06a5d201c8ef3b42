package image

import (
	"fmt"
	"os"

	goversion "github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"
)

// manifestFile is the on-disk catalog format: one remote, one
// simplestreams server, and the images it publishes.
type manifestFile struct {
	Remote         string          `yaml:"remote"`
	StreamLocation string          `yaml:"stream_location"`
	Images         []ManifestEntry `yaml:"images"`
}

// ManifestEntry describes one published image in a manifest catalog.
type ManifestEntry struct {
	Release     string   `yaml:"release"`
	Title       string   `yaml:"title,omitempty"`
	Version     string   `yaml:"version"`
	Fingerprint string   `yaml:"fingerprint"`
	Aliases     []string `yaml:"aliases,omitempty"`
}

// ManifestHost is a catalog backed by a static YAML manifest. When
// several entries match an alias, the newest version wins.
type ManifestHost struct {
	remote         string
	streamLocation string
	entries        []ManifestEntry
}

// NewManifestHost builds a manifest catalog from already-parsed
// entries.
func NewManifestHost(remote, streamLocation string, entries []ManifestEntry) *ManifestHost {
	return &ManifestHost{remote: remote, streamLocation: streamLocation, entries: entries}
}

// LoadManifestHost loads a manifest catalog from a YAML file.
func LoadManifestHost(path string) (*ManifestHost, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image manifest %s: %w", path, err)
	}

	var manifest manifestFile
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse image manifest %s: %w", path, err)
	}

	if manifest.Remote == "" {
		return nil, fmt.Errorf("image manifest %s: remote is required", path)
	}
	if manifest.StreamLocation == "" {
		return nil, fmt.Errorf("image manifest %s: stream_location is required", path)
	}
	for i, entry := range manifest.Images {
		if entry.Fingerprint == "" {
			return nil, fmt.Errorf("image manifest %s: images[%d]: fingerprint is required", path, i)
		}
	}

	return NewManifestHost(manifest.Remote, manifest.StreamLocation, manifest.Images), nil
}

// SupportedRemotes returns the single remote this manifest serves.
func (h *ManifestHost) SupportedRemotes() []string {
	return []string{h.remote}
}

// InfoFor resolves an alias query against the manifest. Returns
// (nil, nil) when nothing matches.
func (h *ManifestHost) InfoFor(query Query) (*Info, error) {
	var best *ManifestEntry
	for i := range h.entries {
		entry := &h.entries[i]
		if !entry.matches(query.Release) {
			continue
		}
		if best == nil || newerVersion(entry.Version, best.Version) {
			best = entry
		}
	}

	if best == nil {
		return nil, nil
	}

	return h.infoFor(best), nil
}

// InfoForFullHash resolves an exact fingerprint against the manifest.
func (h *ManifestHost) InfoForFullHash(hash string) (*Info, error) {
	for i := range h.entries {
		if h.entries[i].Fingerprint == hash {
			return h.infoFor(&h.entries[i]), nil
		}
	}

	return nil, fmt.Errorf("remote %q has no image with fingerprint %q", h.remote, hash)
}

func (h *ManifestHost) infoFor(entry *ManifestEntry) *Info {
	return &Info{
		ID:             entry.Fingerprint,
		StreamLocation: h.streamLocation,
		ReleaseTitle:   entry.Title,
		Version:        entry.Version,
		Aliases:        append([]string(nil), entry.Aliases...),
	}
}

func (e *ManifestEntry) matches(release string) bool {
	if release == e.Release {
		return true
	}
	for _, alias := range e.Aliases {
		if release == alias {
			return true
		}
	}
	return false
}

// newerVersion reports whether version a is newer than b. Versions the
// catalogs publish are dates ("20200519") or dotted versions; anything
// unparseable loses.
func newerVersion(a, b string) bool {
	va, err := goversion.NewVersion(a)
	if err != nil {
		return false
	}
	vb, err := goversion.NewVersion(b)
	if err != nil {
		return true
	}
	return va.GreaterThan(vb)
}
