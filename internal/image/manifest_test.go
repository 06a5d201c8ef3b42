package image

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testEntries() []ManifestEntry {
	return []ManifestEntry{
		{
			Release:     "20.04",
			Title:       "Ubuntu 20.04 LTS",
			Version:     "20250110",
			Fingerprint: "aaa111",
			Aliases:     []string{"focal", "lts"},
		},
		{
			Release:     "22.04",
			Title:       "Ubuntu 22.04 LTS",
			Version:     "20250215",
			Fingerprint: "bbb222",
			Aliases:     []string{"jammy", "lts", "default"},
		},
	}
}

func TestManifestHostInfoFor(t *testing.T) {
	h := NewManifestHost("release", "https://cloud-images.example.com/releases", testEntries())

	tests := []struct {
		name    string
		release string
		wantID  string
	}{
		{"by release string", "20.04", "aaa111"},
		{"by alias", "focal", "aaa111"},
		{"by default alias", "default", "bbb222"},
		{"ambiguous alias picks newest version", "lts", "bbb222"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := h.InfoFor(Query{Release: tt.release, Type: QueryTypeAlias})
			if err != nil {
				t.Fatalf("InfoFor returned error: %v", err)
			}
			if info == nil {
				t.Fatalf("InfoFor(%q) = nil, want match", tt.release)
			}
			if info.ID != tt.wantID {
				t.Errorf("InfoFor(%q).ID = %q, want %q", tt.release, info.ID, tt.wantID)
			}
			if info.StreamLocation != "https://cloud-images.example.com/releases" {
				t.Errorf("StreamLocation = %q", info.StreamLocation)
			}
		})
	}
}

func TestManifestHostNoMatch(t *testing.T) {
	h := NewManifestHost("release", "https://example.com", testEntries())

	info, err := h.InfoFor(Query{Release: "nonesuch", Type: QueryTypeAlias})
	if err != nil {
		t.Fatalf("InfoFor returned error: %v", err)
	}
	if info != nil {
		t.Errorf("InfoFor = %+v, want nil for no match", info)
	}
}

func TestManifestHostInfoForFullHash(t *testing.T) {
	h := NewManifestHost("release", "https://example.com", testEntries())

	info, err := h.InfoForFullHash("aaa111")
	if err != nil {
		t.Fatalf("InfoForFullHash returned error: %v", err)
	}
	if info.ReleaseTitle != "Ubuntu 20.04 LTS" {
		t.Errorf("ReleaseTitle = %q", info.ReleaseTitle)
	}

	if _, err := h.InfoForFullHash("nope"); err == nil {
		t.Error("InfoForFullHash succeeded for unknown fingerprint")
	}
}

func TestLoadManifestHost(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "images.yaml")
	content := `remote: release
stream_location: https://cloud-images.example.com/releases
images:
  - release: "22.04"
    title: Ubuntu 22.04 LTS
    version: "20250215"
    fingerprint: bbb222
    aliases: [jammy, default]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	h, err := LoadManifestHost(path)
	if err != nil {
		t.Fatalf("LoadManifestHost returned error: %v", err)
	}

	if diff := cmp.Diff([]string{"release"}, h.SupportedRemotes()); diff != "" {
		t.Errorf("SupportedRemotes mismatch (-want +got):\n%s", diff)
	}

	info, err := h.InfoFor(Query{Release: "jammy", Type: QueryTypeAlias})
	if err != nil || info == nil {
		t.Fatalf("InfoFor(jammy) = %v, %v", info, err)
	}
	if info.ID != "bbb222" {
		t.Errorf("ID = %q, want bbb222", info.ID)
	}
}

func TestLoadManifestHostRejectsIncomplete(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing remote", "stream_location: https://example.com\n"},
		{"missing stream", "remote: release\n"},
		{"missing fingerprint", "remote: release\nstream_location: https://example.com\nimages:\n  - release: \"22.04\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "images.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadManifestHost(path); err == nil {
				t.Error("LoadManifestHost succeeded, want error")
			}
		})
	}
}
