package image

import "context"

// QueryType says how the user identified the image they want.
type QueryType string

const (
	// QueryTypeAlias looks the release string up in the catalogs.
	QueryTypeAlias QueryType = "alias"
	// QueryTypeHTTP names an image by URL. Not supported by this
	// backend.
	QueryTypeHTTP QueryType = "http"
	// QueryTypeFile names a local image file. Not supported by this
	// backend.
	QueryTypeFile QueryType = "file"
)

// Query is a user's image request.
type Query struct {
	// Name is the instance name the image is being fetched for.
	Name string
	// Release is the alias or release string, e.g. "22.04" or "jammy".
	Release string
	// RemoteName optionally pins the lookup to one catalog.
	RemoteName string
	// Type is how Release should be interpreted.
	Type QueryType
}

// Info is concrete image metadata produced by a catalog lookup.
// Immutable once returned.
type Info struct {
	// ID is the image fingerprint.
	ID string
	// StreamLocation is the simplestreams server the image can be
	// pulled from.
	StreamLocation string
	// ReleaseTitle is the human-readable release name.
	ReleaseTitle string
	// Version is the build version or date string.
	Version string
	// Aliases are the strings the image can be looked up by, in
	// catalog order.
	Aliases []string
}

// Image is the result of a fetch: the image an instance will boot
// from.
type Image struct {
	ID              string
	StreamLocation  string
	OriginalRelease string
	ReleaseDate     string
	Aliases         []string
}

// Host is a pluggable source of image metadata for one or more named
// remotes.
type Host interface {
	// SupportedRemotes returns the remote names this host serves.
	SupportedRemotes() []string
	// InfoFor resolves a query. It returns (nil, nil) when the host
	// has no matching image; an error only for host-level failures.
	InfoFor(query Query) (*Info, error)
	// InfoForFullHash resolves an exact fingerprint, failing when the
	// host does not know it.
	InfoForFullHash(hash string) (*Info, error)
}

// FetchType is a hint describing which artifacts a fetch should
// produce.
type FetchType string

const (
	// FetchTypeImageOnly fetches just the image.
	FetchTypeImageOnly FetchType = "image"
	// FetchTypeImageKernelAndInitrd additionally fetches boot
	// artifacts. The LXD backend never needs them but accepts the
	// hint for interface compatibility.
	FetchTypeImageKernelAndInitrd FetchType = "image-kernel-and-initrd"
)

// ProgressPhaseImage is the phase tag reported while an image
// download is in flight.
const ProgressPhaseImage = "image"

// UnknownProgress is reported when the remote's status text carries no
// recognizable percentage.
const UnknownProgress = -1

// ProgressMonitor receives download progress for a fetch. Returning
// false requests cancellation; the fetch then issues a best-effort
// remote cancel and returns an AbortedError.
type ProgressMonitor func(phase string, percent int) bool

// PrepareAction is a pre-download hook applied to the resolved image.
type PrepareAction func(img Image) Image

// Vault fetches, probes and removes instance image records. The LXD
// backend delegates image lifetime to the remote daemon, so some
// operations are deliberate no-ops; implementations still expose them
// for polymorphism.
type Vault interface {
	FetchImage(ctx context.Context, fetchType FetchType, query Query, prepare PrepareAction, monitor ProgressMonitor) (Image, error)
	Remove(ctx context.Context, name string) error
	HasRecordFor(ctx context.Context, name string) (bool, error)
	PruneExpiredImages(ctx context.Context) error
	UpdateImages(ctx context.Context, fetchType FetchType, prepare PrepareAction, monitor ProgressMonitor) error
}
