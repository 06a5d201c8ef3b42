package lxd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rokaw/multipass/internal/image"
	"github.com/rokaw/multipass/internal/platform"
)

// ErrUnsupportedSource indicates an image query type this backend
// cannot serve. Raised before any network call is made.
var ErrUnsupportedSource = errors.New("unsupported image source")

// instanceMetadata is the metadata shape of an instance resource, in
// the parts the vault consumes.
type instanceMetadata struct {
	Config map[string]string `json:"config"`
}

// ImageVault resolves image queries against the registered catalogs
// and makes sure the daemon holds the image before an instance is
// created from it. Image lifetime is owned by the daemon: expiry
// pruning and catalog refresh are deliberate no-ops here.
type ImageVault struct {
	resolver *image.Resolver
	r        requester
	poller   *taskPoller
	baseURL  string
	logger   *zap.Logger

	urlSupported func() bool
}

var _ image.Vault = (*ImageVault)(nil)

// NewImageVault builds a vault over the given catalog hosts. Remotes
// unsupported on this platform are filtered out of the registry.
func NewImageVault(hosts []image.Host, r requester, baseURL string, logger *zap.Logger) *ImageVault {
	return &ImageVault{
		resolver:     image.NewResolver(hosts, platform.RemoteSupported),
		r:            r,
		poller:       newTaskPoller(r, logger),
		baseURL:      baseURL,
		logger:       logger.With(zap.String("category", "lxd image vault")),
		urlSupported: platform.ImageURLSupported,
	}
}

// FetchImage resolves the query to concrete image metadata and makes
// the daemon pull the image when it does not already hold a record for
// the fingerprint. The pull is driven through the progress/cancel
// poller; the monitor's refusal cancels the remote operation and
// surfaces an AbortedError.
//
// The prepare hook is accepted for interface compatibility; this
// backend delegates all image preparation to the daemon.
func (v *ImageVault) FetchImage(ctx context.Context, fetchType image.FetchType, query image.Query, prepare image.PrepareAction, monitor image.ProgressMonitor) (image.Image, error) {
	if query.Type != image.QueryTypeAlias && !v.urlSupported() {
		return image.Image{}, fmt.Errorf("http and file based images are not supported: %w", ErrUnsupportedSource)
	}

	v.lookupExistingImage(ctx, query.Name)

	info, err := v.resolver.InfoFor(query)
	if err != nil {
		return image.Image{}, err
	}
	img := imageFromInfo(info)

	_, err = v.r.request(ctx, "GET", imageURL(v.baseURL, info.ID), nil)
	if err == nil {
		// Already present remotely, nothing to pull.
		return img, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return image.Image{}, err
	}

	body := map[string]any{
		"source": map[string]string{
			"type":        "image",
			"mode":        "pull",
			"server":      info.StreamLocation,
			"protocol":    "simplestreams",
			"fingerprint": info.ID,
		},
	}

	resp, err := v.r.request(ctx, "POST", imagesURL(v.baseURL), body)
	if err != nil {
		return image.Image{}, fmt.Errorf("failed to request image pull: %w", err)
	}

	if op, ok := operationFromResponse(resp); ok {
		if err := v.poller.pollWithProgress(ctx, operationURL(v.baseURL, op.ID), monitor); err != nil {
			return image.Image{}, err
		}
	}

	return img, nil
}

// lookupExistingImage recovers the image metadata an existing instance
// was created from, via its volatile.base_image fingerprint. The
// result is only logged: nothing downstream consumes it yet.
func (v *ImageVault) lookupExistingImage(ctx context.Context, name string) {
	if name == "" {
		return
	}

	resp, err := v.r.request(ctx, "GET", instanceURL(v.baseURL, name), nil)
	if err != nil {
		// No instance record, nothing to recover.
		return
	}

	var meta instanceMetadata
	if err := resp.metadataInto(&meta); err != nil {
		return
	}

	id := meta.Config["volatile.base_image"]
	if id == "" {
		return
	}

	info, err := v.resolver.InfoForFullHash(id)
	if err != nil {
		return
	}
	v.logger.Debug("instance image recovered from existing record",
		zap.String("instance", name),
		zap.String("fingerprint", info.ID),
		zap.String("release", info.ReleaseTitle))
}

// Remove deletes the named instance's record. A missing record is
// benign and only logged.
func (v *ImageVault) Remove(ctx context.Context, name string) error {
	_, err := v.r.request(ctx, "DELETE", instanceURL(v.baseURL, name), nil)
	if errors.Is(err, ErrNotFound) {
		v.logger.Warn("instance does not exist: not removing", zap.String("instance", name))
		return nil
	}
	return err
}

// HasRecordFor reports whether the daemon holds a record for the named
// instance.
func (v *ImageVault) HasRecordFor(ctx context.Context, name string) (bool, error) {
	_, err := v.r.request(ctx, "GET", instanceURL(v.baseURL, name), nil)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PruneExpiredImages is a no-op: the daemon owns image expiry.
func (v *ImageVault) PruneExpiredImages(_ context.Context) error {
	return nil
}

// UpdateImages is a no-op: the daemon refreshes its own image cache.
func (v *ImageVault) UpdateImages(_ context.Context, _ image.FetchType, _ image.PrepareAction, _ image.ProgressMonitor) error {
	return nil
}

func imageFromInfo(info *image.Info) image.Image {
	return image.Image{
		ID:              info.ID,
		StreamLocation:  info.StreamLocation,
		OriginalRelease: info.ReleaseTitle,
		ReleaseDate:     info.Version,
		Aliases:         append([]string(nil), info.Aliases...),
	}
}
