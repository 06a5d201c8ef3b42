package lxd

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/rokaw/multipass/internal/vm"
)

// InstanceNames lists the instances the daemon knows about. The
// listing endpoint returns resource URLs; only the trailing name
// segment is kept.
func InstanceNames(ctx context.Context, r requester, baseURL string) ([]string, error) {
	resp, err := r.request(ctx, "GET", instancesURL(baseURL), nil)
	if err != nil {
		return nil, err
	}

	var urls []string
	if err := resp.metadataInto(&urls); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(urls))
	for _, u := range urls {
		if i := strings.LastIndex(u, "/"); i >= 0 {
			u = u[i+1:]
		}
		if u != "" {
			names = append(names, u)
		}
	}
	return names, nil
}

// InstanceState reads and maps one instance's remote state without
// attaching a controller, for display purposes. A controller-owned
// instance should be read through its CurrentState instead.
func InstanceState(ctx context.Context, r requester, baseURL, name string, logger *zap.Logger) (vm.State, error) {
	resp, err := r.request(ctx, "GET", instanceStateURL(baseURL, name), nil)
	if err != nil {
		return vm.StateUnknown, err
	}

	var meta instanceStateMetadata
	if err := resp.metadataInto(&meta); err != nil {
		return vm.StateUnknown, err
	}

	return stateForStatusCode(logger, meta.StatusCode, meta.Status), nil
}

// InstanceIPv4 reads one instance's first IPv4 address for display,
// returning "" when none is reported.
func InstanceIPv4(ctx context.Context, r requester, baseURL, name string) (string, error) {
	resp, err := r.request(ctx, "GET", instanceStateURL(baseURL, name), nil)
	if err != nil {
		return "", err
	}

	var meta instanceStateMetadata
	if err := resp.metadataInto(&meta); err != nil {
		return "", err
	}

	return meta.firstIPv4(primaryInterface), nil
}
