package image

import (
	"errors"
	"fmt"
)

// ErrUnknownRemote indicates a query named a remote no registered
// catalog serves.
var ErrUnknownRemote = errors.New("unknown remote")

// ErrNoMatchingImage indicates no registered catalog could resolve the
// query.
var ErrNoMatchingImage = errors.New("no matching image")

// Resolver fans an image query out to the registered catalog hosts.
//
// The registry maps each remote name to the host serving it, built
// once at construction from the hosts that report support for a remote
// accepted by the platform predicate. Fallback lookups without a
// remote name consult hosts in registration order.
type Resolver struct {
	hosts    []Host
	registry map[string]Host
}

// NewResolver builds a resolver over the given hosts. remoteSupported
// filters which advertised remotes are admitted into the registry on
// this platform.
func NewResolver(hosts []Host, remoteSupported func(remote string) bool) *Resolver {
	registry := make(map[string]Host)
	for _, host := range hosts {
		for _, remote := range host.SupportedRemotes() {
			if remoteSupported(remote) {
				registry[remote] = host
			}
		}
	}

	return &Resolver{hosts: hosts, registry: registry}
}

// InfoFor resolves a query to concrete image metadata.
//
// A query with a remote name consults exactly that catalog and fails
// with ErrUnknownRemote if none serves it. Otherwise each host is
// consulted in registration order and the first match wins.
func (r *Resolver) InfoFor(query Query) (*Info, error) {
	if query.RemoteName != "" {
		host, ok := r.registry[query.RemoteName]
		if !ok {
			return nil, fmt.Errorf("remote %q: %w", query.RemoteName, ErrUnknownRemote)
		}

		info, err := host.InfoFor(query)
		if err != nil {
			return nil, err
		}
		if info != nil {
			return info, nil
		}
	} else {
		for _, host := range r.hosts {
			info, err := host.InfoFor(query)
			if err != nil {
				return nil, err
			}
			if info != nil {
				return info, nil
			}
		}
	}

	return nil, fmt.Errorf("unable to find an image matching %q: %w", query.Release, ErrNoMatchingImage)
}

// InfoForFullHash resolves an exact fingerprint against all hosts,
// used to recover an existing instance's image metadata.
func (r *Resolver) InfoForFullHash(hash string) (*Info, error) {
	for _, host := range r.hosts {
		info, err := host.InfoForFullHash(hash)
		if err == nil {
			return info, nil
		}
	}

	return nil, fmt.Errorf("no image with fingerprint %q: %w", hash, ErrNoMatchingImage)
}
