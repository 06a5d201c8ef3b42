package image

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeHost is a configurable Host for resolver tests.
type fakeHost struct {
	remotes         []string
	infoForFunc     func(query Query) (*Info, error)
	infoForHashFunc func(hash string) (*Info, error)

	infoForCalls int
}

func (f *fakeHost) SupportedRemotes() []string {
	return f.remotes
}

func (f *fakeHost) InfoFor(query Query) (*Info, error) {
	f.infoForCalls++
	if f.infoForFunc == nil {
		return nil, nil
	}
	return f.infoForFunc(query)
}

func (f *fakeHost) InfoForFullHash(hash string) (*Info, error) {
	if f.infoForHashFunc == nil {
		return nil, fmt.Errorf("unknown fingerprint %q", hash)
	}
	return f.infoForHashFunc(hash)
}

func allRemotes(string) bool { return true }

func TestResolverRemoteQuery(t *testing.T) {
	want := &Info{ID: "abc123", StreamLocation: "https://cloud-images.example.com"}
	release := &fakeHost{
		remotes: []string{"release"},
		infoForFunc: func(query Query) (*Info, error) {
			return want, nil
		},
	}
	daily := &fakeHost{remotes: []string{"daily"}}

	r := NewResolver([]Host{release, daily}, allRemotes)

	got, err := r.InfoFor(Query{Release: "22.04", RemoteName: "release", Type: QueryTypeAlias})
	if err != nil {
		t.Fatalf("InfoFor returned error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("InfoFor mismatch (-want +got):\n%s", diff)
	}
	if daily.infoForCalls != 0 {
		t.Errorf("daily host consulted %d times for a pinned query, want 0", daily.infoForCalls)
	}
}

func TestResolverUnknownRemote(t *testing.T) {
	r := NewResolver([]Host{&fakeHost{remotes: []string{"release"}}}, allRemotes)

	_, err := r.InfoFor(Query{Release: "22.04", RemoteName: "nightly", Type: QueryTypeAlias})
	if !errors.Is(err, ErrUnknownRemote) {
		t.Errorf("InfoFor error = %v, want ErrUnknownRemote", err)
	}
}

func TestResolverPlatformFiltersRegistry(t *testing.T) {
	host := &fakeHost{
		remotes: []string{"release"},
		infoForFunc: func(Query) (*Info, error) {
			return &Info{ID: "abc"}, nil
		},
	}
	r := NewResolver([]Host{host}, func(string) bool { return false })

	_, err := r.InfoFor(Query{Release: "22.04", RemoteName: "release", Type: QueryTypeAlias})
	if !errors.Is(err, ErrUnknownRemote) {
		t.Errorf("InfoFor error = %v, want ErrUnknownRemote for platform-filtered remote", err)
	}
}

func TestResolverOrderedFallback(t *testing.T) {
	first := &fakeHost{remotes: []string{"release"}}
	second := &fakeHost{
		remotes: []string{"daily"},
		infoForFunc: func(Query) (*Info, error) {
			return &Info{ID: "def456"}, nil
		},
	}
	third := &fakeHost{
		remotes: []string{"custom"},
		infoForFunc: func(Query) (*Info, error) {
			return &Info{ID: "should-not-win"}, nil
		},
	}

	r := NewResolver([]Host{first, second, third}, allRemotes)

	got, err := r.InfoFor(Query{Release: "edge", Type: QueryTypeAlias})
	if err != nil {
		t.Fatalf("InfoFor returned error: %v", err)
	}
	if got.ID != "def456" {
		t.Errorf("InfoFor picked %q, want first non-empty match def456", got.ID)
	}
	if third.infoForCalls != 0 {
		t.Errorf("third host consulted after a match, calls = %d", third.infoForCalls)
	}
}

func TestResolverNoMatch(t *testing.T) {
	r := NewResolver([]Host{&fakeHost{remotes: []string{"release"}}}, allRemotes)

	_, err := r.InfoFor(Query{Release: "nonesuch", Type: QueryTypeAlias})
	if !errors.Is(err, ErrNoMatchingImage) {
		t.Errorf("InfoFor error = %v, want ErrNoMatchingImage", err)
	}
}

func TestResolverInfoForFullHash(t *testing.T) {
	miss := &fakeHost{remotes: []string{"release"}}
	hit := &fakeHost{
		remotes: []string{"daily"},
		infoForHashFunc: func(hash string) (*Info, error) {
			return &Info{ID: hash}, nil
		},
	}

	r := NewResolver([]Host{miss, hit}, allRemotes)

	got, err := r.InfoForFullHash("fee1dead")
	if err != nil {
		t.Fatalf("InfoForFullHash returned error: %v", err)
	}
	if got.ID != "fee1dead" {
		t.Errorf("InfoForFullHash ID = %q, want fee1dead", got.ID)
	}

	if _, err := NewResolver([]Host{miss}, allRemotes).InfoForFullHash("cafef00d"); !errors.Is(err, ErrNoMatchingImage) {
		t.Errorf("InfoForFullHash error = %v, want ErrNoMatchingImage", err)
	}
}
