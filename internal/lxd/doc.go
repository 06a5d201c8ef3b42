// Package lxd drives virtual machines and their images through the
// LXD REST API on a local unix socket.
//
// The daemon's API is asynchronous: mutating calls frequently return a
// background operation that must be polled to completion. The package
// is built around that shape: a thin request client with an explicit
// not-found result, one task poller shared by every asynchronous call
// site, an instance controller mapping the daemon's eventually
// consistent status codes onto the local lifecycle states, and an
// image vault orchestrating simplestreams pulls.
package lxd
