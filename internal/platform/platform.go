// Package platform answers capability questions about the current
// host/backend combination: which image remotes are served here and
// whether URL-style image sources can be used.
package platform

// supportedRemotes lists the simplestreams remotes the LXD backend
// serves on this platform.
var supportedRemotes = map[string]bool{
	"release": true,
	"daily":   true,
}

// RemoteSupported reports whether the named image remote is available
// on this platform.
func RemoteSupported(remote string) bool {
	return supportedRemotes[remote]
}

// ImageURLSupported reports whether http/file image sources can be
// used. The LXD backend only pulls by fingerprint from simplestreams
// servers.
func ImageURLSupported() bool {
	return false
}
