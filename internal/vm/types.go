package vm

import (
	"github.com/rokaw/multipass/internal/units"
)

// ImageRef identifies the image an instance boots from: a content
// fingerprint plus the simplestreams server it can be pulled from.
type ImageRef struct {
	// ID is the image fingerprint.
	ID string
	// StreamLocation is the simplestreams server URL.
	StreamLocation string
}

// CloudInit holds the rendered cloud-init documents for an instance.
// Empty documents are omitted from the create request.
type CloudInit struct {
	MetaData   string
	VendorData string
	UserData   string
}

// Description describes a virtual machine to be created or recovered.
// It is immutable once handed to a controller.
type Description struct {
	Name        string
	SSHUsername string
	NumCores    int
	MemSize     units.MemorySize
	DiskSpace   units.MemorySize
	CloudInit   CloudInit
	Image       ImageRef
}

// StatusMonitor receives every authoritative local state change for
// persistence. Implementations must tolerate repeated notifications of
// the same state.
type StatusMonitor interface {
	PersistStateFor(name string, state State)
}
