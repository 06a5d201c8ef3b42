package lxd

import (
	"go.uber.org/zap"

	"github.com/rokaw/multipass/internal/vm"
)

// LXD status codes, as reported in status_code fields.
const (
	statusOperationCreated = 100
	statusStarted          = 101
	statusStopped          = 102
	statusRunning          = 103
	statusCancelling       = 104
	statusPending          = 105
	statusStarting         = 106
	statusStopping         = 107
	statusAborting         = 108
	statusFreezing         = 109
	statusFrozen           = 110
	statusThawed           = 111

	statusSuccess   = 200
	statusFailure   = 400
	statusCancelled = 401
)

// stateForStatusCode maps a remote instance status code onto the local
// lifecycle state. Pure except for the diagnostic on unrecognized
// codes, which map to unknown instead of failing.
func stateForStatusCode(logger *zap.Logger, code int, status string) vm.State {
	switch code {
	case statusStarted, statusRunning, statusStopping, statusThawed:
		// Stopping still counts as up: the guest is reachable until
		// the daemon reports it stopped.
		return vm.StateRunning
	case statusStopped:
		return vm.StateStopped
	case statusStarting:
		return vm.StateStarting
	case statusFreezing:
		return vm.StateSuspending
	case statusFrozen:
		return vm.StateSuspended
	case statusCancelling, statusAborting:
		return vm.StateUnknown
	default:
		logger.Error("unexpected instance status",
			zap.Int("status_code", code),
			zap.String("status", status))
		return vm.StateUnknown
	}
}

// instanceStateMetadata is the metadata shape of an instance's /state
// resource.
type instanceStateMetadata struct {
	Status     string                          `json:"status"`
	StatusCode int                             `json:"status_code"`
	Network    map[string]instanceNetworkState `json:"network"`
}

type instanceNetworkState struct {
	Addresses []instanceAddress `json:"addresses"`
}

type instanceAddress struct {
	Family  string `json:"family"`
	Address string `json:"address"`
}

// firstIPv4 returns the first "inet" family address on the named
// interface, or "" when none is reported yet.
func (m *instanceStateMetadata) firstIPv4(iface string) string {
	for _, addr := range m.Network[iface].Addresses {
		if addr.Family == "inet" {
			return addr.Address
		}
	}
	return ""
}
