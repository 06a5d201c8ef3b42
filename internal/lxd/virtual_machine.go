package lxd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rokaw/multipass/internal/units"
	"github.com/rokaw/multipass/internal/vm"
)

// sshPort is fixed for this backend; the daemon does not negotiate it.
const sshPort = 22

// primaryInterface is the guest NIC addresses are discovered on.
const primaryInterface = "eth0"

var minimumDiskSize = units.MustParse("10G")

// VirtualMachine is the lifecycle controller for one instance.
//
// It owns the instance's locally observed state and serializes all
// transitions behind one mutex. The local state is two-phase:
// observed holds the last committed remote read, requested holds a
// controller-initiated transition that has not converged yet
// (starting, or off as the stop-while-starting sentinel). The state
// reported to callers is requested when set, observed otherwise.
type VirtualMachine struct {
	name     string
	username string
	monitor  vm.StatusMonitor
	r        requester
	poller   *taskPoller
	baseURL  string
	logger   *zap.Logger

	mu        sync.Mutex
	observed  vm.State
	requested vm.State
	// ip caches the discovered address; cleared on stop since
	// addresses are not stable across restarts.
	ip string
	// startSettled is the single-slot handoff between a stop issued
	// mid-start and the readiness guard that publishes the
	// terminating state.
	startSettled chan struct{}

	ipRetryInterval time.Duration
	ipTimeout       time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
	dial            func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewVirtualMachine attaches a controller to the named instance,
// creating the instance remotely when the daemon does not know it.
//
// Creation embeds the description's resources and cloud-init
// documents, with the root disk floored at 10 GiB, and pulls the image
// by fingerprint from its simplestreams server. When the daemon
// answers with a background task the constructor drives it to
// completion before re-reading the authoritative state.
func NewVirtualMachine(ctx context.Context, desc vm.Description, monitor vm.StatusMonitor, r requester, baseURL string, logger *zap.Logger) (*VirtualMachine, error) {
	v := &VirtualMachine{
		name:            desc.Name,
		username:        desc.SSHUsername,
		monitor:         monitor,
		r:               r,
		poller:          newTaskPoller(r, logger),
		baseURL:         baseURL,
		logger:          logger.With(zap.String("name", desc.Name)),
		ipRetryInterval: time.Second,
		ipTimeout:       2 * time.Minute,
		sleep:           sleepContext,
	}
	var d net.Dialer
	v.dial = d.DialContext

	v.mu.Lock()
	defer v.mu.Unlock()

	_, err := v.currentStateLocked(ctx)
	if errors.Is(err, ErrNotFound) {
		if err := v.create(ctx, desc); err != nil {
			return nil, err
		}
		if _, err := v.currentStateLocked(ctx); err != nil {
			return nil, fmt.Errorf("failed to read state after creation: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	return v, nil
}

func (v *VirtualMachine) create(ctx context.Context, desc vm.Description) error {
	v.logger.Debug("creating instance",
		zap.String("stream", desc.Image.StreamLocation),
		zap.String("fingerprint", desc.Image.ID))

	config := map[string]string{
		"limits.cpu":    strconv.Itoa(desc.NumCores),
		"limits.memory": strconv.FormatInt(desc.MemSize.InBytes(), 10),
	}
	if desc.CloudInit.MetaData != "" {
		config["user.meta-data"] = desc.CloudInit.MetaData
	}
	if desc.CloudInit.VendorData != "" {
		config["user.vendor-data"] = desc.CloudInit.VendorData
	}
	if desc.CloudInit.UserData != "" {
		config["user.user-data"] = desc.CloudInit.UserData
	}

	devices := map[string]map[string]string{
		"config": {
			"source": "cloud-init:config",
			"type":   "disk",
		},
		"root": {
			"path": "/",
			"pool": "default",
			"size": strconv.FormatInt(rootDiskSize(desc.DiskSpace).InBytes(), 10),
			"type": "disk",
		},
	}

	body := map[string]any{
		"name":    desc.Name,
		"config":  config,
		"devices": devices,
		"source": map[string]string{
			"type":        "image",
			"mode":        "pull",
			"server":      desc.Image.StreamLocation,
			"protocol":    "simplestreams",
			"fingerprint": desc.Image.ID,
		},
	}

	resp, err := v.r.request(ctx, "POST", instancesURL(v.baseURL), body)
	if err != nil {
		return fmt.Errorf("failed to create instance %q: %w", desc.Name, err)
	}

	if op, ok := operationFromResponse(resp); ok {
		// Fire and forget: the re-read after creation settles is
		// what decides whether the instance exists.
		if err := v.poller.poll(ctx, operationURL(v.baseURL, op.ID)); err != nil {
			v.logger.Warn("creation operation did not report success", zap.Error(err))
		}
	}

	return nil
}

// rootDiskSize floors the requested disk at the backend's minimum.
func rootDiskSize(requested units.MemorySize) units.MemorySize {
	if minimumDiskSize.LessThan(requested) {
		return requested
	}
	return minimumDiskSize
}

// Name returns the instance name.
func (v *VirtualMachine) Name() string {
	return v.name
}

// State returns the locally cached state without consulting the
// daemon.
func (v *VirtualMachine) State() vm.State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *VirtualMachine) stateLocked() vm.State {
	if v.requested != "" {
		return v.requested
	}
	return v.observed
}

// CurrentState reads the instance's remote state and reconciles it
// with the local view.
func (v *VirtualMachine) CurrentState(ctx context.Context) (vm.State, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentStateLocked(ctx)
}

// currentStateLocked implements the read precedence rule: a pending
// controller-initiated transition is never overwritten by a remote
// read, and a remote "running" does not cancel a delayed shutdown.
// All other reads commit, notifying the monitor on change.
func (v *VirtualMachine) currentStateLocked(ctx context.Context) (vm.State, error) {
	remote, err := v.remoteState(ctx)
	if err != nil {
		return vm.StateUnknown, err
	}

	if v.requested != "" {
		return v.requested, nil
	}
	if v.observed == vm.StateDelayedShutdown && remote == vm.StateRunning {
		return v.observed, nil
	}

	if remote != v.observed {
		v.observed = remote
		v.monitor.PersistStateFor(v.name, remote)
	}
	return v.observed, nil
}

// remoteState reads and maps the instance's status without touching
// the local view.
func (v *VirtualMachine) remoteState(ctx context.Context) (vm.State, error) {
	resp, err := v.r.request(ctx, "GET", instanceStateURL(v.baseURL, v.name), nil)
	if err != nil {
		return vm.StateUnknown, err
	}

	var meta instanceStateMetadata
	if err := resp.metadataInto(&meta); err != nil {
		return vm.StateUnknown, err
	}

	v.logger.Debug("got instance state", zap.String("status", meta.Status))
	return stateForStatusCode(v.logger, meta.StatusCode, meta.Status), nil
}

// Start requests that the instance run.
//
// Starting an already running instance is a no-op; starting while the
// remote is freezing is rejected; a suspended instance is unfrozen
// rather than started. The local state moves to starting
// optimistically, before the remote confirms.
func (v *VirtualMachine) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	present, err := v.currentStateLocked(ctx)
	if err != nil {
		return err
	}

	if present == vm.StateRunning {
		return nil
	}
	if present == vm.StateSuspending {
		return fmt.Errorf("cannot start the instance while suspending: %w", vm.ErrInvalidOperation)
	}

	action := "start"
	if v.observed == vm.StateSuspended {
		v.logger.Info("resuming from a suspended state")
		action = "unfreeze"
	}

	if _, err := v.requestState(ctx, action); err != nil {
		return err
	}

	v.requested = vm.StateStarting
	v.monitor.PersistStateFor(v.name, v.stateLocked())
	return nil
}

// Stop stops the instance and blocks until the daemon confirms.
//
// Stopping a locally stopped instance returns immediately without any
// remote call. A stop issued while a start is still settling forces
// the off sentinel, lets the readiness guard publish the terminating
// state, and waits for that handoff. A suspended instance is left
// alone: it must be resumed first.
func (v *VirtualMachine) Stop(ctx context.Context) error {
	v.mu.Lock()

	if v.observed == vm.StateStopped && v.requested == "" {
		v.mu.Unlock()
		v.logger.Debug("already stopped, nothing to do")
		return nil
	}

	present, err := v.currentStateLocked(ctx)
	if err != nil {
		v.mu.Unlock()
		return err
	}

	switch {
	case present == vm.StateRunning || present == vm.StateDelayedShutdown:
		resp, err := v.requestState(ctx, "stop")
		if err != nil {
			v.mu.Unlock()
			return err
		}
		if op, ok := operationFromResponse(resp); ok {
			if err := v.poller.wait(ctx, operationURL(v.baseURL, op.ID)); err != nil {
				v.mu.Unlock()
				return err
			}
		}
		v.observed = vm.StateStopped
		v.requested = ""
		v.ip = ""
		v.monitor.PersistStateFor(v.name, v.stateLocked())
		v.mu.Unlock()
		return nil

	case present == vm.StateStarting:
		settled := make(chan struct{}, 1)
		v.startSettled = settled
		v.requested = vm.StateOff
		if _, err := v.requestState(ctx, "stop"); err != nil {
			v.startSettled = nil
			v.requested = vm.StateStarting
			v.mu.Unlock()
			return err
		}
		v.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}

		v.mu.Lock()
		v.ip = ""
		v.monitor.PersistStateFor(v.name, v.stateLocked())
		v.mu.Unlock()
		return nil

	case present == vm.StateSuspended:
		v.logger.Info("ignoring shutdown issued while suspended")
		v.mu.Unlock()
		return nil

	default:
		v.logger.Debug("no stop action for current state", zap.Stringer("state", present))
		v.mu.Unlock()
		return nil
	}
}

// Shutdown is Stop under its public name.
func (v *VirtualMachine) Shutdown(ctx context.Context) error {
	return v.Stop(ctx)
}

// Suspend is not supported by this backend.
func (v *VirtualMachine) Suspend(_ context.Context) error {
	return fmt.Errorf("suspend is currently not supported: %w", vm.ErrInvalidOperation)
}

// EnsureVMIsRunning is the readiness guard: it fails with a StartError
// when the instance turned off while a start was settling, publishing
// the terminating state to any stop waiter first.
func (v *VirtualMachine) EnsureVMIsRunning(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.requested == vm.StateOff {
		return v.abortStartLocked("instance shutdown during start")
	}

	remote, err := v.remoteState(ctx)
	if err != nil {
		return err
	}

	if remote == vm.StateOff || remote == vm.StateStopped {
		return v.abortStartLocked("instance shutdown during start")
	}

	return nil
}

// abortStartLocked commits stopped so there is an actual state change
// for waiters to observe, publishes the single-slot handoff, and
// raises the start failure.
func (v *VirtualMachine) abortStartLocked(reason string) error {
	v.observed = vm.StateStopped
	v.requested = ""
	if v.startSettled != nil {
		select {
		case v.startSettled <- struct{}{}:
		default:
		}
		v.startSettled = nil
	}
	v.monitor.PersistStateFor(v.name, v.stateLocked())
	return &vm.StartError{Name: v.name, Reason: reason}
}

// SSHHostname resolves an SSH-reachable address, retrying until the
// instance reports one or the bounded timeout expires. A concurrent
// stop makes the next readiness check fail fast instead of spinning
// out the full timeout.
func (v *VirtualMachine) SSHHostname(ctx context.Context) (string, error) {
	v.mu.Lock()
	if v.ip != "" {
		ip := v.ip
		v.mu.Unlock()
		return ip, nil
	}
	v.mu.Unlock()

	deadline := time.Now().Add(v.ipTimeout)
	for {
		if err := v.EnsureVMIsRunning(ctx); err != nil {
			return "", err
		}

		ip, err := v.fetchIP(ctx)
		if err != nil {
			return "", err
		}
		if ip != "" {
			v.mu.Lock()
			v.ip = ip
			v.mu.Unlock()
			return ip, nil
		}

		if time.Now().After(deadline) {
			return "", &vm.IPTimeoutError{Name: v.name}
		}
		if err := v.sleep(ctx, v.ipRetryInterval); err != nil {
			return "", err
		}
	}
}

// IPv4 returns the instance's address without blocking, or "UNKNOWN"
// when none has been reported yet.
func (v *VirtualMachine) IPv4(ctx context.Context) string {
	v.mu.Lock()
	if v.ip != "" {
		ip := v.ip
		v.mu.Unlock()
		return ip
	}
	v.mu.Unlock()

	ip, err := v.fetchIP(ctx)
	if err != nil || ip == "" {
		return "UNKNOWN"
	}

	v.mu.Lock()
	v.ip = ip
	v.mu.Unlock()
	return ip
}

// IPv6 is unsupported on this backend.
func (v *VirtualMachine) IPv6() string {
	return ""
}

// SSHPort returns the fixed SSH port.
func (v *VirtualMachine) SSHPort() int {
	return sshPort
}

// SSHUsername returns the username instances are provisioned with.
func (v *VirtualMachine) SSHUsername() string {
	return v.username
}

func (v *VirtualMachine) fetchIP(ctx context.Context) (string, error) {
	resp, err := v.r.request(ctx, "GET", instanceStateURL(v.baseURL, v.name), nil)
	if err != nil {
		return "", err
	}

	var meta instanceStateMetadata
	if err := resp.metadataInto(&meta); err != nil {
		return "", err
	}

	ip := meta.firstIPv4(primaryInterface)
	if ip == "" {
		v.logger.Debug("no address reported yet")
	}
	return ip, nil
}

// WaitUntilSSHUp blocks until the instance accepts TCP connections on
// the SSH port, re-running the readiness guard between probes. On
// success the running state is committed as authoritative.
func (v *VirtualMachine) WaitUntilSSHUp(ctx context.Context, timeout time.Duration) error {
	hostname, err := v.SSHHostname(ctx)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(hostname, strconv.Itoa(sshPort))
	deadline := time.Now().Add(timeout)
	for {
		if err := v.EnsureVMIsRunning(ctx); err != nil {
			return err
		}

		conn, err := v.dial(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			v.mu.Lock()
			v.requested = ""
			if v.observed != vm.StateRunning {
				v.observed = vm.StateRunning
				v.monitor.PersistStateFor(v.name, v.observed)
			}
			v.mu.Unlock()
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("instance %q: timed out waiting for SSH", v.name)
		}
		if err := v.sleep(ctx, v.ipRetryInterval); err != nil {
			return err
		}
	}
}

// requestState asks the daemon for a state transition. The request is
// bounded: state changes are accepted quickly or not at all.
func (v *VirtualMachine) requestState(ctx context.Context, action string) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := v.r.request(ctx, "PUT", instanceStateURL(v.baseURL, v.name), map[string]string{"action": action})
	if err != nil {
		return nil, fmt.Errorf("failed to request %q for instance %q: %w", action, v.name, err)
	}
	return resp, nil
}
