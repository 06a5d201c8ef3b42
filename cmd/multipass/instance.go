package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rokaw/multipass/internal/lxd"
	"github.com/rokaw/multipass/internal/units"
	"github.com/rokaw/multipass/internal/vm"
)

// attach connects a lifecycle controller to an existing instance. The
// instance must already exist: attach never creates one.
func attach(ctx context.Context, client *lxd.Client, name string, logger *zap.Logger) (*lxd.VirtualMachine, error) {
	if _, err := lxd.InstanceState(ctx, client, lxd.DefaultBaseURL, name, logger); err != nil {
		if errors.Is(err, lxd.ErrNotFound) {
			return nil, fmt.Errorf("instance %q does not exist", name)
		}
		return nil, err
	}

	mon, err := newMonitor(logger)
	if err != nil {
		return nil, err
	}

	// Resource fields only matter on creation, which cannot happen
	// for an instance the daemon already knows.
	desc := vm.Description{
		Name:        name,
		SSHUsername: "ubuntu",
		NumCores:    1,
		MemSize:     units.MustParse("1G"),
		DiskSpace:   units.MustParse("5G"),
	}
	return lxd.NewVirtualMachine(ctx, desc, mon, client, lxd.DefaultBaseURL, logger)
}

var startCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start a stopped instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := context.Background()
		machine, err := attach(ctx, newClient(logger), name, logger)
		if err != nil {
			return err
		}

		if err := machine.Start(ctx); err != nil {
			return fmt.Errorf("failed to start instance: %w", err)
		}

		fmt.Printf("✓ Instance %s starting\n", name)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "Stop a running instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := context.Background()
		machine, err := attach(ctx, newClient(logger), name, logger)
		if err != nil {
			return err
		}

		if err := machine.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop instance: %w", err)
		}

		fmt.Printf("✓ Instance %s stopped\n", name)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an instance",
	Long: `Delete an instance from the daemon.

A running instance is stopped first. Deleting an instance the daemon
does not know is not an error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := context.Background()
		client := newClient(logger)

		machine, err := attach(ctx, client, name, logger)
		if err == nil {
			if stopErr := machine.Stop(ctx); stopErr != nil {
				return fmt.Errorf("failed to stop instance before deletion: %w", stopErr)
			}
		}

		vault := lxd.NewImageVault(nil, client, lxd.DefaultBaseURL, logger)
		if err := vault.Remove(ctx, name); err != nil {
			return fmt.Errorf("failed to delete instance: %w", err)
		}

		mon, err := newMonitor(logger)
		if err != nil {
			return err
		}
		if err := mon.Remove(name); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to remove local state: %v\n", err)
		}

		fmt.Printf("✓ Instance %s deleted\n", name)
		return nil
	},
}

var ipCmd = &cobra.Command{
	Use:   "ip <name>",
	Short: "Print an instance's IPv4 address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := context.Background()
		ip, err := lxd.InstanceIPv4(ctx, newClient(logger), lxd.DefaultBaseURL, name)
		if err != nil {
			if errors.Is(err, lxd.ErrNotFound) {
				return fmt.Errorf("instance %q does not exist", name)
			}
			return err
		}
		if ip == "" {
			ip = "UNKNOWN"
		}

		fmt.Println(ip)
		return nil
	},
}
