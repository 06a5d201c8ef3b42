package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rokaw/multipass/internal/cloudinit"
	"github.com/rokaw/multipass/internal/image"
	"github.com/rokaw/multipass/internal/lxd"
	"github.com/rokaw/multipass/internal/vm"
)

var launchWait time.Duration

func init() {
	launchCmd.Flags().DurationVar(&launchWait, "wait", 5*time.Minute, "How long to wait for SSH to come up (0 to not wait)")
}

var launchCmd = &cobra.Command{
	Use:   "launch <spec.yaml>",
	Short: "Launch an instance from a launch spec",
	Long: `Launch a new instance from a YAML launch spec.

The spec defines the instance's name, resources (CPU, memory, disk),
image and SSH authorized keys. The image is resolved against the
configured catalog manifests and pulled by the daemon if it does not
hold it yet.

An image can name a specific remote with the "remote:release" form,
e.g. "release:22.04".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := vm.LoadLaunchSpec(args[0])
		if err != nil {
			return err
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		hosts, err := loadHosts()
		if err != nil {
			return err
		}

		docs, err := cloudinit.Documents(spec)
		if err != nil {
			return fmt.Errorf("failed to generate cloud-init documents: %w", err)
		}

		ctx := context.Background()
		client := newClient(logger)
		vault := lxd.NewImageVault(hosts, client, lxd.DefaultBaseURL, logger)

		fmt.Printf("Fetching image %s...\n", spec.Image)
		img, err := vault.FetchImage(ctx, image.FetchTypeImageOnly, imageQuery(spec), nil, printProgress)
		if err != nil {
			return fmt.Errorf("failed to fetch image: %w", err)
		}
		fmt.Printf("Using image %s (%s)\n", img.OriginalRelease, shortID(img.ID))

		mon, err := newMonitor(logger)
		if err != nil {
			return err
		}

		desc := vm.Description{
			Name:        spec.Name,
			SSHUsername: spec.SSHUsername,
			NumCores:    spec.CPUs,
			MemSize:     spec.MemorySize(),
			DiskSpace:   spec.DiskSize(),
			CloudInit:   docs,
			Image: vm.ImageRef{
				ID:             img.ID,
				StreamLocation: img.StreamLocation,
			},
		}

		fmt.Printf("Creating instance %s...\n", spec.Name)
		machine, err := lxd.NewVirtualMachine(ctx, desc, mon, client, lxd.DefaultBaseURL, logger)
		if err != nil {
			return fmt.Errorf("failed to create instance: %w", err)
		}

		if err := machine.Start(ctx); err != nil {
			return fmt.Errorf("failed to start instance: %w", err)
		}

		if launchWait > 0 {
			fmt.Println("Waiting for SSH...")
			if err := machine.WaitUntilSSHUp(ctx, launchWait); err != nil {
				return err
			}

			addr, err := machine.SSHHostname(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Instance %s is running at %s@%s\n", spec.Name, machine.SSHUsername(), addr)
			return nil
		}

		fmt.Printf("✓ Instance %s launched\n", spec.Name)
		return nil
	},
}

// imageQuery maps the spec's image string to a catalog query. A
// "remote:release" form pins the lookup to that remote.
func imageQuery(spec *vm.LaunchSpec) image.Query {
	query := image.Query{
		Name:    spec.Name,
		Release: spec.Image,
		Type:    image.QueryTypeAlias,
	}
	if remote, release, ok := strings.Cut(spec.Image, ":"); ok {
		query.RemoteName = remote
		query.Release = release
	}
	return query
}

// printProgress reports download progress on one rewritten line.
func printProgress(phase string, percent int) bool {
	if percent == image.UnknownProgress {
		fmt.Printf("\rDownloading %s...", phase)
	} else {
		fmt.Printf("\rDownloading %s: %d%%", phase, percent)
	}
	if percent >= 100 {
		fmt.Println()
	}
	return true
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
