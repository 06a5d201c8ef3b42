package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rokaw/multipass/internal/lxd"
	"github.com/rokaw/multipass/internal/output"
)

var (
	outputFormat string
	noHeaders    bool
)

func init() {
	for _, cmd := range []*cobra.Command{listCmd, infoCmd} {
		cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, yaml, json)")
		cmd.Flags().BoolVar(&noHeaders, "no-headers", false, "Omit headers in table output")
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List instances",
	Long: `List the instances the daemon knows about.

Shows instance name, state and IPv4 address.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   YAML document stream
  -o json   JSON array`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := context.Background()
		client := newClient(logger)

		names, err := lxd.InstanceNames(ctx, client, lxd.DefaultBaseURL)
		if err != nil {
			return fmt.Errorf("failed to list instances: %w", err)
		}

		recs := make([]output.InstanceRecord, 0, len(names))
		for _, name := range names {
			recs = append(recs, instanceRecord(ctx, client, name, logger))
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatInstanceList(recs)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show details about an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := context.Background()
		client := newClient(logger)

		if _, err := lxd.InstanceState(ctx, client, lxd.DefaultBaseURL, name, logger); err != nil {
			if errors.Is(err, lxd.ErrNotFound) {
				return fmt.Errorf("instance %q does not exist", name)
			}
			return err
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatInstance(instanceRecord(ctx, client, name, logger))
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

// instanceRecord reads one instance's display fields. Read failures
// degrade to unknown fields rather than failing the whole listing.
func instanceRecord(ctx context.Context, client *lxd.Client, name string, logger *zap.Logger) output.InstanceRecord {
	rec := output.InstanceRecord{Name: name}

	state, err := lxd.InstanceState(ctx, client, lxd.DefaultBaseURL, name, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to read state of %s: %v\n", name, err)
	}
	rec.State = state

	ip, err := lxd.InstanceIPv4(ctx, client, lxd.DefaultBaseURL, name)
	if err == nil {
		rec.IPv4 = ip
	}

	return rec
}
