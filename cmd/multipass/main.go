package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rokaw/multipass/internal/image"
	"github.com/rokaw/multipass/internal/lxd"
	"github.com/rokaw/multipass/internal/monitor"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	socketPath    string
	dataDir       string
	manifestPaths []string
	verbose       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "multipass",
	Short: "Multipass - LXD instance management tool",
	Long: `Multipass manages Ubuntu instances on a local LXD daemon.

It provides commands to launch, start, stop, and delete instances from
simple YAML launch specs, with images resolved through catalog
manifests and pulled by the daemon on demand.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", lxd.DefaultSocketPath, "Path to the LXD unix socket")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "Directory for locally persisted instance state")
	rootCmd.PersistentFlags().StringSliceVar(&manifestPaths, "manifest", nil, "Image catalog manifest file (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(ipCmd)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/var/lib/multipass"
	}
	return filepath.Join(home, ".multipass")
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func newClient(logger *zap.Logger) *lxd.Client {
	return lxd.NewClient(socketPath, logger)
}

func newMonitor(logger *zap.Logger) (*monitor.FileMonitor, error) {
	return monitor.NewFileMonitor(dataDir, logger)
}

// loadHosts loads every configured catalog manifest.
func loadHosts() ([]image.Host, error) {
	if len(manifestPaths) == 0 {
		return nil, fmt.Errorf("no image manifest configured: pass at least one --manifest")
	}

	hosts := make([]image.Host, 0, len(manifestPaths))
	for _, path := range manifestPaths {
		host, err := image.LoadManifestHost(path)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, host)
	}
	return hosts, nil
}
