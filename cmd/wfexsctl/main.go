// Command wfexsctl drives the enactment core through its four lifecycle
// stages from the shell: stage, execute, export, and status. It is the
// core's sole consumer of the concrete engine adapters, container
// factories, and export plugins — the core package itself never
// constructs them directly (spec §3: "surrounding concerns ... are
// treated as external collaborators").
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagRawDir      string
	flagCacheDir    string
	flagEncrypted   bool
	flagMountBackend string
	flagOffline     bool
	flagFailOk      bool
	flagOverwrite   bool
	flagVerbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "wfexsctl",
	Short: "Reproducible workflow enactment controller",
	Long: `wfexsctl drives one GA4GH-style workflow enactment instance through its
lifecycle: configure, stage inputs, execute the engine, and export results.

Examples:
  wfexsctl stage --raw-dir ./run1 --config workflow_meta.yaml
  wfexsctl execute --raw-dir ./run1
  wfexsctl export --raw-dir ./run1
  wfexsctl status --raw-dir ./run1`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRawDir, "raw-dir", "", "instance raw working directory (required)")
	rootCmd.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", "", "shared content-addressed cache directory (default: $HOME/.cache/wfexsgo)")
	rootCmd.PersistentFlags().BoolVar(&flagEncrypted, "encrypted", false, "mount an encrypted working tree via FUSE")
	rootCmd.PersistentFlags().StringVar(&flagMountBackend, "mount-backend", "encfs", "encrypted mount backend: encfs|gocryptfs")
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "forbid network access; fail on cache miss")
	rootCmd.PersistentFlags().BoolVar(&flagFailOk, "fail-ok", false, "flag the instance damaged instead of aborting on error")
	rootCmd.PersistentFlags().BoolVar(&flagOverwrite, "overwrite", false, "re-marshal a stage even if already completed")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newStageCommand())
	rootCmd.AddCommand(newExecuteCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newStatusCommand())
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if flagVerbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func requireRawDir() error {
	if flagRawDir == "" {
		return fmt.Errorf("--raw-dir is required")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
