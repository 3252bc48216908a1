package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/entropic-void/voidsim/sim/store"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logLevel  string // Log verbosity level
	workers   int    // Worker pool bound (0 = GOMAXPROCS)
	storeKind string // Snapshot backend: file, sqlite or empty for none
	storePath string // Directory (file) or database file (sqlite)
}

// envFlags maps persistent flags to the environment variables that set them
// when the flag is not given on the command line.
var envFlags = map[string]string{
	"log":        "VOIDSIM_LOG_LEVEL",
	"workers":    "VOIDSIM_WORKERS",
	"store":      "VOIDSIM_STORE",
	"store-path": "VOIDSIM_STORE_PATH",
}

// rootCmd is the base command for the CLI
var rootCmd = newRootCmd()

// newRootCmd builds a fresh command tree with its own flag state.
func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "voidsim",
		Short:         "Conservative energy-transport simulator on a periodic 3D lattice",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyEnv(cmd); err != nil {
				return err
			}
			level, err := logrus.ParseLevel(g.logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level: %s", g.logLevel)
			}
			logrus.SetLevel(level)
			if g.storeKind != "" && !store.IsValidKind(g.storeKind) {
				return fmt.Errorf("unknown store %q; valid: file, sqlite", g.storeKind)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	pf.IntVar(&g.workers, "workers", 0, "Worker goroutines per step (0 = GOMAXPROCS)")
	pf.StringVar(&g.storeKind, "store", "", "Snapshot store backend (file, sqlite); empty disables checkpoints")
	pf.StringVar(&g.storePath, "store-path", "voidsim-snapshots", "Snapshot directory (file) or database path (sqlite)")

	root.AddCommand(newRunCmd(g), newResumeCmd(g), newModesCmd(g), newInspectCmd(g))
	return root
}

// applyEnv fills unset flags from the environment.
func applyEnv(cmd *cobra.Command) error {
	for name, key := range envFlags {
		f := cmd.Flags().Lookup(name)
		if f == nil || f.Changed {
			continue
		}
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := f.Value.Set(v); err != nil {
			return fmt.Errorf("%s=%q: %w", key, v, err)
		}
	}
	return nil
}

// openStore opens the configured backend, or returns nil when checkpoints
// are disabled.
func (g *globalFlags) openStore() (store.SnapshotStore, error) {
	if g.storeKind == "" {
		return nil, nil
	}
	st, err := store.Open(store.Kind(g.storeKind), g.storePath)
	if err != nil {
		return nil, err
	}
	logrus.Infof("snapshot store: %s at %s", g.storeKind, g.storePath)
	return st, nil
}

// requireStore is openStore for commands that cannot work without one.
func (g *globalFlags) requireStore() (store.SnapshotStore, error) {
	if g.storeKind == "" {
		return nil, fmt.Errorf("--store is required (file or sqlite)")
	}
	return g.openStore()
}

// Execute runs the CLI root command
func Execute() {
	// Load env
	_ = godotenv.Load(".env")

	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
