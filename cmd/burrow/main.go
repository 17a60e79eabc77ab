package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/privilege"
	"github.com/cuemby/burrow/pkg/system"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagLogLevel    string
	flagLogJSON     bool
	flagDataDir     string
	flagWorkDir     string
	flagTmpfsSize   string
	flagMetricsAddr string
	flagUID         int
	flagGID         int
)

// priv is the process privilege context, built once in setup when the
// process starts as root. Nil when the process runs unprivileged end to
// end (mock/dry-run use, tests).
var priv *privilege.Context

// runner executes every external command issued by the CLI.
var runner system.Runner = system.NewExecRunner()

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - ephemeral build containers from squashfs images",
	Long: `Burrow builds and runs ephemeral, sandboxed Linux containers from
compressed read-only root-filesystem images, layering a writable overlay
on top, and can snapshot the resulting filesystem back into a reusable
image.

Start it as root: it lowers its privileges immediately and elevates only
around the mount and launch steps of each session.`,
	Version:           Version,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.BoolVar(&flagLogJSON, "log-json", false, "Emit JSON logs instead of console output")
	pf.StringVar(&flagDataDir, "data-dir", "/var/lib/burrow", "Directory holding the image catalog database")
	pf.StringVar(&flagWorkDir, "workdir", "", "Directory receiving per-session bundle directories")
	pf.StringVar(&flagTmpfsSize, "tmpfs-size", "", "Size of the tmpfs backing writable session overlays (e.g. 10g)")
	pf.StringVar(&flagMetricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address while running (e.g. :9090)")
	pf.IntVar(&flagUID, "unprivileged-uid", sudoID("SUDO_UID"), "Uid to lower privileges to (defaults to $SUDO_UID)")
	pf.IntVar(&flagGID, "unprivileged-gid", sudoID("SUDO_GID"), "Gid to lower privileges to (defaults to $SUDO_GID)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(imagesCmd)
}

// sudoID reads a numeric id from a sudo-provided environment variable.
func sudoID(name string) int {
	if v := os.Getenv(name); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			return id
		}
	}
	return 0
}

// setup initializes logging, lowers process privileges when started as
// root and optionally exposes the metrics endpoint. It runs once before
// any subcommand.
func setup(cmd *cobra.Command, args []string) error {
	log.Init(log.Config{
		Level:      log.Level(flagLogLevel),
		JSONOutput: flagLogJSON,
	})

	if os.Geteuid() == 0 {
		if flagUID == 0 || flagGID == 0 {
			return fmt.Errorf("running as root requires an unprivileged identity " +
				"(start through sudo or pass --unprivileged-uid/--unprivileged-gid)")
		}
		ctx, err := privilege.New(flagUID, flagGID)
		if err != nil {
			return err
		}
		if err := ctx.Drop(); err != nil {
			return err
		}
		priv = ctx
	} else if privilege.Possible() {
		// Privileges were already lowered (setuid start); elevation still
		// works through the saved-set slot.
		ctx, err := privilege.New(os.Getuid(), os.Getgid())
		if err != nil {
			return err
		}
		priv = ctx
	} else {
		log.WithComponent("cli").Warn().
			Msg("not started as root, mounting and launching will fail")
	}

	if flagMetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(flagMetricsAddr, metrics.Handler()); err != nil {
				log.WithComponent("cli").Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}
	return nil
}
