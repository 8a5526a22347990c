// Package cmd contains the command-line interface (CLI) definitions and execution logic for regauth.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicholas-fedor/regauth/internal/flags"
	"github.com/nicholas-fedor/regauth/pkg/metrics"
)

// rootCmd is the root command of the regauth CLI.
var rootCmd = NewRootCommand()

// NewRootCommand creates the root command with its subcommands attached.
//
// The root command itself does nothing but print help; credential resolution
// happens in the pull, build and swarm subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "regauth",
		Short: "Resolves container registry credentials",
		Long: "\nregauth resolves container registry credentials from static settings, the Docker client config,\n" +
			"credential helpers and cloud providers, and prints them as Docker Engine API headers.",
		PersistentPreRun:   preRun,
		PersistentPostRunE: postRun,
		SilenceUsage:       true,
		SilenceErrors:      true,
	}

	root.PersistentFlags().Bool(
		"decode",
		false,
		"Print the resolved credentials as JSON instead of the encoded header value")

	root.AddCommand(newPullCommand(), newBuildCommand(), newSwarmCommand())

	return root
}

// init registers command-line flags for the root command during package initialization.
func init() {
	flags.SetDefaults()
	flags.RegisterSystemFlags(rootCmd)
	flags.RegisterCredentialFlags(rootCmd)
}

// Execute runs the root command and manages any errors encountered during its execution.
//
// Interrupts cancel the command context, which stops running credential helpers
// and in-flight cloud provider calls.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		logrus.WithError(err).Fatal("Failed to execute command")
	}
}

// preRun configures logging from --debug, --trace, --log-level and --log-format
// before any subcommand runs.
func preRun(cmd *cobra.Command, _ []string) {
	flagsSet := cmd.Flags()
	flags.ProcessFlagAliases(flagsSet)

	if err := flags.SetupLogging(flagsSet); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize logging")
	}
}

// postRun writes the collected metrics when --metrics-file is set.
func postRun(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("metrics-file")
	if path == "" {
		return nil
	}

	logrus.WithField("path", path).Debug("Writing metrics file")

	return metrics.WriteTextfile(path, nil) //nolint:wrapcheck // Already wrapped by the metrics package
}
