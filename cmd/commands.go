package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nicholas-fedor/regauth/internal/flags"
	"github.com/nicholas-fedor/regauth/internal/logging"
	"github.com/nicholas-fedor/regauth/internal/meta"
	"github.com/nicholas-fedor/regauth/pkg/registry"
	"github.com/nicholas-fedor/regauth/pkg/types"
)

func newPullCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pull IMAGE",
		Short: "Print the X-Registry-Auth value for pulling an image",
		Long: "Print the X-Registry-Auth value for pulling IMAGE.\n" +
			"Nothing is printed when no source holds a credential for its registry.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			supplier, err := setupSupplier(cmd)
			if err != nil {
				return err
			}

			encoded, err := registry.EncodedAuth(cmd.Context(), supplier, args[0])
			if err != nil {
				return err //nolint:wrapcheck // Already wrapped by the registry package
			}

			return writeAuth(cmd, encoded)
		},
	}
}

func newSwarmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "swarm",
		Short: "Print the X-Registry-Auth value for swarm service operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			supplier, err := setupSupplier(cmd)
			if err != nil {
				return err
			}

			encoded, err := registry.EncodedSwarmAuth(cmd.Context(), supplier)
			if err != nil {
				return err //nolint:wrapcheck // Already wrapped by the registry package
			}

			return writeAuth(cmd, encoded)
		},
	}
}

func newBuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Print the X-Registry-Config value for an image build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			supplier, err := setupSupplier(cmd)
			if err != nil {
				return err
			}

			encoded, err := registry.EncodedBuildConfig(cmd.Context(), supplier)
			if err != nil {
				return err //nolint:wrapcheck // Already wrapped by the registry package
			}

			if !decodeRequested(cmd) {
				return writeLine(cmd.OutOrStdout(), encoded)
			}

			configs, err := registry.DecodeRegistryConfig(encoded)
			if err != nil {
				return err //nolint:wrapcheck // Already wrapped by the registry package
			}

			wire := make(map[string]any, len(configs))
			for address, credential := range configs {
				wire[address] = registry.ToAuthConfig(credential)
			}

			return writeJSON(cmd.OutOrStdout(), wire)
		},
	}
}

// setupSupplier reads the credential flags and builds the source chain.
func setupSupplier(cmd *cobra.Command) (types.AuthSupplier, error) {
	opts, err := flags.ReadCredentialOptions(cmd.Flags())
	if err != nil {
		return nil, err //nolint:wrapcheck // Flag errors carry their own context
	}

	supplier, sources, err := newSupplier(cmd.Context(), opts)
	if err != nil {
		return nil, err
	}

	logging.WriteStartupMessage(nil, meta.Version, sources)

	return supplier, nil
}

// writeAuth prints an X-Registry-Auth value, or its decoded JSON with --decode.
// An empty value prints nothing in either mode.
func writeAuth(cmd *cobra.Command, encoded string) error {
	if encoded == "" {
		return nil
	}

	if !decodeRequested(cmd) {
		return writeLine(cmd.OutOrStdout(), encoded)
	}

	credential, err := registry.DecodeAuth(encoded)
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped by the registry package
	}

	return writeJSON(cmd.OutOrStdout(), registry.ToAuthConfig(*credential))
}

func decodeRequested(cmd *cobra.Command) bool {
	decode, _ := cmd.Flags().GetBool("decode")

	return decode
}

func writeLine(out io.Writer, value string) error {
	if _, err := fmt.Fprintln(out, value); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}
