// Package cmd contains the command-line interface (CLI) definitions and execution logic for regauth.
// It provides the root command and subcommands that resolve registry credentials and print them
// in the encodings the Docker Engine API expects.
//
// Key components:
//   - rootCmd: Root command carrying logging and credential source flags.
//   - pull: Prints the X-Registry-Auth value for an image.
//   - build: Prints the X-Registry-Config value for a build.
//   - swarm: Prints the X-Registry-Auth value for swarm service operations.
//
// Usage examples:
//   - Run the CLI from main.go:
//     cmd.Execute()
//   - Pull through the Engine API with resolved credentials:
//     curl -H "X-Registry-Auth: $(regauth pull ghcr.io/org/app)" ...
//   - Inspect what a build would send:
//     regauth build --decode
//
// The package integrates with the flags, registry and auth packages,
// using Cobra for CLI parsing and logrus for logging.
package cmd
