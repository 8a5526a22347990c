// Package flags manages command-line flags and environment variables for regauth configuration.
// It configures logging and the credential sources the resolver chain is built from via Cobra and Viper.
//
// Key components:
//   - RegisterSystemFlags: Adds logging flags.
//   - RegisterCredentialFlags: Adds static, Docker config, GCR and ECR source flags.
//   - ReadCredentialOptions: Collects and validates the source configuration.
//   - SetupLogging: Configures logrus based on flags.
//
// Usage example:
//
//	cmd := &cobra.Command{}
//	flags.SetDefaults()
//	flags.RegisterSystemFlags(cmd)
//	flags.RegisterCredentialFlags(cmd)
//	err := flags.SetupLogging(cmd.PersistentFlags())
//	if err != nil {
//	    logrus.WithError(err).Fatal("Logging setup failed")
//	}
//
// Every flag can also be set through the environment: REGAUTH_ prefixed variables,
// plus REPO_USER and REPO_PASS for static credentials.
package flags
