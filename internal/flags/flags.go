// Package flags manages command-line flags and environment variables for regauth configuration.
package flags

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nicholas-fedor/regauth/pkg/registry/auth"
	"github.com/nicholas-fedor/regauth/pkg/registry/credhelper"
)

// errInvalidLogFormat indicates an invalid log format was specified.
// It is used in SetupLogging to report configuration errors.
var errInvalidLogFormat = errors.New("invalid log format specified")

// errInvalidLogLevel indicates an invalid log level was specified.
// It is used in SetupLogging to report configuration errors.
var errInvalidLogLevel = errors.New("invalid log level specified")

// errReadFileFailed indicates a failure to read a file’s contents.
// It is used in getSecretFromFile to wrap os.ReadFile errors.
var errReadFileFailed = errors.New("failed to read secret file")

// errSetFlagFailed indicates a failure to set or read a flag’s value.
var errSetFlagFailed = errors.New("failed to set flag value")

// errNegativeFreshness indicates a negative --min-token-freshness.
var errNegativeFreshness = errors.New("minimum token freshness must not be negative")

// errIncompleteCredentials indicates a username without a password or the reverse.
var errIncompleteCredentials = errors.New("username and password must be set together")

// errIncompleteAWSKeys indicates only one half of an AWS key pair.
var errIncompleteAWSKeys = errors.New("ECR access key ID and secret access key must be set together")

// CredentialOptions holds the credential source configuration read from flags.
type CredentialOptions struct {
	// DockerConfig is the config file path. Empty means the default location.
	DockerConfig   string
	NoDockerConfig bool
	HelperPrefix   string
	Username       string
	Password       string
	ServerAddress  string
	GCR            bool
	GCRKeyFile     string
	GCRRegistries  []string
	ECR            bool
	ECRRegion      string
	ECRAccessKeyID string
	ECRSecretKey   string
	MinFreshness   time.Duration

	// StaticConfigured is derived: a username and password were both given.
	StaticConfigured bool
}

// RegisterSystemFlags adds flags that control logging to the root command.
func RegisterSystemFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.StringP(
		"log-format",
		"l",
		viper.GetString("REGAUTH_LOG_FORMAT"),
		"Sets what logging format to use for console output. Possible values: Auto, LogFmt, Pretty, JSON",
	)

	flags.BoolP(
		"debug",
		"d",
		envBool("REGAUTH_DEBUG"),
		"Enable debug mode with verbose logging")

	flags.BoolP(
		"trace",
		"",
		envBool("REGAUTH_TRACE"),
		"Enable trace mode with very verbose logging - caution, exposes credentials")

	// https://no-color.org/
	flags.BoolP(
		"no-color",
		"",
		viper.IsSet("NO_COLOR"),
		"Disable ANSI color escape codes in log output")

	flags.String(
		"log-level",
		envString("REGAUTH_LOG_LEVEL"),
		"The maximum log level that will be written to STDERR. Possible values: panic, fatal, error, warn, info, debug or trace",
	)

	flags.String(
		"metrics-file",
		envString("REGAUTH_METRICS_FILE"),
		"Write Prometheus metrics to this file on exit, for the node_exporter textfile collector")
}

// RegisterCredentialFlags adds the credential source flags to the root command.
func RegisterCredentialFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.String(
		"docker-config",
		envString("REGAUTH_DOCKER_CONFIG"),
		"Path to the Docker client config file. Defaults to config.json in $DOCKER_CONFIG or ~/.docker")

	flags.Bool(
		"no-docker-config",
		envBool("REGAUTH_NO_DOCKER_CONFIG"),
		"Do not read credentials from the Docker client config file")

	flags.String(
		"credential-helper-prefix",
		envString("REGAUTH_CREDENTIAL_HELPER_PREFIX"),
		"Executable name prefix of credential helpers")

	flags.StringP(
		"username",
		"u",
		envString("REPO_USER"),
		"Static registry username, takes precedence over every other source")

	flags.StringP(
		"password",
		"p",
		envString("REPO_PASS"),
		"Static registry password, or a file containing it")

	flags.String(
		"server-address",
		envString("REGAUTH_SERVER_ADDRESS"),
		"Registry the static credentials are keyed by for builds")

	flags.Bool(
		"gcr",
		envBool("REGAUTH_GCR"),
		"Use Google application default credentials for Container Registry hosts")

	flags.String(
		"gcr-key-file",
		envString("REGAUTH_GCR_KEY_FILE"),
		"Google service account key file used for Container Registry hosts")

	flags.StringSlice(
		"gcr-registries",
		envStringSlice("REGAUTH_GCR_REGISTRIES"),
		"Additional hosts, such as europe-docker.pkg.dev, served with Google credentials")

	flags.Bool(
		"ecr",
		envBool("REGAUTH_ECR"),
		"Use the AWS default credential chain for the account's ECR registry")

	flags.String(
		"ecr-region",
		envString("REGAUTH_ECR_REGION"),
		"AWS region of the ECR registry")

	flags.String(
		"ecr-access-key-id",
		envString("REGAUTH_ECR_ACCESS_KEY_ID"),
		"AWS access key ID used for ECR")

	flags.String(
		"ecr-secret-access-key",
		envString("REGAUTH_ECR_SECRET_ACCESS_KEY"),
		"AWS secret access key used for ECR, or a file containing it")

	flags.Duration(
		"min-token-freshness",
		envDuration("REGAUTH_MIN_TOKEN_FRESHNESS"),
		"Remaining lifetime below which a cached cloud token is refreshed")
}

// envString retrieves a string value from an environment variable via Viper.
// It binds the key to the environment and returns its value.
func envString(key string) string {
	viper.MustBindEnv(key)

	return viper.GetString(key)
}

// envStringSlice retrieves a string slice from an environment variable via Viper.
// It binds the key to the environment and returns its values.
func envStringSlice(key string) []string {
	viper.MustBindEnv(key)

	return viper.GetStringSlice(key)
}

// envBool retrieves a boolean value from an environment variable via Viper.
// It binds the key to the environment and returns its value.
func envBool(key string) bool {
	viper.MustBindEnv(key)

	return viper.GetBool(key)
}

// envDuration retrieves a duration value from an environment variable via Viper.
// It binds the key to the environment and returns its value.
func envDuration(key string) time.Duration {
	viper.MustBindEnv(key)

	return viper.GetDuration(key)
}

// SetDefaults configures default values for environment variables.
// It ensures consistent fallback behavior when flags or environment variables are unset.
func SetDefaults() {
	viper.AutomaticEnv()
	viper.SetDefault("REGAUTH_LOG_LEVEL", "info")
	viper.SetDefault("REGAUTH_LOG_FORMAT", "auto")
	viper.SetDefault("REGAUTH_CREDENTIAL_HELPER_PREFIX", credhelper.DefaultPrefix)
	viper.SetDefault("REGAUTH_MIN_TOKEN_FRESHNESS", auth.DefaultMinFreshness)
}

// ReadCredentialOptions retrieves the credential source configuration.
// Secret flags naming an existing file are replaced by the file's contents.
func ReadCredentialOptions(flags *pflag.FlagSet) (CredentialOptions, error) {
	for _, secret := range []string{"password", "ecr-secret-access-key"} {
		if err := getSecretFromFile(flags, secret); err != nil {
			return CredentialOptions{}, err
		}
	}

	var opts CredentialOptions

	var err error

	stringFlags := map[string]*string{
		"docker-config":            &opts.DockerConfig,
		"credential-helper-prefix": &opts.HelperPrefix,
		"username":                 &opts.Username,
		"password":                 &opts.Password,
		"server-address":           &opts.ServerAddress,
		"gcr-key-file":             &opts.GCRKeyFile,
		"ecr-region":               &opts.ECRRegion,
		"ecr-access-key-id":        &opts.ECRAccessKeyID,
		"ecr-secret-access-key":    &opts.ECRSecretKey,
	}
	for name, target := range stringFlags {
		if *target, err = flags.GetString(name); err != nil {
			return CredentialOptions{}, fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	boolFlags := map[string]*bool{
		"no-docker-config": &opts.NoDockerConfig,
		"gcr":              &opts.GCR,
		"ecr":              &opts.ECR,
	}
	for name, target := range boolFlags {
		if *target, err = flags.GetBool(name); err != nil {
			return CredentialOptions{}, fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	if opts.GCRRegistries, err = flags.GetStringSlice("gcr-registries"); err != nil {
		return CredentialOptions{}, fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if opts.MinFreshness, err = flags.GetDuration("min-token-freshness"); err != nil {
		return CredentialOptions{}, fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if err := opts.validate(); err != nil {
		return CredentialOptions{}, err
	}

	return opts, nil
}

// validate rejects half-configured sources and derives the enablement fields.
func (o *CredentialOptions) validate() error {
	if o.MinFreshness < 0 {
		return errNegativeFreshness
	}

	if (o.Username == "") != (o.Password == "") {
		return errIncompleteCredentials
	}

	if (o.ECRAccessKeyID == "") != (o.ECRSecretKey == "") {
		return errIncompleteAWSKeys
	}

	o.StaticConfigured = o.Username != ""
	o.GCR = o.GCR || o.GCRKeyFile != ""
	o.ECR = o.ECR || o.ECRRegion != "" || o.ECRAccessKeyID != ""

	return nil
}

// getSecretFromFile updates a flag’s value with file contents if it references a file.
func getSecretFromFile(flags *pflag.FlagSet, secret string) error {
	flag := flags.Lookup(secret)
	if flag == nil {
		return fmt.Errorf("%w: %q is not defined", errSetFlagFailed, secret)
	}

	value := flag.Value.String()
	if value != "" && isFilePath(value) {
		content, err := os.ReadFile(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errReadFileFailed, err)
		}

		if err := flags.Set(secret, strings.TrimSpace(string(content))); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	return nil
}

// isFilePath determines if a string likely represents a file path.
// It checks for file existence, avoiding false positives from URLs or invalid Windows paths.
func isFilePath(path string) bool {
	firstColon := strings.IndexRune(path, ':')
	if firstColon != 1 && firstColon != -1 {
		// If ':' exists but isn’t the second character, it’s likely not a file path (e.g., URLs).
		return false
	}

	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}

// ProcessFlagAliases synchronizes the log level with the --debug and --trace helper flags.
func ProcessFlagAliases(flags *pflag.FlagSet) {
	if flagIsEnabled(flags, "debug") {
		setFlag(flags, "log-level", "debug")
	}

	if flagIsEnabled(flags, "trace") {
		setFlag(flags, "log-level", "trace")
	}
}

// SetupLogging configures the global logger based on log-related flags.
// It sets the log format and level, returning an error for invalid configurations.
func SetupLogging(flags *pflag.FlagSet) error {
	logFormat, err := flags.GetString("log-format")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	noColor, err := flags.GetBool("no-color")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if err := configureLogFormat(logFormat, noColor); err != nil {
		return err
	}

	rawLogLevel, err := flags.GetString("log-level")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	logLevel, err := logrus.ParseLevel(rawLogLevel)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidLogLevel, err)
	}

	logrus.SetLevel(logLevel)

	return nil
}

// configureLogFormat sets the logrus formatter based on the specified format and color preference.
// It returns an error if the format is invalid.
func configureLogFormat(logFormat string, noColor bool) error {
	switch strings.ToLower(logFormat) {
	case "auto":
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors:             noColor,
			EnvironmentOverrideColors: true,
		})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "logfmt":
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	case "pretty":
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !noColor,
			FullTimestamp: false,
		})
	default:
		return fmt.Errorf("%w: %s", errInvalidLogFormat, logFormat)
	}

	return nil
}

// flagIsEnabled checks if a boolean flag is set to true.
// It exits with a fatal error if the flag is not defined.
func flagIsEnabled(flags *pflag.FlagSet, name string) bool {
	value, err := flags.GetBool(name)
	if err != nil {
		logrus.Fatalf("The flag %q is not defined", name)
	}

	return value
}

// setFlag sets a flag’s value, logging failures without stopping.
func setFlag(flags *pflag.FlagSet, name string, value string) {
	if err := flags.Set(name, value); err != nil {
		logrus.Errorf("Failed to set %s flag: %v", name, err)
	}
}
