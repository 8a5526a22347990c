// Package dockerconfig reads Docker client credential files in the legacy flat
// and the modern "auths" layouts and resolves registry credentials from them,
// delegating to credential helpers where the file says so.
package dockerconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	dockerCliConfig "github.com/docker/cli/cli/config"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/regauth/pkg/registry/credhelper"
	"github.com/nicholas-fedor/regauth/pkg/registry/imageref"
	"github.com/nicholas-fedor/regauth/pkg/types"
)

// Errors for config file operations.
var (
	// errReadConfig indicates the config file exists but could not be read.
	errReadConfig = errors.New("failed to read credentials file")
	// errNoConfigDir indicates no config directory could be determined.
	errNoConfigDir = errors.New("could not determine docker config directory")
	// errInvalidAuthField indicates an "auth" value that is not base64 of user:pass.
	errInvalidAuthField = errors.New("invalid auth field")
	// errInvalidEntry indicates an entry that is not a JSON object of strings.
	errInvalidEntry = errors.New("invalid registry entry")
)

// Top-level keys of the modern layout. Everything else in a file without
// "auths" is read as a legacy registry entry unless listed in clientKeys.
const (
	keyAuths       = "auths"
	keyCredHelpers = "credHelpers"
	keyCredsStore  = "credsStore"
)

// clientKeys are docker CLI settings that may appear next to legacy entries.
// Values that are not JSON objects are skipped as well, so unknown scalar
// settings never read as registries.
var clientKeys = map[string]struct{}{
	keyCredHelpers:         {},
	keyCredsStore:          {},
	"HttpHeaders":          {},
	"psFormat":             {},
	"imagesFormat":         {},
	"networksFormat":       {},
	"pluginsFormat":        {},
	"volumesFormat":        {},
	"statsFormat":          {},
	"serviceInspectFormat": {},
	"servicesFormat":       {},
	"tasksFormat":          {},
	"secretFormat":         {},
	"configFormat":         {},
	"nodesFormat":          {},
	"detachKeys":           {},
	"pruneFilters":         {},
	"proxies":              {},
	"plugins":              {},
	"experimental":         {},
	"currentContext":       {},
	"cliPluginsExtraDirs":  {},
	"aliases":              {},
	"features":             {},
	"credentialHelpers":    {},
	"credentialSpecs":      {},
	"stackOrchestrator":    {},
	"kubernetes":           {},
}

// Entry is one registry entry as stored on disk.
type Entry struct {
	Auth          string `json:"auth,omitempty"`
	Email         string `json:"email,omitempty"`
	IdentityToken string `json:"identitytoken,omitempty"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`

	err error // Decoding failure, reported on resolution instead of on read.
}

// Config is the normalized content of a credentials file.
type Config struct {
	Path        string
	Auths       map[string]Entry
	CredHelpers map[string]string
	CredsStore  string
}

// DefaultPath returns $DOCKER_CONFIG/config.json, or ~/.docker/config.json.
func DefaultPath() (string, error) {
	dir := dockerCliConfig.Dir()
	if dir == "" || dir == ".docker" {
		return "", errNoConfigDir
	}

	return filepath.Join(dir, dockerCliConfig.ConfigFileName), nil
}

// Reader parses credential files and resolves credentials from them. It holds
// no mutable state: every call works on the Config it is given.
type Reader struct {
	bridge credhelper.Bridge
}

// NewReader returns a Reader delegating helper lookups to bridge.
func NewReader(bridge credhelper.Bridge) *Reader {
	return &Reader{bridge: bridge}
}

// Read loads and normalizes the file at path. A missing file yields an error
// wrapping types.ErrConfigNotFound. Malformed JSON yields an empty Config so
// that callers proceed without credentials.
func (r *Reader) Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrConfigNotFound, path)
		}

		return nil, fmt.Errorf("%w: %s: %w", errReadConfig, path, err)
	}

	return Parse(path, data), nil
}

// Parse normalizes raw file content. It never fails; undecodable parts are
// dropped or kept as entries that resolve to no credential.
func Parse(path string, data []byte) *Config {
	config := &Config{
		Path:        path,
		Auths:       map[string]Entry{},
		CredHelpers: map[string]string{},
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		logrus.WithError(err).WithField("config_file", path).Warn("Ignoring malformed credentials file")

		return config
	}

	if raw, ok := top[keyCredHelpers]; ok {
		if err := json.Unmarshal(raw, &config.CredHelpers); err != nil {
			logrus.WithError(err).WithField("config_file", path).Debug("Ignoring malformed credHelpers")

			config.CredHelpers = map[string]string{}
		}
	}

	if raw, ok := top[keyCredsStore]; ok {
		if err := json.Unmarshal(raw, &config.CredsStore); err != nil {
			logrus.WithError(err).WithField("config_file", path).Debug("Ignoring malformed credsStore")
		}
	}

	entries := top
	if raw, ok := top[keyAuths]; ok {
		entries = map[string]json.RawMessage{}
		if err := json.Unmarshal(raw, &entries); err != nil {
			logrus.WithError(err).WithField("config_file", path).Debug("Ignoring malformed auths")
		}
	} else {
		entries = legacyEntries(top)
	}

	for address, raw := range entries {
		config.Auths[address] = decodeEntry(raw)
	}

	logrus.WithFields(logrus.Fields{
		"config_file":  path,
		"auths":        len(config.Auths),
		"cred_helpers": len(config.CredHelpers),
		"creds_store":  config.CredsStore,
	}).Debug("Parsed credentials file")

	return config
}

// legacyEntries returns the top-level keys of a file without "auths" that are
// registry entries rather than client settings.
func legacyEntries(top map[string]json.RawMessage) map[string]json.RawMessage {
	entries := make(map[string]json.RawMessage, len(top))

	for key, raw := range top {
		if _, skip := clientKeys[key]; skip || !isObject(raw) {
			continue
		}

		entries[key] = raw
	}

	return entries
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")

	return len(trimmed) > 0 && trimmed[0] == '{'
}

func decodeEntry(raw json.RawMessage) Entry {
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{err: fmt.Errorf("%w: %w", errInvalidEntry, err)}
	}

	return entry
}

// credential converts an entry into a credential. ok is false when the entry
// holds neither an auth value nor an identity token.
func (e Entry) credential(serverAddress string) (*types.RegistryAuth, bool, error) {
	if e.err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", types.ErrMalformedEntry, serverAddress, e.err)
	}

	auth := types.RegistryAuth{
		ServerAddress: serverAddress,
		Username:      e.Username,
		Password:      e.Password,
		IdentityToken: e.IdentityToken,
		Email:         e.Email,
	}

	if e.Auth != "" {
		decoded, err := types.FromBasicAuth(e.Auth)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s: %w: %w", types.ErrMalformedEntry, serverAddress, errInvalidAuthField, err)
		}

		auth.Username = decoded.Username
		auth.Password = decoded.Password
	}

	if auth.IsEmpty() {
		return nil, false, nil
	}

	return &auth, true, nil
}

// Resolve returns the credential for registry, which may be a bare host or a
// URL. Precedence: an "auths" entry, then a host-specific helper from
// credHelpers, then the credsStore helper. A nil credential with a nil error
// means nothing is configured for the registry.
func (r *Reader) Resolve(ctx context.Context, config *Config, registry string) (*types.RegistryAuth, error) {
	fields := logrus.Fields{
		"registry":    registry,
		"config_file": config.Path,
	}

	if key, entry, found := lookup(config.Auths, registry); found {
		auth, ok, err := entry.credential(key)
		if err != nil {
			return nil, err
		}

		if ok {
			logrus.WithFields(fields).WithField("entry", key).Debug("Resolved credentials from auths")

			return auth, nil
		}
	}

	if _, helper, found := lookup(config.CredHelpers, registry); found && helper != "" {
		logrus.WithFields(fields).WithField("helper", helper).Debug("Delegating to registry credential helper")

		return r.fromHelper(ctx, helper, registry)
	}

	if config.CredsStore != "" {
		logrus.WithFields(fields).WithField("helper", config.CredsStore).Debug("Delegating to credentials store")

		return r.fromHelper(ctx, config.CredsStore, registry)
	}

	logrus.WithFields(fields).Debug("No credentials configured for registry")

	return nil, nil
}

// ResolveAll resolves every registry named in "auths" or "credHelpers".
// Registries only reachable through credsStore are not enumerated. Malformed
// entries are skipped; helper failures are returned.
func (r *Reader) ResolveAll(ctx context.Context, config *Config) (types.RegistryConfigs, error) {
	configs := types.NewRegistryConfigs()

	for _, registry := range config.registries() {
		auth, err := r.Resolve(ctx, config, registry)
		if err != nil {
			if errors.Is(err, types.ErrMalformedEntry) {
				logrus.WithError(err).WithField("registry", registry).Warn("Skipping malformed registry entry")

				continue
			}

			return nil, err
		}

		if auth == nil {
			continue
		}

		configs[registry] = auth.ForServer(registry)
	}

	return configs, nil
}

// registries lists the hosts named in auths and credHelpers, sorted for stable
// helper invocation order.
func (c *Config) registries() []string {
	seen := make(map[string]struct{}, len(c.Auths)+len(c.CredHelpers))
	registries := make([]string, 0, len(c.Auths)+len(c.CredHelpers))

	add := func(registry string) {
		if _, ok := seen[registry]; ok {
			return
		}

		seen[registry] = struct{}{}
		registries = append(registries, registry)
	}

	for registry := range c.Auths {
		add(registry)
	}

	for registry := range c.CredHelpers {
		if _, _, found := lookup(c.Auths, registry); found {
			continue
		}

		add(registry)
	}

	sort.Strings(registries)

	return registries
}

func (r *Reader) fromHelper(ctx context.Context, helper, registry string) (*types.RegistryAuth, error) {
	if r.bridge == nil {
		return nil, fmt.Errorf("%w: no bridge configured for helper %q", types.ErrHelperFailure, helper)
	}

	auth, err := r.bridge.Get(ctx, helper, helperAddress(registry))
	if err != nil {
		return nil, err
	}

	if auth == nil {
		return nil, nil
	}

	if auth.ServerAddress == "" {
		resolved := auth.ForServer(registry)
		auth = &resolved
	}

	return auth, nil
}

// helperAddress is the server address handed to a helper: the legacy index
// URL for Docker Hub, the bare host[:port] otherwise.
func helperAddress(registry string) string {
	if imageref.IsDockerHub(registry) {
		return imageref.DefaultRegistryURL
	}

	return imageref.Host(registry)
}

// lookup finds the map key matching registry. The exact key wins; otherwise a
// bare host matches stored URLs (https:// before http://), a URL matches a
// stored bare host, hosts compare case-insensitively, and Docker Hub aliases
// match the legacy index URL.
func lookup[V any](entries map[string]V, registry string) (string, V, bool) {
	var zero V

	if value, ok := entries[registry]; ok {
		return registry, value, true
	}

	for _, candidate := range candidates(registry) {
		for key, value := range entries {
			if strings.EqualFold(key, candidate) {
				return key, value, true
			}
		}
	}

	host := imageref.Host(registry)
	for _, key := range sortedKeys(entries) {
		if strings.EqualFold(imageref.Host(key), host) {
			return key, entries[key], true
		}
	}

	if imageref.IsDockerHub(registry) {
		for _, key := range sortedKeys(entries) {
			if imageref.IsDockerHub(key) {
				return key, entries[key], true
			}
		}
	}

	return "", zero, false
}

// candidates lists the spellings tried for registry after the exact key.
func candidates(registry string) []string {
	bare := imageref.StripScheme(registry)
	if bare == registry {
		return []string{registry, "https://" + bare, "http://" + bare}
	}

	return []string{registry, bare}
}

// sortedKeys orders keys so that https:// entries are preferred over http://
// ones when several spellings of one host are stored.
func sortedKeys[V any](entries map[string]V) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		ri, rj := schemeRank(keys[i]), schemeRank(keys[j])
		if ri != rj {
			return ri < rj
		}

		return keys[i] < keys[j]
	})

	return keys
}

func schemeRank(key string) int {
	switch {
	case strings.HasPrefix(strings.ToLower(key), "https://"):
		return 0
	case strings.HasPrefix(strings.ToLower(key), "http://"):
		return 1
	default:
		return 2
	}
}
