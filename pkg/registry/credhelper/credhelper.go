// Package credhelper runs external docker-credential-* helpers to resolve
// credentials for a single registry host.
package credhelper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/docker/docker-credential-helpers/client"
	"github.com/docker/docker-credential-helpers/credentials"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/regauth/pkg/metrics"
	"github.com/nicholas-fedor/regauth/pkg/types"
)

// DefaultPrefix is prepended to a helper name to form the executable name.
const DefaultPrefix = "docker-credential-"

// Errors for credential helper invocations.
var (
	// errHelperNotInstalled indicates the helper executable could not be located.
	errHelperNotInstalled = errors.New("credential helper executable not found")
	// errHelperExited indicates the helper exited with an error other than "not found".
	errHelperExited = errors.New("credential helper exited with an error")
	// errHelperOutput indicates the helper printed something that is not a credentials object.
	errHelperOutput = errors.New("failed to decode credential helper output")
)

// Bridge resolves a credential for one registry host through a named helper.
// A nil credential with a nil error means the helper holds nothing for the host.
type Bridge interface {
	Get(ctx context.Context, helperName, registryHost string) (*types.RegistryAuth, error)
}

// NotFoundFunc decides whether a failed helper invocation means "no credential"
// rather than a genuine failure. output is the helper's stdout; err is the
// error returned by the process, which may be an *exec.ExitError carrying stderr.
type NotFoundFunc func(output []byte, err error) bool

// ProgramFactory creates the process used to talk to a helper executable.
type ProgramFactory func(ctx context.Context, command string) client.ProgramFunc

// ExecBridge runs helper executables following the docker credential helper protocol.
type ExecBridge struct {
	prefix     string
	newProgram ProgramFactory
	notFound   NotFoundFunc
	perHelper  map[string]NotFoundFunc
}

// Option configures an ExecBridge.
type Option func(*ExecBridge)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(b *ExecBridge) {
		b.prefix = prefix
	}
}

// WithProgramFactory replaces process creation, mainly for tests.
func WithProgramFactory(factory ProgramFactory) Option {
	return func(b *ExecBridge) {
		b.newProgram = factory
	}
}

// WithNotFoundFunc sets the "not found" classifier used for helpers without a specific one.
func WithNotFoundFunc(fn NotFoundFunc) Option {
	return func(b *ExecBridge) {
		b.notFound = fn
	}
}

// WithHelperNotFoundFunc sets the "not found" classifier for a single helper name.
func WithHelperNotFoundFunc(helperName string, fn NotFoundFunc) Option {
	return func(b *ExecBridge) {
		b.perHelper[helperName] = fn
	}
}

// NewExecBridge returns a bridge that executes <prefix><helper> get.
func NewExecBridge(opts ...Option) *ExecBridge {
	bridge := &ExecBridge{
		prefix:     DefaultPrefix,
		newProgram: NewProgramFunc,
		notFound:   MessageNotFound,
		perHelper:  map[string]NotFoundFunc{},
	}

	for _, opt := range opts {
		opt(bridge)
	}

	return bridge
}

// Get runs the helper's "get" action for registryHost.
func (b *ExecBridge) Get(ctx context.Context, helperName, registryHost string) (*types.RegistryAuth, error) {
	command := b.prefix + helperName
	fields := logrus.Fields{
		"helper":   command,
		"registry": registryHost,
	}

	logrus.WithFields(fields).Debug("Invoking credential helper")

	program := b.newProgram(ctx, command)(credentials.ActionGet)
	program.Input(strings.NewReader(registryHost + "\n"))

	output, err := program.Output()
	if err != nil {
		if b.isNotFound(helperName, output, err) {
			logrus.WithFields(fields).Debug("Credential helper has no credentials for registry")
			metrics.Default().RecordHelperInvocation(helperName, metrics.ResultAbsent)

			return nil, nil
		}

		metrics.Default().RecordHelperInvocation(helperName, metrics.ResultError)

		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w: %s: %w", types.ErrHelperFailure, errHelperNotInstalled, command, err)
		}

		return nil, fmt.Errorf(
			"%w: %w: %s: %w: %s",
			types.ErrHelperFailure,
			errHelperExited,
			command,
			err,
			strings.TrimSpace(string(output)),
		)
	}

	var creds credentials.Credentials
	if err := json.Unmarshal(output, &creds); err != nil {
		metrics.Default().RecordHelperInvocation(helperName, metrics.ResultError)

		return nil, fmt.Errorf("%w: %w: %s: %w", types.ErrHelperFailure, errHelperOutput, command, err)
	}

	if creds.Username == "" && creds.Secret == "" {
		logrus.WithFields(fields).Debug("Credential helper returned an empty credential")
		metrics.Default().RecordHelperInvocation(helperName, metrics.ResultAbsent)

		return nil, nil
	}

	serverAddress := creds.ServerURL
	if serverAddress == "" {
		serverAddress = registryHost
	}

	logrus.WithFields(fields).WithField("username", creds.Username).Debug("Credential helper returned credentials")
	metrics.Default().RecordHelperInvocation(helperName, metrics.ResultFound)

	// The protocol does not distinguish tokens from passwords: Secret is always the password.
	return &types.RegistryAuth{
		ServerAddress: serverAddress,
		Username:      creds.Username,
		Password:      creds.Secret,
	}, nil
}

func (b *ExecBridge) isNotFound(helperName string, output []byte, err error) bool {
	if fn, ok := b.perHelper[helperName]; ok {
		return fn(output, err)
	}

	return b.notFound(output, err)
}

// MessageNotFound recognizes the standard "credentials not found in native
// keychain" message on stdout or stderr.
func MessageNotFound(output []byte, err error) bool {
	if credentials.IsErrCredentialsNotFoundMessage(string(output)) || credentials.IsErrCredentialsNotFound(err) {
		return true
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return credentials.IsErrCredentialsNotFoundMessage(string(exitErr.Stderr))
	}

	return false
}

// ExitCodeNotFound returns a classifier treating the given exit codes as "not found",
// for helpers that signal a missing entry through their exit status only.
func ExitCodeNotFound(codes ...int) NotFoundFunc {
	return func(output []byte, err error) bool {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return false
		}

		for _, code := range codes {
			if exitErr.ExitCode() == code {
				return true
			}
		}

		return MessageNotFound(output, err)
	}
}

// NewProgramFunc starts helpers bound to ctx. Stderr is left unset so that
// exec populates ExitError.Stderr for the not-found classifiers.
func NewProgramFunc(ctx context.Context, command string) client.ProgramFunc {
	return func(args ...string) client.Program {
		return &process{cmd: exec.CommandContext(ctx, command, args...)}
	}
}

// process adapts exec.Cmd to client.Program.
type process struct {
	cmd *exec.Cmd
}

// Output runs the helper and returns its stdout.
func (p *process) Output() ([]byte, error) {
	return p.cmd.Output()
}

// Input sets the helper's stdin.
func (p *process) Input(in io.Reader) {
	p.cmd.Stdin = in
}
