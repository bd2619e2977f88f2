// Package install prepares the output directory as a package-manager
// project holding every requested shared dependency.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fluxbase-eu/sharedmods/internal/deps"
	"github.com/fluxbase-eu/sharedmods/internal/manifest"
	"github.com/fluxbase-eu/sharedmods/internal/observability"
)

// ManifestName is the name of the generated install manifest.
const ManifestName = "sharedmods-built-modules"

// DefaultTimeout bounds one install run.
const DefaultTimeout = 10 * time.Minute

// Error is returned when the install command fails.
type Error struct {
	Command string
	Output  string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %v: %s", e.Command, e.Err, e.Output)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WriteManifest writes <dir>/package.json depending on every requested
// package. Requests without a version get "*".
func WriteManifest(dir string, requests deps.Set) (string, error) {
	versions := requests.Versions()
	m := &manifest.Manifest{
		Name:         ManifestName,
		Version:      "0.0.0",
		Dependencies: make(map[string]string, len(versions)),
	}
	for name, version := range versions {
		if version == "" {
			version = "*"
		}
		m.Dependencies[name] = version
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, manifest.FileName)
	if err := m.Write(path); err != nil {
		return "", fmt.Errorf("failed to write install manifest: %w", err)
	}
	return path, nil
}

// Installer runs the package manager in the output directory.
type Installer struct {
	command []string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewInstaller creates an installer for a command line such as "pnpm install".
func NewInstaller(command string, logger zerolog.Logger) (*Installer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("install command is empty")
	}
	return &Installer{
		command: fields,
		timeout: DefaultTimeout,
		logger:  logger.With().Str("component", "install").Logger(),
	}, nil
}

// Install writes the manifest for requests into dir and runs the command there.
func (i *Installer) Install(ctx context.Context, dir string, requests deps.Set) error {
	path, err := WriteManifest(dir, requests)
	if err != nil {
		return err
	}
	i.logger.Debug().Str("manifest", path).Int("dependencies", len(requests.Names())).Msg("Install manifest written")
	return i.Run(ctx, dir)
}

// Run executes the install command in dir.
func (i *Installer) Run(ctx context.Context, dir string) error {
	ctx, span := observability.StartPassSpan(ctx, "install", ManifestName)
	runCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	start := time.Now()
	commandLine := strings.Join(i.command, " ")

	cmd := exec.CommandContext(runCtx, i.command[0], i.command[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), traceEnv(ctx)...)

	var output strings.Builder
	cmd.Stdout = &output
	cmd.Stderr = &output

	i.logger.Info().Str("command", commandLine).Str("dir", dir).Msg("Installing shared dependencies")

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("timeout after %s: %w", i.timeout, runCtx.Err())
	}
	if err != nil {
		err = &Error{Command: commandLine, Output: strings.TrimSpace(output.String()), Err: err}
	}
	observability.EndSpan(span, err)
	if err != nil {
		return err
	}

	i.logger.Info().Dur("duration", time.Since(start)).Msg("Shared dependencies installed")
	return nil
}

// traceEnv returns the trace context as KEY=VALUE pairs, sorted.
func traceEnv(ctx context.Context) []string {
	env := observability.GetTraceContextEnv(ctx)
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}
