// Package adapters implements resource.LiveView against the real
// operating system via shell commands, grounded on the same
// exec.CommandContext-plus-buffered-output pattern used elsewhere in
// this codebase for running external processes under a timeout.
package adapters

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"warden/internal/werr"
)

// PackageManager abstracts the system package manager (apt, yum/dnf,
// apk, ...) behind the three operations the Package resource needs.
type PackageManager interface {
	Installed(ctx context.Context, name string) (version string, ok bool, err error)
	Install(ctx context.Context, name, version string) error
	Remove(ctx context.Context, name string) error
}

// ShellPackageManager shells out to a configurable backend's CLI.
type ShellPackageManager struct {
	Backend string // "apt", "yum", "apk"
	Timeout time.Duration
}

func NewShellPackageManager(backend string) *ShellPackageManager {
	return &ShellPackageManager{Backend: backend, Timeout: 2 * time.Minute}
}

func (m *ShellPackageManager) run(ctx context.Context, name string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String(), werr.Wrap(werr.RemediationFailed, "%s %v: %v: %s", name, args, err, stderr.String())
	}
	return stdout.String(), nil
}

func (m *ShellPackageManager) Installed(ctx context.Context, name string) (string, bool, error) {
	switch m.Backend {
	case "apt":
		out, err := m.run(ctx, "dpkg-query", "-W", "-f=${Version}", name)
		if err != nil {
			return "", false, nil
		}
		return strings.TrimSpace(out), true, nil
	case "yum":
		out, err := m.run(ctx, "rpm", "-q", "--qf=%{VERSION}-%{RELEASE}", name)
		if err != nil {
			return "", false, nil
		}
		return strings.TrimSpace(out), true, nil
	case "apk":
		out, err := m.run(ctx, "apk", "info", "-e", name)
		if err != nil || strings.TrimSpace(out) == "" {
			return "", false, nil
		}
		return "", true, nil
	default:
		return "", false, werr.Wrap(werr.InvalidValue, "unknown package backend %q", m.Backend)
	}
}

func (m *ShellPackageManager) Install(ctx context.Context, name, version string) error {
	target := name
	switch m.Backend {
	case "apt":
		if version != "" && version != "latest" {
			target = name + "=" + version
		}
		_, err := m.run(ctx, "apt-get", "install", "-y", target)
		return err
	case "yum":
		if version != "" && version != "latest" {
			target = name + "-" + version
		}
		_, err := m.run(ctx, "yum", "install", "-y", target)
		return err
	case "apk":
		if version != "" && version != "latest" {
			target = name + "=" + version
		}
		_, err := m.run(ctx, "apk", "add", target)
		return err
	default:
		return werr.Wrap(werr.InvalidValue, "unknown package backend %q", m.Backend)
	}
}

func (m *ShellPackageManager) Remove(ctx context.Context, name string) error {
	switch m.Backend {
	case "apt":
		_, err := m.run(ctx, "apt-get", "remove", "-y", name)
		return err
	case "yum":
		_, err := m.run(ctx, "yum", "remove", "-y", name)
		return err
	case "apk":
		_, err := m.run(ctx, "apk", "del", name)
		return err
	default:
		return werr.Wrap(werr.InvalidValue, "unknown package backend %q", m.Backend)
	}
}
