package adapters

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"warden/internal/werr"
)

// ServiceManager abstracts the init system (systemd's systemctl, or a
// plain SysV service script) behind the operations the Service
// resource needs.
type ServiceManager interface {
	Status(ctx context.Context, name string) (running, enabled bool, err error)
	SetRunning(ctx context.Context, name string, running bool) error
	SetEnabled(ctx context.Context, name string, enabled bool) error
}

// SystemdServiceManager drives systemctl.
type SystemdServiceManager struct {
	Timeout time.Duration
}

func NewSystemdServiceManager() *SystemdServiceManager {
	return &SystemdServiceManager{Timeout: 30 * time.Second}
}

func (m *SystemdServiceManager) run(ctx context.Context, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "systemctl", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String(), werr.Wrap(werr.RemediationFailed, "systemctl %v: %v: %s", args, err, stderr.String())
	}
	return stdout.String(), nil
}

func (m *SystemdServiceManager) Status(ctx context.Context, name string) (bool, bool, error) {
	out, _ := m.run(ctx, "is-active", name)
	running := strings.TrimSpace(out) == "active"
	out, _ = m.run(ctx, "is-enabled", name)
	enabled := strings.TrimSpace(out) == "enabled"
	return running, enabled, nil
}

func (m *SystemdServiceManager) SetRunning(ctx context.Context, name string, running bool) error {
	action := "stop"
	if running {
		action = "start"
	}
	_, err := m.run(ctx, action, name)
	return err
}

func (m *SystemdServiceManager) SetEnabled(ctx context.Context, name string, enabled bool) error {
	action := "disable"
	if enabled {
		action = "enable"
	}
	_, err := m.run(ctx, action, name)
	return err
}
