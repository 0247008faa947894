package rod

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"browser-clearance/internal/application/port/output"

	"github.com/go-rod/rod/lib/launcher"
)

type LauncherConfig struct {
	Bin         string
	UserDataDir string
	Headless    bool
	NoSandbox   bool
	Stealth     bool
	// Leakless guards against orphaned Chrome processes; some antivirus
	// products flag its helper binary.
	Leakless bool
}

func DefaultLauncherConfig() LauncherConfig {
	return LauncherConfig{
		Headless: true,
		Stealth:  true,
		Leakless: true,
	}
}

var _ output.LauncherPort = (*ProcessLauncher)(nil)

// ProcessLauncher starts local Chrome processes. Their lifetime is tied to
// the launcher, not to any control session.
type ProcessLauncher struct {
	cfg LauncherConfig

	mu        sync.Mutex
	launchers []*launcher.Launcher
}

func NewProcessLauncher(cfg LauncherConfig) *ProcessLauncher {
	return &ProcessLauncher{cfg: cfg}
}

func (p *ProcessLauncher) Launch(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	l := newLauncher(p.cfg).Context(ctx)

	wsEndpoint, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("failed to launch browser: %w", err)
	}

	p.mu.Lock()
	p.launchers = append(p.launchers, l)
	p.mu.Unlock()

	return wsEndpoint, nil
}

func newLauncher(cfg LauncherConfig) *launcher.Launcher {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Leakless(cfg.Leakless).
		Delete("use-mock-keychain").
		Set("disable-dev-shm-usage")

	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	if !cfg.Headless {
		l = l.Set("start-maximized")
	}
	if cfg.Stealth {
		l = l.Set("disable-blink-features", "AutomationControlled")
	}
	return l
}

// Close kills every launched process and removes its temporary profile.
func (p *ProcessLauncher) Close() {
	p.mu.Lock()
	launchers := p.launchers
	p.launchers = nil
	p.mu.Unlock()

	for _, l := range launchers {
		l.Kill()
		l.Cleanup()
	}
}

// ResolveEndpoint turns a debugging port or an http address of a running
// browser into its websocket endpoint. Websocket addresses are returned as
// they are.
func ResolveEndpoint(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr, nil
	}

	wsEndpoint, err := launcher.ResolveURL(addr)
	if err != nil {
		return "", fmt.Errorf("resolve debugging endpoint %q: %w", addr, err)
	}
	return wsEndpoint, nil
}
