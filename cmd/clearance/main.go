package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"browser-clearance/internal/adapter/extension"
	"browser-clearance/internal/application/port/output"
	"browser-clearance/internal/di"
	"browser-clearance/internal/domain/entity"
	"browser-clearance/internal/infrastructure/browser/rod"
	"browser-clearance/internal/infrastructure/env"

	"github.com/alecthomas/kong"
)

type BrowserFlags struct {
	Stealth        bool          `help:"Open pages with anti-detection patches." env:"CLEARANCE_STEALTH" default:"true" negatable:""`
	Trace          bool          `help:"Trace CDP actions." env:"CLEARANCE_TRACE"`
	SlowMotion     time.Duration `help:"Delay between CDP actions." env:"CLEARANCE_SLOW_MOTION" default:"0s"`
	PageTimeout    time.Duration `help:"Timeout for page navigation." env:"CLEARANCE_PAGE_TIMEOUT" default:"30s"`
	ConnectTimeout time.Duration `help:"Bound for the reconnect step of a refresh (0 = none)." env:"CLEARANCE_CONNECT_TIMEOUT" default:"0s"`
	Viewport       string        `help:"Force a viewport on the first session, e.g. 1280x800. Refreshed sessions never force one." env:"CLEARANCE_VIEWPORT"`
	Screenshot     string        `help:"Write a JPEG of the page opened through the fresh session to this path." type:"path"`
}

type LaunchCmd struct {
	BrowserFlags `embed:""`

	URL       string `arg:"" optional:"" default:"about:blank" help:"Page to open before and after the refresh."`
	Bin       string `help:"Chrome binary (default: download or detect)." env:"CLEARANCE_BROWSER_BIN"`
	Headless  bool   `help:"Run Chrome headless." env:"CLEARANCE_HEADLESS" default:"true" negatable:""`
	NoSandbox bool   `help:"Disable the Chrome sandbox (Docker, root)." env:"CLEARANCE_NO_SANDBOX"`
}

type RefreshCmd struct {
	BrowserFlags `embed:""`

	Endpoint string `short:"e" default:"9222" env:"CLEARANCE_WS_ENDPOINT" help:"Websocket endpoint, http address or debugging port of a running Chrome."`
	URL      string `help:"Page to open through the fresh session."`
}

type CLI struct {
	Timeout time.Duration `help:"Overall run timeout." env:"CLEARANCE_TIMEOUT" default:"5m"`

	Launch  LaunchCmd  `cmd:"" help:"Launch Chrome, open a page, refresh the control session and open it again."`
	Refresh RefreshCmd `cmd:"" help:"Attach to a running Chrome and replace the control session."`
}

type runContext struct {
	ctx       context.Context
	container *di.Container
}

func main() {
	envService := env.NewEnvService()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("clearance"),
		kong.Description("Reconnect to a running Chrome with a fresh CDP control session."),
		kong.UsageOnError(),
	)

	var launcherCfg rod.LauncherConfig
	var browserFlags BrowserFlags
	if strings.HasPrefix(kctx.Command(), "launch") {
		browserFlags = cli.Launch.BrowserFlags
		launcherCfg = rod.DefaultLauncherConfig()
		launcherCfg.Bin = cli.Launch.Bin
		launcherCfg.Headless = cli.Launch.Headless
		launcherCfg.NoSandbox = cli.Launch.NoSandbox
		launcherCfg.Stealth = cli.Launch.Stealth
	} else {
		browserFlags = cli.Refresh.BrowserFlags
	}

	cfg := di.ConfigFromEnv(envService)
	cfg.Browser = rod.BrowserConfig{
		SlowMotion: browserFlags.SlowMotion,
		Timeout:    browserFlags.PageTimeout,
		Trace:      browserFlags.Trace,
		Stealth:    browserFlags.Stealth,
	}
	cfg.Launcher = launcherCfg

	container, err := di.NewContainer(cfg)
	kctx.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, cli.Timeout)

	err = kctx.Run(&runContext{ctx: ctx, container: container})
	if err != nil {
		container.Logger.Error("run failed", "command", kctx.Command(), "error", err)
	}

	cancel()
	stop()
	container.Close()

	if err != nil {
		os.Exit(1)
	}
}

func (c *LaunchCmd) Run(rc *runContext) error {
	log := rc.container.Logger.WithField("command", "launch")

	viewport, err := parseViewport(c.Viewport)
	if err != nil {
		return err
	}

	browser, err := rc.container.Host.Launch(rc.ctx, output.ConnectOptions{DefaultViewport: viewport})
	if err != nil {
		return err
	}

	content, err := visit(rc.ctx, browser, c.URL, "")
	if err != nil {
		return err
	}
	log.Info("page opened", "url", content.URL, "title", content.Title, "ws_endpoint", browser.WSEndpoint())

	fresh, err := refresh(rc, browser, c.ConnectTimeout)
	if err != nil {
		return err
	}

	content, err = visit(rc.ctx, fresh, c.URL, c.Screenshot)
	if err != nil {
		return err
	}
	log.Info("page opened through fresh session", "url", content.URL, "title", content.Title)

	// The launched process is killed on container close.
	rc.container.Host.Release(fresh)

	fmt.Println(fresh.WSEndpoint())
	return nil
}

func (c *RefreshCmd) Run(rc *runContext) error {
	log := rc.container.Logger.WithField("command", "refresh")

	wsEndpoint, err := rod.ResolveEndpoint(c.Endpoint)
	if err != nil {
		return err
	}

	viewport, err := parseViewport(c.Viewport)
	if err != nil {
		return err
	}

	browser, err := rc.container.Host.Connect(rc.ctx, wsEndpoint, output.ConnectOptions{DefaultViewport: viewport})
	if err != nil {
		return err
	}

	fresh, err := refresh(rc, browser, c.ConnectTimeout)
	if err != nil {
		return err
	}
	// The browser belongs to someone else; only drop our session.
	defer func() {
		rc.container.Host.Release(fresh)
		_ = fresh.Disconnect()
	}()

	version, err := fresh.Version(rc.ctx)
	if err != nil {
		return err
	}
	log.Info("fresh session ready", "ws_endpoint", fresh.WSEndpoint(), "version", version)

	if c.URL != "" {
		content, err := visit(rc.ctx, fresh, c.URL, c.Screenshot)
		if err != nil {
			return err
		}
		log.Info("page opened through fresh session", "url", content.URL, "title", content.Title)
	}

	fmt.Println(fresh.WSEndpoint())
	return nil
}

func refresh(rc *runContext, browser output.BrowserPort, timeout time.Duration) (output.BrowserPort, error) {
	ctx := rc.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fresh, err := rc.container.Clearance.GetClearance(ctx, browser)
	if err != nil {
		var reconnectErr *extension.ReconnectError
		if errors.As(err, &reconnectErr) {
			rc.container.Logger.Error("session dropped and reconnect failed, no usable handle left",
				"ws_endpoint", reconnectErr.Endpoint, "error", reconnectErr.Err)
		}
		return nil, fmt.Errorf("get clearance: %w", err)
	}
	return fresh, nil
}

func visit(ctx context.Context, browser output.BrowserPort, url, screenshotPath string) (*entity.PageContent, error) {
	page, err := browser.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	content, err := page.Content(ctx)
	if err != nil {
		return nil, err
	}

	if screenshotPath != "" {
		shot, err := page.Screenshot(ctx)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(screenshotPath, shot.Data, 0o644); err != nil {
			return nil, fmt.Errorf("write screenshot: %w", err)
		}
	}

	return content, nil
}

func parseViewport(s string) (*entity.Viewport, error) {
	if s == "" {
		return nil, nil
	}
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return nil, fmt.Errorf("invalid viewport %q, want WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return nil, fmt.Errorf("invalid viewport width %q", w)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return nil, fmt.Errorf("invalid viewport height %q", h)
	}
	return &entity.Viewport{Width: width, Height: height}, nil
}
