package rod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/url"
	"sync"
	"time"

	"browser-clearance/internal/application/port/output"
	"browser-clearance/internal/domain/entity"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/devices"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	maxScreenshotWidth      = 1024
)

var (
	ErrDisconnected = errors.New("browser session is disconnected")
	ErrInvalidURL   = errors.New("invalid URL")
)

type BrowserConfig struct {
	SlowMotion time.Duration
	Timeout    time.Duration
	Trace      bool
	Stealth    bool
}

func DefaultConfig() BrowserConfig {
	return BrowserConfig{
		SlowMotion: 0,
		Timeout:    defaultTimeout,
		Trace:      false,
		Stealth:    true,
	}
}

var _ output.ConnectorPort = (*Connector)(nil)

// Connector opens CDP control sessions to already running browsers.
type Connector struct {
	cfg BrowserConfig
}

func NewConnector(cfg BrowserConfig) *Connector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Connector{cfg: cfg}
}

func (c *Connector) Connect(ctx context.Context, wsEndpoint string, opts output.ConnectOptions) (output.BrowserPort, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := dialWS(ctx, wsEndpoint)
	if err != nil {
		return nil, err
	}

	// Rod emulates a laptop screen by default; a session must not resize
	// the window it attaches to.
	browser := rod.New().
		Client(cdp.New().Start(conn)).
		DefaultDevice(devices.Clear).
		Trace(c.cfg.Trace).
		SlowMotion(c.cfg.SlowMotion)

	// The browser keeps a background context: its event hub must outlive
	// ctx. Only the handshake is bound to ctx, by dropping the socket.
	done := make(chan error, 1)
	go func() { done <- browser.Connect() }()

	select {
	case err := <-done:
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to connect to browser: %w", err)
		}
	case <-ctx.Done():
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to browser: %w", ctx.Err())
	}

	return &BrowserAdapter{
		browser:    browser,
		conn:       conn,
		wsEndpoint: wsEndpoint,
		viewport:   opts.DefaultViewport,
		timeout:    c.cfg.Timeout,
		stealth:    c.cfg.Stealth,
	}, nil
}

var _ output.BrowserPort = (*BrowserAdapter)(nil)

type BrowserAdapter struct {
	browser    *rod.Browser
	conn       *wsConn
	wsEndpoint string
	viewport   *entity.Viewport
	timeout    time.Duration
	stealth    bool

	mu           sync.Mutex
	disconnected bool
}

func (b *BrowserAdapter) WSEndpoint() string {
	return b.wsEndpoint
}

// Disconnect drops the control session and leaves the browser running.
// Only the first call succeeds.
func (b *BrowserAdapter) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disconnected {
		return ErrDisconnected
	}
	b.disconnected = true

	if err := b.conn.Close(); err != nil {
		return fmt.Errorf("close control session: %w", err)
	}
	return nil
}

func (b *BrowserAdapter) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.disconnected
}

func (b *BrowserAdapter) session(ctx context.Context) (*rod.Browser, error) {
	if !b.IsReady() {
		return nil, ErrDisconnected
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return b.browser.Context(ctx), nil
}

func (b *BrowserAdapter) Version(ctx context.Context) (string, error) {
	browser, err := b.session(ctx)
	if err != nil {
		return "", err
	}

	res, err := proto.BrowserGetVersion{}.Call(browser)
	if err != nil {
		return "", fmt.Errorf("get version: %w", err)
	}
	return res.Product, nil
}

func (b *BrowserAdapter) Open(ctx context.Context, rawURL string) (output.PagePort, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	browser, err := b.session(ctx)
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if b.stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if b.viewport != nil {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.viewport.Width,
			Height:            b.viewport.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}

	p := page.Timeout(b.timeout)
	if err := p.Navigate(rawURL); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("wait load: %w", err)
	}

	return &PageAdapter{page: page, timeout: b.timeout}, nil
}

// Close shuts the browser process down through the current session.
func (b *BrowserAdapter) Close() error {
	browser, err := b.session(context.Background())
	if err != nil {
		return err
	}

	closeErr := browser.Close()
	_ = b.Disconnect()
	if closeErr != nil {
		return fmt.Errorf("close browser: %w", closeErr)
	}
	return nil
}

var _ output.PagePort = (*PageAdapter)(nil)

type PageAdapter struct {
	page    *rod.Page
	timeout time.Duration
}

func (p *PageAdapter) Content(ctx context.Context) (*entity.PageContent, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}
	return &entity.PageContent{
		URL:   info.URL,
		Title: info.Title,
	}, nil
}

func (p *PageAdapter) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	imgBytes, err := p.page.Context(ctx).Timeout(p.timeout).Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	if img.Bounds().Dx() > maxScreenshotWidth {
		img = imaging.Resize(img, maxScreenshotWidth, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}

	return &entity.Screenshot{
		Data:   buf.Bytes(),
		Format: "jpeg",
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

func (p *PageAdapter) Close() error {
	return p.page.Context(context.Background()).Close()
}

func validateURL(rawURL string) error {
	if rawURL == "about:blank" {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidURL, rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q has no host", ErrInvalidURL, rawURL)
	}
	return nil
}
