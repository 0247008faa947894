package service

import (
	"context"
	"fmt"

	"browser-clearance/internal/application/port/output"
)

var _ output.ConnectorPort = (*Host)(nil)

// Host creates browser handles and announces each one to the registered
// extensions. It is itself a ConnectorPort, so handles that extensions create
// through it get announced too.
type Host struct {
	connector  output.ConnectorPort
	launcher   output.LauncherPort
	extensions output.ExtensionRegistry
	log        output.LoggerPort
}

func NewHost(connector output.ConnectorPort, launcher output.LauncherPort, extensions output.ExtensionRegistry, log output.LoggerPort) *Host {
	return &Host{
		connector:  connector,
		launcher:   launcher,
		extensions: extensions,
		log:        log.WithField("component", "host"),
	}
}

func (h *Host) Use(ext output.ExtensionPort) error {
	if err := h.extensions.Register(ext); err != nil {
		return err
	}
	h.log.Debug("extension registered", "extension", ext.Name())
	return nil
}

func (h *Host) Extensions() output.ExtensionRegistry {
	return h.extensions
}

// Launch starts a new browser process and connects to it.
func (h *Host) Launch(ctx context.Context, opts output.ConnectOptions) (output.BrowserPort, error) {
	if h.launcher == nil {
		return nil, fmt.Errorf("no launcher configured")
	}

	wsEndpoint, err := h.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	h.log.Info("browser launched", "ws_endpoint", wsEndpoint)

	return h.Connect(ctx, wsEndpoint, opts)
}

// Connect opens a control session to a running browser and runs every
// extension's OnBrowser hook on it. If a hook fails, the session is dropped
// and the browser itself is left running.
func (h *Host) Connect(ctx context.Context, wsEndpoint string, opts output.ConnectOptions) (output.BrowserPort, error) {
	browser, err := h.connector.Connect(ctx, wsEndpoint, opts)
	if err != nil {
		return nil, err
	}
	h.log.Debug("browser connected", "ws_endpoint", wsEndpoint)

	extensions := h.extensions.All()
	for i, ext := range extensions {
		if err := ext.OnBrowser(ctx, browser); err != nil {
			detach(extensions[:i+1], browser)
			if dErr := browser.Disconnect(); dErr != nil {
				h.log.Warn("disconnect after failed hook", "extension", ext.Name(), "error", dErr)
			}
			return nil, fmt.Errorf("extension %s: %w", ext.Name(), err)
		}
		h.log.Debug("extension attached", "extension", ext.Name(), "ws_endpoint", wsEndpoint)
	}

	return browser, nil
}

// Release tells extensions that browser will not be used through the host
// anymore. Call it for handles that are closed or disconnected instead of
// being refreshed.
func (h *Host) Release(browser output.BrowserPort) {
	detach(h.extensions.All(), browser)
}

func detach(extensions []output.ExtensionPort, browser output.BrowserPort) {
	for _, ext := range extensions {
		if d, ok := ext.(output.BrowserDetacher); ok {
			d.OnDetach(browser)
		}
	}
}

// Close kills every browser process started by Launch.
func (h *Host) Close() {
	if h.launcher != nil {
		h.launcher.Close()
	}
}
