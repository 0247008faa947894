// Package extension holds host extensions that add operations to browser
// handles.
package extension

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"browser-clearance/internal/application/port/input"
	"browser-clearance/internal/application/port/output"
)

const ClearanceName = "clearance-plugin"

var (
	// ErrNoEndpoint means the handle has no remote-debugging address, so it
	// cannot be reconnected. Nothing was disconnected.
	ErrNoEndpoint = errors.New("no websocket endpoint found, browser must support remote debugging")

	ErrNotAttached = errors.New("clearance extension is not attached to this browser")
)

// ReconnectError is returned when the old session was already dropped but a
// new one could not be established. No usable handle is left.
type ReconnectError struct {
	Endpoint string
	Err      error
}

func (e *ReconnectError) Error() string {
	return fmt.Sprintf("reconnect to %s: %v", e.Endpoint, e.Err)
}

func (e *ReconnectError) Unwrap() error {
	return e.Err
}

// Refresh drops the control session of browser and opens a new one against
// the same process through connector. The new session does not force a
// viewport.
//
// The old handle is unusable once Refresh gets past the endpoint check,
// whether or not the reconnect succeeds. Concurrent calls on the same handle
// are not serialized.
func Refresh(ctx context.Context, browser output.BrowserPort, connector output.ConnectorPort) (output.BrowserPort, error) {
	wsEndpoint := browser.WSEndpoint()
	if wsEndpoint == "" {
		return nil, ErrNoEndpoint
	}

	if err := browser.Disconnect(); err != nil {
		return nil, fmt.Errorf("disconnect: %w", err)
	}

	fresh, err := connector.Connect(ctx, wsEndpoint, output.ConnectOptions{DefaultViewport: nil})
	if err != nil {
		return nil, &ReconnectError{Endpoint: wsEndpoint, Err: err}
	}
	return fresh, nil
}

var (
	_ output.ExtensionPort    = (*Clearance)(nil)
	_ output.BrowserDetacher  = (*Clearance)(nil)
	_ input.ClearanceProvider = (*Clearance)(nil)
)

// Clearance installs GetClearance on every browser the host announces.
// A handle stays attached until it is refreshed or the host releases it.
type Clearance struct {
	connector output.ConnectorPort

	mu       sync.Mutex
	attached map[output.BrowserPort]struct{}
}

// NewClearance reconnects through connector. Pass the host so refreshed
// handles are announced to the extensions again.
func NewClearance(connector output.ConnectorPort) *Clearance {
	return &Clearance{
		connector: connector,
		attached:  make(map[output.BrowserPort]struct{}),
	}
}

func (c *Clearance) Name() string { return ClearanceName }

func (c *Clearance) OnBrowser(_ context.Context, browser output.BrowserPort) error {
	c.mu.Lock()
	c.attached[browser] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (c *Clearance) OnDetach(browser output.BrowserPort) {
	c.mu.Lock()
	delete(c.attached, browser)
	c.mu.Unlock()
}

func (c *Clearance) Attached(browser output.BrowserPort) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.attached[browser]
	return ok
}

// GetClearance runs Refresh on a browser this extension was attached to.
func (c *Clearance) GetClearance(ctx context.Context, browser output.BrowserPort) (output.BrowserPort, error) {
	if !c.Attached(browser) {
		return nil, ErrNotAttached
	}

	fresh, err := Refresh(ctx, browser, c.connector)
	if err != nil && errors.Is(err, ErrNoEndpoint) {
		return nil, err
	}

	c.mu.Lock()
	delete(c.attached, browser)
	c.mu.Unlock()

	return fresh, err
}
