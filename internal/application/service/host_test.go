package service

import (
	"context"
	"errors"
	"testing"

	"browser-clearance/internal/application/port/output"
	"browser-clearance/internal/domain/entity"
	"browser-clearance/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBrowser struct {
	endpoint    string
	disconnects int
}

func (b *stubBrowser) WSEndpoint() string { return b.endpoint }
func (b *stubBrowser) Disconnect() error {
	b.disconnects++
	return nil
}
func (b *stubBrowser) Version(context.Context) (string, error)               { return "Chrome/120.0", nil }
func (b *stubBrowser) Open(context.Context, string) (output.PagePort, error) { return nil, nil }
func (b *stubBrowser) Close() error                                          { return nil }

type stubConnector struct {
	err      error
	opts     []output.ConnectOptions
	browsers []*stubBrowser
}

func (c *stubConnector) Connect(_ context.Context, wsEndpoint string, opts output.ConnectOptions) (output.BrowserPort, error) {
	if c.err != nil {
		return nil, c.err
	}
	b := &stubBrowser{endpoint: wsEndpoint}
	c.opts = append(c.opts, opts)
	c.browsers = append(c.browsers, b)
	return b, nil
}

type stubLauncher struct {
	endpoint string
	err      error
	closed   bool
}

func (l *stubLauncher) Launch(context.Context) (string, error) { return l.endpoint, l.err }
func (l *stubLauncher) Close()                                 { l.closed = true }

type hookExtension struct {
	name  string
	err   error
	trace *[]string
	seen  []output.BrowserPort
}

func (e *hookExtension) Name() string { return e.name }

func (e *hookExtension) OnBrowser(_ context.Context, b output.BrowserPort) error {
	*e.trace = append(*e.trace, e.name)
	e.seen = append(e.seen, b)
	return e.err
}

func newTestHost(connector output.ConnectorPort, launcher output.LauncherPort) *Host {
	return NewHost(connector, launcher, NewExtensionRegistry(), logger.NewNop())
}

func TestHost_ConnectNotifiesExtensionsInOrder(t *testing.T) {
	var trace []string
	first := &hookExtension{name: "first", trace: &trace}
	second := &hookExtension{name: "second", trace: &trace}

	connector := &stubConnector{}
	host := newTestHost(connector, nil)
	require.NoError(t, host.Use(first))
	require.NoError(t, host.Use(second))

	viewport := &entity.Viewport{Width: 800, Height: 600}
	b, err := host.Connect(context.Background(), "ws://127.0.0.1:9222/devtools/browser/abc", output.ConnectOptions{DefaultViewport: viewport})
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, trace)
	assert.Equal(t, []output.BrowserPort{b}, first.seen)
	assert.Equal(t, []output.BrowserPort{b}, second.seen)
	require.Len(t, connector.opts, 1)
	assert.Same(t, viewport, connector.opts[0].DefaultViewport)
}

func TestHost_UseRejectsDuplicate(t *testing.T) {
	var trace []string
	host := newTestHost(&stubConnector{}, nil)

	require.NoError(t, host.Use(&hookExtension{name: "clearance-plugin", trace: &trace}))
	assert.ErrorIs(t, host.Use(&hookExtension{name: "clearance-plugin", trace: &trace}), ErrDuplicateExtensionName)
}

func TestHost_HookFailureDropsSession(t *testing.T) {
	var trace []string
	hookErr := errors.New("boom")
	failing := &hookExtension{name: "failing", err: hookErr, trace: &trace}
	after := &hookExtension{name: "after", trace: &trace}

	connector := &stubConnector{}
	host := newTestHost(connector, nil)
	require.NoError(t, host.Use(failing))
	require.NoError(t, host.Use(after))

	b, err := host.Connect(context.Background(), "ws://127.0.0.1:9222/devtools/browser/abc", output.ConnectOptions{})
	assert.Nil(t, b)
	assert.ErrorIs(t, err, hookErr)
	assert.Contains(t, err.Error(), "failing")

	assert.Equal(t, []string{"failing"}, trace, "later hooks are not run")
	require.Len(t, connector.browsers, 1)
	assert.Equal(t, 1, connector.browsers[0].disconnects)
}

func TestHost_ConnectError(t *testing.T) {
	var trace []string
	dialErr := errors.New("connection refused")
	host := newTestHost(&stubConnector{err: dialErr}, nil)
	require.NoError(t, host.Use(&hookExtension{name: "ext", trace: &trace}))

	_, err := host.Connect(context.Background(), "ws://127.0.0.1:1/devtools/browser/x", output.ConnectOptions{})
	assert.ErrorIs(t, err, dialErr)
	assert.Empty(t, trace)
}

func TestHost_Launch(t *testing.T) {
	var trace []string
	launcher := &stubLauncher{endpoint: "ws://127.0.0.1:40000/devtools/browser/launched"}
	host := newTestHost(&stubConnector{}, launcher)
	require.NoError(t, host.Use(&hookExtension{name: "ext", trace: &trace}))

	b, err := host.Launch(context.Background(), output.ConnectOptions{})
	require.NoError(t, err)
	assert.Equal(t, launcher.endpoint, b.WSEndpoint())
	assert.Equal(t, []string{"ext"}, trace)

	host.Close()
	assert.True(t, launcher.closed)
}

func TestHost_LaunchErrors(t *testing.T) {
	_, err := newTestHost(&stubConnector{}, nil).Launch(context.Background(), output.ConnectOptions{})
	assert.Error(t, err)

	launchErr := errors.New("chrome not found")
	_, err = newTestHost(&stubConnector{}, &stubLauncher{err: launchErr}).Launch(context.Background(), output.ConnectOptions{})
	assert.ErrorIs(t, err, launchErr)
}

type detachingExtension struct {
	hookExtension
	detached []output.BrowserPort
}

func (e *detachingExtension) OnDetach(b output.BrowserPort) {
	e.detached = append(e.detached, b)
}

func TestHost_HookFailureDetachesEarlierExtensions(t *testing.T) {
	var trace []string
	attached := &detachingExtension{hookExtension: hookExtension{name: "attached", trace: &trace}}
	failing := &hookExtension{name: "failing", err: errors.New("boom"), trace: &trace}
	notReached := &detachingExtension{hookExtension: hookExtension{name: "not-reached", trace: &trace}}

	connector := &stubConnector{}
	host := newTestHost(connector, nil)
	require.NoError(t, host.Use(attached))
	require.NoError(t, host.Use(failing))
	require.NoError(t, host.Use(notReached))

	_, err := host.Connect(context.Background(), "ws://127.0.0.1:9222/devtools/browser/abc", output.ConnectOptions{})
	require.Error(t, err)

	require.Len(t, connector.browsers, 1)
	assert.Equal(t, []output.BrowserPort{connector.browsers[0]}, attached.detached)
	assert.Empty(t, notReached.detached)
}

func TestHost_Release(t *testing.T) {
	var trace []string
	ext := &detachingExtension{hookExtension: hookExtension{name: "ext", trace: &trace}}
	plain := &hookExtension{name: "plain", trace: &trace}

	host := newTestHost(&stubConnector{}, nil)
	require.NoError(t, host.Use(ext))
	require.NoError(t, host.Use(plain))

	b, err := host.Connect(context.Background(), "ws://127.0.0.1:9222/devtools/browser/abc", output.ConnectOptions{})
	require.NoError(t, err)

	host.Release(b)
	assert.Equal(t, []output.BrowserPort{b}, ext.detached)
	assert.Zero(t, b.(*stubBrowser).disconnects, "release does not touch the session")
}
