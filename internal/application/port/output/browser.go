package output

import (
	"context"

	"browser-clearance/internal/domain/entity"
)

// BrowserPort is one control session to a browser process. The process
// outlives the session: Disconnect drops the session, Close ends the process.
type BrowserPort interface {
	WSEndpoint() string
	Disconnect() error

	Version(ctx context.Context) (string, error)
	Open(ctx context.Context, url string) (PagePort, error)

	Close() error
}

type PagePort interface {
	Content(ctx context.Context) (*entity.PageContent, error)
	Screenshot(ctx context.Context) (*entity.Screenshot, error)
	Close() error
}

type ConnectOptions struct {
	// DefaultViewport is applied to every page of the session. Nil keeps the
	// window size the browser already has.
	DefaultViewport *entity.Viewport
}

type ConnectorPort interface {
	Connect(ctx context.Context, wsEndpoint string, opts ConnectOptions) (BrowserPort, error)
}

type LauncherPort interface {
	Launch(ctx context.Context) (wsEndpoint string, err error)
	Close()
}
