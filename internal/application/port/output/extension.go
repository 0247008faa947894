package output

import "context"

type ExtensionPort interface {
	Name() string
	// OnBrowser is called once for every browser handle the host creates.
	OnBrowser(ctx context.Context, browser BrowserPort) error
}

// BrowserDetacher is implemented by extensions that keep per-browser state.
// OnDetach is called when the host stops tracking a browser handle.
type BrowserDetacher interface {
	OnDetach(browser BrowserPort)
}

type ExtensionRegistry interface {
	Register(ext ExtensionPort) error
	Get(name string) (ExtensionPort, bool)
	All() []ExtensionPort
}
