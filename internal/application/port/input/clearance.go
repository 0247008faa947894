package input

import (
	"context"

	"browser-clearance/internal/application/port/output"
)

// ClearanceProvider hands out a fresh control session for a browser the host
// already knows about. The browser handle passed in is unusable afterwards,
// even when an error is returned after the disconnect step.
type ClearanceProvider interface {
	GetClearance(ctx context.Context, browser output.BrowserPort) (output.BrowserPort, error)
}
