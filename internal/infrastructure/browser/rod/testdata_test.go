package rod

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

const BasicHTML = `<!DOCTYPE html>
<html>
<head><title>Test Page</title></head>
<body>
	<h1>Hello World</h1>
</body>
</html>`

const fakeProduct = "HeadlessChrome/120.0.6099.109"

// fakeCDP is a websocket endpoint that answers every CDP call with an empty
// result, except Browser.getVersion. It stands in for the debugging socket
// of a running Chrome.
type fakeCDP struct {
	srv *httptest.Server

	mu      sync.Mutex
	opened  int
	closed  int
	methods []string
}

func newFakeCDP(t *testing.T) *fakeCDP {
	return startFakeCDP(t, false)
}

// newSilentCDP accepts the websocket and reads calls but never answers,
// like a browser that hangs after the handshake.
func newSilentCDP(t *testing.T) *fakeCDP {
	return startFakeCDP(t, true)
}

func startFakeCDP(t *testing.T, silent bool) *fakeCDP {
	t.Helper()

	f := &fakeCDP{}
	upgrader := websocket.Upgrader{}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.opened++
		f.mu.Unlock()

		defer func() {
			conn.Close()
			f.mu.Lock()
			f.closed++
			f.mu.Unlock()
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var req struct {
				ID        int    `json:"id"`
				SessionID string `json:"sessionId,omitempty"`
				Method    string `json:"method"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				return
			}

			f.mu.Lock()
			f.methods = append(f.methods, req.Method)
			f.mu.Unlock()

			if silent {
				continue
			}

			result := map[string]any{}
			if req.Method == "Browser.getVersion" {
				result = map[string]any{
					"protocolVersion": "1.3",
					"product":         fakeProduct,
					"revision":        "@1",
					"userAgent":       "Mozilla/5.0 HeadlessChrome/120.0.6099.109",
					"jsVersion":       "12.0",
				}
			}

			resp, _ := json.Marshal(map[string]any{
				"id":        req.ID,
				"sessionId": req.SessionID,
				"result":    result,
			})
			if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
				return
			}
		}
	}))
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeCDP) endpoint() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/devtools/browser/abc"
}

func (f *fakeCDP) stats() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

func (f *fakeCDP) called(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.methods {
		if m == method {
			return true
		}
	}
	return false
}
