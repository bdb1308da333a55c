package cdp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builderkit/modloader/activation"
	"github.com/builderkit/modloader/log"
)

type fakePage struct {
	mu          sync.Mutex
	expressions []string
}

func (p *fakePage) evaluated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.expressions...)
}

// reply answers a Runtime.evaluate expression like a page that defines
// initializeFlashcards and throws on anything containing "throw".
func (p *fakePage) reply(expr string) string {
	switch {
	case strings.Contains(expr, "throw"):
		return `{"result":{"type":"object"},"exceptionDetails":{"exceptionId":1,"text":"Uncaught",` +
			`"lineNumber":0,"columnNumber":0,"exception":{"type":"object","description":"Error: boom"}}}`
	case strings.Contains(expr, `("initializeFlashcards"`):
		return `{"result":{"type":"boolean","value":true}}`
	case strings.Contains(expr, "(function (name, cfg)"):
		return `{"result":{"type":"boolean","value":false}}`
	default:
		return `{"result":{"type":"undefined"}}`
	}
}

func newFakePage(t *testing.T) (*Client, *fakePage) {
	t.Helper()

	page := &fakePage{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var upgrader websocket.Upgrader
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close() //nolint:errcheck

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				ID     int64  `json:"id"`
				Method string `json:"method"`
				Params struct {
					Expression string `json:"expression"`
				} `json:"params"`
			}
			require.NoError(t, json.Unmarshal(data, &msg))
			assert.Equal(t, "Runtime.evaluate", msg.Method)

			page.mu.Lock()
			page.expressions = append(page.expressions, msg.Params.Expression)
			page.mu.Unlock()

			// An unrelated event must not be taken for the reply.
			event := `{"method":"Runtime.consoleAPICalled","params":{"type":"log","args":[],"executionContextId":1,"timestamp":0}}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(event)); err != nil {
				return
			}
			reply := `{"id":` + jsonInt(msg.ID) + `,"result":` + page.reply(msg.Params.Expression) + `}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	c, err := Dial(context.Background(), "ws://"+srv.Listener.Addr().String(), log.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Logf("closing client: %v", err)
		}
	})

	return c, page
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestRunner(t *testing.T) {
	t.Parallel()

	client, page := newFakePage(t)
	r := NewRunner(client)
	ctx := context.Background()

	require.NoError(t, r.Run(ctx, "https://cdn.example.com/flashcards.js", []byte(`window.initializeFlashcards = function () {}`)))

	ok, err := r.Initialize(ctx, "initializeFlashcards", activation.Config{"viewKey": "view_3005"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Initialize(ctx, "initializeMissing", activation.Config{})
	require.NoError(t, err)
	assert.False(t, ok)

	err = r.Run(ctx, "bad.js", []byte(`throw new Error("boom")`))
	assert.ErrorContains(t, err, "Error: boom")

	exprs := page.evaluated()
	require.Len(t, exprs, 4)
	assert.Contains(t, exprs[0], "//# sourceURL=https://cdn.example.com/flashcards.js")
	assert.Contains(t, exprs[1], `{"viewKey":"view_3005"}`)
}

func TestClientClosed(t *testing.T) {
	t.Parallel()

	client, _ := newFakePage(t)
	require.NoError(t, client.Close())

	_, err := NewRunner(client).Initialize(context.Background(), "initializeFlashcards", nil)
	assert.ErrorIs(t, err, ErrClosed)
}
