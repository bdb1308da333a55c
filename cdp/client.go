// Package cdp runs module bundles inside a real browser page over the
// Chrome DevTools Protocol.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"

	"github.com/builderkit/modloader/log"
)

var _ cdp.Executor = &Client{}

// ErrClosed is returned for commands issued after the connection closed.
var ErrClosed = errors.New("cdp connection closed")

// Client executes CDP commands against one page target.
type Client struct {
	logger *log.Logger
	wsURL  string

	conn    *websocket.Conn
	writeMu sync.Mutex
	msgID   int64

	msgSubsMu sync.Mutex
	msgSubs   map[int64]chan *cdproto.Message

	done chan struct{}
}

// Dial connects to the page target exposed at wsURL, e.g.
// ws://127.0.0.1:9222/devtools/page/<targetID>.
func Dial(ctx context.Context, wsURL string, logger *log.Logger) (*Client, error) {
	wd := &websocket.Dialer{
		HandshakeTimeout: time.Second * 10,
		ReadBufferSize:   1 << 20,
		WriteBufferSize:  1 << 20,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, _, err := wd.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("connecting to CDP endpoint %q: %w", wsURL, err)
	}
	logger.Infof("cdp", "established CDP connection to %q", wsURL)

	c := &Client{
		logger:  logger,
		wsURL:   wsURL,
		conn:    conn,
		msgSubs: make(map[int64]chan *cdproto.Message),
		done:    make(chan struct{}),
	}
	go c.recvLoop()

	return c, nil
}

// Execute implements cdp.Executor and performs a synchronous send and
// receive.
func (c *Client) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	c.logger.Debugf("Client:Execute", "wsURL:%q method:%q", c.wsURL, method)

	var buf []byte
	if params != nil {
		var err error
		if buf, err = easyjson.Marshal(params); err != nil {
			return fmt.Errorf("marshaling %s params: %w", method, err)
		}
	}
	msg := &cdproto.Message{
		ID:     atomic.AddInt64(&c.msgID, 1),
		Method: cdproto.MethodType(method),
		Params: buf,
	}

	recvCh := make(chan *cdproto.Message, 1)
	c.msgSubsMu.Lock()
	c.msgSubs[msg.ID] = recvCh
	c.msgSubsMu.Unlock()
	defer func() {
		c.msgSubsMu.Lock()
		delete(c.msgSubs, msg.ID)
		c.msgSubsMu.Unlock()
	}()

	if err := c.send(msg); err != nil {
		return err
	}

	select {
	case reply := <-recvCh:
		switch {
		case reply.Error != nil:
			return reply.Error
		case res != nil:
			return easyjson.Unmarshal(reply.Result, res)
		}
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) send(msg *cdproto.Message) error {
	buf, err := easyjson.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling CDP message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
		return fmt.Errorf("writing CDP message: %w", err)
	}
	return nil
}

func (c *Client) recvLoop() {
	defer close(c.done)

	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debugf("Client:recvLoop", "wsURL:%q err:%v", c.wsURL, err)
			return
		}

		var msg cdproto.Message
		if err := easyjson.Unmarshal(buf, &msg); err != nil {
			c.logger.Errorf("Client:recvLoop", "unmarshaling CDP message: %v", err)
			continue
		}

		switch {
		case msg.ID > 0:
			c.msgSubsMu.Lock()
			ch, ok := c.msgSubs[msg.ID]
			c.msgSubsMu.Unlock()
			if ok {
				ch <- &msg
			}
		case msg.Method != "":
			// Page events are not needed to run bundles.
			c.logger.Tracef("Client:recvLoop", "ignoring event %q", msg.Method)
		default:
			c.logger.Errorf("Client:recvLoop", "ignoring malformed incoming CDP message (missing id or method)")
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	if cerr := c.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	<-c.done
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("closing CDP connection: %w", err)
	}
	return nil
}
