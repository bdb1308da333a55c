package hostevent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/builderkit/modloader/log"
)

const dialRetryDelay = 500 * time.Millisecond

// Feed reads host lifecycle events from a websocket and emits them.
type Feed struct {
	conn    *websocket.Conn
	emitter *Emitter
	logger  *log.Logger
}

// DialFeed connects to the host event feed at serverURL. Refused
// connections are retried up to retryCount times, since the host page may
// come up after the dispatcher.
func DialFeed(
	ctx context.Context, serverURL string, emitter *Emitter, logger *log.Logger, retryCount int,
) (*Feed, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("hostevent: parsing feed URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil && strings.Contains(err.Error(), "connection refused") && retryCount > 0 {
		logger.Debugf("Feed:dial", "connection refused, %d retries left", retryCount)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("hostevent: dialing feed: %w", ctx.Err())
		case <-time.After(dialRetryDelay):
		}
		return DialFeed(ctx, serverURL, emitter, logger, retryCount-1)
	}
	if err != nil {
		return nil, fmt.Errorf("hostevent: dialing feed: %w", err)
	}

	return &Feed{
		conn:    conn,
		emitter: emitter,
		logger:  logger,
	}, nil
}

// Listen emits every decodable message until the connection closes or ctx
// is done. Malformed messages are logged and skipped.
func (f *Feed) Listen(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = f.conn.Close()
	}()

	for {
		_, message, err := f.conn.ReadMessage()
		if websocket.IsCloseError(err,
			websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
		) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("hostevent: reading feed message: %w", err)
		}

		ev, err := Decode(message)
		if err != nil {
			f.logger.Warnf("Feed:listen", "decoding host message %q: %v", message, err)
			continue
		}
		if ev.Name == "" {
			f.logger.Warnf("Feed:listen", "ignoring host message without event name")
			continue
		}
		f.logger.Tracef("Feed:listen", "event:%q key:%q", ev.Name, ev.Payload.Key)
		f.emitter.Emit(ev)
	}
}

// Close sends a close frame and closes the connection.
func (f *Feed) Close() error {
	err := f.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("hostevent: sending close message: %w", err)
	}
	if err := f.conn.Close(); err != nil {
		return fmt.Errorf("hostevent: closing feed connection: %w", err)
	}
	return nil
}
