package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event mirrors internal/events.Event as it crosses the wire on /feed.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// feedClient pumps /feed into a buffered channel until closed or the
// connection drops.
type feedClient struct {
	conn      *websocket.Conn
	events    chan *Event
	done      chan struct{}
	closeOnce sync.Once
}

// Feed dials the admin surface's live event feed and returns a channel of
// decoded events plus a close func. The channel closes when the
// connection drops or close is called.
func (c *Client) Feed(ctx context.Context) (<-chan *Event, func() error, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("client: invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/feed"

	headers := make(map[string][]string)
	if c.opts.apiKey != "" {
		headers["Authorization"] = []string{"Bearer " + c.opts.apiKey}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, nil, fmt.Errorf("client: feed dial: %w", err)
	}

	fc := &feedClient{
		conn:   conn,
		events: make(chan *Event, 64),
		done:   make(chan struct{}),
	}
	go fc.readLoop()

	return fc.events, fc.close, nil
}

func (fc *feedClient) readLoop() {
	defer close(fc.events)
	for {
		select {
		case <-fc.done:
			return
		default:
		}

		_, message, err := fc.conn.ReadMessage()
		if err != nil {
			return
		}

		var e Event
		if err := json.Unmarshal(message, &e); err != nil {
			continue
		}

		select {
		case fc.events <- &e:
		case <-fc.done:
			return
		}
	}
}

func (fc *feedClient) close() error {
	var err error
	fc.closeOnce.Do(func() {
		close(fc.done)
		_ = fc.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = fc.conn.Close()
	})
	return err
}
