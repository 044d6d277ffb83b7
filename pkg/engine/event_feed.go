package engine

import (
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	feedReadWait = 60 * time.Second
	feedPingWait = 30 * time.Second
)

// EventFeed consumes the engine's ordered event stream over a websocket.
// Events for a single channel arrive in the order the engine emits them.
type EventFeed struct {
	conn *websocket.Conn
}

// DialEventFeed connects to the engine's event stream for the given managed
// application.
func DialEventFeed(wsURL, apiKey, app string) (*EventFeed, error) {
	header := map[string][]string{
		"X-API-Key": {apiKey},
		"X-App":     {app},
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		return nil, errors.Wrap(ErrEngineUnavailable, err.Error())
	}

	return &EventFeed{conn: conn}, nil
}

// Run reads events one at a time and hands each to handler, preserving feed
// order. It returns when the connection drops.
func (f *EventFeed) Run(handler func(Event)) error {
	defer f.conn.Close()

	f.conn.SetReadDeadline(time.Now().Add(feedReadWait))
	f.conn.SetPongHandler(func(string) error {
		f.conn.SetReadDeadline(time.Now().Add(feedReadWait))
		return nil
	})

	go f.pingLoop()

	for {
		var evt Event
		if err := f.conn.ReadJSON(&evt); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Errorf("event feed closed unexpectedly: %v", err)
			}
			return errors.Wrap(ErrEngineUnavailable, err.Error())
		}

		handler(evt)
	}
}

func (f *EventFeed) pingLoop() {
	ticker := time.NewTicker(feedPingWait)
	defer ticker.Stop()

	for range ticker.C {
		if err := f.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedPingWait)); err != nil {
			return
		}
	}
}

// Close tears down the feed connection.
func (f *EventFeed) Close() error {
	return f.conn.Close()
}
