// Package client speaks the websocket protocol of the WC gateway.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"wc-reservation-backend/internal/gateway"
)

const writeWait = 10 * time.Second

// ErrClosed is returned once the connection has gone away.
var ErrClosed = errors.New("connection closed")

// Event is a decoded server frame. Exactly one payload field is set,
// matching Name.
type Event struct {
	Name         string
	Status       *gateway.StatusPayload
	Released     *gateway.ReleasedPayload
	AutoReleased *gateway.AutoReleasedPayload
	Ack          *gateway.AckPayload
	Error        string
}

// Client is a connection to the gateway.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	events  chan Event

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Dial connects to the gateway websocket at url, e.g. ws://localhost:5000/ws.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		conn:   conn,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events delivers server frames in arrival order. It is closed when the
// connection ends; Err then reports why.
func (c *Client) Events() <-chan Event { return c.events }

// Err returns the read error that ended the connection, if any.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// GetStatus asks for a private status snapshot.
func (c *Client) GetStatus() error {
	return c.send(gateway.Message{Event: gateway.EventGetStatus})
}

// Reserve asks to become the holder.
func (c *Client) Reserve(userID int64) error {
	return c.sendUser(gateway.EventReserve, userID)
}

// Release asks to give the WC back.
func (c *Client) Release(userID int64) error {
	return c.sendUser(gateway.EventRelease, userID)
}

// WaitFor returns the first event whose name is in names. Other events are
// discarded.
func (c *Client) WaitFor(ctx context.Context, names ...string) (Event, error) {
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				if err := c.Err(); err != nil {
					return Event{}, err
				}
				return Event{}, ErrClosed
			}
			for _, name := range names {
				if ev.Name == name {
					return ev, nil
				}
			}
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) sendUser(event string, userID int64) error {
	data, err := json.Marshal(gateway.UserRequest{UserID: userID})
	if err != nil {
		return err
	}
	return c.send(gateway.Message{Event: event, Data: data})
}

func (c *Client) send(msg gateway.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var msg gateway.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.finish(err)
			return
		}
		ev, err := decode(msg)
		if err != nil {
			continue
		}
		c.events <- ev
	}
}

func (c *Client) finish(err error) {
	c.closeOnce.Do(func() {
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.err = err
		}
		close(c.done)
	})
}

func decode(msg gateway.Message) (Event, error) {
	ev := Event{Name: msg.Event}
	var target any
	switch msg.Event {
	case gateway.EventStatus:
		ev.Status = &gateway.StatusPayload{}
		target = ev.Status
	case gateway.EventReleased:
		ev.Released = &gateway.ReleasedPayload{}
		target = ev.Released
	case gateway.EventAutoReleased:
		ev.AutoReleased = &gateway.AutoReleasedPayload{}
		target = ev.AutoReleased
	case gateway.EventReserved, gateway.EventReleasedSuccess:
		ev.Ack = &gateway.AckPayload{}
		target = ev.Ack
	case gateway.EventError:
		var p gateway.ErrorPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return Event{}, err
		}
		ev.Error = p.Message
		return ev, nil
	default:
		return Event{}, fmt.Errorf("unknown event %q", msg.Event)
	}
	if err := json.Unmarshal(msg.Data, target); err != nil {
		return Event{}, err
	}
	return ev, nil
}
