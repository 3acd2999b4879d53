package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/als-corrector/internal/correction"
)

// RequestScreenshot is the message that asks the capture service for a sample.
const RequestScreenshot = "take_screenshot"

const defaultWSTimeout = 500 * time.Millisecond

// Reply is the capture service response.
type Reply struct {
	R           float64 `json:"r"`
	G           float64 `json:"g"`
	B           float64 `json:"b"`
	TimestampMS int64   `json:"timestamp_ms"`
	Error       string  `json:"error,omitempty"`
}

// WSClient requests screen samples from a capture service over a
// websocket. The connection is opened lazily and re-dialed after a failure.
type WSClient struct {
	URL     string
	Timeout time.Duration
	Dialer  *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// Sample implements correction.ScreenColorProvider.
func (c *WSClient) Sample() (correction.ScreenColor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultWSTimeout
	}
	deadline := time.Now().Add(timeout)

	if c.conn == nil {
		dialer := c.Dialer
		if dialer == nil {
			dialer = websocket.DefaultDialer
		}
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		conn, _, err := dialer.DialContext(ctx, c.URL, nil)
		cancel()
		if err != nil {
			return correction.ScreenColor{}, fmt.Errorf("dial capture service: %w", err)
		}
		c.conn = conn
	}

	reply, err := c.roundTrip(deadline)
	if err != nil {
		c.conn.Close()
		c.conn = nil
		return correction.ScreenColor{}, err
	}
	if reply.Error != "" {
		return correction.ScreenColor{}, fmt.Errorf("capture service: %s", reply.Error)
	}
	return correction.ScreenColor{
		R:         reply.R,
		G:         reply.G,
		B:         reply.B,
		Timestamp: time.UnixMilli(reply.TimestampMS),
	}, nil
}

func (c *WSClient) roundTrip(deadline time.Time) (Reply, error) {
	var reply Reply
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return reply, err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(RequestScreenshot)); err != nil {
		return reply, fmt.Errorf("request screenshot: %w", err)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return reply, err
	}
	if err := c.conn.ReadJSON(&reply); err != nil {
		return reply, fmt.Errorf("read screenshot reply: %w", err)
	}
	return reply, nil
}

// Close closes the connection, if any.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err = errors.Join(err, c.conn.Close())
	c.conn = nil
	return err
}
