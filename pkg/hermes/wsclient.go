package hermes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSClient streams price updates from the Hermes WebSocket endpoint.
type WSClient struct {
	url            string
	ids            []string
	mu             sync.Mutex
	conn           *websocket.Conn
	closed         bool
	handler        func(StreamMessage)
	reconnectDelay time.Duration
	logger         *zap.Logger
}

// NewWSClient creates a client for the given stream URL and feed ids.
func NewWSClient(url string, ids []string, logger *zap.Logger) *WSClient {
	return &WSClient{
		url:            url,
		ids:            ids,
		reconnectDelay: 3 * time.Second,
		logger:         logger,
	}
}

// SetMessageHandler sets the function to handle incoming price frames.
func (c *WSClient) SetMessageHandler(h func(StreamMessage)) {
	c.handler = h
}

// Connect dials the stream and subscribes to the configured feeds. It does not start the listener.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Error("failed to connect to price stream", zap.String("url", c.url), zap.Error(err))
		return err
	}
	if err := c.swap(conn); err != nil {
		return err
	}
	c.logger.Info("price stream connected", zap.String("url", c.url))

	if err := c.subscribe(conn); err != nil {
		c.logger.Error("failed to send subscription", zap.Error(err))
		return err
	}
	return nil
}

// Listen reads frames until ctx is cancelled, reconnecting on read errors.
func (c *WSClient) Listen(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return errors.New("price stream is not connected")
	}

	stop := context.AfterFunc(ctx, c.close)
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("price stream read error", zap.Error(err))

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(c.reconnectDelay):
				}
				next, err := c.reconnectAndResubscribe(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					c.logger.Warn("retrying reconnect...", zap.Error(err))
					continue
				}
				conn = next
				c.logger.Info("reconnected successfully")
				break
			}
			continue
		}

		var frame StreamMessage
		if err := json.Unmarshal(msg, &frame); err != nil {
			c.logger.Warn("failed to decode price frame", zap.Error(err))
			continue
		}
		if frame.Type == "response" && frame.Status != "success" {
			c.logger.Error("subscription rejected", zap.String("error", frame.Error))
			continue
		}

		if c.handler != nil {
			c.handler(frame)
		}
	}
}

func (c *WSClient) reconnectAndResubscribe(ctx context.Context) (*websocket.Conn, error) {
	newConn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	if err := c.swap(newConn); err != nil {
		return nil, err
	}
	if err := c.subscribe(newConn); err != nil {
		return nil, err
	}
	return newConn, nil
}

// swap installs conn as the live connection and closes the previous one.
// conn is closed instead if the client was closed in the meantime.
func (c *WSClient) swap(conn *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return errors.New("price stream closed")
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	return nil
}

func (c *WSClient) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// close shuts the live connection and stops further reconnects.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *WSClient) subscribe(conn *websocket.Conn) error {
	req := subscribeRequest{
		Type: "subscribe",
		IDs:  c.ids,
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("price stream subscribe failed: %w", err)
	}
	return nil
}
