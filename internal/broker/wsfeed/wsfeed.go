// Package wsfeed is a vendor-agnostic reconnecting websocket stream client.
// It backs the realtime legs (SubscribeOrderUpdates, SubscribeMarketData) of
// a live adapter.
package wsfeed

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// ReconnectConfig controls exponential backoff between dial attempts.
type ReconnectConfig struct {
	Enabled      bool
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultReconnectConfig is a conservative default: 10 retries, 1s initial
// delay, 30s cap, 2x multiplier.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Enabled:      true,
		MaxRetries:   10,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

func (c ReconnectConfig) backoff(attempt int) time.Duration {
	delay := float64(c.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= c.Multiplier
	}
	if time.Duration(delay) > c.MaxDelay {
		return c.MaxDelay
	}
	return time.Duration(delay)
}

// Client dials a single websocket URL and redials with backoff when the
// connection drops.
type Client struct {
	URL      string
	Dialer   *websocket.Dialer
	Reconfig ReconnectConfig
}

// New builds a Client for url with the default dialer and reconnect policy.
func New(url string) *Client {
	return &Client{URL: url, Dialer: websocket.DefaultDialer, Reconfig: DefaultReconnectConfig()}
}

// Subscribe dials URL and decodes every inbound text/binary message with
// decode, pushing results onto the returned channel until ctx is canceled or
// reconnection is exhausted. A decode error is logged and the message is
// skipped; it never tears down the connection — never panic on an
// unparsable vendor payload.
func Subscribe[T any](ctx context.Context, c *Client, decode func([]byte) (T, error)) (<-chan T, func(), error) {
	conn, _, err := c.Dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", c.URL, err)
	}

	out := make(chan T, 128)
	done := make(chan struct{})
	var stopped bool

	stop := func() {
		if stopped {
			return
		}
		stopped = true
		close(done)
	}

	go func() {
		defer close(out)
		current := conn
		attempt := 0
		for {
			select {
			case <-done:
				_ = current.Close()
				return
			case <-ctx.Done():
				_ = current.Close()
				return
			default:
			}

			_, msg, err := current.ReadMessage()
			if err != nil {
				_ = current.Close()
				if !c.Reconfig.Enabled {
					return
				}
				if c.Reconfig.MaxRetries > 0 && attempt >= c.Reconfig.MaxRetries {
					log.Printf("wsfeed: %s exhausted reconnect attempts", c.URL)
					return
				}
				delay := c.Reconfig.backoff(attempt)
				attempt++
				log.Printf("wsfeed: %s disconnected, retrying in %s", c.URL, delay)
				select {
				case <-time.After(delay):
				case <-done:
					return
				case <-ctx.Done():
					return
				}
				next, _, dialErr := c.Dialer.DialContext(ctx, c.URL, nil)
				if dialErr != nil {
					continue
				}
				current = next
				attempt = 0
				continue
			}

			attempt = 0
			v, decErr := decode(msg)
			if decErr != nil {
				log.Printf("wsfeed: %s decode error: %v", c.URL, decErr)
				continue
			}
			select {
			case out <- v:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, stop, nil
}
