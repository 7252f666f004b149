package client

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"wbs-gantt/pkg/api"
)

// Subscriber keeps a viewer connection to the controller's notification
// hub and redials after disconnects.
type Subscriber struct {
	endpoint string
	token    string
	dialer   *websocket.Dialer
	retry    time.Duration
}

// Subscriber builds a subscriber sharing c's address, token and TLS setup.
func (c *Client) Subscriber() (*Subscriber, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	u.Scheme = scheme
	u.Path = "/api/v1/ws/ui"
	dialer := *websocket.DefaultDialer
	if tr, ok := c.http.Transport.(*http.Transport); ok && tr.TLSClientConfig != nil {
		dialer.TLSClientConfig = tr.TLSClientConfig.Clone()
	}
	return &Subscriber{endpoint: u.String(), token: c.token, dialer: &dialer, retry: 5 * time.Second}, nil
}

// Run delivers every message to fn until ctx is done.
func (s *Subscriber) Run(ctx context.Context, fn func(api.WSMessage)) {
	for ctx.Err() == nil {
		header := http.Header{}
		if s.token != "" {
			header.Set("Authorization", "Bearer "+s.token)
		}
		conn, resp, err := s.dialer.DialContext(ctx, s.endpoint, header)
		if err != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			log.Printf("ws dial failed: %v (url=%s status=%d)", err, s.endpoint, status)
			if !sleepCtx(ctx, s.retry) {
				return
			}
			continue
		}
		log.Printf("ws connected url=%s", s.endpoint)
		s.readLoop(ctx, conn, fn)
		if ctx.Err() != nil {
			return
		}
		log.Printf("ws disconnected, retrying in %s", s.retry)
		if !sleepCtx(ctx, s.retry) {
			return
		}
	}
}

func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn, fn func(api.WSMessage)) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()
	for {
		var msg api.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		fn(msg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
