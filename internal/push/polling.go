package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// pollConn speaks the long-polling protocol:
//
//	POST <base>/poll?sid=<id>   one JSON event upstream; the first one ("open") is the handshake
//	GET  <base>/poll?sid=<id>   held open until events are pending: 200 with a JSON array, or 204
type pollConn struct {
	client  *http.Client
	url     string
	header  http.Header
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	ctx    context.Context
}

const (
	eventOpen  = "open"
	eventClose = "close"
)

func dialPolling(ctx context.Context, client *http.Client, base, sid string, header http.Header, timeout time.Duration) (*pollConn, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing poll url: %w", err)
	}
	q := u.Query()
	q.Set("sid", sid)
	u.RawQuery = q.Encode()

	connCtx, cancel := context.WithCancel(context.Background())
	c := &pollConn{
		client:  client,
		url:     u.String(),
		header:  header,
		timeout: timeout,
		ctx:     connCtx,
		cancel:  cancel,
	}

	if err := c.post(ctx, Event{Name: eventOpen}); err != nil {
		cancel()
		return nil, fmt.Errorf("polling handshake: %w", err)
	}
	return c, nil
}

func (c *pollConn) Kind() TransportKind { return TransportPolling }

func (c *pollConn) Read(ctx context.Context) ([]Event, error) {
	if c.isClosed() {
		return nil, ErrConnClosed
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating poll request: %w", err)
	}
	c.applyHeader(req)

	resp, err := c.client.Do(req)
	if err != nil {
		switch {
		case c.isClosed():
			return nil, ErrConnClosed
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case reqCtx.Err() != nil:
			// poll window elapsed with nothing to deliver
			return nil, nil
		}
		return nil, fmt.Errorf("poll request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("poll returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decoding poll response: %w", err)
	}
	return events, nil
}

func (c *pollConn) Send(ctx context.Context, ev Event) error {
	if c.isClosed() {
		return ErrConnClosed
	}
	return c.post(ctx, ev)
}

func (c *pollConn) post(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", ev.Name, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating send request: %w", err)
	}
	c.applyHeader(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send returned status %d", resp.StatusCode)
	}
	return nil
}

// Close aborts an in-flight poll and tells the server the session ended
func (c *pollConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = c.post(ctx, Event{Name: eventClose})
	return nil
}

func (c *pollConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *pollConn) applyHeader(req *http.Request) {
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}
