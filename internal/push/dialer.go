package push

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tildaslashalef/edusync/internal/ulid"
)

// HTTPDialer dials both transports against one push endpoint.
// The websocket transport lives at <URL>/ws and long-polling at <URL>/poll.
type HTTPDialer struct {
	URL         string
	Token       string
	PollTimeout time.Duration
	HTTPClient  *http.Client
	WSDialer    *websocket.Dialer
}

// NewHTTPDialer creates a dialer for the push endpoint at rawURL
func NewHTTPDialer(rawURL, token string, pollTimeout time.Duration) *HTTPDialer {
	return &HTTPDialer{
		URL:         rawURL,
		Token:       token,
		PollTimeout: pollTimeout,
		HTTPClient:  &http.Client{},
		WSDialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial opens a connection over kind
func (d *HTTPDialer) Dial(ctx context.Context, kind TransportKind) (Conn, error) {
	header := http.Header{}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}

	switch kind {
	case TransportWebSocket:
		wsURL, err := endpointURL(d.URL, "ws", true)
		if err != nil {
			return nil, err
		}
		return dialWebSocket(ctx, d.WSDialer, wsURL, header)
	case TransportPolling:
		pollURL, err := endpointURL(d.URL, "poll", false)
		if err != nil {
			return nil, err
		}
		timeout := d.PollTimeout
		if timeout <= 0 {
			timeout = 25 * time.Second
		}
		return dialPolling(ctx, d.HTTPClient, pollURL, ulid.SubscriptionID(), header, timeout)
	default:
		return nil, fmt.Errorf("unsupported transport %q", kind)
	}
}

// endpointURL appends suffix to the base path and maps the scheme to the
// websocket or plain HTTP family
func endpointURL(base, suffix string, websocketScheme bool) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing push url: %w", err)
	}

	secure := u.Scheme == "https" || u.Scheme == "wss"
	switch {
	case websocketScheme && secure:
		u.Scheme = "wss"
	case websocketScheme:
		u.Scheme = "ws"
	case secure:
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + suffix
	return u.String(), nil
}
