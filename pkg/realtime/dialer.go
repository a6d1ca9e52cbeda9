package realtime

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/transport"
)

// Conn is the read side of a websocket connection. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens websocket connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// NewWebsocketDialer returns a dialer with the given handshake timeout.
func NewWebsocketDialer(cfg *Config) *WebsocketDialer {
	return &WebsocketDialer{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Dial connects to url. Failures are reported as *transport.NetworkError so
// that they classify like any other unreachable-service error.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, &transport.CancelledError{Method: http.MethodGet, URL: url, Err: ctx.Err()}
		}
		return nil, &transport.NetworkError{Method: http.MethodGet, URL: url, Err: err}
	}
	return conn, nil
}
