// Package transport provides the HTTP transport used for order backend calls.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// The order backend sits behind a CDN whose bot detection keys on TLS
// fingerprints, and Go's standard client has a distinctive one that gets
// rate-limited aggressively. Since this service stands in for a browser
// storefront, it presents a Chrome TLS fingerprint via uTLS instead:
//
//  1. uTLS with HelloChrome_Auto for the ClientHello shape
//  2. ALPN negotiates h2 / http/1.1 naturally
//  3. Go's http2.Transport handles HTTP/2 framing when negotiated
//
// Plain http.DefaultTransport works fine against a backend without the CDN
// in front; this is only needed for the hosted deployment.

// NewBrowserTLS returns an http.RoundTripper presenting Chrome's TLS
// fingerprint. Supports HTTP/2 with an HTTP/1.1 fallback.
func NewBrowserTLS(dialTimeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: dialTimeout}

	return &browserTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialBrowserTLS(ctx, dialer, network, addr)
			},
		},
		h1: &http.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialBrowserTLS(ctx, dialer, network, addr)
			},
			ForceAttemptHTTP2: false,
		},
	}
}

type browserTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip tries HTTP/2 first and falls back to HTTP/1.1 for servers that
// never negotiated h2.
func (t *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	return t.h1.RoundTrip(req)
}

// dialBrowserTLS establishes a TLS connection with Chrome's ClientHello.
func dialBrowserTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}
