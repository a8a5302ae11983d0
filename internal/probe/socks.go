package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/proxy-vitals/internal/proxyspec"
	"golang.org/x/net/proxy"
)

// socksTransport builds an HTTP transport that dials through the spec as
// an authenticated SOCKS5 proxy.
func (e *Executor) socksTransport(spec proxyspec.Spec) (*http.Transport, error) {
	auth := &proxy.Auth{
		User:     spec.Username,
		Password: spec.Password,
	}

	dialer, err := proxy.SOCKS5("tcp", spec.Addr(), auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("SOCKS5 dialer: %w", err)
	}

	timeout := time.Duration(e.config.TimeoutMs) * time.Millisecond

	return &http.Transport{
		Dial: func(network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		},
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		},
		ForceAttemptHTTP2:   false,
		TLSHandshakeTimeout: timeout,
		DisableKeepAlives:   true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
	}, nil
}
