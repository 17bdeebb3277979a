package netx

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// NewHTTPClient returns a client for the Telegram Bot API. proxyURL may be
// empty, an http(s) proxy, or a socks5/socks5h proxy. Loopback and private
// addresses are always dialled directly.
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	baseDialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	tr := &http.Transport{
		DialContext:         baseDialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}

	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}

		switch u.Scheme {
		case "http", "https":
			tr.Proxy = func(req *http.Request) (*url.URL, error) {
				if isLocalHost(req.URL.Hostname()) {
					return nil, nil
				}
				return u, nil
			}
		case "socks5", "socks5h":
			dialer, err := xproxy.FromURL(u, baseDialer)
			if err != nil {
				return nil, fmt.Errorf("build socks dialer: %w", err)
			}
			contextDialer, ok := dialer.(xproxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("socks dialer does not support contexts")
			}
			tr.DialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
				host, _, _ := net.SplitHostPort(address)
				if isLocalHost(host) {
					return baseDialer.DialContext(ctx, network, address)
				}
				return contextDialer.DialContext(ctx, network, address)
			}
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
	}

	return &http.Client{Transport: tr, Timeout: timeout}, nil
}

func isLocalHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}
