package netx

import (
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestNewHTTPClientDirect(t *testing.T) {
	client, err := NewHTTPClient("", time.Minute)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	if client.Timeout != time.Minute {
		t.Fatalf("unexpected timeout %v", client.Timeout)
	}
	if client.Transport.(*http.Transport).Proxy != nil {
		t.Fatal("expected no proxy function")
	}
}

func TestNewHTTPClientHTTPProxySkipsLocalHosts(t *testing.T) {
	client, err := NewHTTPClient("http://proxy.internal:3128", 0)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	proxy := client.Transport.(*http.Transport).Proxy

	remote, _ := http.NewRequest(http.MethodGet, "https://api.telegram.org/bot", nil)
	got, err := proxy(remote)
	if err != nil || got == nil || got.Host != "proxy.internal:3128" {
		t.Fatalf("expected proxy for remote host, got %v err=%v", got, err)
	}

	local := &http.Request{URL: &url.URL{Scheme: "http", Host: "127.0.0.1:8081"}}
	got, err = proxy(local)
	if err != nil || got != nil {
		t.Fatalf("expected direct connection for loopback, got %v err=%v", got, err)
	}
}

func TestNewHTTPClientSOCKS(t *testing.T) {
	if _, err := NewHTTPClient("socks5://127.0.0.1:1080", 0); err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
}

func TestNewHTTPClientRejectsUnknownScheme(t *testing.T) {
	if _, err := NewHTTPClient("ftp://proxy:21", 0); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
