package tool

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/proxy"
)

// Egress builds the HTTP clients network tools use. With a Tor proxy
// configured, anonymous clients dial through socks5; RotateIdentity
// swaps the socks auth pair, which makes Tor isolate the next
// connections onto a fresh circuit.
type Egress struct {
	torProxy string // e.g. socks5://127.0.0.1:9050, empty = direct only
	timeout  time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	anon *http.Client
}

func NewEgress(torProxy string, timeout time.Duration, logger *zap.Logger) *Egress {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Egress{
		torProxy: torProxy,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "egress")),
	}
}

// Anonymous reports whether a Tor proxy is configured.
func (e *Egress) Anonymous() bool { return e.torProxy != "" }

// Client returns a plain direct HTTP client.
func (e *Egress) Client() *http.Client {
	return &http.Client{Timeout: e.timeout}
}

// AnonClient returns the Tor-routed client, or the direct client when no
// proxy is configured.
func (e *Egress) AnonClient() (*http.Client, error) {
	if e.torProxy == "" {
		return e.Client(), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.anon == nil {
		c, err := e.buildTorClient()
		if err != nil {
			return nil, err
		}
		e.anon = c
	}
	return e.anon, nil
}

// RotateIdentity discards the current Tor client so the next AnonClient
// call dials with fresh socks credentials and therefore a fresh circuit.
func (e *Egress) RotateIdentity() {
	if e.torProxy == "" {
		return
	}
	e.mu.Lock()
	if e.anon != nil {
		e.anon.CloseIdleConnections()
		e.anon = nil
	}
	e.mu.Unlock()
	e.logger.Info("Tor identity rotated")
}

func (e *Egress) buildTorClient() (*http.Client, error) {
	u, err := url.Parse(e.torProxy)
	if err != nil {
		return nil, fmt.Errorf("parse TOR_PROXY: %w", err)
	}
	host := u.Host
	if host == "" {
		host = u.Path // bare host:port without scheme
	}

	// random auth pair = circuit isolation key
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	auth := &proxy.Auth{User: hex.EncodeToString(buf), Password: "x"}

	dialer, err := proxy.SOCKS5("tcp", host, auth, &net.Dialer{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer: %w", err)
	}

	transport := &http.Transport{
		IdleConnTimeout: 60 * time.Second,
		MaxIdleConns:    4,
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	return &http.Client{Transport: transport, Timeout: e.timeout}, nil
}
