package tool

import (
	"testing"
	"time"
)

func TestEgress_DirectMode(t *testing.T) {
	e := NewEgress("", 5*time.Second, testLogger())
	if e.Anonymous() {
		t.Error("no proxy configured should mean direct mode")
	}
	c, err := e.AnonClient()
	if err != nil {
		t.Fatalf("AnonClient: %v", err)
	}
	if c.Transport != nil {
		t.Error("direct mode should hand out a plain client")
	}
	e.RotateIdentity() // no-op without a proxy
}

func TestEgress_TorClientCachedUntilRotation(t *testing.T) {
	e := NewEgress("socks5://127.0.0.1:9050", 5*time.Second, testLogger())
	if !e.Anonymous() {
		t.Fatal("proxy configured should mean anonymous mode")
	}

	first, err := e.AnonClient()
	if err != nil {
		t.Fatalf("AnonClient: %v", err)
	}
	if first.Transport == nil {
		t.Fatal("tor client should carry a socks transport")
	}
	second, _ := e.AnonClient()
	if first != second {
		t.Error("client should be cached across calls")
	}

	e.RotateIdentity()
	third, err := e.AnonClient()
	if err != nil {
		t.Fatalf("AnonClient after rotation: %v", err)
	}
	if third == first {
		t.Error("rotation should rebuild the client")
	}
}

func TestEgress_BareHostProxy(t *testing.T) {
	e := NewEgress("127.0.0.1:9050", 5*time.Second, testLogger())
	if _, err := e.AnonClient(); err != nil {
		t.Fatalf("bare host:port proxy should work: %v", err)
	}
}

func TestEgress_Defaults(t *testing.T) {
	e := NewEgress("", 0, nil)
	if e.Client().Timeout != 60*time.Second {
		t.Errorf("default timeout = %v", e.Client().Timeout)
	}
}
