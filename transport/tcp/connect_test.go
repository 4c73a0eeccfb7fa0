package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnecterDialsListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := NewConnecter(ln.Addr().String(), 0)
	require.Equal(t, DefaultConnectTimeout, c.dialer.Timeout)

	conn, err := c.Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case server := <-accepted:
		server.Close()
	case <-time.After(time.Second):
		t.Fatal("listener never accepted the dial")
	}
}

func TestConnecterSurfacesDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close() // nothing listens here anymore

	c := NewConnecter(addr, 200*time.Millisecond)
	_, err = c.Connect(context.Background())
	require.Error(t, err)
}
