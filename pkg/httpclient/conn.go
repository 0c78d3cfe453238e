package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Dialer opens transport connections. *net.Dialer satisfies it; tests plug in
// their own to stall or fail the connect phase.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// connector bounds the connect phase, TLS handshake included, and wraps every
// ready connection in a watchdog.
type connector struct {
	dialer         Dialer
	connectTimeout time.Duration
	idleTimeout    time.Duration
	tlsConfig      *tls.Config
}

func (c *connector) connectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.connectTimeout > 0 {
		return context.WithTimeout(ctx, c.connectTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *connector) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	dialCtx, cancel := c.connectContext(ctx)
	defer cancel()

	conn, err := c.dialer.DialContext(dialCtx, network, address)
	if err != nil {
		return nil, &dialError{err: err}
	}
	return c.watch(ctx, conn), nil
}

// DialTLSContext dials and completes the TLS handshake under the same connect
// deadline. Only HTTP/1.1 is offered.
func (c *connector) DialTLSContext(ctx context.Context, network, address string) (net.Conn, error) {
	dialCtx, cancel := c.connectContext(ctx)
	defer cancel()

	raw, err := c.dialer.DialContext(dialCtx, network, address)
	if err != nil {
		return nil, &dialError{err: err}
	}

	cfg := &tls.Config{}
	if c.tlsConfig != nil {
		cfg = c.tlsConfig.Clone()
	}
	if cfg.ServerName == "" {
		host, _, splitErr := net.SplitHostPort(address)
		if splitErr != nil {
			host = address
		}
		cfg.ServerName = host
	}
	cfg.NextProtos = []string{"http/1.1"}

	tc := tls.Client(raw, cfg)
	if err := tc.HandshakeContext(dialCtx); err != nil {
		_ = raw.Close()
		return nil, &dialError{err: fmt.Errorf("tls handshake: %w", err)}
	}
	return c.watch(ctx, tc), nil
}

func (c *connector) watch(ctx context.Context, conn net.Conn) net.Conn {
	wc := &watchdogConn{Conn: conn, idle: c.idleTimeout}
	if ex := exchangeFrom(ctx); ex != nil {
		ex.attach(wc)
	}
	return wc
}

// watchdogConn arms a read deadline once the request is written and pushes it
// forward whenever bytes arrive. With idle == 0 it only adds close-once semantics.
type watchdogConn struct {
	net.Conn
	idle    time.Duration
	armed   atomic.Bool
	expired atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

func (c *watchdogConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if err == nil && c.idle > 0 {
		c.armed.Store(true)
		if derr := c.Conn.SetReadDeadline(time.Now().Add(c.idle)); derr != nil {
			return n, derr
		}
	}
	return n, err
}

func (c *watchdogConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if !c.armed.Load() {
		return n, err
	}
	if n > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.idle))
	}
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		c.expired.Store(true)
		return n, &idleTimeoutError{err: err}
	}
	return n, err
}

func (c *watchdogConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}
