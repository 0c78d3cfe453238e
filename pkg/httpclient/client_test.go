package httpclient

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const verifyWithin = 5 * time.Second

// pingServer answers GET /ping with PONG after an optional delay and counts
// requests and connections.
type pingServer struct {
	*httptest.Server
	requests atomic.Int32
	opened   atomic.Int32
	closed   atomic.Int32
}

func newPingServer(t *testing.T, delay time.Duration) *pingServer {
	t.Helper()
	ps := &pingServer{}
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/ping" || r.Header.Get("Accept") != "text/plain" {
			http.Error(w, "unexpected request", http.StatusNotFound)
			return
		}
		ps.requests.Add(1)
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-r.Context().Done():
				return
			case <-timer.C:
			}
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("PONG"))
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		switch state {
		case http.StateNew:
			ps.opened.Add(1)
		case http.StateClosed, http.StateHijacked:
			ps.closed.Add(1)
		}
	}
	srv.Start()
	t.Cleanup(srv.Close)
	ps.Server = srv
	return ps
}

func newTestClient(t *testing.T, cfg Config, opts ...Option) *Client {
	t.Helper()
	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(verifyWithin):
		t.Fatalf("no result within %s", verifyWithin)
		return Result{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGetReturnsPongWhenFastEnough(t *testing.T) {
	t.Parallel()
	srv := newPingServer(t, 0)
	client := newTestClient(t, ConfigFromMillis(srv.URL, 2000, 2000, StrategyIdleRead))

	res := await(t, client.GetAsync(context.Background(), "/ping", "text/plain"))
	if res.Err != nil {
		t.Fatalf("Get: %v", res.Err)
	}
	if res.Body != "PONG" {
		t.Fatalf("body = %q, want PONG", res.Body)
	}
	if got := srv.requests.Load(); got != 1 {
		t.Fatalf("requests = %d, want 1", got)
	}
	waitFor(t, "connection close", func() bool { return srv.closed.Load() == 1 })
	if got := srv.opened.Load(); got != 1 {
		t.Fatalf("connections opened = %d, want 1", got)
	}
}

func TestGetReadTimeoutBothStrategies(t *testing.T) {
	t.Parallel()
	for _, strategy := range []Strategy{StrategyIdleRead, StrategyWholeResponse} {
		strategy := strategy
		t.Run(strategy.String(), func(t *testing.T) {
			t.Parallel()
			srv := newPingServer(t, 2250*time.Millisecond)
			client := newTestClient(t, ConfigFromMillis(srv.URL, 2000, 2000, strategy))

			start := time.Now()
			res := await(t, client.GetAsync(context.Background(), "/ping", "text/plain"))
			elapsed := time.Since(start)

			if !errors.Is(res.Err, ErrReadTimeout) {
				t.Fatalf("expected read timeout, got %v", res.Err)
			}
			if !errors.Is(res.Err, ErrResponseTimeout) {
				t.Fatalf("expected response timeout alias to match, got %v", res.Err)
			}
			if errors.Is(res.Err, ErrConnectTimeout) || errors.Is(res.Err, ErrTransport) {
				t.Fatalf("timeout misclassified: %v", res.Err)
			}
			var e *Error
			if !errors.As(res.Err, &e) {
				t.Fatalf("expected *Error, got %T", res.Err)
			}
			if e.Strategy != strategy {
				t.Fatalf("strategy = %s, want %s", e.Strategy, strategy)
			}
			if !e.Timeout() {
				t.Fatalf("Timeout() = false")
			}
			if elapsed < 2*time.Second {
				t.Fatalf("failed after %s, before the read timeout", elapsed)
			}
			if got := srv.requests.Load(); got != 1 {
				t.Fatalf("requests = %d, want 1", got)
			}
			waitFor(t, "connection close", func() bool { return srv.closed.Load() == srv.opened.Load() })
		})
	}
}

func TestStrategiesReportEquivalentFailures(t *testing.T) {
	t.Parallel()
	srv := newPingServer(t, 400*time.Millisecond)

	kinds := make(map[Strategy]Kind)
	for _, strategy := range []Strategy{StrategyIdleRead, StrategyWholeResponse} {
		client := newTestClient(t, ConfigFromMillis(srv.URL, 1000, 100, strategy))
		_, err := client.Get(context.Background(), "/ping", "text/plain")
		kind, ok := KindOf(err)
		if !ok {
			t.Fatalf("%s: expected classified error, got %v", strategy, err)
		}
		kinds[strategy] = kind
	}
	if kinds[StrategyIdleRead] != kinds[StrategyWholeResponse] || kinds[StrategyIdleRead] != KindReadTimeout {
		t.Fatalf("strategies disagree: %v", kinds)
	}
	if got := srv.requests.Load(); got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}
}

func TestIdleReadWindowResetsOnData(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", "4")
		flusher := w.(http.Flusher)
		for i, chunk := range []string{"P", "O", "N", "G"} {
			if i > 0 {
				time.Sleep(150 * time.Millisecond)
			}
			_, _ = w.Write([]byte(chunk))
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)

	idle := newTestClient(t, ConfigFromMillis(srv.URL, 1000, 300, StrategyIdleRead))
	body, err := idle.Get(context.Background(), "/ping", "text/plain")
	if err != nil {
		t.Fatalf("idle read: %v", err)
	}
	if body != "PONG" {
		t.Fatalf("body = %q", body)
	}

	whole := newTestClient(t, ConfigFromMillis(srv.URL, 1000, 300, StrategyWholeResponse))
	if _, err := whole.Get(context.Background(), "/ping", "text/plain"); !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("whole response: expected read timeout, got %v", err)
	}
}

// stallDialer never connects; it waits for the dial context to end.
type stallDialer struct {
	calls atomic.Int32
}

func (d *stallDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	d.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGetConnectTimeout(t *testing.T) {
	t.Parallel()
	dialer := &stallDialer{}
	client := newTestClient(t, ConfigFromMillis("http://ping.invalid:12345", 100, 2000, StrategyIdleRead), WithDialer(dialer))

	start := time.Now()
	res := await(t, client.GetAsync(context.Background(), "/ping", "text/plain"))
	if !errors.Is(res.Err, ErrConnectTimeout) {
		t.Fatalf("expected connect timeout, got %v", res.Err)
	}
	if errors.Is(res.Err, ErrReadTimeout) {
		t.Fatalf("connect timeout reported as read timeout: %v", res.Err)
	}
	var e *Error
	if errors.As(res.Err, &e) && e.Phase >= PhaseConnected {
		t.Fatalf("phase = %s, want before connected", e.Phase)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("connect timeout took %s", elapsed)
	}
	if got := dialer.calls.Load(); got != 1 {
		t.Fatalf("dial attempts = %d, want 1", got)
	}
}

func TestGetConnectionRefusedIsTransportError(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	client := newTestClient(t, ConfigFromMillis("http://"+addr, 1000, 1000, StrategyIdleRead))
	_, err = client.Get(context.Background(), "/ping", "text/plain")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestGetMalformedResponseIsProtocolError(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, ConfigFromMillis(rawServer(t, "NOT-HTTP\r\n\r\n"), 1000, 1000, StrategyIdleRead))
	_, err := client.Get(context.Background(), "/ping", "text/plain")
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

// rawServer answers the first request on a plain TCP listener with reply,
// then closes the connection.
func rawServer(t *testing.T, reply string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil || strings.TrimSpace(line) == "" {
				break
			}
		}
		_, _ = conn.Write([]byte(reply))
	}()
	return "http://" + ln.Addr().String()
}

func TestGetTruncatedBodyIsProtocolError(t *testing.T) {
	t.Parallel()
	for _, strategy := range []Strategy{StrategyIdleRead, StrategyWholeResponse} {
		base := rawServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 10\r\nContent-Type: text/plain\r\n\r\nPONG")
		client := newTestClient(t, ConfigFromMillis(base, 1000, 1000, strategy))

		_, err := client.Get(context.Background(), "/ping", "text/plain")
		if !errors.Is(err, ErrProtocol) {
			t.Fatalf("%s: expected protocol error for short body, got %v", strategy, err)
		}
		var herr *Error
		if !errors.As(err, &herr) || herr.Phase < PhaseReceiving {
			t.Fatalf("%s: expected failure after the first response byte, got %+v", strategy, herr)
		}
	}
}

func TestGetNon2xxIsProtocolError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, ConfigFromMillis(srv.URL, 1000, 1000, StrategyWholeResponse))
	_, err := client.Get(context.Background(), "/ping", "text/plain")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if e.Kind != KindProtocol || e.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected error %+v", e)
	}
}

func TestGetDoesNotFollowRedirects(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, ConfigFromMillis(srv.URL, 1000, 1000, StrategyIdleRead))
	if _, err := client.Get(context.Background(), "/ping", "text/plain"); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected protocol error for redirect, got %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("requests = %d, want 1", got)
	}
}

func TestGetCallerCancellation(t *testing.T) {
	t.Parallel()
	srv := newPingServer(t, 0)
	client := newTestClient(t, ConfigFromMillis(srv.URL, 1000, 1000, StrategyIdleRead))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Get(ctx, "/ping", "text/plain")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestRepeatedGetsOpenFreshConnections(t *testing.T) {
	t.Parallel()
	srv := newPingServer(t, 0)
	client := newTestClient(t, ConfigFromMillis(srv.URL, 1000, 1000, StrategyIdleRead))

	for i := 0; i < 3; i++ {
		body, err := client.Get(context.Background(), "/ping", "text/plain")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if body != "PONG" {
			t.Fatalf("call %d: body = %q", i, body)
		}
	}
	if got := srv.requests.Load(); got != 3 {
		t.Fatalf("requests = %d, want 3", got)
	}
	waitFor(t, "all connections closed", func() bool { return srv.closed.Load() == 3 })
	if got := srv.opened.Load(); got != 3 {
		t.Fatalf("connections opened = %d, want 3", got)
	}
}

func TestConcurrentGetsAreIndependent(t *testing.T) {
	t.Parallel()
	srv := newPingServer(t, 50*time.Millisecond)
	client := newTestClient(t, ConfigFromMillis(srv.URL, 1000, 1000, StrategyWholeResponse))

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, err := client.Get(context.Background(), "/ping", "text/plain")
			if err == nil && body != "PONG" {
				err = errors.New("unexpected body " + body)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if got := srv.requests.Load(); got != n {
		t.Fatalf("requests = %d, want %d", got, n)
	}
}
