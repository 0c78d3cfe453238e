package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// Client issues GET requests against a fixed base URL and enforces the
// connect and read/response timeouts of its Config. Every call dials its own
// connection; nothing is pooled or retried.
type Client struct {
	cfg    Config
	client *resty.Client
}

// Result is the outcome delivered by GetAsync.
type Result struct {
	Body string
	Err  error
}

// Option customizes a Client.
type Option func(*options)

type options struct {
	dialer    Dialer
	logger    resty.Logger
	tlsConfig *tls.Config
}

// WithDialer replaces the connection primitive. Defaults to a net.Dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithTLSConfig sets the TLS settings for https base URLs, e.g. custom root CAs.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.tlsConfig = cfg
		}
	}
}

// WithLogger routes resty's internal diagnostics. They are discarded by default.
func WithLogger(l resty.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New validates cfg and builds a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := options{
		dialer: &net.Dialer{},
		logger: discardLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	conn := &connector{dialer: o.dialer, connectTimeout: cfg.ConnectTimeout, tlsConfig: o.tlsConfig}
	if cfg.Strategy == StrategyIdleRead {
		conn.idleTimeout = cfg.ReadTimeout
	}

	// The TLS handshake runs inside the connector so it counts against the
	// connect timeout and never arms the read watchdog.
	transport := &http.Transport{
		DialContext:       conn.DialContext,
		DialTLSContext:    conn.DialTLSContext,
		DisableKeepAlives: true,
	}

	c := resty.NewWithClient(&http.Client{Transport: transport})
	c.SetLogger(o.logger)
	c.SetRetryCount(0)
	c.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))

	return &Client{cfg: cfg, client: c}, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config { return c.cfg }

// Get sends GET <base><path> with the given Accept value and returns the body as text.
// Failures are always *Error; match them with errors.Is against ErrConnectTimeout,
// ErrReadTimeout, ErrTransport or ErrProtocol.
func (c *Client) Get(ctx context.Context, path, accept string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rs := newRequestSpec(c.cfg.BaseURL, path, accept)

	ex, reqCtx := newExchange(ctx, c.cfg)
	defer ex.release()
	ex.advance(PhaseConnecting)

	req := c.client.R().SetContext(reqCtx)
	if rs.Accept != "" {
		req.SetHeader("Accept", rs.Accept)
	}

	resp, err := req.Execute(rs.Method, rs.URL)
	if err != nil {
		return "", ex.classify(ctx, rs.URL, err)
	}
	if !resp.IsSuccess() {
		return "", &Error{
			Kind:       KindProtocol,
			Strategy:   c.cfg.Strategy,
			Phase:      ex.currentPhase(),
			URL:        rs.URL,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("unexpected status %q", resp.Status()),
		}
	}

	ex.advance(PhaseDone)
	return string(resp.Body()), nil
}

// GetAsync runs Get on its own goroutine. The channel yields one Result and is closed.
func (c *Client) GetAsync(ctx context.Context, path, accept string) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		body, err := c.Get(ctx, path, accept)
		out <- Result{Body: body, Err: err}
	}()
	return out
}

type discardLogger struct{}

func (discardLogger) Errorf(string, ...interface{}) {}
func (discardLogger) Warnf(string, ...interface{})  {}
func (discardLogger) Debugf(string, ...interface{}) {}
