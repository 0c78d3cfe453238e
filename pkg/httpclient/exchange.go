package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptrace"
	"sync"
	"sync/atomic"
	"time"
)

// Phase is the progress of a single request.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseSending
	PhaseAwaitingResponse
	PhaseReceiving
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseSending:
		return "sending"
	case PhaseAwaitingResponse:
		return "awaiting_response"
	case PhaseReceiving:
		return "receiving"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

type exchangeKey struct{}

// exchange tracks one Get call: its phase, its connection and the
// whole-response timer. It owns the connection and releases it exactly once.
type exchange struct {
	phase       atomic.Int32
	strategy    Strategy
	readTimeout time.Duration
	cancel      context.CancelFunc
	expired     atomic.Bool

	mu       sync.Mutex
	conn     *watchdogConn
	timer    *time.Timer
	released bool
}

func newExchange(parent context.Context, cfg Config) (*exchange, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	ex := &exchange{
		strategy:    cfg.Strategy,
		readTimeout: cfg.ReadTimeout,
		cancel:      cancel,
	}
	ctx = context.WithValue(ctx, exchangeKey{}, ex)
	ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		GotConn:      func(httptrace.GotConnInfo) { ex.advance(PhaseConnected) },
		WroteHeaders: func() { ex.advance(PhaseSending) },
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err != nil {
				return
			}
			ex.advance(PhaseAwaitingResponse)
			ex.startResponseTimer()
		},
		GotFirstResponseByte: func() { ex.advance(PhaseReceiving) },
	})
	return ex, ctx
}

func exchangeFrom(ctx context.Context) *exchange {
	ex, _ := ctx.Value(exchangeKey{}).(*exchange)
	return ex
}

// advance moves the phase forward; trace hooks may fire out of order.
func (ex *exchange) advance(p Phase) {
	for {
		cur := ex.phase.Load()
		if cur >= int32(p) {
			return
		}
		if ex.phase.CompareAndSwap(cur, int32(p)) {
			return
		}
	}
}

func (ex *exchange) currentPhase() Phase { return Phase(ex.phase.Load()) }

func (ex *exchange) attach(conn *watchdogConn) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.released {
		_ = conn.Close()
		return
	}
	ex.conn = conn
}

func (ex *exchange) startResponseTimer() {
	if ex.strategy != StrategyWholeResponse || ex.readTimeout <= 0 {
		return
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.released || ex.timer != nil {
		return
	}
	ex.timer = time.AfterFunc(ex.readTimeout, func() {
		ex.expired.Store(true)
		ex.cancel()
	})
}

func (ex *exchange) idleExpired() bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.conn != nil && ex.conn.expired.Load()
}

// release stops the timer and closes the connection on every exit path.
func (ex *exchange) release() {
	ex.mu.Lock()
	if ex.released {
		ex.mu.Unlock()
		return
	}
	ex.released = true
	if ex.timer != nil {
		ex.timer.Stop()
	}
	conn := ex.conn
	ex.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	ex.cancel()
}

// classify maps a transport failure onto an *Error.
func (ex *exchange) classify(parent context.Context, url string, err error) *Error {
	e := &Error{
		Strategy: ex.strategy,
		Phase:    ex.currentPhase(),
		URL:      url,
		Err:      err,
	}

	var idleErr *idleTimeoutError
	var dialErr *dialError
	switch {
	case ex.idleExpired() || errors.As(err, &idleErr):
		e.Kind = KindReadTimeout
		e.Strategy = StrategyIdleRead
	case ex.expired.Load():
		e.Kind = KindReadTimeout
		e.Strategy = StrategyWholeResponse
	case parent.Err() != nil:
		e.Kind = KindTransport
		if !errors.Is(err, parent.Err()) {
			e.Err = fmt.Errorf("%w: %w", parent.Err(), err)
		}
	case errors.As(err, &dialErr):
		if isTimeout(dialErr.err) {
			e.Kind = KindConnectTimeout
		} else {
			e.Kind = KindTransport
		}
	case e.Phase < PhaseConnected && isTimeout(err):
		e.Kind = KindConnectTimeout
	case e.Phase >= PhaseReceiving && errors.Is(err, io.ErrUnexpectedEOF):
		// Peer closed before the declared body length arrived.
		e.Kind = KindProtocol
	case e.Phase >= PhaseReceiving && !isNetworkError(err):
		e.Kind = KindProtocol
	default:
		e.Kind = KindTransport
	}
	return e
}
