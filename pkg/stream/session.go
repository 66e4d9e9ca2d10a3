// Package stream drives one streaming request/response exchange against the
// flow service: it owns the HTTP handle, applies the sse framing and
// envelope decoding pipeline to each body chunk, enforces the HTTP-status
// and decode-error policy, and delivers content fragments to the consumer's
// sinks in stream order.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/loomworksco/loom/pkg/envelope"
	"github.com/loomworksco/loom/pkg/sse"
)

const (
	// defaultRequestTimeout bounds the wait for response headers.
	defaultRequestTimeout = 30 * time.Second

	// defaultStreamTimeout bounds the entire response stream. Generous,
	// because tokens arrive one at a time.
	defaultStreamTimeout = 300 * time.Second

	readBufferSize = 32 * 1024
	sinkQueueSize  = 256
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Config configures a Session.
type Config struct {
	// Target is the absolute URL of the flow service's streaming chat
	// endpoint.
	Target string

	// Role is the fixed system role string sent with every prompt.
	Role string

	// SessionID and Label override the wire defaults when set.
	SessionID string
	Label     string

	// RequestTimeout bounds the wait for response headers (default 30s).
	RequestTimeout time.Duration

	// StreamTimeout bounds the whole response stream (default 300s).
	StreamTimeout time.Duration

	// HTTPClient overrides the default streaming client. The default client
	// enforces RequestTimeout at the transport layer and leaves the overall
	// bound to the stream context.
	HTTPClient *http.Client

	// Logger receives dropped-event debug logs and transport errors.
	Logger *zap.Logger

	// OnFragment receives every llmStream content fragment, verbatim and in
	// stream order. Fragments are incremental deltas; the session never
	// accumulates text.
	OnFragment func(text string)

	// OnError fires at most once and is terminal for the session.
	OnError func(err *StreamError)

	// OnComplete fires once when the body ends without transport error.
	OnComplete func()
}

// Session is one streaming exchange. It is single-use: create, Start,
// then either let it finish or Cancel it.
//
// All sink invocations are delivered from a single dispatch goroutine per
// session, so the consumer never observes concurrent or reordered sink
// calls. Cancel guarantees no sink fires after it returns; because that
// guarantee is enforced by waiting out any in-flight invocation, sinks must
// not call Cancel on their own session.
type Session struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	framer *sse.Framer

	queue chan func()
	done  chan struct{}

	state atomic.Int32

	mu        sync.Mutex // guards muted/started/cancelCtx; held across each sink call
	muted     bool
	started   bool
	cancelCtx context.CancelFunc
}

// NewSession creates a Session from cfg, applying timeout defaults and a
// no-op logger when none is provided.
func NewSession(cfg Config) *Session {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = defaultStreamTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			// No Client.Timeout: it would cut the body read short. The
			// header wait is bounded here, the whole stream by the
			// context deadline set in Start.
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.RequestTimeout,
			},
		}
	}

	s := &Session{
		cfg:    cfg,
		client: client,
		logger: logger,
		framer: sse.NewFramer(),
		queue:  make(chan func(), sinkQueueSize),
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateIdle))

	return s
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once a started session has finished delivering all sink
// calls, whether it completed, failed or was cancelled.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start serializes the chat request for content and issues it. It returns
// once the request has been dispatched; fragments, errors and completion are
// delivered through the configured sinks.
//
// Request-construction and body-encoding failures are returned directly as
// a *StreamError; they happen before any connection attempt and never reach
// the error sink.
func (s *Session) Start(ctx context.Context, content string) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.muted {
		s.mu.Unlock()
		return ErrCancelled
	}
	s.started = true
	s.mu.Unlock()

	body, err := json.Marshal(NewChatRequest(content, s.cfg.Role, s.cfg.Label, s.cfg.SessionID))
	if err != nil {
		return &StreamError{Kind: KindEncoding, Err: err}
	}

	if _, err := url.ParseRequestURI(s.cfg.Target); err != nil {
		return &StreamError{Kind: KindInvalidRequest, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StreamTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Target, bytes.NewReader(body))
	if err != nil {
		cancel()
		return &StreamError{Kind: KindInvalidRequest, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	s.mu.Lock()
	s.cancelCtx = cancel
	muted := s.muted
	s.mu.Unlock()
	if muted {
		// Cancelled between the checks; never dial.
		cancel()
		return ErrCancelled
	}

	s.advance(StateRequesting)
	s.logger.Debug("starting stream session",
		zap.String("target", s.cfg.Target),
		zap.Duration("stream_timeout", s.cfg.StreamTimeout),
	)

	go s.dispatch()
	go s.run(req, cancel)

	return nil
}

// Cancel terminates the session. It is safe to call from any state and
// idempotent. When it returns, the transport handle has been released and no
// sink will fire again: an in-flight chunk's effects are dropped rather than
// delivered late.
func (s *Session) Cancel() {
	s.mu.Lock()
	wasMuted := s.muted
	s.muted = true
	cancel := s.cancelCtx
	s.mu.Unlock()

	if wasMuted {
		return
	}

	// Claim the terminal state before releasing the transport. Cancelling
	// the request context makes the body read return, sometimes with a clean
	// EOF; that read must not record a completion.
	s.advance(StateCancelled)

	if cancel != nil {
		cancel()
	}
}

// advance moves the session to next unless it has already reached a terminal
// state. A terminal state, once set, is never overwritten: a cancelled
// session stays cancelled even when the body read races the cancellation and
// ends in EOF. Reports whether the transition happened.
func (s *Session) advance(next State) bool {
	for {
		cur := State(s.state.Load())
		if cur == StateCompleted || cur == StateFailed || cur == StateCancelled {
			return false
		}
		if s.state.CompareAndSwap(int32(cur), int32(next)) {
			return true
		}
	}
}

// run owns the transport exchange. It is the only writer to the sink queue
// and closes it when the exchange is over.
func (s *Session) run(req *http.Request, cancel context.CancelFunc) {
	defer close(s.queue)
	defer cancel()

	resp, err := s.client.Do(req)
	if err != nil {
		s.fail(&StreamError{Kind: KindTransport, Err: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Policy: the body of a status error is not read.
		s.logger.Error("upstream returned error status", zap.Int("status", resp.StatusCode))
		s.fail(&StreamError{Kind: KindHTTPStatus, Status: resp.StatusCode})
		return
	}

	s.advance(StateStreaming)

	buf := make([]byte, readBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			s.ingest(buf[:n])
		}

		if err == io.EOF {
			// A cancellation can race the final read; the body ending
			// then is not a completion.
			if !s.advance(StateCompleted) {
				return
			}
			s.logger.Debug("stream completed")
			if s.cfg.OnComplete != nil {
				s.queue <- s.cfg.OnComplete
			}
			return
		}
		if err != nil {
			s.fail(&StreamError{Kind: KindTransport, Err: err})
			return
		}
	}
}

// ingest runs one body chunk through the framer → extractor → decoder
// pipeline and queues a sink call per content fragment.
func (s *Session) ingest(chunk []byte) {
	for _, line := range s.framer.Feed(chunk) {
		payload, ok := sse.ExtractData(line)
		if !ok {
			continue
		}

		env, err := envelope.DecodePayload(payload)
		if err != nil {
			// A malformed event never aborts a healthy stream.
			s.logger.Debug("dropping undecodable event", zap.Error(err))
			continue
		}
		if env == nil {
			continue
		}

		switch env.MsgType {
		case envelope.MessageTypeLLMStream:
			text, ok := env.Data.ContentFragment()
			if !ok || s.cfg.OnFragment == nil {
				continue
			}
			s.queue <- func() { s.cfg.OnFragment(text) }

		default:
			// flow and node progress envelopes are decoded but not yet
			// surfaced to any sink.
			s.logger.Debug("ignoring envelope",
				zap.String("msg_type", string(env.MsgType)),
			)
		}
	}
}

// fail records the terminal error and queues the single error sink call.
// Cancellation wins over failure: once muted, the effects of the failing
// chunk or dial are dropped entirely.
func (s *Session) fail(serr *StreamError) {
	s.mu.Lock()
	muted := s.muted
	s.mu.Unlock()
	if muted {
		return
	}

	if !s.advance(StateFailed) {
		return
	}
	s.logger.Error("stream session failed",
		zap.String("kind", string(serr.Kind)),
		zap.Int("status", serr.Status),
		zap.Error(serr.Err),
	)

	if s.cfg.OnError != nil {
		s.queue <- func() { s.cfg.OnError(serr) }
	}
}

// dispatch delivers queued sink calls one at a time. The mutex is held
// across each invocation so Cancel cannot return while a sink call is in
// flight, and a muted session delivers nothing.
func (s *Session) dispatch() {
	defer close(s.done)

	for call := range s.queue {
		s.mu.Lock()
		if !s.muted {
			call()
		}
		s.mu.Unlock()
	}
}
