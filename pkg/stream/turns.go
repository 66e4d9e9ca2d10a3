package stream

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loomworksco/loom/pkg/eventstream"
)

// publishTimeout bounds the turn-event publish so a slow broker never stalls
// the client.
const publishTimeout = 5 * time.Second

// TurnsConfig configures a Turns manager.
type TurnsConfig struct {
	// Stream is the per-session configuration. Its sinks are the consumer's;
	// the manager wraps them so a superseded turn's callbacks are dropped.
	Stream Config

	// Publisher receives a TurnCompletedEvent after each clean completion.
	// Nil disables publishing.
	Publisher eventstream.Publisher

	// Logger receives publish failures. Falls back to Stream.Logger.
	Logger *zap.Logger
}

// Turns runs streaming chat turns one at a time. Starting a new turn cancels
// and supersedes the previous one: the old session's remaining callbacks are
// silenced even if its cancellation races an in-flight chunk.
type Turns struct {
	cfg    TurnsConfig
	logger *zap.Logger

	mu      sync.Mutex
	current *Session

	// active is the generation of the turn whose callbacks may still be
	// delivered. Wrapped sinks compare against it without taking mu, because
	// Cancel waits out in-flight sink calls and would deadlock against a
	// sink blocked on the manager lock.
	active atomic.Uint64
}

// turnState accumulates one turn's reply. It is only touched from the
// session's dispatch goroutine, so no locking is needed.
type turnState struct {
	started   time.Time
	prompt    string
	reply     strings.Builder
	fragments int
}

// NewTurns creates a Turns manager.
func NewTurns(cfg TurnsConfig) *Turns {
	logger := cfg.Logger
	if logger == nil {
		logger = cfg.Stream.Logger
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Turns{cfg: cfg, logger: logger}
}

// StartTurn cancels any running turn and starts a new one for content. The
// returned session is already started; its lifecycle is observable through
// the configured sinks and Session.Done.
func (t *Turns) StartTurn(ctx context.Context, content string) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		t.current.Cancel()
		t.current = nil
	}

	gen := t.active.Add(1)
	turn := &turnState{started: time.Now(), prompt: content}

	cfg := t.cfg.Stream
	consumer := t.cfg.Stream

	cfg.OnFragment = func(text string) {
		if t.active.Load() != gen {
			return
		}
		turn.reply.WriteString(text)
		turn.fragments++
		if consumer.OnFragment != nil {
			consumer.OnFragment(text)
		}
	}

	cfg.OnError = func(serr *StreamError) {
		if t.active.Load() != gen {
			return
		}
		if consumer.OnError != nil {
			consumer.OnError(serr)
		}
	}

	cfg.OnComplete = func() {
		if t.active.Load() != gen {
			return
		}
		t.publish(turn)
		if consumer.OnComplete != nil {
			consumer.OnComplete()
		}
	}

	session := NewSession(cfg)
	if err := session.Start(ctx, content); err != nil {
		return nil, err
	}

	t.current = session

	return session, nil
}

// Cancel terminates the running turn, if any, and silences its callbacks.
func (t *Turns) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active.Add(1)
	if t.current != nil {
		t.current.Cancel()
		t.current = nil
	}
}

// publish emits the completed-turn event off the sink goroutine so a slow
// broker never blocks delivery or Cancel.
func (t *Turns) publish(turn *turnState) {
	if t.cfg.Publisher == nil {
		return
	}

	event := &eventstream.TurnCompletedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeTurnCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: eventstream.EventSource{
			SessionID: t.cfg.Stream.SessionID,
			Target:    t.cfg.Stream.Target,
		},
		Turn: eventstream.TurnSummary{
			Prompt:        turn.prompt,
			Reply:         turn.reply.String(),
			FragmentCount: turn.fragments,
			DurationMs:    time.Since(turn.started).Milliseconds(),
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := t.cfg.Publisher.PublishTurn(ctx, event); err != nil {
			t.logger.Warn("failed to publish turn event", zap.Error(err))
		}
	}()
}
