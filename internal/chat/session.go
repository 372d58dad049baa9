// Package chat holds one conversation with the completion gateway and turns
// each reply into an artifact for the rendering surface.
package chat

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/forge-ai/uigen/internal/codegen"
	"github.com/forge-ai/uigen/internal/llm"
	"github.com/forge-ai/uigen/shared/events"
)

var (
	// ErrTurnInFlight is returned by Send while the previous turn has not
	// finished. The session never queues turns.
	ErrTurnInFlight = errors.New("chat: a turn is already in flight")
	ErrEmptyMessage = errors.New("chat: message is empty")
)

// Completer is the gateway as seen by a session. *llm.Gateway and the HTTP
// client in internal/api both satisfy it.
type Completer interface {
	SendMessage(ctx context.Context, conv []llm.Message, provider llm.ProviderID, model string) (*llm.Response, error)
	SendMessageStreaming(ctx context.Context, conv []llm.Message, provider llm.ProviderID, model string, onChunk func(string) error) error
}

// Option configures a Session.
type Option func(*Session)

// WithProvider selects the backend and model for every turn.
func WithProvider(p llm.ProviderID, model string) Option {
	return func(s *Session) {
		s.provider = p
		s.model = model
	}
}

// WithStreaming switches the session to streamed turns. onChunk, if not nil,
// sees every fragment in arrival order.
func WithStreaming(onChunk func(string)) Option {
	return func(s *Session) {
		s.stream = true
		s.onChunk = onChunk
	}
}

// WithPublisher emits an artifact.produced event per delivered artifact.
func WithPublisher(p events.Publisher) Option {
	return func(s *Session) { s.publisher = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session is one conversation. At most one turn runs at a time.
type Session struct {
	id         string
	completer  Completer
	onArtifact func(codegen.Artifact)
	onChunk    func(string)
	stream     bool
	publisher  events.Publisher
	logger     zerolog.Logger

	mu       sync.Mutex
	provider llm.ProviderID
	model    string
	history  []llm.Message
	done     chan struct{} // nil when idle
}

// New creates a session. onArtifact receives exactly one artifact per
// successful turn and is called from the turn's goroutine.
func New(c Completer, onArtifact func(codegen.Artifact), opts ...Option) *Session {
	s := &Session{
		id:         uuid.New().String(),
		completer:  c,
		onArtifact: onArtifact,
		provider:   llm.OpenAI,
		model:      "default",
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string { return s.id }

// SetProvider changes the backend for the following turns.
func (s *Session) SetProvider(p llm.ProviderID, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = p
	s.model = model
}

// Provider returns the backend and model used for the next turn.
func (s *Session) Provider() (llm.ProviderID, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider, s.model
}

// History returns a copy of the visible conversation.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Busy reports whether a turn is outstanding.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// Send appends text as a user message and starts a turn in the background.
// ctx bounds the gateway call of that turn.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	s.history = append(s.history, llm.Message{Role: llm.RoleUser, Content: text})
	t := turn{
		prompt:   text,
		conv:     slices.Clone(s.history),
		provider: s.provider,
		model:    s.model,
		done:     make(chan struct{}),
	}
	s.done = t.done
	s.mu.Unlock()

	go s.run(ctx, t)
	return nil
}

// Wait blocks until the outstanding turn, if any, has finished.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

type turn struct {
	prompt   string
	conv     []llm.Message
	provider llm.ProviderID
	model    string
	done     chan struct{}
}

func (s *Session) run(ctx context.Context, t turn) {
	defer s.finish(t)

	start := time.Now()
	reply, err := s.complete(ctx, t)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("session", s.id).
			Str("provider", string(t.provider)).
			Str("kind", string(llm.KindOf(err))).
			Msg("turn failed")
		s.appendAssistant(FailureNote(t.provider, err))
		return
	}

	s.appendAssistant(reply)
	art := codegen.Resolve(reply, t.prompt)
	s.logger.Debug().
		Str("session", s.id).
		Str("origin", string(art.Origin)).
		Str("file", art.Filename).
		Dur("took", time.Since(start)).
		Msg("artifact ready")

	if s.onArtifact != nil {
		s.onArtifact(art)
	}
	if perr := events.Emit(context.WithoutCancel(ctx), s.publisher, events.ArtifactProduced, events.ArtifactProducedPayload{
		SessionID: s.id,
		Origin:    string(art.Origin),
		Language:  art.Language,
		Filename:  art.Filename,
		Bytes:     len(art.Source),
	}); perr != nil {
		s.logger.Warn().Err(perr).Str("session", s.id).Msg("publish artifact event")
	}
}

func (s *Session) complete(ctx context.Context, t turn) (string, error) {
	if !s.stream {
		resp, err := s.completer.SendMessage(ctx, t.conv, t.provider, t.model)
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}

	var sb strings.Builder
	err := s.completer.SendMessageStreaming(ctx, t.conv, t.provider, t.model, func(chunk string) error {
		sb.WriteString(chunk)
		if s.onChunk != nil {
			s.onChunk(chunk)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (s *Session) appendAssistant(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: content})
}

func (s *Session) finish(t turn) {
	s.mu.Lock()
	s.done = nil
	s.mu.Unlock()
	close(t.done)
}
