package llm

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/forge-ai/uigen/shared/events"
)

type requestIDKey struct{}

// WithRequestID attaches a request ID that the gateway uses in logs and
// events instead of generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the ID stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Gateway selects an adapter per call, injects the system instruction,
// resolves credentials and normalizes failures into the Error taxonomy.
type Gateway struct {
	registry    *Registry
	creds       CredentialSource
	publisher   events.Publisher
	logger      zerolog.Logger
	instruction string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPublisher sends a completion event after every call.
func WithPublisher(p events.Publisher) Option {
	return func(g *Gateway) { g.publisher = p }
}

// WithLogger replaces the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithInstruction replaces SystemInstruction.
func WithInstruction(s string) Option {
	return func(g *Gateway) {
		if s != "" {
			g.instruction = s
		}
	}
}

// New creates a Gateway over the dispatch table and credential source.
func New(registry *Registry, creds CredentialSource, opts ...Option) *Gateway {
	g := &Gateway{
		registry:    registry,
		creds:       creds,
		publisher:   events.Discard,
		logger:      log.Logger,
		instruction: SystemInstruction,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.creds == nil {
		g.creds = Credentials{}
	}
	return g
}

// Registry exposes the dispatch table.
func (g *Gateway) Registry() *Registry { return g.registry }

// WithCredentials returns a view of g where src is consulted before the
// gateway's own credential source.
func (g *Gateway) WithCredentials(src CredentialSource) *Gateway {
	cp := *g
	cp.creds = Chain{src, g.creds}
	return &cp
}

// call is the resolved state of one request.
type call struct {
	id         string
	provider   *Provider
	model      string
	credential string
	conv       []Message
	streaming  bool
	start      time.Time
}

func (g *Gateway) prepare(ctx context.Context, conv []Message, id ProviderID, model string) (*call, error) {
	p, err := g.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	if len(conv) == 0 {
		return nil, invalidRequest(id, "conversation is empty")
	}
	for i, m := range conv {
		if !m.Role.Valid() {
			return nil, invalidRequest(id, "message %d has unknown role %q", i, m.Role)
		}
	}
	resolved, err := p.ResolveModel(model)
	if err != nil {
		return nil, err
	}
	cred, ok := g.creds.Credential(id)
	if !ok {
		return nil, &Error{Kind: KindMissingCredential, Provider: id, Message: "no API key configured"}
	}

	reqID := RequestID(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	return &call{
		id:         reqID,
		provider:   p,
		model:      resolved,
		credential: cred,
		conv:       withSystem(g.instruction, conv),
		start:      time.Now(),
	}, nil
}

// SendMessage sends the conversation to provider and returns the canonical
// response.
func (g *Gateway) SendMessage(ctx context.Context, conv []Message, provider ProviderID, model string) (*Response, error) {
	c, err := g.prepare(ctx, conv, provider, model)
	if err != nil {
		g.reject(provider, model, err)
		return nil, err
	}

	resp, err := c.provider.Adapter.Call(ctx, c.conv, c.model, c.credential)
	if err != nil {
		err = g.wrap(provider, err)
	}
	g.finish(ctx, c, 0, err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// SendMessageStreaming relays text fragments to onChunk in arrival order.
// Adapters without the streaming capability deliver their whole text as one
// chunk. An error returned by onChunk stops the stream and is returned as is.
func (g *Gateway) SendMessageStreaming(ctx context.Context, conv []Message, provider ProviderID, model string, onChunk func(string) error) error {
	c, err := g.prepare(ctx, conv, provider, model)
	if err != nil {
		g.reject(provider, model, err)
		return err
	}
	c.streaming = true

	chunks := 0
	var cbErr error
	relay := func(s string) error {
		chunks++
		if err := onChunk(s); err != nil {
			cbErr = err
			return err
		}
		return nil
	}

	streamer, ok := c.provider.Adapter.(Streamer)
	if c.provider.Adapter.Capabilities().Streaming && ok {
		err = streamer.Stream(ctx, c.conv, c.model, c.credential, relay)
	} else {
		var resp *Response
		resp, err = c.provider.Adapter.Call(ctx, c.conv, c.model, c.credential)
		if err == nil {
			err = relay(resp.Text)
		}
	}

	switch {
	case err == nil:
	case cbErr != nil && errors.Is(err, cbErr):
		err = cbErr
	default:
		err = g.wrap(provider, err)
	}
	g.finish(ctx, c, chunks, err)
	return err
}

// wrap keeps adapter classifications and turns anything else into a
// transport failure.
func (g *Gateway) wrap(provider ProviderID, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindUpstreamUnavailable, Provider: provider, Err: err}
}

func (g *Gateway) reject(provider ProviderID, model string, err error) {
	g.logger.Warn().
		Str("provider", string(provider)).
		Str("model", model).
		Str("kind", string(KindOf(err))).
		Msg("completion rejected")
}

func (g *Gateway) finish(ctx context.Context, c *call, chunks int, err error) {
	took := time.Since(c.start)
	payload := events.CompletionPayload{
		RequestID:  c.id,
		Provider:   string(c.provider.ID),
		Model:      c.model,
		Streaming:  c.streaming,
		Chunks:     chunks,
		DurationMS: took.Milliseconds(),
	}

	key := events.CompletionSucceeded
	if err != nil {
		key = events.CompletionFailed
		payload.Kind = string(KindOf(err))
		payload.Error = err.Error()
		g.logger.Error().Err(err).
			Str("request", c.id).
			Str("provider", string(c.provider.ID)).
			Str("model", c.model).
			Str("kind", payload.Kind).
			Dur("took", took).
			Msg("completion failed")
	} else {
		g.logger.Info().
			Str("request", c.id).
			Str("provider", string(c.provider.ID)).
			Str("model", c.model).
			Bool("stream", c.streaming).
			Int("chunks", chunks).
			Dur("took", took).
			Msg("completion done")
	}

	if perr := events.Emit(context.WithoutCancel(ctx), g.publisher, key, payload); perr != nil {
		g.logger.Warn().Err(perr).Str("request", c.id).Msg("publish completion event")
	}
}
