package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/forge-ai/uigen/internal/codegen"
	"github.com/forge-ai/uigen/internal/llm"
	"github.com/forge-ai/uigen/shared/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// collector records delivered artifacts.
type collector struct {
	mu   sync.Mutex
	arts []codegen.Artifact
}

func (c *collector) deliver(a codegen.Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arts = append(c.arts, a)
}

func (c *collector) all() []codegen.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]codegen.Artifact(nil), c.arts...)
}

func backend(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func gateway(t *testing.T, id llm.ProviderID, a llm.Adapter, creds llm.Credentials) *llm.Gateway {
	t.Helper()
	reg, err := llm.NewRegistry(llm.NewProvider(id, a))
	require.NoError(t, err)
	return llm.New(reg, creds, llm.WithLogger(zerolog.Nop()))
}

func TestScenarioSynthesizedButton(t *testing.T) {
	srv := backend(t, 200, `{"choices":[{"message":{"role":"assistant","content":"Ecco un bel bottone per te!"}}]}`)
	gw := gateway(t, llm.OpenAI, llm.NewOpenAI(llm.WithBaseURL(srv.URL)), llm.Credentials{llm.OpenAI: "k"})

	c := &collector{}
	s := New(gw, c.deliver, WithProvider(llm.OpenAI, "default"), WithLogger(zerolog.Nop()))

	require.NoError(t, s.Send(context.Background(), "crea un bottone"))
	s.Wait()

	arts := c.all()
	require.Len(t, arts, 1)
	assert.Equal(t, codegen.OriginSynthesized, arts[0].Origin)
	assert.Contains(t, arts[0].Source, "<button")

	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "crea un bottone"}, h[0])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "Ecco un bel bottone per te!"}, h[1])
}

func TestScenarioInvalidKeyShowsNote(t *testing.T) {
	srv := backend(t, 401, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	gw := gateway(t, llm.Anthropic, llm.NewAnthropic(llm.WithBaseURL(srv.URL)), llm.Credentials{llm.Anthropic: "sk-ant-wrong"})

	c := &collector{}
	s := New(gw, c.deliver, WithProvider(llm.Anthropic, ""), WithLogger(zerolog.Nop()))

	require.NoError(t, s.Send(context.Background(), "make a card"))
	s.Wait()

	assert.Empty(t, c.all(), "no artifact on failure")
	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, llm.RoleAssistant, h[1].Role)
	assert.Equal(t, FailureNote(llm.Anthropic, &llm.Error{Kind: llm.KindInvalidCredential, Provider: llm.Anthropic}), h[1].Content)
	assert.NotContains(t, h[1].Content, "sk-ant-wrong")
}

func TestScenarioStreamedChunks(t *testing.T) {
	emitted := []string{"```tsx\n", "const X = ...\n", "```"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range emitted {
			b, _ := json.Marshal(map[string]any{"choices": []map[string]any{{"delta": map[string]string{"content": c}}}})
			fmt.Fprintf(w, "data: %s\n\n", b)
			w.(http.Flusher).Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	gw := gateway(t, llm.OpenAI, llm.NewOpenAI(llm.WithBaseURL(srv.URL)), llm.Credentials{llm.OpenAI: "k"})

	var mu sync.Mutex
	var seen []string
	c := &collector{}
	s := New(gw, c.deliver, WithStreaming(func(chunk string) {
		mu.Lock()
		seen = append(seen, chunk)
		mu.Unlock()
	}), WithLogger(zerolog.Nop()))

	require.NoError(t, s.Send(context.Background(), "a component called X"))
	s.Wait()

	mu.Lock()
	assert.Equal(t, emitted, seen)
	mu.Unlock()

	arts := c.all()
	require.Len(t, arts, 1)
	assert.Equal(t, codegen.OriginExtracted, arts[0].Origin)
	assert.Equal(t, "const X = ...", arts[0].Source)
	assert.Equal(t, strings.Join(emitted, ""), s.History()[1].Content)
}

// blockingCompleter holds every turn until release is closed.
type blockingCompleter struct {
	release chan struct{}
	convs   chan []llm.Message
}

func (b *blockingCompleter) SendMessage(ctx context.Context, conv []llm.Message, _ llm.ProviderID, _ string) (*llm.Response, error) {
	b.convs <- conv
	select {
	case <-b.release:
		return &llm.Response{Text: "```tsx\nexport default function Done() {}\n```"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blockingCompleter) SendMessageStreaming(ctx context.Context, conv []llm.Message, p llm.ProviderID, m string, onChunk func(string) error) error {
	resp, err := b.SendMessage(ctx, conv, p, m)
	if err != nil {
		return err
	}
	return onChunk(resp.Text)
}

func TestSecondSendWhileInFlight(t *testing.T) {
	bc := &blockingCompleter{release: make(chan struct{}), convs: make(chan []llm.Message, 2)}
	c := &collector{}
	s := New(bc, c.deliver, WithLogger(zerolog.Nop()))

	require.NoError(t, s.Send(context.Background(), "first"))
	<-bc.convs
	assert.True(t, s.Busy())

	assert.ErrorIs(t, s.Send(context.Background(), "second"), ErrTurnInFlight)
	assert.Len(t, s.History(), 1, "rejected sends are not recorded")

	close(bc.release)
	s.Wait()
	assert.False(t, s.Busy())

	require.NoError(t, s.Send(context.Background(), "third"))
	conv := <-bc.convs
	s.Wait()

	require.Len(t, conv, 3)
	assert.Equal(t, "first", conv[0].Content)
	assert.Equal(t, llm.RoleAssistant, conv[1].Role)
	assert.Equal(t, "third", conv[2].Content)
	assert.Len(t, c.all(), 2)
}

func TestCancelledTurnRecovers(t *testing.T) {
	bc := &blockingCompleter{release: make(chan struct{}), convs: make(chan []llm.Message, 1)}
	c := &collector{}
	s := New(bc, c.deliver, WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Send(ctx, "hello"))
	<-bc.convs
	cancel()
	s.Wait()

	assert.Empty(t, c.all())
	h := s.History()
	require.Len(t, h, 2)
	assert.Contains(t, h[1].Content, "Something went wrong")
}

func TestSendRejectsEmptyText(t *testing.T) {
	s := New(&blockingCompleter{}, nil, WithLogger(zerolog.Nop()))
	assert.ErrorIs(t, s.Send(context.Background(), "   "), ErrEmptyMessage)
	assert.Empty(t, s.History())
}

func TestHistoryIsACopy(t *testing.T) {
	bc := &blockingCompleter{release: make(chan struct{}), convs: make(chan []llm.Message, 1)}
	close(bc.release)
	s := New(bc, nil, WithLogger(zerolog.Nop()))

	require.NoError(t, s.Send(context.Background(), "hi"))
	s.Wait()

	h := s.History()
	h[0].Content = "changed"
	assert.Equal(t, "hi", s.History()[0].Content)
}

type recorder struct {
	mu   sync.Mutex
	keys []string
	body [][]byte
}

func (r *recorder) Publish(_ context.Context, key string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	r.body = append(r.body, body)
	return nil
}

func TestArtifactEvent(t *testing.T) {
	bc := &blockingCompleter{release: make(chan struct{}), convs: make(chan []llm.Message, 1)}
	close(bc.release)
	pub := &recorder{}
	s := New(bc, nil, WithPublisher(pub), WithLogger(zerolog.Nop()))

	require.NoError(t, s.Send(context.Background(), "done"))
	s.Wait()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Equal(t, []string{events.ArtifactProduced}, pub.keys)
	p, err := events.Unwrap[events.ArtifactProducedPayload](pub.body[0])
	require.NoError(t, err)
	assert.Equal(t, s.ID(), p.SessionID)
	assert.Equal(t, "extracted", p.Origin)
	assert.Equal(t, "Done.tsx", p.Filename)
}

func TestFailureNotes(t *testing.T) {
	kinds := []llm.Kind{
		llm.KindMissingCredential,
		llm.KindInvalidCredential,
		llm.KindQuotaExceeded,
		llm.KindUnsupportedProvider,
		llm.KindUpstreamUnavailable,
		llm.KindMalformedResponse,
		llm.KindInvalidRequest,
	}
	seen := map[string]bool{}
	for _, k := range kinds {
		note := FailureNote(llm.Gemini, &llm.Error{Kind: k})
		assert.NotEmpty(t, note, k)
		assert.False(t, seen[note], "notes must differ per kind: %s", k)
		seen[note] = true
	}
	assert.Contains(t, FailureNote(llm.OpenAI, &llm.Error{Kind: llm.KindMissingCredential}), "openai")
}
