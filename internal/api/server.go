// Package api exposes the completion gateway over HTTP and provides the
// matching client used by remote chat sessions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/forge-ai/uigen/internal/llm"
	"github.com/forge-ai/uigen/shared/mq"
)

const maxRequestBytes = 4 << 20

// allowedHeaders are accepted on real requests and announced on pre-flight.
const allowedHeaders = "Content-Type, Authorization, X-Request-ID"

// Server serves POST /api/chat and the supporting endpoints.
type Server struct {
	gw           *llm.Gateway
	hub          *Hub
	broker       *mq.Broker
	creds        llm.CredentialSource
	addr         string
	origin       string
	writeTimeout time.Duration
	started      time.Time
}

type ServerOption func(*Server)

// WithAddr sets the listen address, ":8080" by default.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.addr = addr }
}

// WithAllowedOrigin sets the CORS origin, "*" by default.
func WithAllowedOrigin(origin string) ServerOption {
	return func(s *Server) {
		if origin != "" {
			s.origin = origin
		}
	}
}

// WithBroker relays completion events from RabbitMQ into the hub.
func WithBroker(b *mq.Broker) ServerOption {
	return func(s *Server) { s.broker = b }
}

// WithServerCredentials reports which providers have a server-side key.
func WithServerCredentials(c llm.CredentialSource) ServerOption {
	return func(s *Server) { s.creds = c }
}

// WithWriteTimeout bounds a whole response, streams included.
func WithWriteTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

func NewServer(gw *llm.Gateway, hub *Hub, opts ...ServerOption) *Server {
	s := &Server{
		gw:           gw,
		hub:          hub,
		creds:        llm.Credentials{},
		addr:         ":8080",
		origin:       "*",
		writeTimeout: 6 * time.Minute,
		started:      time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	return cors(s.origin, mux)
}

// Run starts the hub, the optional event relay and the HTTP server, and
// stops them all when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	var deliveries <-chan amqp.Delivery
	if s.broker != nil {
		var err error
		deliveries, err = s.broker.Subscribe("gateway.ws.relay."+uuid.NewString()[:8], "completion.#")
		if err != nil {
			return fmt.Errorf("subscribe completion events: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.hub.Run(ctx) })
	g.Go(func() error { return s.serve(ctx) })
	if deliveries != nil {
		g.Go(func() error { return s.relay(ctx, deliveries) })
	}

	return g.Wait()
}

func (s *Server) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.writeTimeout,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Info().Str("addr", s.addr).Str("origin", s.origin).Msg("gateway listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// relay forwards events published by any gateway instance to local
// WebSocket clients.
func (s *Server) relay(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			s.hub.BroadcastRaw(d.Body)
		}
	}
}

// ── Handlers ─────────────────────────────────────────────────────────────────

type chatRequest struct {
	Messages    []llm.Message     `json:"messages"`
	Provider    string            `json:"provider"`
	Model       string            `json:"model"`
	Stream      bool              `json:"stream"`
	Credentials map[string]string `json:"credentials"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid body", string(llm.KindInvalidRequest), http.StatusBadRequest)
		return
	}

	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", reqID)
	ctx := llm.WithRequestID(r.Context(), reqID)

	provider, _ := llm.ParseProviderID(req.Provider)
	gw := s.gw.WithCredentials(requestCredentials(req.Credentials))

	if !req.Stream {
		resp, err := gw.SendMessage(ctx, req.Messages, provider, req.Model)
		if err != nil {
			writeError(w, err)
			return
		}
		var out chatResponse
		out.Choices = make([]chatChoice, 1)
		out.Choices[0].Message.Content = resp.Text
		jsonOK(w, out, http.StatusOK)
		return
	}

	rc := http.NewResponseController(w)
	started := false
	err := gw.SendMessageStreaming(ctx, req.Messages, provider, req.Model, func(chunk string) error {
		if !started {
			startStream(w)
			started = true
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			return err
		}
		return rc.Flush()
	})
	switch {
	case err == nil && !started:
		startStream(w)
	case err != nil && !started:
		writeError(w, err)
	case err != nil:
		// the status line is gone: drop the connection so the client reads
		// an unexpected EOF instead of a clean end of body
		log.Warn().Err(err).Str("request", reqID).Msg("stream aborted")
		panic(http.ErrAbortHandler)
	}
}

func startStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
}

// requestCredentials keeps the known, non-blank keys of the request body.
func requestCredentials(in map[string]string) llm.Credentials {
	out := llm.Credentials{}
	for name, v := range in {
		if p, ok := llm.ParseProviderID(name); ok {
			out[p] = v
		}
	}
	return out
}

type providerInfo struct {
	ID           llm.ProviderID `json:"id"`
	DefaultModel string         `json:"default_model"`
	Models       []string       `json:"models"`
	Streaming    bool           `json:"streaming"`
	Implemented  bool           `json:"implemented"`
	Configured   bool           `json:"configured"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	var out []providerInfo
	for _, p := range s.gw.Registry().List() {
		_, stub := p.Adapter.(llm.Unimplemented)
		_, configured := s.creds.Credential(p.ID)
		out = append(out, providerInfo{
			ID:           p.ID,
			DefaultModel: p.DefaultModel,
			Models:       p.Models,
			Streaming:    p.Adapter.Capabilities().Streaming,
			Implemented:  !stub,
			Configured:   configured,
		})
	}
	jsonOK(w, map[string]any{"providers": out}, http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]any{
		"status":     "online",
		"uptime_s":   int64(time.Since(s.started).Seconds()),
		"ws_clients": s.hub.Clients(),
		"relay":      s.broker != nil,
	}, http.StatusOK)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// writeError prefers the backend's own message over the wrapped chain.
func writeError(w http.ResponseWriter, err error) {
	msg := err.Error()
	var e *llm.Error
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	jsonErr(w, msg, string(llm.KindOf(err)), llm.HTTPStatus(err))
}

func jsonOK(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg, kind string, code int) {
	jsonOK(w, errorResponse{Error: msg, Kind: kind}, code)
}

func cors(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		if origin != "*" {
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", allowedHeaders)
		h.Set("Access-Control-Expose-Headers", "X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
