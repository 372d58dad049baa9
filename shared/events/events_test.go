package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	keys []string
	err  error
}

func (r *recorder) Publish(_ context.Context, key string, _ []byte) error {
	r.keys = append(r.keys, key)
	return r.err
}

func TestEmitWrapsPayload(t *testing.T) {
	var got []byte
	p := publisherFunc(func(_ context.Context, key string, body []byte) error {
		assert.Equal(t, CompletionSucceeded, key)
		got = body
		return nil
	})

	err := Emit(context.Background(), p, CompletionSucceeded, CompletionPayload{RequestID: "r1", Provider: "openai"})
	require.NoError(t, err)

	env, err := UnwrapEnvelope(got)
	require.NoError(t, err)
	assert.Equal(t, CompletionSucceeded, env.RoutingKey)
	assert.NotEmpty(t, env.ID)

	payload, err := Unwrap[CompletionPayload](got)
	require.NoError(t, err)
	assert.Equal(t, "r1", payload.RequestID)
	assert.Equal(t, "openai", payload.Provider)
}

func TestEmitNilPublisher(t *testing.T) {
	assert.NoError(t, Emit(context.Background(), nil, ArtifactProduced, ArtifactProducedPayload{}))
}

type publisherFunc func(ctx context.Context, key string, body []byte) error

func (f publisherFunc) Publish(ctx context.Context, key string, body []byte) error {
	return f(ctx, key, body)
}

func TestEmitReturnsPublisherError(t *testing.T) {
	r := &recorder{err: errors.New("down")}
	err := Emit(context.Background(), r, CompletionFailed, CompletionPayload{})
	assert.EqualError(t, err, "down")
	assert.Equal(t, []string{CompletionFailed}, r.keys)

	assert.NoError(t, Emit(context.Background(), Discard, CompletionFailed, CompletionPayload{}))
}
