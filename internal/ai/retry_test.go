package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/carebot/carebot/internal/log"
)

// flakyGenerator fails a fixed number of times before succeeding.
type flakyGenerator struct {
	failures int
	err      error
	calls    int
}

func (f *flakyGenerator) Generate(context.Context, *GenerateRequest) (*Reply, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &Reply{Text: "ok"}, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 Too Many Requests"), true},
		{"quota", errors.New("quota exceeded for project"), true},
		{"server error", errors.New("received 503 from upstream"), true},
		{"unavailable", errors.New("service Unavailable"), true},
		{"timeout", errors.New("context deadline exceeded: timeout"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"auth failure", errors.New("401 unauthorized"), false},
		{"bad request", errors.New("invalid request payload"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryableError(tt.err))
		})
	}
}

func TestRetryingGenerator_RecoversFromTransientErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	inner := &flakyGenerator{failures: 2, err: errors.New("503 service unavailable")}
	gen := NewRetryingGenerator(inner, fastRetry(), nil, log.NewNop())

	reply, err := gen.Generate(context.Background(), &GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Text)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingGenerator_NonRetryableFailsImmediately(t *testing.T) {
	inner := &flakyGenerator{failures: 10, err: errors.New("401 unauthorized")}
	gen := NewRetryingGenerator(inner, fastRetry(), nil, log.NewNop())

	_, err := gen.Generate(context.Background(), &GenerateRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingGenerator_ExhaustsRetries(t *testing.T) {
	inner := &flakyGenerator{failures: 10, err: errors.New("rate limit exceeded")}
	gen := NewRetryingGenerator(inner, fastRetry(), nil, log.NewNop())

	_, err := gen.Generate(context.Background(), &GenerateRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	// initial attempt + MaxRetries
	assert.Equal(t, 4, inner.calls)
}

func TestRetryingGenerator_ContextCancellation(t *testing.T) {
	inner := &flakyGenerator{failures: 10, err: errors.New("503")}
	cfg := RetryConfig{MaxRetries: 5, InitialInterval: time.Hour, MaxInterval: time.Hour}
	gen := NewRetryingGenerator(inner, cfg, nil, log.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := gen.Generate(ctx, &GenerateRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, inner.calls)
}

// fixedEmbedder always returns one vector per input.
type fixedEmbedder struct {
	calls int
	fail  int
}

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.fail {
		return nil, errors.New("502 bad gateway")
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestRetryingEmbedder_Recovers(t *testing.T) {
	inner := &fixedEmbedder{fail: 1}
	emb := NewRetryingEmbedder(inner, fastRetry(), nil, log.NewNop())

	vecs, err := emb.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 2, inner.calls)
}
