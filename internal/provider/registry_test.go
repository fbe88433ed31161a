package provider

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopProvider struct{}

func (nopProvider) PrepareStorage(ctx context.Context, meta FileInfo) (Context, error) {
	return Context{}, nil
}
func (nopProvider) UploadChunk(ctx context.Context, payload []byte, sctx Context) (ChunkRef, error) {
	return ChunkRef{}, nil
}
func (nopProvider) DownloadChunk(ctx context.Context, ref ChunkRef, sctx Context) ([]byte, error) {
	return nil, nil
}
func (nopProvider) DeleteChunk(ctx context.Context, ref ChunkRef, sctx Context) error { return nil }
func (nopProvider) MaxChunkSize() int                                                 { return 1 }
func (nopProvider) ValidateConfig(ctx context.Context) error                          { return nil }

func TestRegisterAndNew(t *testing.T) {
	Register("test-platform", func(config json.RawMessage, skipValidation bool) (Provider, error) {
		return nopProvider{}, nil
	})

	p, err := New("test-platform", json.RawMessage(`{}`), true)
	require.NoError(t, err)
	assert.NotNil(t, p)

	assert.Contains(t, Platforms(), "test-platform")
}

func TestNew_UnknownPlatform(t *testing.T) {
	_, err := New("no-such-platform", nil, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	Register("dup-platform", func(config json.RawMessage, skipValidation bool) (Provider, error) {
		return nopProvider{}, nil
	})
	assert.Panics(t, func() {
		Register("dup-platform", func(config json.RawMessage, skipValidation bool) (Provider, error) {
			return nopProvider{}, nil
		})
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimited))
	assert.True(t, IsRetryable(ErrTransient))
	assert.False(t, IsRetryable(ErrNotFound))
	assert.False(t, IsRetryable(ErrUnauthorized))
	assert.False(t, IsRetryable(ErrInvalidConfig))
	assert.False(t, IsRetryable(errors.New("other")))
}
