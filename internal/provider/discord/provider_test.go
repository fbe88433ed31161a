package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/chunkvault/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, api string) *Provider {
	t.Helper()
	p, err := New(mustJSON(t, validConfig()), true)
	require.NoError(t, err)
	p.api = api
	return p
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestPrepareStorage_CreatesThread(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"555000111222333444"}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)

	sctx, err := p.PrepareStorage(context.Background(), provider.FileInfo{ID: "f1", Filename: "report.pdf"})
	require.NoError(t, err)

	assert.Equal(t, provider.Context{"thread_id": "555000111222333444"}, sctx)
	assert.Equal(t, "/channels/"+testChannelID+"/threads", gotPath)
	assert.Equal(t, "Bot "+testBotToken, gotAuth)
	assert.Equal(t, "[FILE] report.pdf", gotBody["name"])
	assert.Equal(t, float64(publicThread), gotBody["type"])
	assert.Equal(t, float64(autoArchiveMinutes), gotBody["auto_archive_duration"])
}

func TestUploadChunk_PostsAttachment(t *testing.T) {
	var gotFile []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/channels/555000111222333444/messages", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile(attachmentFieldName)
		require.NoError(t, err)
		defer f.Close()
		gotFile, err = io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, attachmentFilename, hdr.Filename)
		assert.Equal(t, "{}", r.FormValue("payload_json"))

		fmt.Fprint(w, `{"id":"999888777666555444","attachments":[{"url":"https://cdn.example/chunk"}]}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	sctx := provider.Context{"thread_id": "555000111222333444"}

	ref, err := p.UploadChunk(context.Background(), []byte("encrypted-bytes"), sctx)
	require.NoError(t, err)

	assert.Equal(t, []byte("encrypted-bytes"), gotFile)
	assert.Equal(t, "999888777666555444", ref["message_id"])
	assert.Equal(t, "https://cdn.example/chunk", ref["attachment_url"])
	assert.Equal(t, "555000111222333444", ref["thread_id"])
}

func TestUploadChunk_MissingThreadID(t *testing.T) {
	p := newTestProvider(t, "http://unused")
	_, err := p.UploadChunk(context.Background(), []byte("x"), provider.Context{})
	assert.ErrorIs(t, err, provider.ErrInvalidConfig)
}

func TestDownloadChunk_RefetchesMessage(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/channels/555000111222333444/messages/999888777666555444",
		func(w http.ResponseWriter, r *http.Request) {
			// stored CDN URLs expire, so the message is fetched fresh
			fmt.Fprintf(w, `{"attachments":[{"url":"%s/cdn/chunk0"}]}`, srv.URL)
		})
	mux.HandleFunc("/cdn/chunk0", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("stored-payload"))
	})

	p := newTestProvider(t, srv.URL)
	ref := provider.ChunkRef{"thread_id": "555000111222333444", "message_id": "999888777666555444"}

	data, err := p.DownloadChunk(context.Background(), ref, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("stored-payload"), data)
}

func TestDownloadChunk_MessageGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	ref := provider.ChunkRef{"thread_id": "555000111222333444", "message_id": "1"}

	_, err := p.DownloadChunk(context.Background(), ref, nil)
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestDeleteChunk(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	ref := provider.ChunkRef{"thread_id": "555000111222333444", "message_id": "1"}

	require.NoError(t, p.DeleteChunk(context.Background(), ref, nil))
	assert.Equal(t, http.MethodDelete, gotMethod)
}

func TestDeleteChunk_AlreadyGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	ref := provider.ChunkRef{"thread_id": "555000111222333444", "message_id": "1"}

	assert.NoError(t, p.DeleteChunk(context.Background(), ref, nil), "404 on delete is success")
}

func TestUploadChunk_RateLimitedThenSuccess(t *testing.T) {
	var calls atomic.Int32
	const limited = 2 // below the attempt ceiling

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= limited {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"retry_after": 0.01}`)
			return
		}
		fmt.Fprint(w, `{"id":"1","attachments":[{"url":"u"}]}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	sctx := provider.Context{"thread_id": "555000111222333444"}

	ref, err := p.UploadChunk(context.Background(), []byte("x"), sctx)
	require.NoError(t, err)
	assert.Equal(t, "1", ref["message_id"])
	assert.Equal(t, int32(limited+1), calls.Load(), "exactly K+1 calls for K rate limits")
}

func TestUploadChunk_RateLimitCeiling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"retry_after": 0.001}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	sctx := provider.Context{"thread_id": "555000111222333444"}

	_, err := p.UploadChunk(context.Background(), []byte("x"), sctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrRateLimited)
	assert.Equal(t, int32(rateLimitAttempts), calls.Load())
}

func TestUploadChunk_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	sctx := provider.Context{"thread_id": "555000111222333444"}

	_, err := p.UploadChunk(context.Background(), []byte("x"), sctx)
	assert.ErrorIs(t, err, provider.ErrUnauthorized)
}

func TestUploadChunk_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	sctx := provider.Context{"thread_id": "555000111222333444"}

	_, err := p.UploadChunk(context.Background(), []byte("x"), sctx)
	assert.ErrorIs(t, err, provider.ErrTransient)
}

func TestValidateConfig_LiveCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/@me", r.URL.Path)
		require.Equal(t, "Bot "+testBotToken, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"id":"42","bot":true}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	assert.NoError(t, p.ValidateConfig(context.Background()))
}

func TestValidateConfig_DeadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	err := p.ValidateConfig(context.Background())
	assert.ErrorIs(t, err, provider.ErrInvalidConfig)
}
