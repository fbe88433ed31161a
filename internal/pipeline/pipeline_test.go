package pipeline

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/cryptox"
	"github.com/dmitrijs2005/chunkvault/internal/logging"
	"github.com/dmitrijs2005/chunkvault/internal/models"
	"github.com/dmitrijs2005/chunkvault/internal/provider"
	"github.com/dmitrijs2005/chunkvault/internal/repositories/repomanager"
	"github.com/dmitrijs2005/chunkvault/internal/router"
	_ "modernc.org/sqlite"
)

// memProvider stores payloads in a map and lets tests inject failures.
type memProvider struct {
	mu      sync.Mutex
	objects map[string][]byte
	seq     int

	maxChunkSize int
	uploadErr    func(call int) error // called with 1-based upload count
	uploads      int
}

func newMemProvider(maxChunkSize int) *memProvider {
	return &memProvider{objects: map[string][]byte{}, maxChunkSize: maxChunkSize}
}

func (m *memProvider) PrepareStorage(ctx context.Context, meta provider.FileInfo) (provider.Context, error) {
	return provider.Context{"container": "c-" + meta.ID}, nil
}

func (m *memProvider) UploadChunk(ctx context.Context, payload []byte, sctx provider.Context) (provider.ChunkRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	if m.uploadErr != nil {
		if err := m.uploadErr(m.uploads); err != nil {
			return nil, err
		}
	}
	m.seq++
	key := fmt.Sprintf("obj-%d", m.seq)
	m.objects[key] = append([]byte(nil), payload...)
	return provider.ChunkRef{"key": key}, nil
}

func (m *memProvider) DownloadChunk(ctx context.Context, ref provider.ChunkRef, sctx provider.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[ref["key"]]
	if !ok {
		return nil, provider.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memProvider) DeleteChunk(ctx context.Context, ref provider.ChunkRef, sctx provider.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[ref["key"]]; !ok {
		return provider.ErrNotFound
	}
	delete(m.objects, ref["key"])
	return nil
}

func (m *memProvider) MaxChunkSize() int { return m.maxChunkSize }

func (m *memProvider) ValidateConfig(ctx context.Context) error { return nil }

func (m *memProvider) objectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

var (
	memProviderMu   sync.Mutex
	nextMemProvider *memProvider
)

func init() {
	provider.Register("mem-test", func(config json.RawMessage, skipValidation bool) (provider.Provider, error) {
		memProviderMu.Lock()
		defer memProviderMu.Unlock()
		if nextMemProvider == nil {
			return newMemProvider(4096), nil
		}
		return nextMemProvider, nil
	})
}

type testEnv struct {
	db      *sql.DB
	manager repomanager.Manager
	svc     *Service
	prov    *memProvider
}

func newTestEnv(t *testing.T, prov *memProvider, defaultChunkSize int64) *testEnv {
	t.Helper()

	memProviderMu.Lock()
	nextMemProvider = prov
	memProviderMu.Unlock()
	t.Cleanup(func() {
		memProviderMu.Lock()
		nextMemProvider = nil
		memProviderMu.Unlock()
	})

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := repomanager.NewSQLiteManager()
	require.NoError(t, m.RunMigrations(context.Background(), db))

	ctx := context.Background()
	require.NoError(t, m.Providers(db).Create(ctx, &models.ProviderConfig{
		ID: "prov-1", Name: "fake", Platform: "mem-test", Version: 1,
		Config: json.RawMessage(`{}`),
	}))

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	rt := router.New(m.Providers(db), router.RetryPolicy{
		MaxAttempts: 2,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
		CallTimeout: time.Second,
	}, log)
	ks := cryptox.NewKeystore([]byte("test-secret"))
	svc := NewService(db, m, rt, ks, defaultChunkSize, log)

	return &testEnv{db: db, manager: m, svc: svc, prov: prov}
}

func randBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestUpload_RoundTripAcrossSizes(t *testing.T) {
	const chunkSize = 1024

	sizes := []int{0, 1, chunkSize - 1, chunkSize, chunkSize*2 + 5, chunkSize * 3}
	for _, size := range sizes {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			env := newTestEnv(t, newMemProvider(4096), chunkSize)
			data := randBytes(t, size)

			file, err := env.svc.Upload(context.Background(), bytes.NewReader(data), UploadOptions{
				Filename: "data.bin", Provider: "fake",
			})
			require.NoError(t, err)
			assert.Equal(t, models.FileStatusCompleted, file.Status)
			assert.Equal(t, int64(size), file.Size)

			wantDigest := sha256.Sum256(data)
			assert.Equal(t, hex.EncodeToString(wantDigest[:]), file.SHA256)

			wantChunks := (size + chunkSize - 1) / chunkSize
			stored, err := env.svc.Chunks(context.Background(), file.ID)
			require.NoError(t, err)
			require.Len(t, stored, wantChunks)
			for i, c := range stored {
				assert.Equal(t, i, c.Order)
				assert.Equal(t, models.ChunkStatusStored, c.Status)
				assert.Greater(t, c.PayloadSize, c.PlainSize)
				assert.LessOrEqual(t, c.PayloadSize, c.PlainSize+int64(cryptox.Overhead))
			}

			st, err := env.svc.OpenStream(context.Background(), file.ID)
			require.NoError(t, err)
			got, err := io.ReadAll(st)
			require.NoError(t, err)
			require.NoError(t, st.Close())
			assert.Equal(t, data, got)
		})
	}
}

func TestUpload_EmptyStream(t *testing.T) {
	env := newTestEnv(t, newMemProvider(4096), 1024)

	file, err := env.svc.Upload(context.Background(), bytes.NewReader(nil), UploadOptions{
		Filename: "empty", Provider: "fake",
	})
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusCompleted, file.Status)
	assert.Equal(t, int64(0), file.Size)
	assert.Equal(t, 0, env.prov.objectCount())

	st, err := env.svc.OpenStream(context.Background(), file.ID)
	require.NoError(t, err)
	defer st.Close()

	buf := make([]byte, 16)
	n, err := st.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestUpload_ExplicitChunkSizeAboveProviderMax(t *testing.T) {
	env := newTestEnv(t, newMemProvider(2048), 1024)

	_, err := env.svc.Upload(context.Background(), bytes.NewReader(randBytes(t, 100)), UploadOptions{
		Filename: "big", Provider: "fake", ChunkSize: 4096,
	})
	require.ErrorIs(t, err, ErrChunkSizeTooLarge)
	assert.Equal(t, 0, env.prov.uploads, "no upload may happen before the size check")
}

func TestUpload_DefaultChunkSizeClampedToProviderMax(t *testing.T) {
	env := newTestEnv(t, newMemProvider(512), 1024*1024)

	data := randBytes(t, 1200)
	file, err := env.svc.Upload(context.Background(), bytes.NewReader(data), UploadOptions{
		Filename: "clamped", Provider: "fake",
	})
	require.NoError(t, err)

	stored, err := env.svc.Chunks(context.Background(), file.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, int64(512), stored[0].PlainSize)
	assert.Equal(t, int64(512), stored[1].PlainSize)
	assert.Equal(t, int64(176), stored[2].PlainSize)
}

func TestUpload_FailureMarksFileFailedAndKeepsChunks(t *testing.T) {
	prov := newMemProvider(4096)
	prov.uploadErr = func(call int) error {
		if call == 2 {
			return provider.ErrUnauthorized
		}
		return nil
	}
	env := newTestEnv(t, prov, 1024)

	file, err := env.svc.Upload(context.Background(), bytes.NewReader(randBytes(t, 2048)), UploadOptions{
		Filename: "partial", Provider: "fake",
	})
	require.ErrorIs(t, err, provider.ErrUnauthorized)
	assert.Contains(t, err.Error(), file.ID)
	assert.Contains(t, err.Error(), "chunk 1")

	got, err := env.svc.Get(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusFailed, got.Status)

	stored, err := env.svc.Chunks(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "successfully stored chunks are kept")
}

func TestUpload_CancellationLeavesUploading(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	prov := newMemProvider(4096)
	prov.uploadErr = func(call int) error {
		if call == 2 {
			cancel()
			return provider.ErrTransient
		}
		return nil
	}
	env := newTestEnv(t, prov, 1024)

	file, err := env.svc.Upload(ctx, bytes.NewReader(randBytes(t, 2048)), UploadOptions{
		Filename: "interrupted", Provider: "fake",
	})
	require.Error(t, err)

	got, err := env.svc.Get(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusUploading, got.Status)
}

func TestDelete_RemovesRemoteObjectsAndMetadata(t *testing.T) {
	env := newTestEnv(t, newMemProvider(4096), 1024)

	file, err := env.svc.Upload(context.Background(), bytes.NewReader(randBytes(t, 3000)), UploadOptions{
		Filename: "doomed", Provider: "fake",
	})
	require.NoError(t, err)
	require.Equal(t, 3, env.prov.objectCount())

	require.NoError(t, env.svc.Delete(context.Background(), file.ID))

	assert.Equal(t, 0, env.prov.objectCount())
	_, err = env.svc.Get(context.Background(), file.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	stored, err := env.svc.Chunks(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestDelete_ToleratesAlreadyRemovedRemote(t *testing.T) {
	env := newTestEnv(t, newMemProvider(4096), 1024)

	file, err := env.svc.Upload(context.Background(), bytes.NewReader(randBytes(t, 2048)), UploadOptions{
		Filename: "halfgone", Provider: "fake",
	})
	require.NoError(t, err)

	// simulate an object already purged on the platform side
	env.prov.mu.Lock()
	for key := range env.prov.objects {
		delete(env.prov.objects, key)
		break
	}
	env.prov.mu.Unlock()

	require.NoError(t, env.svc.Delete(context.Background(), file.ID))
	_, err = env.svc.Get(context.Background(), file.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
