package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/dmitrijs2005/chunkvault/internal/cryptox"
	"github.com/dmitrijs2005/chunkvault/internal/models"
	"github.com/dmitrijs2005/chunkvault/internal/provider"
	"github.com/dmitrijs2005/chunkvault/internal/router"
	"github.com/dmitrijs2005/chunkvault/internal/shared"
)

var (
	// ErrFileNotReady is returned when a download is attempted on a file
	// whose upload never completed.
	ErrFileNotReady = errors.New("file upload is not completed")

	// ErrChecksumMismatch is returned at end of stream when the reassembled
	// plaintext does not hash to the recorded digest.
	ErrChecksumMismatch = errors.New("file checksum mismatch")

	// ErrChunkGap is returned when the stored chunk orders are not a
	// contiguous range starting at zero.
	ErrChunkGap = errors.New("missing chunk in sequence")
)

// Stream reassembles a stored file as a pull-based reader. Chunks are
// fetched, decrypted and verified strictly in ascending order, one chunk in
// memory at a time. A decrypt failure aborts the stream without emitting
// partial plaintext for that chunk. The stream is not restartable; call
// OpenStream again to start over from chunk zero.
type Stream struct {
	ctx    context.Context
	router *router.Router
	prov   provider.Provider
	file   *models.File
	chunks []*models.Chunk
	key    []byte

	idx    int
	buf    []byte
	hash   hash.Hash
	closed bool
}

// OpenStream prepares a Stream for the file. The per-file key is unwrapped
// once; the provider is resolved through the router. An empty file yields an
// immediate EOF.
func (s *Service) OpenStream(ctx context.Context, id string) (*Stream, error) {
	file, err := s.manager.Files(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.Status != models.FileStatusCompleted {
		return nil, fmt.Errorf("%w: file %s is %s", ErrFileNotReady, id, file.Status)
	}

	p, _, err := s.router.ResolveByID(ctx, file.ProviderID)
	if err != nil {
		return nil, err
	}

	chunkList, err := s.manager.Chunks(s.db).ListByFile(ctx, id)
	if err != nil {
		return nil, err
	}
	for i, c := range chunkList {
		if c.Order != i {
			return nil, fmt.Errorf("%w: file %s expected %d got %d", ErrChunkGap, id, i, c.Order)
		}
	}

	key, err := s.keystore.UnwrapKey(file.EncryptedKey, file.KeyNonce, file.KeySalt)
	if err != nil {
		return nil, fmt.Errorf("unwrap file key: %w", err)
	}

	return &Stream{
		ctx:    ctx,
		router: s.router,
		prov:   p,
		file:   file,
		chunks: chunkList,
		key:    key,
		hash:   sha256.New(),
	}, nil
}

// File returns the metadata record the stream was opened for.
func (st *Stream) File() *models.File { return st.file }

func (st *Stream) Read(p []byte) (int, error) {
	if st.closed {
		return 0, fmt.Errorf("file %s: %w", st.file.ID, io.ErrClosedPipe)
	}

	for len(st.buf) == 0 {
		if st.idx == len(st.chunks) {
			if err := st.verify(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		if err := st.fetch(); err != nil {
			return 0, err
		}
	}

	n := copy(p, st.buf)
	st.buf = st.buf[n:]
	return n, nil
}

// fetch downloads and decrypts the next chunk into the buffer.
func (st *Stream) fetch() error {
	c := st.chunks[st.idx]

	payload, err := st.router.DownloadChunk(st.ctx, st.prov, provider.ChunkRef(c.Ref), provider.Context(st.file.StorageContext))
	if err != nil {
		return fmt.Errorf("file %s chunk %d: download: %w", st.file.ID, c.Order, err)
	}

	plain, err := cryptox.Decrypt(st.key, payload)
	if err != nil {
		return fmt.Errorf("file %s chunk %d: decrypt: %w", st.file.ID, c.Order, err)
	}

	st.hash.Write(plain)
	st.buf = plain
	st.idx++
	return nil
}

// verify checks the reassembled plaintext against the recorded digest, when
// one was stored.
func (st *Stream) verify() error {
	if st.file.SHA256 == "" {
		return nil
	}
	if got := hex.EncodeToString(st.hash.Sum(nil)); got != st.file.SHA256 {
		return fmt.Errorf("%w: file %s", ErrChecksumMismatch, st.file.ID)
	}
	return nil
}

// Close releases the stream. The unwrapped key is cleared.
func (st *Stream) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	st.buf = nil
	shared.WipeByteArray(st.key)
	st.key = nil
	return nil
}
