// Package pipeline implements the chunked upload/download/delete flows: a
// stream is split into fixed-size plaintext segments, each segment encrypted
// independently and handed to a storage provider, with metadata recorded per
// chunk. Uploads for one file are strictly sequential; different files may be
// processed in parallel by independent callers.
package pipeline

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/chunkvault/internal/cryptox"
	"github.com/dmitrijs2005/chunkvault/internal/dbx"
	"github.com/dmitrijs2005/chunkvault/internal/logging"
	"github.com/dmitrijs2005/chunkvault/internal/models"
	"github.com/dmitrijs2005/chunkvault/internal/provider"
	"github.com/dmitrijs2005/chunkvault/internal/repositories/repomanager"
	"github.com/dmitrijs2005/chunkvault/internal/router"
	"github.com/dmitrijs2005/chunkvault/internal/shared"
)

// ErrChunkSizeTooLarge is returned when an explicitly requested chunk size
// exceeds what the selected provider accepts. Detected before any network
// call.
var ErrChunkSizeTooLarge = errors.New("requested chunk size exceeds provider maximum")

// UploadOptions controls one upload.
type UploadOptions struct {
	Filename    string
	Description string
	// Provider is the provider configuration name to store chunks with.
	Provider string
	// ChunkSize is the requested plaintext segment size in bytes. Zero means
	// use the configured default. The effective size never exceeds the
	// provider's maximum.
	ChunkSize int64
}

// Service wires the metadata store, the storage router and the keystore into
// the file-level operations the command layer calls.
type Service struct {
	db               *sql.DB
	manager          repomanager.Manager
	router           *router.Router
	keystore         *cryptox.Keystore
	defaultChunkSize int64
	log              logging.Logger
}

func NewService(db *sql.DB, m repomanager.Manager, r *router.Router, ks *cryptox.Keystore, defaultChunkSize int64, log logging.Logger) *Service {
	return &Service{
		db:               db,
		manager:          m,
		router:           r,
		keystore:         ks,
		defaultChunkSize: defaultChunkSize,
		log:              log.With("component", "pipeline"),
	}
}

// effectiveChunkSize computes the plaintext segment size for an upload.
// An explicit request above the provider maximum is a configuration error;
// the default is silently clamped.
func (s *Service) effectiveChunkSize(requested int64, p provider.Provider) (int64, error) {
	max := int64(p.MaxChunkSize())
	if requested > 0 {
		if requested > max {
			return 0, fmt.Errorf("%w: %d > %d", ErrChunkSizeTooLarge, requested, max)
		}
		return requested, nil
	}
	size := s.defaultChunkSize
	if size > max {
		size = max
	}
	return size, nil
}

// Upload reads r to EOF, encrypts it chunk by chunk and stores the chunks
// with the named provider. The returned File is in status completed on
// success. On an unrecoverable error the file is marked failed and already
// stored chunks are kept; when the caller cancels the context the file stays
// in uploading, which is a valid resumable state.
func (s *Service) Upload(ctx context.Context, r io.Reader, opts UploadOptions) (*models.File, error) {
	p, cfg, err := s.router.Resolve(ctx, opts.Provider)
	if err != nil {
		return nil, err
	}

	chunkSize, err := s.effectiveChunkSize(opts.ChunkSize, p)
	if err != nil {
		return nil, err
	}

	key, err := cryptox.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate file key: %w", err)
	}
	defer shared.WipeByteArray(key)

	wrapped, nonce, salt, err := s.keystore.WrapKey(key)
	if err != nil {
		return nil, fmt.Errorf("wrap file key: %w", err)
	}

	file := &models.File{
		ID:           uuid.NewString(),
		Filename:     opts.Filename,
		Description:  opts.Description,
		EncryptedKey: wrapped,
		KeyNonce:     nonce,
		KeySalt:      salt,
		ProviderID:   cfg.ID,
		Status:       models.FileStatusCreated,
	}

	filesRepo := s.manager.Files(s.db)
	if err := filesRepo.Create(ctx, file); err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}

	log := s.log.With("file_id", file.ID)

	sctx, err := s.router.PrepareStorage(ctx, p, provider.FileInfo{ID: file.ID, Filename: file.Filename})
	if err != nil {
		return file, s.failUpload(ctx, file, fmt.Errorf("prepare storage: %w", err))
	}
	if err := filesRepo.UpdateStorageContext(ctx, file.ID, sctx); err != nil {
		return file, s.failUpload(ctx, file, fmt.Errorf("persist storage context: %w", err))
	}
	file.StorageContext = sctx

	if err := filesRepo.UpdateStatus(ctx, file.ID, models.FileStatusUploading); err != nil {
		return file, s.failUpload(ctx, file, err)
	}
	file.Status = models.FileStatusUploading

	chunksRepo := s.manager.Chunks(s.db)
	hash := sha256.New()
	buf := make([]byte, chunkSize)
	var total int64

	for order := 0; ; order++ {
		n, rerr := io.ReadFull(r, buf)
		if rerr == io.EOF {
			break
		}
		if rerr != nil && rerr != io.ErrUnexpectedEOF {
			return file, s.failUpload(ctx, file, fmt.Errorf("file %s chunk %d: read: %w", file.ID, order, rerr))
		}

		plain := buf[:n]
		hash.Write(plain)

		payload, err := cryptox.Encrypt(key, plain)
		if err != nil {
			return file, s.failUpload(ctx, file, fmt.Errorf("file %s chunk %d: encrypt: %w", file.ID, order, err))
		}

		ref, err := s.router.UploadChunk(ctx, p, payload, sctx)
		if err != nil {
			return file, s.failUpload(ctx, file, fmt.Errorf("file %s chunk %d: upload: %w", file.ID, order, err))
		}

		chunk := &models.Chunk{
			FileID:      file.ID,
			Order:       order,
			PlainSize:   int64(n),
			PayloadSize: int64(len(payload)),
			Ref:         ref,
			Status:      models.ChunkStatusStored,
		}
		if err := chunksRepo.Create(ctx, chunk); err != nil {
			return file, s.failUpload(ctx, file, fmt.Errorf("file %s chunk %d: persist: %w", file.ID, order, err))
		}

		total += int64(n)
		log.Debug(ctx, "chunk stored", "order", order, "plain_size", n, "payload_size", len(payload))

		// a short read means the stream is exhausted
		if rerr == io.ErrUnexpectedEOF {
			break
		}
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	if err := filesRepo.Complete(ctx, file.ID, total, digest); err != nil {
		return file, s.failUpload(ctx, file, fmt.Errorf("complete file: %w", err))
	}
	file.Size = total
	file.SHA256 = digest
	file.Status = models.FileStatusCompleted

	log.Info(ctx, "upload completed", "size", total, "sha256", digest)
	return file, nil
}

// failUpload records the failure outcome for an interrupted upload. A
// caller-cancelled context leaves the file in its current state so the upload
// can be resumed; anything else marks it failed. Stored chunks are kept
// either way.
func (s *Service) failUpload(ctx context.Context, file *models.File, cause error) error {
	if ctx.Err() != nil {
		s.log.Warn(context.WithoutCancel(ctx), "upload interrupted", "file_id", file.ID, "error", cause.Error())
		return cause
	}
	s.log.Error(ctx, "upload failed", "file_id", file.ID, "error", cause.Error())
	if err := s.manager.Files(s.db).UpdateStatus(ctx, file.ID, models.FileStatusFailed); err != nil {
		s.log.Error(ctx, "marking file failed", "file_id", file.ID, "error", err.Error())
	} else {
		file.Status = models.FileStatusFailed
	}
	return cause
}

// Get returns the file record by id.
func (s *Service) Get(ctx context.Context, id string) (*models.File, error) {
	return s.manager.Files(s.db).GetByID(ctx, id)
}

// List returns all file records, newest first.
func (s *Service) List(ctx context.Context) ([]*models.File, error) {
	return s.manager.Files(s.db).List(ctx)
}

// Chunks returns the chunk records of a file in ascending order.
func (s *Service) Chunks(ctx context.Context, fileID string) ([]*models.Chunk, error) {
	return s.manager.Chunks(s.db).ListByFile(ctx, fileID)
}

// Delete removes a file: remote chunks first (a reference that is already
// gone counts as removed), then the metadata in one final transaction with
// the file row last. A remote failure leaves the file in status deleting with
// its remaining chunk records intact, so a later attempt can finish the job.
func (s *Service) Delete(ctx context.Context, id string) error {
	filesRepo := s.manager.Files(s.db)
	file, err := filesRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	p, _, err := s.router.ResolveByID(ctx, file.ProviderID)
	if err != nil {
		return err
	}

	if err := filesRepo.UpdateStatus(ctx, id, models.FileStatusDeleting); err != nil {
		return err
	}

	chunksRepo := s.manager.Chunks(s.db)
	chunkList, err := chunksRepo.ListByFile(ctx, id)
	if err != nil {
		return err
	}

	sctx := provider.Context(file.StorageContext)
	for _, c := range chunkList {
		err := s.router.DeleteChunk(ctx, p, provider.ChunkRef(c.Ref), sctx)
		if err != nil && !errors.Is(err, provider.ErrNotFound) {
			return fmt.Errorf("file %s chunk %d: delete: %w", id, c.Order, err)
		}
		if err := chunksRepo.Delete(ctx, id, c.Order); err != nil {
			return fmt.Errorf("file %s chunk %d: remove record: %w", id, c.Order, err)
		}
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.manager.Chunks(tx).DeleteByFile(ctx, id); err != nil {
			return err
		}
		return s.manager.Files(tx).Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete file metadata: %w", err)
	}

	s.log.Info(ctx, "file deleted", "file_id", id, "chunks", len(chunkList))
	return nil
}
