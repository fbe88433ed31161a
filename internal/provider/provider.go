// Package provider defines the storage provider contract: a pluggable backend
// capable of holding opaque encrypted byte payloads on a remote platform, plus
// the error taxonomy and the platform registry used to construct providers.
package provider

import "context"

// Context is opaque per-file routing data produced by PrepareStorage and
// threaded through every chunk operation for that file (e.g. a thread id).
type Context map[string]string

// ChunkRef is an opaque provider-specific locator sufficient to retrieve a
// previously stored chunk (e.g. message id + attachment URL).
type ChunkRef map[string]string

// FileInfo carries the file metadata a provider may use when preparing
// storage. Providers never see plaintext content.
type FileInfo struct {
	ID       string
	Filename string
}

// Provider is the capability set every storage backend implements.
//
// Payloads handed to UploadChunk are already fully encrypted; a provider only
// moves opaque bytes. DownloadChunk must return exactly the bytes previously
// stored under the reference. DeleteChunk removes the remote object; a
// reference that no longer resolves is reported via ErrNotFound.
type Provider interface {
	// PrepareStorage optionally creates a per-file container on the remote
	// platform (a discussion thread, a key prefix) and returns the routing
	// context consumed by subsequent calls. Called once per file.
	PrepareStorage(ctx context.Context, meta FileInfo) (Context, error)

	// UploadChunk stores one encrypted payload and returns its reference.
	// The payload never exceeds MaxChunkSize plus encryption overhead.
	UploadChunk(ctx context.Context, payload []byte, sctx Context) (ChunkRef, error)

	// DownloadChunk retrieves the exact bytes previously stored for ref.
	DownloadChunk(ctx context.Context, ref ChunkRef, sctx Context) ([]byte, error)

	// DeleteChunk removes the remote object behind ref.
	DeleteChunk(ctx context.Context, ref ChunkRef, sctx Context) error

	// MaxChunkSize is the upper bound, in bytes, on the plaintext segment
	// size this provider accepts. The advertised figure already leaves
	// headroom for encryption overhead below the platform's hard limit.
	MaxChunkSize() int

	// ValidateConfig checks that credentials and identifiers are live.
	// Performed once at construction unless explicitly skipped.
	ValidateConfig(ctx context.Context) error
}
