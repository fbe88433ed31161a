package models

// ChunkStatus is the lifecycle state of a single stored chunk.
type ChunkStatus string

const (
	ChunkStatusPending ChunkStatus = "pending"
	ChunkStatusStored  ChunkStatus = "stored"
	ChunkStatusFailed  ChunkStatus = "failed"
)

// Chunk is one encrypted unit of a File held in provider storage.
//
// Identity is (FileID, Order); orders for a file form a contiguous range
// starting at 0 with no gaps. PlainSize is the plaintext segment length,
// PayloadSize the encrypted blob length (plaintext + IV + padding). Ref holds
// the opaque provider-specific locator returned by the upload.
type Chunk struct {
	FileID      string
	Order       int
	PlainSize   int64
	PayloadSize int64
	Ref         map[string]string
	Status      ChunkStatus
}
