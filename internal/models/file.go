// Package models defines the metadata records persisted for uploaded files,
// their encrypted chunks and the storage provider configurations.
package models

import "time"

// FileStatus is the lifecycle state of an uploaded file.
type FileStatus string

const (
	FileStatusCreated   FileStatus = "created"
	FileStatusUploading FileStatus = "uploading"
	FileStatusCompleted FileStatus = "completed"
	FileStatusFailed    FileStatus = "failed"
	FileStatusDeleting  FileStatus = "deleting"
)

// File is one logical uploaded object.
//
// The per-file encryption key is generated once, before the first chunk is
// encrypted, and is stored wrapped (EncryptedKey + KeyNonce + KeySalt); the
// plaintext key never reaches the metadata store. ProviderID pins the exact
// provider configuration that produced the chunks, so they stay retrievable
// even after the active default changes.
type File struct {
	ID          string
	Filename    string
	Description string
	Size        int64
	SHA256      string

	EncryptedKey []byte
	KeyNonce     []byte
	KeySalt      []byte

	ProviderID     string
	StorageContext map[string]string

	Status    FileStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
