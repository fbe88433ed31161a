package models

import (
	"encoding/json"
	"time"
)

// ProviderConfig is a named, versioned configuration for one storage backend
// instance. The Config payload is platform-specific JSON interpreted by the
// provider factory. A config referenced by any File must not be deleted.
type ProviderConfig struct {
	ID        string
	Name      string
	Platform  string
	Version   int64
	Config    json.RawMessage
	CreatedAt time.Time
}
