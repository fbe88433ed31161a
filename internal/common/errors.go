// Package common defines shared constants and sentinel errors used across
// chunkvault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Returned when a provider configuration is still referenced by files.
	ErrorProviderInUse = errors.New("provider config in use")

	// Generic/internal flow control.
	ErrorInternal = errors.New("internal error")
)
