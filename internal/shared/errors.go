package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Persistence errors
	ErrNotFound      = fmt.Errorf("record not found")
	ErrStateCorrupt  = fmt.Errorf("persisted state is corrupt")
	ErrStoreRequired = fmt.Errorf("state store required")

	// Push errors
	ErrInvalidToken       = fmt.Errorf("invalid push token")
	ErrNoToken            = fmt.Errorf("no push token available")
	ErrPushUnavailable    = fmt.Errorf("push service unavailable")
	ErrBackendRejected    = fmt.Errorf("backend rejected registration")
	ErrBackendRequest     = fmt.Errorf("backend request failed")
	ErrDecrypt            = fmt.Errorf("decryption failed")
	ErrKeyUnavailable     = fmt.Errorf("encryption key unavailable")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Login errors
	ErrAuthFailed = fmt.Errorf("authorization failed")
	ErrTimeout    = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
