package storage

import "time"

// Common storage errors
var (
	ErrInvalidKey      = NewError("InvalidKey", "The specified key is invalid")
	ErrNotConfigured   = NewError("NotConfigured", "No storage module is configured")
	ErrSerialization   = NewError("Serialization", "The value could not be serialized")
	ErrReadOnly        = NewError("ReadOnly", "The key is not writable")
	ErrOverlappingKeys = NewError("OverlappingKeys", "Source and destination prefixes overlap")
	ErrClosed          = NewError("Closed", "Storage module is closed")
)

// StorageError represents a storage-specific error
type StorageError struct {
	Code    string
	Message string
	Cause   error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a StorageError with the same code, so that
// errors built with NewErrorWithCause still match the package sentinels.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new storage error
func NewError(code, message string) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new storage error with underlying cause
func NewErrorWithCause(code, message string, cause error) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// invalidKey wraps a detail message into an ErrInvalidKey.
func invalidKey(msg string) error {
	return &StorageError{Code: ErrInvalidKey.Code, Message: ErrInvalidKey.Message + ": " + msg}
}

// Entry is one item produced by ListItems.
type Entry[T any] struct {
	Key   Key
	Value T
}

// SetOptions holds the optional parameters of SetItem.
type SetOptions struct {
	// ExpireIn asks the backend to drop the item after the given duration.
	// Backends that cannot expire items ignore it.
	ExpireIn time.Duration
}

// SetOption configures a SetItem call.
type SetOption func(*SetOptions)

// ExpireIn sets the time-to-live of the written item.
func ExpireIn(d time.Duration) SetOption {
	return func(o *SetOptions) { o.ExpireIn = d }
}

// ApplySetOptions folds opts into a SetOptions value.
func ApplySetOptions(opts ...SetOption) SetOptions {
	var o SetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// DefaultPageSize is the number of entries backends fetch per round trip
// while listing.
const DefaultPageSize = 500

// ListOptions holds the optional parameters of ListItems.
type ListOptions struct {
	Reverse  bool
	PageSize int
}

// ListOption configures a ListItems call.
type ListOption func(*ListOptions)

// Reverse lists items in descending key order where the backend supports it.
func Reverse() ListOption {
	return func(o *ListOptions) { o.Reverse = true }
}

// PageSize sets how many entries a backend fetches per batch.
func PageSize(n int) ListOption {
	return func(o *ListOptions) { o.PageSize = n }
}

// ApplyListOptions folds opts into a ListOptions value with defaults filled in.
func ApplyListOptions(opts ...ListOption) ListOptions {
	o := ListOptions{PageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	return o
}
