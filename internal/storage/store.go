package storage

// Store is the flat key-value persistence interface everything layers on.
// Values are opaque bytes; callers own the encoding. There are no
// transactions: higher layers do read-then-write and tolerate lost updates
// between concurrent requests touching the same key.
type Store interface {
	// Get returns the value for key, or (nil, nil) when the key is absent.
	Get(key string) ([]byte, error)

	// Set writes value under key, overwriting any previous value.
	Set(key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Keys returns all keys starting with prefix, in lexical order.
	Keys(prefix string) ([]string, error)

	// SizeBytes reports the on-disk size of the backing file.
	SizeBytes() (int64, error)

	Close() error
}
