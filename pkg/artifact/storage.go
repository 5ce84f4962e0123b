package artifact

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("artifact not found")

// Storage keeps durable job artifacts, such as reports, under flat keys.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string, dst io.Writer) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Type() string
}
