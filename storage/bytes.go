package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// ByteClient provides a []byte-oriented view of a Storage, for callers that
// hold whole objects in memory.
type ByteClient interface {
	// Put stores data at the given path.
	Put(ctx context.Context, path string, data []byte) error

	// Get retrieves the object at path. found is false, with a nil error,
	// when the object does not exist.
	Get(ctx context.Context, path string) (data []byte, found bool, err error)

	// Delete removes the object at the given path.
	Delete(ctx context.Context, path string) error
}

// byteAdapter wraps a streaming Storage and implements ByteClient.
type byteAdapter struct {
	storage Storage
}

// NewByteClient wraps a streaming Storage implementation with []byte convenience methods.
func NewByteClient(s Storage) ByteClient {
	return &byteAdapter{storage: s}
}

func (a *byteAdapter) Put(ctx context.Context, path string, data []byte) error {
	return a.storage.Upload(ctx, path, bytes.NewReader(data))
}

func (a *byteAdapter) Get(ctx context.Context, path string) ([]byte, bool, error) {
	rc, err := a.storage.Download(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (a *byteAdapter) Delete(ctx context.Context, path string) error {
	return a.storage.Delete(ctx, path)
}
