package supabase

import (
	"context"
	"errors"

	phonecall "github.com/drewburns/ai-phonecall"
	"github.com/drewburns/ai-phonecall/objectstore"
	storage_go "github.com/supabase-community/storage-go"
)

type result[T any] struct {
	value T
	err   error
}

// withContext runs a blocking SDK call and gives up when ctx is done. The
// SDK clients take no context, so an abandoned call finishes in the
// background and its result is discarded.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, objectstore.Transient(err)
	}

	done := make(chan result[T], 1)
	go func() {
		v, err := fn()
		done <- result[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, objectstore.Transient(ctx.Err())
	}
}

// transient marks storage and transport failures worth retrying.
func transient(err error) error {
	var se *storage_go.StorageError
	if errors.As(err, &se) && objectstore.RetryableStatus(se.Status) {
		return phonecall.Temporary(err)
	}
	return objectstore.Transient(err)
}
