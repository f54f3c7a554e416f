package query

import (
	"context"
	"encoding/json"
	"fmt"
)

// Result is a Snapshot decoded into T. HasData distinguishes a fetched null
// (HasData true, Data nil) from nothing fetched yet.
type Result[T any] struct {
	Data      T
	HasData   bool
	Status    Status
	Err       error
	IsLoading bool
	IsFetched bool
}

func (r Result[T]) Disabled() bool {
	return r.Status == StatusDisabled
}

// Get runs a typed query through c.
func Get[T any](ctx context.Context, c *Cache, key Key, opts Options, fetch func(context.Context) (T, error)) Result[T] {
	snap := c.Query(ctx, key, opts, func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	return Decode[T](snap)
}

func Decode[T any](snap Snapshot) Result[T] {
	res := Result[T]{
		Status:    snap.Status,
		Err:       snap.Err,
		IsLoading: snap.IsLoading,
		IsFetched: snap.IsFetched,
	}
	if snap.Data == nil {
		return res
	}
	if err := json.Unmarshal(snap.Data, &res.Data); err != nil {
		res.Status = StatusError
		res.Err = fmt.Errorf("decode %s: %w", snap.Key, err)
		return res
	}
	res.HasData = true
	return res
}
