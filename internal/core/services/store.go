package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

// storeOps runs local store calls under a per-call deadline and wraps
// failures other than "not found" as *domain.StoreError.
type storeOps struct {
	timeout time.Duration
}

func (o storeOps) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// get returns the document or domain.ErrNotFound.
func (o storeOps) get(ctx context.Context, s driven.DocumentStore, key string) (*domain.Document, error) {
	ctx, cancel := o.deadline(ctx)
	defer cancel()

	doc, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.StoreError{Store: s.Name(), Op: "get", Key: key, Err: err}
	}
	return doc, nil
}

func (o storeOps) getJSON(ctx context.Context, s driven.DocumentStore, key string, v any) error {
	doc, err := o.get(ctx, s, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc.Body, v); err != nil {
		return &domain.StoreError{Store: s.Name(), Op: "decode", Key: key, Err: err}
	}
	return nil
}

// upsert writes v under key at whatever revision is current. A revision
// conflict from a concurrent writer is retried once.
func (o storeOps) upsert(ctx context.Context, s driven.DocumentStore, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return &domain.StoreError{Store: s.Name(), Op: "encode", Key: key, Err: err}
	}

	for attempt := 0; ; attempt++ {
		rev := ""
		doc, err := o.get(ctx, s, key)
		switch {
		case err == nil:
			rev = doc.Rev
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		err = o.put(ctx, s, key, body, rev)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrConflict) && attempt == 0 {
			continue
		}
		return &domain.StoreError{Store: s.Name(), Op: "put", Key: key, Err: err}
	}
}

func (o storeOps) put(ctx context.Context, s driven.DocumentStore, key string, body []byte, rev string) error {
	ctx, cancel := o.deadline(ctx)
	defer cancel()
	_, err := s.Put(ctx, key, body, rev)
	return err
}

// remove deletes key if present and reports whether it was.
func (o storeOps) remove(ctx context.Context, s driven.DocumentStore, key string) (bool, error) {
	doc, err := o.get(ctx, s, key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	rctx, cancel := o.deadline(ctx)
	defer cancel()
	if err := s.Remove(rctx, key, doc.Rev); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, &domain.StoreError{Store: s.Name(), Op: "remove", Key: key, Err: err}
	}
	return true, nil
}

// deleteFromAll removes key from every store, failing on the first store error.
func (o storeOps) deleteFromAll(ctx context.Context, key string, stores ...driven.DocumentStore) error {
	for _, s := range stores {
		if _, err := o.remove(ctx, s, key); err != nil {
			return fmt.Errorf("delete %s from all: %w", key, err)
		}
	}
	return nil
}

func (o storeOps) list(ctx context.Context, s driven.DocumentStore, includeBody bool) ([]*domain.Document, error) {
	ctx, cancel := o.deadline(ctx)
	defer cancel()
	docs, err := s.List(ctx, includeBody)
	if err != nil {
		return nil, &domain.StoreError{Store: s.Name(), Op: "list", Err: err}
	}
	return docs, nil
}
