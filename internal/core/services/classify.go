package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

const defaultClassifyConcurrency = 8

// Classifier labels freshly fetched items of one service as new, updated or
// duplicate against that service's two category stores. Each item is
// labelled independently, so the result does not depend on input order.
type Classifier struct {
	mapper      *FieldMapper
	idOf        func(domain.NativeItem) string
	incomplete  driven.DocumentStore
	complete    driven.DocumentStore
	ops         storeOps
	concurrency int
}

// ClassifierConfig holds dependencies for Classifier.
type ClassifierConfig struct {
	Mapper       *FieldMapper
	IDOf         func(domain.NativeItem) string
	Complete     driven.DocumentStore
	Incomplete   driven.DocumentStore
	StoreTimeout time.Duration
	Concurrency  int
}

// NewClassifier creates a classifier.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultClassifyConcurrency
	}
	return &Classifier{
		mapper:      cfg.Mapper,
		idOf:        cfg.IDOf,
		incomplete:  cfg.Incomplete,
		complete:    cfg.Complete,
		ops:         storeOps{timeout: cfg.StoreTimeout},
		concurrency: concurrency,
	}
}

// Classify builds a fresh classification for items. A store failure other
// than "not found" aborts the whole call.
func (c *Classifier) Classify(ctx context.Context, service string, items []domain.NativeItem) (*domain.Classification, error) {
	labels := make([]domain.Bucket, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, item := range items {
		g.Go(func() error {
			label, err := c.label(gctx, item)
			if err != nil {
				return err
			}
			labels[i] = label
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &domain.Classification{
		Service:   service,
		New:       []domain.NativeItem{},
		Updated:   []domain.NativeItem{},
		Duplicate: []domain.NativeItem{},
		FetchedAt: time.Now(),
	}
	for i, item := range items {
		switch labels[i] {
		case domain.BucketNew:
			result.New = append(result.New, item)
		case domain.BucketUpdated:
			result.Updated = append(result.Updated, item)
		default:
			result.Duplicate = append(result.Duplicate, item)
		}
	}
	return result, nil
}

func (c *Classifier) label(ctx context.Context, item domain.NativeItem) (domain.Bucket, error) {
	stored, err := c.lookup(ctx, c.idOf(item))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.BucketNew, nil
	}
	if err != nil {
		return "", err
	}

	fetched, err := c.mapper.ToGeneric(item, false)
	if err != nil {
		return "", err
	}
	local, err := c.mapper.ToGeneric(stored, false)
	if err != nil {
		return "", err
	}
	if cmp.Diff(local, fetched) != "" {
		return domain.BucketUpdated, nil
	}
	return domain.BucketDuplicate, nil
}

// lookup searches the incomplete store, then the complete store.
func (c *Classifier) lookup(ctx context.Context, id string) (domain.NativeItem, error) {
	if id == "" {
		return nil, domain.ErrNotFound
	}
	for _, s := range []driven.DocumentStore{c.incomplete, c.complete} {
		doc, err := c.ops.get(ctx, s, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		item, err := domain.DecodeNativeItem(doc.Body)
		if err != nil {
			return nil, &domain.StoreError{Store: s.Name(), Op: "decode", Key: id, Err: err}
		}
		return item, nil
	}
	return nil, domain.ErrNotFound
}
