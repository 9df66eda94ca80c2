package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
	"github.com/custodia-labs/tasksync/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.ServiceAdapter = (*Adapter)(nil)

// lookBackFactor multiplies the polling interval (in seconds) into the
// fetch look-back margin, so a cycle that failed part way is re-fetched.
const lookBackFactor = 300

const defaultPurgeConcurrency = 8

// Adapter implements driving.ServiceAdapter on top of a remote Connector
// and the service's local category stores.
type Adapter struct {
	connector driven.Connector
	logger    *slog.Logger

	mapper     *FieldMapper
	classifier *Classifier
	config     driven.DocumentStore
	complete   driven.DocumentStore
	incomplete driven.DocumentStore
	ops        storeOps
	lookBack   int64

	mu   sync.RWMutex
	last *domain.Classification
}

// NewAdapter creates an adapter for a connector. Init must be called
// before use.
func NewAdapter(connector driven.Connector) *Adapter {
	return &Adapter{
		connector: connector,
		logger:    slog.Default(),
	}
}

// Name returns the service name.
func (a *Adapter) Name() string {
	return a.connector.Name()
}

// Init binds the shared resources and validates the field rules against
// the declared field list.
func (a *Adapter) Init(ctx context.Context, cfg driving.CommonConfig) error {
	if cfg.Config == nil || cfg.Complete == nil || cfg.Incomplete == nil {
		return &domain.InitError{Service: a.Name(), Err: fmt.Errorf("%w: config, complete and incomplete stores are required", domain.ErrInvalidInput)}
	}

	mapper := NewFieldMapper(a.Name(), cfg.FieldMap, a.connector.FieldRules())
	if err := mapper.Validate(); err != nil {
		return &domain.InitError{Service: a.Name(), Err: err}
	}

	if cfg.Logger != nil {
		a.logger = cfg.Logger
	}
	a.logger = a.logger.With("service", a.Name())
	a.mapper = mapper
	a.config = cfg.Config
	a.complete = cfg.Complete
	a.incomplete = cfg.Incomplete
	a.ops = storeOps{timeout: cfg.StoreTimeout}
	a.lookBack = int64(cfg.PollingInterval/time.Second) * lookBackFactor
	a.classifier = NewClassifier(ClassifierConfig{
		Mapper:       mapper,
		IDOf:         a.NativeID,
		Complete:     cfg.Complete,
		Incomplete:   cfg.Incomplete,
		StoreTimeout: cfg.StoreTimeout,
	})

	a.logger.Debug("adapter initialized", "fields", mapper.Fields(), "look_back_seconds", a.lookBack)
	return nil
}

// Fetch reads the watermark, fetches remote changes since the watermark
// minus the look-back margin, and classifies them. It never writes the
// watermark.
func (a *Adapter) Fetch(ctx context.Context) (*domain.Classification, error) {
	watermark, err := a.LastUpdateTime(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		a.logger.Warn("no watermark found, fetching everything")
		watermark = 0
	} else if err != nil {
		return nil, err
	}

	since := watermark - a.lookBack
	if since < 0 {
		since = 0
	}

	items, err := a.connector.FetchChanged(ctx, since)
	if err != nil {
		return nil, &domain.FetchError{Service: a.Name(), Err: err}
	}

	result, err := a.classifier.Classify(ctx, a.Name(), items)
	if err != nil {
		return nil, err
	}
	result.Since = since

	a.mu.Lock()
	a.last = result
	a.mu.Unlock()

	a.logger.Info("fetched",
		"since", since,
		"fetched", len(items),
		"new", len(result.New),
		"updated", len(result.Updated),
		"duplicate", len(result.Duplicate),
	)
	return result, nil
}

// Get returns the new or updated items of the most recent fetch.
func (a *Adapter) Get(bucket domain.Bucket) []domain.NativeItem {
	if bucket != domain.BucketNew && bucket != domain.BucketUpdated {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last.Items(bucket)
}

// Service returns the remote client handle.
func (a *Adapter) Service() any {
	return a.connector.Client()
}

// Discard drops the most recent classification.
func (a *Adapter) Discard() {
	a.mu.Lock()
	a.last = nil
	a.mu.Unlock()
}

func (a *Adapter) ToGeneric(item domain.NativeItem, partial bool) (domain.GenericItem, error) {
	return a.mapper.ToGeneric(item, partial)
}

func (a *Adapter) ToNative(item domain.GenericItem, partial bool) (domain.NativeItem, error) {
	return a.mapper.ToNative(item, partial)
}

// NativeID returns the native id in string form.
func (a *Adapter) NativeID(item domain.NativeItem) string {
	return item.String(a.connector.IDField())
}

// NewItem creates the remote counterpart of a generic item, then stores the
// created item in the category matching item.Complete. If the remote create
// succeeds but the local write fails, the created item is returned together
// with the error so the caller can still record the pairing.
func (a *Adapter) NewItem(ctx context.Context, item domain.GenericItem) (domain.NativeItem, error) {
	if item.ID == "" {
		return nil, &domain.ValidationError{Service: a.Name(), Field: domain.FieldID, Reason: "is required to create a counterpart"}
	}

	payload, err := a.mapper.ToNative(item, false)
	if err != nil {
		return nil, err
	}

	created, err := a.connector.Create(ctx, payload)
	if err != nil {
		return nil, a.remoteErr("create", "", err)
	}
	id := a.NativeID(created)
	if id == "" {
		return nil, &domain.RemoteWriteError{Service: a.Name(), Op: "create", Message: "response carries no id"}
	}

	if err := a.ops.upsert(ctx, a.store(domain.CategoryOf(item.Complete)), id, created); err != nil {
		return created, err
	}

	a.logger.Debug("created remote item", "id", id, "source_id", item.ID)
	return created, nil
}

// UpdateItem updates remote item id with the mapped fields of item, then
// replaces the local copy: it is removed from both categories and written
// to the category matching item.Complete. The three steps are not atomic; a
// failure after the remote update leaves the local copy stale until the
// next fetch reclassifies it.
func (a *Adapter) UpdateItem(ctx context.Context, item domain.GenericItem, id string) (domain.NativeItem, error) {
	if id == "" {
		return nil, &domain.ValidationError{Service: a.Name(), Field: domain.FieldID, Reason: "is required to update"}
	}
	item.ID = id

	payload, err := a.mapper.ToNative(item, true)
	if err != nil {
		return nil, err
	}

	updated, err := a.connector.Update(ctx, id, payload)
	if err != nil {
		return nil, a.remoteErr("update", id, err)
	}

	if err := a.DeleteLocal(ctx, id); err != nil {
		return nil, err
	}
	if err := a.ops.upsert(ctx, a.store(domain.CategoryOf(item.Complete)), id, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// PushLocal upserts item into the category chosen by its native completion
// state and removes any copy from the other category.
func (a *Adapter) PushLocal(ctx context.Context, item domain.NativeItem) error {
	id := a.NativeID(item)
	if id == "" {
		return &domain.ValidationError{Service: a.Name(), Field: a.connector.IDField(), Reason: "is missing"}
	}

	category := domain.CategoryOf(domain.CompletionOf(a.connector.IsComplete(item)))
	if err := a.ops.upsert(ctx, a.store(category), id, item); err != nil {
		return err
	}
	_, err := a.ops.remove(ctx, a.store(category.Opposite()), id)
	return err
}

// DeleteLocal removes id from both category stores.
func (a *Adapter) DeleteLocal(ctx context.Context, id string) error {
	return a.ops.deleteFromAll(ctx, id, a.complete, a.incomplete)
}

// Purge deletes every remote item in scope. All deletions are attempted; if
// any fails the result is a *domain.PurgeError and the watermark is kept.
func (a *Adapter) Purge(ctx context.Context) (int, error) {
	ids, err := a.connector.ListScope(ctx)
	if err != nil {
		return 0, &domain.FetchError{Service: a.Name(), Err: fmt.Errorf("list items to purge: %w", err)}
	}

	a.logger.Info("purging remote items", "count", len(ids))

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(defaultPurgeConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := a.connector.Delete(ctx, id); err != nil {
				a.logger.Warn("failed to delete remote item", "id", id, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		return len(ids) - len(errs), &domain.PurgeError{
			Service:   a.Name(),
			Succeeded: len(ids) - len(errs),
			Failed:    len(errs),
			Errs:      errs,
		}
	}

	if _, err := a.ops.remove(ctx, a.config, domain.WatermarkKey(a.Name())); err != nil {
		return len(ids), err
	}

	a.logger.Info("purge complete", "deleted", len(ids))
	return len(ids), nil
}

// SetLastUpdateTime persists the watermark. Zero resets it, forcing a full
// resync on the next fetch.
func (a *Adapter) SetLastUpdateTime(ctx context.Context, epochMillis int64) error {
	if epochMillis < 0 {
		return fmt.Errorf("%w: negative watermark %d", domain.ErrInvalidInput, epochMillis)
	}
	return a.ops.upsert(ctx, a.config, domain.WatermarkKey(a.Name()), domain.Watermark{Time: epochMillis / 1000})
}

// LastUpdateTime returns the watermark in epoch seconds, or
// domain.ErrNotFound if none has been written.
func (a *Adapter) LastUpdateTime(ctx context.Context) (int64, error) {
	var wm domain.Watermark
	if err := a.ops.getJSON(ctx, a.config, domain.WatermarkKey(a.Name()), &wm); err != nil {
		return 0, err
	}
	return wm.Time, nil
}

func (a *Adapter) store(c domain.Category) driven.DocumentStore {
	if c == domain.CategoryComplete {
		return a.complete
	}
	return a.incomplete
}

func (a *Adapter) remoteErr(op, id string, err error) error {
	var rwe *domain.RemoteWriteError
	if errors.As(err, &rwe) {
		return err
	}
	return &domain.RemoteWriteError{Service: a.Name(), Op: op, ID: id, Err: err}
}
