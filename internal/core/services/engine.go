package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
	"github.com/custodia-labs/tasksync/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.SyncEngine = (*SyncEngine)(nil)

const (
	defaultLockName        = domain.SyncLockName
	defaultLockTTL         = 60 * time.Second
	defaultRetryDelay      = 3 * time.Second
	defaultPollingInterval = 300 * time.Second
	defaultStoreTimeout    = 5 * time.Second
	defaultPairingWorkers  = 8
)

// SyncEngine sequences a reconciliation cycle:
//  1. Take the sync lock (fail fast if held)
//  2. Load the pairing table
//  3. Fetch and classify both services concurrently, retrying a failed fetch once
//  4. Create pairings for new driving-side items
//  5. Propagate updated driving-side items to their counterparts
//  6. Persist the driving side's watermark
//  7. Release the lock and discard the classifications
type SyncEngine struct {
	service1  driving.ServiceAdapter
	service2  driving.ServiceAdapter
	database  driven.DocumentDatabase
	lock      driven.DistributedLock
	direction domain.Direction
	fieldMap  []string
	logger    *slog.Logger

	lockName        string
	lockTTL         time.Duration
	retryDelay      time.Duration
	pollingInterval time.Duration
	storeTimeout    time.Duration
	workers         int

	stores    map[string]driven.DocumentStore
	records   *SyncRecordStore
	scheduler *Scheduler

	mu    sync.RWMutex
	state domain.CycleState
	last  *domain.CycleResult
}

// SyncEngineConfig holds dependencies for SyncEngine.
type SyncEngineConfig struct {
	Service1  driving.ServiceAdapter
	Service2  driving.ServiceAdapter
	Database  driven.DocumentDatabase
	Lock      driven.DistributedLock
	Direction domain.Direction
	FieldMap  []string
	Logger    *slog.Logger

	LockName        string        // default: "sync"
	LockTTL         time.Duration // upper bound on a cycle's lock (default: 60s)
	RetryDelay      time.Duration // delay before the single fetch retry (default: 3s)
	PollingInterval time.Duration // auto-sync cadence and look-back unit (default: 300s)
	StoreTimeout    time.Duration // deadline per local store call (default: 5s)
	PairingWorkers  int           // concurrent per-item pairings (default: 8)
}

// NewSyncEngine creates a sync engine. Init must be called before Sync.
func NewSyncEngine(cfg SyncEngineConfig) *SyncEngine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &SyncEngine{
		service1:        cfg.Service1,
		service2:        cfg.Service2,
		database:        cfg.Database,
		lock:            cfg.Lock,
		direction:       cfg.Direction,
		fieldMap:        cfg.FieldMap,
		logger:          logger,
		lockName:        cmp.Or(cfg.LockName, defaultLockName),
		lockTTL:         cmp.Or(cfg.LockTTL, defaultLockTTL),
		retryDelay:      cmp.Or(cfg.RetryDelay, defaultRetryDelay),
		pollingInterval: cmp.Or(cfg.PollingInterval, defaultPollingInterval),
		storeTimeout:    cmp.Or(cfg.StoreTimeout, defaultStoreTimeout),
		workers:         cmp.Or(cfg.PairingWorkers, defaultPairingWorkers),
		stores:          make(map[string]driven.DocumentStore),
		state:           domain.CycleIdle,
	}
	if e.direction == "" {
		e.direction = domain.DirectionService1To2
	}
	if len(e.fieldMap) == 0 {
		e.fieldMap = domain.DefaultFieldMap
	}
	e.scheduler = NewScheduler(SchedulerConfig{
		Engine:   e,
		Interval: e.pollingInterval,
		Logger:   logger,
	})
	return e
}

// Init opens every local store and initializes both adapters. Any failure
// is a *domain.InitError and should abort start-up.
func (e *SyncEngine) Init(ctx context.Context) error {
	if e.service1 == nil || e.service2 == nil || e.database == nil || e.lock == nil {
		return &domain.InitError{Service: "engine", Err: fmt.Errorf("%w: adapters, database and lock are required", domain.ErrInvalidInput)}
	}
	if e.direction == domain.DirectionBoth {
		return &domain.InitError{Service: "engine", Err: fmt.Errorf("%w: symmetric reconciliation is not supported", domain.ErrInvalidInput)}
	}
	if e.service1.Name() == e.service2.Name() {
		return &domain.InitError{Service: "engine", Err: fmt.Errorf("%w: services must have distinct names", domain.ErrInvalidInput)}
	}

	for _, name := range e.Stores() {
		s, err := e.database.Store(ctx, name)
		if err != nil {
			return &domain.InitError{Service: "engine", Err: fmt.Errorf("open store %s: %w", name, err)}
		}
		e.stores[name] = s
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range []driving.ServiceAdapter{e.service1, e.service2} {
		g.Go(func() error {
			err := a.Init(gctx, driving.CommonConfig{
				FieldMap:        e.fieldMap,
				Config:          e.stores[domain.StoreConfig],
				Complete:        e.stores[domain.StoreName(a.Name(), domain.CategoryComplete)],
				Incomplete:      e.stores[domain.StoreName(a.Name(), domain.CategoryIncomplete)],
				PollingInterval: e.pollingInterval,
				StoreTimeout:    e.storeTimeout,
				Logger:          e.logger,
			})
			var initErr *domain.InitError
			if err != nil && !errors.As(err, &initErr) {
				err = &domain.InitError{Service: a.Name(), Err: err}
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Error("cannot initialize", "error", err)
		return err
	}

	e.records = NewSyncRecordStore(SyncRecordStoreConfig{
		Store:        e.stores[domain.StoreSyncs],
		StoreTimeout: e.storeTimeout,
		Logger:       e.logger,
	})

	e.logger.Info("sync engine initialized",
		"service1", e.service1.Name(),
		"service2", e.service2.Name(),
		"direction", e.direction,
	)
	return nil
}

// Records exposes the pairing table.
func (e *SyncEngine) Records() *SyncRecordStore {
	return e.records
}

func (e *SyncEngine) binding() Binding {
	if e.direction == domain.DirectionService2To1 {
		return Binding{Direction: e.direction, Driving: e.service2, Counterpart: e.service1}
	}
	return Binding{Direction: domain.DirectionService1To2, Driving: e.service1, Counterpart: e.service2}
}

var errNotInitialized = &domain.InitError{Service: "engine", Err: errors.New("engine not initialized")}

func (e *SyncEngine) ready() error {
	if e.records == nil {
		return errNotInitialized
	}
	return nil
}

func (e *SyncEngine) setState(s domain.CycleState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// acquire takes the sync lock or fails with *domain.LockError. The lock
// backend releases it on its own once lockTTL elapses. The returned lease
// belongs to the caller and must be handed back to release.
func (e *SyncEngine) acquire(ctx context.Context) (string, error) {
	lease, err := e.lock.Acquire(ctx, e.lockName, e.lockTTL)
	if err != nil {
		return "", &domain.LockError{Name: e.lockName, Cause: err}
	}
	if lease == "" {
		return "", &domain.LockError{Name: e.lockName}
	}
	return lease, nil
}

// release frees lease. If the lease already expired and another holder took
// the lock, the backend leaves that holder's lease alone.
func (e *SyncEngine) release(ctx context.Context, lease string) {
	if err := e.lock.Release(context.WithoutCancel(ctx), e.lockName, lease); err != nil {
		e.logger.Warn("failed to release sync lock", "error", err)
	}
}

// Sync runs one reconciliation cycle. A cycle already holding the lock
// makes it fail immediately with *domain.LockError, before any fetch.
// Per-item pairing failures are reported in the result and do not fail
// the cycle.
func (e *SyncEngine) Sync(ctx context.Context) (*domain.CycleResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	lease, err := e.acquire(ctx)
	if err != nil {
		e.logger.Info("sync skipped", "error", err)
		return nil, err
	}
	e.setState(domain.CycleLocked)

	b := e.binding()
	result := &domain.CycleResult{
		ID:          uuid.NewString(),
		Direction:   b.Direction,
		Driving:     b.Driving.Name(),
		Counterpart: b.Counterpart.Name(),
		StartedAt:   time.Now(),
	}
	logger := e.logger.With("cycle_id", result.ID)

	defer func() {
		e.release(ctx, lease)
		e.service1.Discard()
		e.service2.Discard()
		result.Duration = time.Since(result.StartedAt)

		e.mu.Lock()
		e.state = domain.CycleIdle
		e.last = result
		e.mu.Unlock()
	}()

	logger.Info("sync begin", "driving", result.Driving, "counterpart", result.Counterpart)

	err = e.runCycle(ctx, logger, b, result)
	if err != nil {
		result.Error = err.Error()
		logger.Error("sync failed", "error", err, "duration", time.Since(result.StartedAt))
		return result, err
	}

	result.Success = true
	logger.Info("sync complete",
		"new", result.New,
		"updated", result.Updated,
		"duplicate", result.Duplicate,
		"paired", result.Paired,
		"propagated", result.Propagated,
		"failed", result.Failed,
		"duration", time.Since(result.StartedAt),
	)
	return result, nil
}

func (e *SyncEngine) runCycle(ctx context.Context, logger *slog.Logger, b Binding, result *domain.CycleResult) error {
	if err := e.records.Load(ctx); err != nil {
		return fmt.Errorf("load sync records: %w", err)
	}

	e.setState(domain.CycleFetching)
	classified, err := e.fetchAll(ctx, logger)
	if err != nil {
		return err
	}
	cls := classified[b.Driving.Name()]
	result.New = len(cls.New)
	result.Updated = len(cls.Updated)
	result.Duplicate = len(cls.Duplicate)

	e.setState(domain.CycleReconciling)
	e.reconcile(ctx, logger, b, result)

	if err := b.Driving.SetLastUpdateTime(ctx, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("persist %s watermark: %w", b.Driving.Name(), err)
	}
	return nil
}

// fetchAll fetches both services concurrently. A failed fetch is retried
// once after retryDelay; both outcomes are awaited before returning.
func (e *SyncEngine) fetchAll(ctx context.Context, logger *slog.Logger) (map[string]*domain.Classification, error) {
	adapters := []driving.ServiceAdapter{e.service1, e.service2}
	results := make([]*domain.Classification, len(adapters))

	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			cls, err := a.Fetch(ctx)
			if err == nil {
				results[i] = cls
				return nil
			}

			logger.Warn("fetch failed, retrying", "service", a.Name(), "delay", e.retryDelay, "error", err)
			if err := sleep(ctx, e.retryDelay); err != nil {
				return err
			}

			cls, err = a.Fetch(ctx)
			if err != nil {
				logger.Error("fetch retry failed", "service", a.Name(), "error", err)
				return err
			}
			results[i] = cls
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*domain.Classification, len(adapters))
	for i, a := range adapters {
		out[a.Name()] = results[i]
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// reconcile creates pairings for every new item, then propagates every
// updated item. Items are processed concurrently and independently.
func (e *SyncEngine) reconcile(ctx context.Context, logger *slog.Logger, b Binding, result *domain.CycleResult) {
	var mu sync.Mutex
	fail := func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.Failed++
		result.Errors = append(result.Errors, err.Error())
		logger.Warn("item not reconciled", "service", b.Driving.Name(), "id", id, "error", err)
	}

	newItems := b.Driving.Get(domain.BucketNew)
	logger.Info("processing new items", "service", b.Driving.Name(), "count", len(newItems))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, item := range newItems {
		g.Go(func() error {
			created, err := e.records.CreatePairing(ctx, b, item)
			if err != nil {
				fail(b.Driving.NativeID(item), err)
				return nil
			}
			if created {
				mu.Lock()
				result.Paired++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	updated := b.Driving.Get(domain.BucketUpdated)
	logger.Info("processing changed items", "service", b.Driving.Name(), "count", len(updated))

	var ug errgroup.Group
	ug.SetLimit(e.workers)
	for _, item := range updated {
		ug.Go(func() error {
			if err := e.records.UpdatePairing(ctx, b, item); err != nil {
				if IsNotPaired(err) {
					logger.Warn("changed item has no pairing", "id", b.Driving.NativeID(item))
				}
				fail(b.Driving.NativeID(item), err)
				return nil
			}
			mu.Lock()
			result.Propagated++
			mu.Unlock()
			return nil
		})
	}
	_ = ug.Wait()
}

// Start begins automatic syncing every polling interval.
func (e *SyncEngine) Start(ctx context.Context) error {
	return e.scheduler.Start(ctx)
}

// DisableAutoSync stops automatic syncing. Manual cycles are unaffected.
func (e *SyncEngine) DisableAutoSync() {
	e.scheduler.Stop()
}

func (e *SyncEngine) adapter(name string) (driving.ServiceAdapter, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	switch name {
	case e.service1.Name():
		return e.service1, nil
	case e.service2.Name():
		return e.service2, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownService, name)
	}
}

// Purge deletes every remote item of a service. It takes the sync lock so
// it never races a cycle.
func (e *SyncEngine) Purge(ctx context.Context, service string) (int, error) {
	a, err := e.adapter(service)
	if err != nil {
		return 0, err
	}
	lease, err := e.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer e.release(ctx, lease)

	n, err := a.Purge(ctx)
	if err != nil {
		e.logger.Error("purge failed", "service", service, "error", err)
		return n, err
	}
	e.logger.Info("purged service", "service", service, "deleted", n)
	return n, nil
}

// PurgeLocal clears every local store and the in-memory pairing index.
func (e *SyncEngine) PurgeLocal(ctx context.Context) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	lease, err := e.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer e.release(ctx, lease)

	total := 0
	for _, name := range e.Stores() {
		n, err := e.stores[name].Clear(ctx)
		if err != nil {
			return total, &domain.StoreError{Store: name, Op: "clear", Err: err}
		}
		total += n
	}
	e.records.Forget()

	e.logger.Info("local stores purged", "documents", total)
	return total, nil
}

// ResetWatermark sets a service's watermark to zero.
func (e *SyncEngine) ResetWatermark(ctx context.Context, service string) error {
	a, err := e.adapter(service)
	if err != nil {
		return err
	}
	if err := a.SetLastUpdateTime(ctx, 0); err != nil {
		return err
	}
	e.logger.Info("watermark reset", "service", service)
	return nil
}

// Stores lists the local stores in a stable order.
func (e *SyncEngine) Stores() []string {
	return domain.StoreNames(e.service1.Name(), e.service2.Name())
}

// Dump lists every document of a store. Reads are not locked out by a
// running cycle and may observe its writes in progress.
func (e *SyncEngine) Dump(ctx context.Context, store string) ([]*domain.Document, error) {
	if !slices.Contains(e.Stores(), store) {
		return nil, fmt.Errorf("store %q: %w", store, domain.ErrNotFound)
	}
	s, ok := e.stores[store]
	if !ok {
		return nil, errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return s.List(ctx, true)
}

// State returns a snapshot of the engine.
func (e *SyncEngine) State() *domain.EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := &domain.EngineState{
		State:     e.state,
		AutoSync:  e.scheduler.Running(),
		Direction: e.direction,
		Services:  []string{e.service1.Name(), e.service2.Name()},
	}
	if e.last != nil {
		cp := *e.last
		st.LastResult = &cp
	}
	return st
}
