package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
	"github.com/custodia-labs/tasksync/internal/core/ports/driving"
)

// Binding fixes which adapter drives reconciliation.
type Binding struct {
	Direction   domain.Direction
	Driving     driving.ServiceAdapter
	Counterpart driving.ServiceAdapter
}

// lookupArgs returns the (id1, id2) pair to search for a driving-side id.
func (b Binding) lookupArgs(drivingID string) (string, string) {
	if b.Direction == domain.DirectionService2To1 {
		return "", drivingID
	}
	return drivingID, ""
}

func (b Binding) newRecord(drivingID, counterpartID string, item domain.GenericItem) *domain.SyncRecord {
	rec := &domain.SyncRecord{ID1: drivingID, ID2: counterpartID, Title: item.Title, Complete: item.Complete}
	if b.Direction == domain.DirectionService2To1 {
		rec.ID1, rec.ID2 = counterpartID, drivingID
	}
	return rec
}

// SyncRecordStore owns the pairing table. Lookups go through in-memory
// indexes by id1, id2 and full key, loaded from the syncs store at the
// start of each cycle.
type SyncRecordStore struct {
	store  driven.DocumentStore
	ops    storeOps
	logger *slog.Logger

	mu    sync.RWMutex
	byKey map[string]*domain.SyncRecord
	byID1 map[string]*domain.SyncRecord
	byID2 map[string]*domain.SyncRecord

	inflight singleflight.Group
}

// SyncRecordStoreConfig holds dependencies for SyncRecordStore.
type SyncRecordStoreConfig struct {
	Store        driven.DocumentStore
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

// NewSyncRecordStore creates an empty pairing table.
func NewSyncRecordStore(cfg SyncRecordStoreConfig) *SyncRecordStore {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &SyncRecordStore{
		store:  cfg.Store,
		ops:    storeOps{timeout: cfg.StoreTimeout},
		logger: logger,
	}
	s.reset()
	return s
}

func (s *SyncRecordStore) reset() {
	s.byKey = make(map[string]*domain.SyncRecord)
	s.byID1 = make(map[string]*domain.SyncRecord)
	s.byID2 = make(map[string]*domain.SyncRecord)
}

// Load replaces the in-memory indexes with the persisted pairing table.
func (s *SyncRecordStore) Load(ctx context.Context) error {
	docs, err := s.ops.list(ctx, s.store, true)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	for _, doc := range docs {
		rec, err := decodeRecord(doc)
		if err != nil {
			s.logger.Warn("skipping unreadable sync record", "key", doc.Key, "error", err)
			continue
		}
		s.index(rec)
	}

	if len(s.byKey) == 0 {
		s.logger.Warn("no sync records found, expected only on first run")
	} else {
		s.logger.Debug("sync records loaded", "count", len(s.byKey))
	}
	return nil
}

func decodeRecord(doc *domain.Document) (*domain.SyncRecord, error) {
	key, ok := domain.ParsePairKey(doc.Key)
	if !ok {
		return nil, fmt.Errorf("%w: malformed pair key", domain.ErrInvalidInput)
	}
	var rec domain.SyncRecord
	if err := json.Unmarshal(doc.Body, &rec); err != nil {
		return nil, err
	}
	// The key is authoritative for the pair.
	rec.ID1, rec.ID2 = key.ID1, key.ID2
	return &rec, nil
}

func (s *SyncRecordStore) index(rec *domain.SyncRecord) {
	s.byKey[rec.Key().String()] = rec
	s.byID1[rec.ID1] = rec
	s.byID2[rec.ID2] = rec
}

// SyncExists looks up a pairing. With only id1 it matches the record whose
// first id equals id1 exactly; with only id2 the second id; with both the
// full key. Supplying neither fails with *domain.ArgumentError.
func (s *SyncRecordStore) SyncExists(id1, id2 string) (*domain.SyncRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec *domain.SyncRecord
	switch {
	case id1 == "" && id2 == "":
		return nil, false, &domain.ArgumentError{Op: "syncExists", Reason: "no id specified"}
	case id2 == "":
		rec = s.byID1[id1]
	case id1 == "":
		rec = s.byID2[id2]
	default:
		rec = s.byKey[domain.PairKey{ID1: id1, ID2: id2}.String()]
	}
	if rec == nil {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

// Records returns every pairing ordered by key.
func (s *SyncRecordStore) Records() []*domain.SyncRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.SyncRecord, 0, len(s.byKey))
	for _, rec := range s.byKey {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out
}

// Put persists a record and indexes it.
func (s *SyncRecordStore) Put(ctx context.Context, rec *domain.SyncRecord) error {
	if rec.ID1 == "" || rec.ID2 == "" {
		return &domain.ArgumentError{Op: "putSyncRecord", Reason: "both ids are required"}
	}
	if err := s.ops.upsert(ctx, s.store, rec.Key().String(), rec); err != nil {
		return err
	}
	cp := *rec
	s.mu.Lock()
	s.index(&cp)
	s.mu.Unlock()
	return nil
}

// Forget drops every indexed record without touching the store.
func (s *SyncRecordStore) Forget() {
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()
}

// CreatePairing pairs a new driving-side item with a freshly created
// counterpart. Concurrent calls for the same item share one attempt, and an
// item that is already paired is only re-stored locally. The record is
// written only after the counterpart exists, and also when the counterpart
// was created but could not be cached locally; that case is still reported
// as a PairingError. Reports whether a new pairing was created.
func (s *SyncRecordStore) CreatePairing(ctx context.Context, b Binding, item domain.NativeItem) (bool, error) {
	generic, err := b.Driving.ToGeneric(item, false)
	if err != nil {
		return false, &domain.PairingError{ID: b.Driving.NativeID(item), Step: "map", Err: err}
	}
	if generic.ID == "" {
		return false, &domain.PairingError{Step: "map", Err: &domain.ValidationError{Service: b.Driving.Name(), Field: domain.FieldID, Reason: "is missing"}}
	}

	v, err, _ := s.inflight.Do(b.Driving.Name()+":"+generic.ID, func() (any, error) {
		return s.createPairing(ctx, b, item, generic)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s *SyncRecordStore) createPairing(ctx context.Context, b Binding, item domain.NativeItem, generic domain.GenericItem) (bool, error) {
	existing, ok, err := s.SyncExists(b.lookupArgs(generic.ID))
	if err != nil {
		return false, &domain.PairingError{ID: generic.ID, Step: "lookup", Err: err}
	}
	if ok {
		s.logger.Debug("item already paired", "id", generic.ID, "pair", existing.Key().String())
		if err := b.Driving.PushLocal(ctx, item); err != nil {
			return false, &domain.PairingError{ID: generic.ID, Step: "store local", Err: err}
		}
		return false, nil
	}

	created, err := b.Counterpart.NewItem(ctx, generic)
	if err != nil && created == nil {
		return false, &domain.PairingError{ID: generic.ID, Step: "create counterpart", Err: err}
	}
	// The counterpart exists remotely even if caching it failed; the record
	// must still be written or the next cycle creates a second one.
	cacheErr := err
	counterpartID := b.Counterpart.NativeID(created)

	rec := b.newRecord(generic.ID, counterpartID, generic)
	if err := s.Put(ctx, rec); err != nil {
		s.logger.Error("counterpart created but sync record not written",
			"id", generic.ID,
			"counterpart_service", b.Counterpart.Name(),
			"counterpart_id", counterpartID,
			"error", err,
		)
		return false, &domain.PairingError{ID: generic.ID, Step: "write record", Err: err}
	}

	if err := b.Driving.PushLocal(ctx, item); err != nil {
		return false, &domain.PairingError{ID: generic.ID, Step: "store local", Err: err}
	}

	if cacheErr != nil {
		s.logger.Warn("paired new item but counterpart not cached locally",
			"id", generic.ID,
			"counterpart_service", b.Counterpart.Name(),
			"counterpart_id", counterpartID,
			"error", cacheErr,
		)
		return false, &domain.PairingError{ID: generic.ID, Step: "cache counterpart", Err: cacheErr}
	}

	s.logger.Info("paired new item",
		"service", b.Driving.Name(),
		"id", generic.ID,
		"counterpart_service", b.Counterpart.Name(),
		"counterpart_id", counterpartID,
	)
	return true, nil
}

// UpdatePairing propagates a changed driving-side item to its counterpart,
// refreshes the driving side's local copy, then rewrites the record only if
// its title or completion changed.
func (s *SyncRecordStore) UpdatePairing(ctx context.Context, b Binding, item domain.NativeItem) error {
	generic, err := b.Driving.ToGeneric(item, true)
	if err != nil {
		return &domain.PairingError{ID: b.Driving.NativeID(item), Step: "map", Err: err}
	}

	rec, ok, err := s.SyncExists(b.lookupArgs(generic.ID))
	if err != nil {
		return &domain.PairingError{ID: generic.ID, Step: "lookup", Err: err}
	}
	if !ok {
		return &domain.PairingError{ID: generic.ID, Step: "lookup", Err: fmt.Errorf("no sync record: %w", domain.ErrNotFound)}
	}

	if _, err := b.Counterpart.UpdateItem(ctx, generic, rec.CounterpartID(b.Direction)); err != nil {
		return &domain.PairingError{ID: generic.ID, Step: "update counterpart", Err: err}
	}

	if err := b.Driving.PushLocal(ctx, item); err != nil {
		return &domain.PairingError{ID: generic.ID, Step: "store local", Err: err}
	}

	if rec.Title == generic.Title && rec.Complete == generic.Complete {
		return nil
	}
	rec.Title = generic.Title
	rec.Complete = generic.Complete
	if err := s.Put(ctx, rec); err != nil {
		return &domain.PairingError{ID: generic.ID, Step: "write record", Err: err}
	}
	return nil
}

// IsNotPaired reports whether err came from updating an item with no record.
func IsNotPaired(err error) bool {
	var pe *domain.PairingError
	return errors.As(err, &pe) && pe.Step == "lookup" && errors.Is(err, domain.ErrNotFound)
}
