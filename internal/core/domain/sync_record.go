package domain

import "strings"

// PairKey identifies one pairing. Its string form "{id1}-{id2}" is the
// persisted document key.
type PairKey struct {
	ID1 string
	ID2 string
}

func (k PairKey) String() string {
	return k.ID1 + "-" + k.ID2
}

// ParsePairKey splits a persisted key on its first separator. Both service
// id formats are numeric, so the first '-' is unambiguous.
func ParsePairKey(s string) (PairKey, bool) {
	id1, id2, ok := strings.Cut(s, "-")
	if !ok || id1 == "" || id2 == "" {
		return PairKey{}, false
	}
	return PairKey{ID1: id1, ID2: id2}, true
}

// SyncRecord links a service1 item to its service2 counterpart.
// ID1 and ID2 never change once written.
type SyncRecord struct {
	ID1      string     `json:"id1"`
	ID2      string     `json:"id2"`
	Title    string     `json:"title"`
	Complete Completion `json:"complete"`
}

// Key returns the record's pair key.
func (r *SyncRecord) Key() PairKey {
	return PairKey{ID1: r.ID1, ID2: r.ID2}
}

// DrivingID returns the id on the side that drives the given direction.
func (r *SyncRecord) DrivingID(d Direction) string {
	if d == DirectionService2To1 {
		return r.ID2
	}
	return r.ID1
}

// CounterpartID returns the id on the side that receives changes.
func (r *SyncRecord) CounterpartID(d Direction) string {
	if d == DirectionService2To1 {
		return r.ID1
	}
	return r.ID2
}
