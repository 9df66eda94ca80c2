package domain

import "time"

// Bucket labels a fetched item.
type Bucket string

const (
	BucketNew       Bucket = "new"
	BucketUpdated   Bucket = "updated"
	BucketDuplicate Bucket = "duplicate"
	// BucketService is not a classification label; reading it from an
	// adapter returns the remote client handle.
	BucketService Bucket = "service"
)

// Classification is the immutable result of one fetch. Each fetched item
// appears in exactly one list.
type Classification struct {
	Service   string       `json:"service"`
	New       []NativeItem `json:"new"`
	Updated   []NativeItem `json:"updated"`
	Duplicate []NativeItem `json:"duplicate"`
	Since     int64        `json:"since"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// Items returns the list for a bucket. Unknown buckets return nil.
func (c *Classification) Items(b Bucket) []NativeItem {
	if c == nil {
		return nil
	}
	switch b {
	case BucketNew:
		return c.New
	case BucketUpdated:
		return c.Updated
	case BucketDuplicate:
		return c.Duplicate
	default:
		return nil
	}
}

// Total returns the number of classified items.
func (c *Classification) Total() int {
	if c == nil {
		return 0
	}
	return len(c.New) + len(c.Updated) + len(c.Duplicate)
}

// Watermark is the persisted last-update point for a service, in epoch
// seconds. Stored in the config store under WatermarkKey(service).
type Watermark struct {
	Time int64 `json:"time"`
}

// WatermarkKey returns the config document key holding a service's watermark.
func WatermarkKey(service string) string {
	return "last-update-" + service
}
