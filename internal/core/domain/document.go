package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Well-known local store names. Per-service category stores are named
// "{service}-complete" and "{service}-incomplete".
const (
	StoreConfig = "config"
	StoreSyncs  = "syncs"
)

// Category selects one of a service's two local stores.
type Category string

const (
	CategoryComplete   Category = "complete"
	CategoryIncomplete Category = "incomplete"
)

// CategoryOf returns the category matching a completion state.
func CategoryOf(c Completion) Category {
	if c.Bool() {
		return CategoryComplete
	}
	return CategoryIncomplete
}

// Opposite returns the other category.
func (c Category) Opposite() Category {
	if c == CategoryComplete {
		return CategoryIncomplete
	}
	return CategoryComplete
}

// StoreName returns the local store name for a service category.
func StoreName(service string, c Category) string {
	return service + "-" + string(c)
}

// StoreNames lists every store the engine uses for two services, in a
// stable order.
func StoreNames(service1, service2 string) []string {
	return []string{
		StoreConfig,
		StoreSyncs,
		StoreName(service1, CategoryComplete),
		StoreName(service1, CategoryIncomplete),
		StoreName(service2, CategoryComplete),
		StoreName(service2, CategoryIncomplete),
	}
}

// Document is a revisioned JSON document held in a local store.
type Document struct {
	Key  string          `json:"key"`
	Rev  string          `json:"rev"`
	Body json.RawMessage `json:"body,omitempty"`
}

// NextRevision returns the revision following rev. An empty rev starts a
// new document at generation 1.
func NextRevision(rev string) string {
	gen := 0
	if rev != "" {
		head, _, _ := strings.Cut(rev, "-")
		if n, err := strconv.Atoi(head); err == nil {
			gen = n
		}
	}
	return fmt.Sprintf("%d-%s", gen+1, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// RevisionGeneration returns the numeric generation prefix of rev, or 0.
func RevisionGeneration(rev string) int {
	head, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return n
}
