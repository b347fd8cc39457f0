package domain

import (
	"context"
	"time"
)

// CatalogEventType names a kind of catalog change
type CatalogEventType string

const (
	CatalogEventCreated   CatalogEventType = "created"
	CatalogEventUpdated   CatalogEventType = "updated"
	CatalogEventDeleted   CatalogEventType = "deleted"
	CatalogEventImported  CatalogEventType = "imported"
	CatalogEventReordered CatalogEventType = "reordered"
)

// CatalogEvent describes a committed change to the catalog
type CatalogEvent struct {
	Type       CatalogEventType `json:"type"`
	ProblemIDs []string         `json:"problem_ids,omitempty"`
	Count      int              `json:"count"`
	At         time.Time        `json:"at"`
}

// CatalogObserver is notified after every committed catalog change
type CatalogObserver interface {
	OnCatalogEvent(ctx context.Context, event CatalogEvent)
}

// BatchPolicy decides what a multi-record write does after a failed item
type BatchPolicy string

const (
	// BatchContinueOnError attempts every item regardless of earlier failures
	BatchContinueOnError BatchPolicy = "continue"
	// BatchStopOnError abandons the remaining items after the first failure
	BatchStopOnError BatchPolicy = "stop"
)

// ParseBatchPolicy maps a query value to a policy, defaulting to best effort
func ParseBatchPolicy(s string) BatchPolicy {
	if BatchPolicy(s) == BatchStopOnError {
		return BatchStopOnError
	}
	return BatchContinueOnError
}

// BatchItemResult is the outcome of one write in a batch
type BatchItemResult struct {
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchResult collects per-item outcomes; already applied writes are never rolled back
type BatchResult struct {
	Items   []BatchItemResult `json:"items"`
	Applied int               `json:"applied"`
	Failed  int               `json:"failed"`
	Skipped int               `json:"skipped"`
}

// Record appends an item outcome
func (b *BatchResult) Record(id string, err error) {
	if err != nil {
		b.Items = append(b.Items, BatchItemResult{ID: id, Error: err.Error()})
		b.Failed++
		return
	}
	b.Items = append(b.Items, BatchItemResult{ID: id, OK: true})
	b.Applied++
}

// Skip marks an item as abandoned without being attempted
func (b *BatchResult) Skip(id string) {
	b.Items = append(b.Items, BatchItemResult{ID: id, Skipped: true})
	b.Skipped++
}

// Err returns ErrPartialBatch when any item failed or was skipped
func (b BatchResult) Err() error {
	if b.Failed > 0 || b.Skipped > 0 {
		return ErrPartialBatch
	}
	return nil
}
