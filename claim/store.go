/*
store.go - Persistence and collaborator contracts for the claim workflow

PURPOSE:
  Defines the interfaces between the workflow and everything outside it:
  the document database, the sequence counter, file storage, the
  spreadsheet renderer and the notification channel. The workflow never
  talks to a concrete database or network client.

KEY INTERFACES:
  Store:         Claim documents (get, create, versioned update, query)
  Counter:       Atomic increment-and-read for sequential ids
  BatchStore:    Payment batches keyed by reference number
  ActivityLog:   Infrastructure failure log with operation context
  ProfileStore:  User profiles (bank details snapshot source)
  FileStore:     Proof uploads
  SheetRenderer: Payment sheet formatting

NO DELETES:
  Store has no Delete. Rejected and paid claims are data, not garbage.

OPTIMISTIC LOCKING:
  Update compares the claim's Version with the stored one. On a mismatch
  it returns ErrConcurrentModification and writes nothing. On success the
  stored Version and the passed claim's Version are both incremented.

IMPLEMENTATIONS:
  - claim/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite document store
  - counter/redis.go: Redis INCR counter
  - filestore/: S3 and in-memory file storage
  - export/: excelize payment sheets

SEE ALSO:
  - workflow.go: Consumer of these interfaces
*/
package claim

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CLAIM STORE
// =============================================================================

type Store interface {
	// Get returns the claim or a NotFoundError.
	Get(ctx context.Context, id string) (*Claim, error)

	// Create persists a new claim. An empty ID is assigned by the store.
	Create(ctx context.Context, c *Claim) error

	// Update replaces the claim when c.Version matches the stored version.
	Update(ctx context.Context, c *Claim) error

	// Query returns claims matching the filter, oldest first.
	Query(ctx context.Context, f Filter) ([]*Claim, error)
}

// Filter narrows a claim query. Zero values match everything.
type Filter struct {
	UID             string
	Faculty         string
	Types           []ClaimType
	Statuses        []Status
	PaymentSheetRef string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

// Matches reports whether a claim satisfies the filter.
// Store implementations without native query support use this directly.
func (f Filter) Matches(c *Claim) bool {
	if f.UID != "" && c.UID != f.UID {
		return false
	}
	if f.Faculty != "" && c.Faculty != f.Faculty {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, c.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, c.Status) {
		return false
	}
	if f.PaymentSheetRef != "" && c.PaymentSheetRef != f.PaymentSheetRef {
		return false
	}
	if f.CreatedFrom != nil && c.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && c.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}

func containsType(list []ClaimType, t ClaimType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// =============================================================================
// COUNTER - Sequential ids
// =============================================================================

// Counter hands out sequence numbers. Next must be a single atomic
// increment-and-read. Gaps are acceptable, reuse is not.
type Counter interface {
	Next(ctx context.Context, name string) (int64, error)
}

// =============================================================================
// BATCHES, PROFILES, ACTIVITY
// =============================================================================

type BatchStore interface {
	// SaveBatch inserts or replaces the batch with the same reference.
	SaveBatch(ctx context.Context, b *PaymentBatch) error
	GetBatch(ctx context.Context, ref string) (*PaymentBatch, error)
}

type ProfileStore interface {
	GetProfile(ctx context.Context, uid string) (*UserProfile, error)
}

// ActivityEntry records an infrastructure failure with enough context to
// investigate it later.
type ActivityEntry struct {
	ID        string            `json:"id"`
	Operation string            `json:"operation"`
	EntityIDs []string          `json:"entityIds"`
	Error     string            `json:"error"`
	Context   map[string]string `json:"context,omitempty"`
	At        time.Time         `json:"at"`
}

type ActivityLog interface {
	Record(ctx context.Context, e ActivityEntry) error
}

// =============================================================================
// FILES AND EXPORT
// =============================================================================

type FileStore interface {
	// Upload stores the bytes at path and returns a URL for them.
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
	MakePublic(ctx context.Context, path string) error
}

// SheetRow is one line of a payment sheet.
type SheetRow struct {
	ClaimID   string
	UserName  string
	Faculty   string
	ClaimType ClaimType
	Bank      BankDetails
	Amount    decimal.Decimal
	Remarks   string
}

type SheetRenderer interface {
	RenderPaymentSheet(reference string, rows []SheetRow) ([]byte, error)
}
