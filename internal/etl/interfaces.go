package etl

import (
	"context"

	"github.com/BartekS5/ledgerbridge/pkg/models"
)

// Record keys injected into every decoded record.
const (
	KeyCompanyID  = "company_id"
	KeyDivisionID = "division_id"
	KeyGUID       = "guid"
)

// ConflictKey lists the columns that identify a stored record.
type ConflictKey []string

// DefaultConflictKey scopes the natural key to the tenant.
var DefaultConflictKey = ConflictKey{KeyCompanyID, KeyDivisionID, KeyGUID}

// DecodedRecord maps target names to typed values.
type DecodedRecord map[string]any

// NormalizedRow holds one raw text cell per FieldSpec, in schema order.
type NormalizedRow []string

// Fetcher sends a synthesized request and returns the raw payload.
type Fetcher interface {
	Fetch(ctx context.Context, body []byte) ([]byte, error)
}

// Sink is the storage collaborator. Upsert writes records keyed by key and
// returns how many were written. Implementations wrap retryable driver
// errors with MarkTransient.
type Sink interface {
	Upsert(ctx context.Context, table string, records []DecodedRecord, key ConflictKey, mode models.ImportMode) (int, error)
}

// SchemaSource resolves the datasets of a job. Empty names select all.
type SchemaSource interface {
	Select(names []string) ([]models.TableSchema, error)
}
