package etl

import (
	"context"
	"sync"

	"github.com/BartekS5/ledgerbridge/pkg/models"
)

// MemorySink keeps records in process. It backs dry runs and tests.
type MemorySink struct {
	mu     sync.Mutex
	tables map[string]map[string]DecodedRecord
}

func NewMemorySink() *MemorySink {
	return &MemorySink{tables: make(map[string]map[string]DecodedRecord)}
}

func (m *MemorySink) Upsert(_ context.Context, table string, records []DecodedRecord, key ConflictKey, mode models.ImportMode) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tables[table]
	if !ok {
		rows = make(map[string]DecodedRecord)
		m.tables[table] = rows
	}
	for _, rec := range records {
		k := recordKey(rec, key)
		rows[k] = mergeInto(rows[k], rec, mode)
	}
	return len(records), nil
}

// Count returns the number of distinct records stored for table.
func (m *MemorySink) Count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

// Get looks a record up by its conflict key values.
func (m *MemorySink) Get(table string, key ConflictKey, values ...any) (DecodedRecord, bool) {
	probe := make(DecodedRecord, len(key))
	for i, k := range key {
		if i < len(values) {
			probe[k] = values[i]
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tables[table][recordKey(probe, key)]
	return rec, ok
}
