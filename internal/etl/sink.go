package etl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BartekS5/ledgerbridge/pkg/models"
)

// columnOrder returns the key columns followed by the sorted union of all
// other record keys.
func columnOrder(records []DecodedRecord, key ConflictKey) []string {
	isKey := make(map[string]bool, len(key))
	for _, k := range key {
		isKey[k] = true
	}
	seen := make(map[string]bool)
	var rest []string
	for _, rec := range records {
		for col := range rec {
			if isKey[col] || seen[col] {
				continue
			}
			seen[col] = true
			rest = append(rest, col)
		}
	}
	sort.Strings(rest)
	return append(append([]string{}, key...), rest...)
}

func nonKeyColumns(cols []string, key ConflictKey) []string {
	return cols[len(key):]
}

// recordKey renders the conflict key values of rec as a map key.
func recordKey(rec DecodedRecord, key ConflictKey) string {
	parts := make([]string, len(key))
	for i, k := range key {
		parts[i] = fmt.Sprint(rec[k])
	}
	return strings.Join(parts, "\x1f")
}

// mergeInto applies incoming to existing with the semantics of mode and
// returns the resulting record. existing is not modified.
func mergeInto(existing, incoming DecodedRecord, mode models.ImportMode) DecodedRecord {
	out := make(DecodedRecord, len(incoming))
	if mode == models.ModeMerge {
		for k, v := range existing {
			out[k] = v
		}
		for k, v := range incoming {
			if v != nil {
				out[k] = v
			}
		}
		return out
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

// collapseByKey folds records sharing a conflict key into one, in order, so
// that a single set-based statement never touches the same row twice.
func collapseByKey(records []DecodedRecord, key ConflictKey, mode models.ImportMode) []DecodedRecord {
	index := make(map[string]int, len(records))
	out := make([]DecodedRecord, 0, len(records))
	for _, rec := range records {
		k := recordKey(rec, key)
		if i, ok := index[k]; ok {
			out[i] = mergeInto(out[i], rec, mode)
			continue
		}
		index[k] = len(out)
		out = append(out, rec)
	}
	return out
}
