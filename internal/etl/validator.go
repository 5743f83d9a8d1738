package etl

import "fmt"

// Validator rejects records a sink could not address.
type Validator struct {
	Key ConflictKey
}

func NewValidator(key ConflictKey) *Validator {
	return &Validator{Key: key}
}

// ValidateRecord checks that every conflict key field is present.
func (v *Validator) ValidateRecord(rec DecodedRecord) error {
	for _, k := range v.Key {
		if val, ok := rec[k]; !ok || val == nil {
			return fmt.Errorf("missing required key field: %s", k)
		}
	}
	return nil
}
