package etl

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/BartekS5/ledgerbridge/pkg/logger"
	"github.com/BartekS5/ledgerbridge/pkg/models"
	"github.com/BartekS5/ledgerbridge/pkg/utils"
)

// Tenant identifies the company and division a record belongs to.
type Tenant struct {
	CompanyID  string
	DivisionID string
}

// Decoder types normalized rows according to a TableSchema.
type Decoder struct {
	schema models.TableSchema
	tenant Tenant
}

func NewDecoder(schema models.TableSchema, tenant Tenant) *Decoder {
	return &Decoder{schema: schema, tenant: tenant}
}

// Decode converts one row. A row that cannot satisfy a required field is
// reported as a *DecodeSkip; no other error is returned.
func (d *Decoder) Decode(index int, row NormalizedRow) (DecodedRecord, error) {
	fields := d.schema.Fields
	rec := make(DecodedRecord, len(fields)+3)

	for i, f := range fields {
		raw := ""
		if i < len(row) {
			raw = row[i]
		}

		switch {
		case f.Type.Numeric():
			v, ok := utils.ParseNumber(raw)
			if !ok && f.Default != nil {
				v, _ = utils.ParseNumber(*f.Default)
			}
			rec[f.Name] = v

		case f.Type == models.TypeLogical:
			if raw == "" && f.Default != nil {
				raw = *f.Default
			}
			rec[f.Name] = utils.ParseLogical(raw)

		case f.Type == models.TypeDate:
			t, ok := utils.ParseDate(raw)
			if !ok && f.Default != nil {
				t, ok = utils.ParseDate(*f.Default)
			}
			switch {
			case ok:
				rec[f.Name] = t
			case f.Required:
				return nil, &DecodeSkip{Row: index, Field: f.Name, Reason: fmt.Sprintf("missing or invalid date %q", raw)}
			default:
				rec[f.Name] = nil
			}

		default:
			if raw == "" && f.Default != nil {
				raw = *f.Default
			}
			if raw == "" && f.Required {
				v, ok := HeuristicDefault(f.Name, rec)
				if !ok {
					return nil, &DecodeSkip{Row: index, Field: f.Name, Reason: "required value is empty"}
				}
				raw = v
			}
			rec[f.Name] = raw
		}
	}

	for _, f := range fields {
		if f.SignField == "" {
			continue
		}
		v, _ := rec[f.Name].(float64)
		flag, _ := rec[f.SignField].(bool)
		v = math.Abs(v)
		if !flag && v != 0 {
			v = -v
		}
		rec[f.Name] = v
	}

	rec[KeyCompanyID] = d.tenant.CompanyID
	rec[KeyDivisionID] = d.tenant.DivisionID
	if guid, ok := rec[KeyGUID].(string); !ok || guid == "" {
		rec[KeyGUID] = d.synthesizeGUID(row)
	}
	return rec, nil
}

// DecodeAll decodes rows in order, collecting skipped rows separately.
func (d *Decoder) DecodeAll(rows []NormalizedRow) ([]DecodedRecord, []*DecodeSkip) {
	records := make([]DecodedRecord, 0, len(rows))
	var skips []*DecodeSkip
	for i, row := range rows {
		rec, err := d.Decode(i, row)
		if err != nil {
			skip, ok := err.(*DecodeSkip)
			if !ok {
				skip = &DecodeSkip{Row: i, Reason: err.Error()}
			}
			logger.Debugf("%s: %v", d.schema.Name, skip)
			skips = append(skips, skip)
			continue
		}
		records = append(records, rec)
	}
	return records, skips
}

// synthesizeGUID is used for rows without a natural identifier. Deterministic
// schemas hash the tenant, the table and the raw cells so that re-running a
// sync yields the same key; identical rows then collapse into one record.
func (d *Decoder) synthesizeGUID(row NormalizedRow) string {
	if d.schema.DeterministicGUID {
		name := strings.Join([]string{d.tenant.CompanyID, d.tenant.DivisionID, d.schema.Name, strings.Join(row, "\x1f")}, "\x00")
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
