package etl

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/ledgerbridge/pkg/models"
)

var acme = Tenant{CompanyID: "acme", DivisionID: "north"}

func strPtr(s string) *string { return &s }

func TestDecode_Types(t *testing.T) {
	schema := models.TableSchema{
		Name:       "trn_voucher",
		Collection: "Voucher",
		Fields: []models.FieldSpec{
			{Name: "guid", Field: "Guid", Type: models.TypeText},
			{Name: "date", Field: "Date", Type: models.TypeDate, Required: true},
			{Name: "amount", Field: "Amount", Type: models.TypeAmount},
			{Name: "rate", Field: "Rate", Type: models.TypeRate},
			{Name: "is_invoice", Field: "IsInvoice", Type: models.TypeLogical},
			{Name: "narration", Field: "Narration", Type: models.TypeText},
		},
	}
	rec, err := NewDecoder(schema, acme).Decode(0, NormalizedRow{"g-1", "2024-04-01", "1,500.50", "", "1", ""})
	require.NoError(t, err)

	assert.Equal(t, "g-1", rec["guid"])
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), rec["date"])
	assert.Equal(t, 1500.5, rec["amount"])
	assert.Equal(t, 0.0, rec["rate"])
	assert.Equal(t, true, rec["is_invoice"])
	assert.Equal(t, "", rec["narration"])
	assert.Equal(t, "acme", rec[KeyCompanyID])
	assert.Equal(t, "north", rec[KeyDivisionID])
}

func TestDecode_AmountSign(t *testing.T) {
	schema := models.TableSchema{
		Name:       "trn_accounting",
		Collection: "Voucher.AllLedgerEntries",
		Fields: []models.FieldSpec{
			{Name: "amount", Field: "Amount", Type: models.TypeAmount, SignField: "is_debit"},
			{Name: "is_debit", Field: "IsDeemedPositive", Type: models.TypeLogical},
		},
	}
	dec := NewDecoder(schema, acme)

	debit, err := dec.Decode(0, NormalizedRow{"1500", "1"})
	require.NoError(t, err)
	assert.Equal(t, 1500.0, debit["amount"])

	credit, err := dec.Decode(1, NormalizedRow{"1500", "0"})
	require.NoError(t, err)
	assert.Equal(t, -1500.0, credit["amount"])

	alreadyNegative, err := dec.Decode(2, NormalizedRow{"(-)1500", "1"})
	require.NoError(t, err)
	assert.Equal(t, 1500.0, alreadyNegative["amount"])

	empty, err := dec.Decode(3, NormalizedRow{"", "0"})
	require.NoError(t, err)
	zero, ok := empty["amount"].(float64)
	require.True(t, ok)
	assert.Zero(t, zero)
	assert.False(t, math.Signbit(zero), "credit without a value must not be negative zero")
}

func TestDecode_QuantitySign(t *testing.T) {
	schema := models.TableSchema{
		Name:       "trn_inventory",
		Collection: "Voucher.AllInventoryEntries",
		Fields: []models.FieldSpec{
			{Name: "quantity", Field: "ActualQty", Type: models.TypeQuantity, SignField: "is_inward"},
			{Name: "is_inward", Field: "IsDeemedPositive", Type: models.TypeLogical},
		},
	}
	dec := NewDecoder(schema, acme)

	in, err := dec.Decode(0, NormalizedRow{"10", "1"})
	require.NoError(t, err)
	assert.Equal(t, 10.0, in["quantity"])

	out, err := dec.Decode(1, NormalizedRow{"10", "0"})
	require.NoError(t, err)
	assert.Equal(t, -10.0, out["quantity"])
}

func TestDecode_NumericFallbacks(t *testing.T) {
	schema := models.TableSchema{
		Name:       "mst_stock_item",
		Collection: "StockItem",
		Fields: []models.FieldSpec{
			{Name: "opening_rate", Field: "OpeningRate", Type: models.TypeRate, Default: strPtr("2.5")},
			{Name: "opening_value", Field: "OpeningValue", Type: models.TypeAmount},
		},
	}
	rec, err := NewDecoder(schema, acme).Decode(0, NormalizedRow{"n/a", "garbage"})
	require.NoError(t, err)
	assert.Equal(t, 2.5, rec["opening_rate"])
	assert.Equal(t, 0.0, rec["opening_value"])
}

func TestDecode_RequiredTextHeuristics(t *testing.T) {
	schema := models.TableSchema{
		Name:       "mst_stock_item",
		Collection: "StockItem",
		Fields: []models.FieldSpec{
			{Name: "name", Field: "Name", Type: models.TypeText, Required: true},
			{Name: "base_units", Field: "BaseUnits", Type: models.TypeText, Required: true},
			{Name: "alias_name", Field: "Alias", Type: models.TypeText, Required: true},
			{Name: "parent", Field: "Parent", Type: models.TypeText, Required: true},
			{Name: "category", Field: "Category", Type: models.TypeText, Required: true, Default: strPtr("General")},
		},
	}
	rec, err := NewDecoder(schema, acme).Decode(0, NormalizedRow{"Widget", "", "", "", ""})
	require.NoError(t, err)

	assert.Equal(t, "Nos", rec["base_units"])
	assert.Equal(t, "Widget", rec["alias_name"])
	assert.Equal(t, "Primary", rec["parent"])
	assert.Equal(t, "General", rec["category"])

	rec, err = NewDecoder(schema, acme).Decode(1, NormalizedRow{"", "kg", "", "Group A", ""})
	require.NoError(t, err)
	assert.Equal(t, "Unnamed", rec["name"])
	assert.Equal(t, "kg", rec["base_units"])
	assert.Equal(t, "Unnamed", rec["alias_name"])
}

func TestDecode_Skips(t *testing.T) {
	schema := models.TableSchema{
		Name:       "trn_voucher",
		Collection: "Voucher",
		Fields: []models.FieldSpec{
			{Name: "voucher_number", Field: "VoucherNumber", Type: models.TypeText, Required: true},
			{Name: "date", Field: "Date", Type: models.TypeDate, Required: true},
		},
	}
	dec := NewDecoder(schema, acme)

	_, err := dec.Decode(3, NormalizedRow{"", "2024-04-01"})
	var skip *DecodeSkip
	require.True(t, errors.As(err, &skip))
	assert.Equal(t, 3, skip.Row)
	assert.Equal(t, "voucher_number", skip.Field)

	_, err = dec.Decode(4, NormalizedRow{"V-1", ""})
	require.True(t, errors.As(err, &skip))
	assert.Equal(t, "date", skip.Field)

	records, skips := dec.DecodeAll([]NormalizedRow{
		{"V-1", "2024-04-01"},
		{"V-2", "not a date"},
		{"V-3", "2024-04-03"},
	})
	require.Len(t, records, 2)
	require.Len(t, skips, 1)
	assert.Equal(t, 1, skips[0].Row)
	assert.Equal(t, "V-3", records[1]["voucher_number"])
}

func TestDecode_OptionalDateIsNil(t *testing.T) {
	schema := models.TableSchema{
		Name:       "mst_ledger",
		Collection: "Ledger",
		Fields:     []models.FieldSpec{{Name: "closing_date", Field: "ClosingDate", Type: models.TypeDate}},
	}
	rec, err := NewDecoder(schema, acme).Decode(0, NormalizedRow{""})
	require.NoError(t, err)
	assert.Nil(t, rec["closing_date"])
}

func TestDecode_SynthesizedGUID(t *testing.T) {
	schema := models.TableSchema{
		Name:       "trn_accounting",
		Collection: "Voucher.AllLedgerEntries",
		Fields: []models.FieldSpec{
			{Name: "voucher_guid", Field: "$$Owner:$Guid", Type: models.TypeText},
			{Name: "ledger", Field: "LedgerName", Type: models.TypeText},
		},
	}
	row := NormalizedRow{"v-1", "Cash"}

	a, err := NewDecoder(schema, acme).Decode(0, row)
	require.NoError(t, err)
	b, err := NewDecoder(schema, acme).Decode(0, row)
	require.NoError(t, err)
	assert.NotEqual(t, a[KeyGUID], b[KeyGUID])
	_, err = uuid.Parse(a[KeyGUID].(string))
	assert.NoError(t, err)

	schema.DeterministicGUID = true
	a, err = NewDecoder(schema, acme).Decode(0, row)
	require.NoError(t, err)
	b, err = NewDecoder(schema, acme).Decode(7, row)
	require.NoError(t, err)
	assert.Equal(t, a[KeyGUID], b[KeyGUID])

	other, err := NewDecoder(schema, Tenant{CompanyID: "acme", DivisionID: "south"}).Decode(0, row)
	require.NoError(t, err)
	assert.NotEqual(t, a[KeyGUID], other[KeyGUID])
}

func TestHeuristicDefault(t *testing.T) {
	v, ok := HeuristicDefault("Base_UNITS", DecodedRecord{})
	assert.True(t, ok)
	assert.Equal(t, "Nos", v)

	_, ok = HeuristicDefault("narration", DecodedRecord{})
	assert.False(t, ok)
}
