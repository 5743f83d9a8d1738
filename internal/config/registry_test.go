package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/ledgerbridge/pkg/models"
)

func TestLoadRegistry_SampleSchemas(t *testing.T) {
	reg, err := LoadRegistry(filepath.Join("..", "..", "configs", "schemas.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"mst_group", "mst_ledger", "mst_stock_item", "trn_voucher", "trn_accounting", "trn_inventory"}, reg.Names())

	acc, ok := reg.Lookup("trn_accounting")
	require.True(t, ok)
	assert.Equal(t, []string{"Voucher", "AllLedgerEntries"}, acc.Route())
	assert.True(t, acc.DeterministicGUID)
	assert.Equal(t, "$$Owner:$Guid", acc.Fields[0].Field)

	inv, _ := reg.Lookup("trn_inventory")
	assert.Equal(t, models.ModeMerge, inv.Mode())

	voucher, _ := reg.Lookup("trn_voucher")
	require.NotNil(t, voucher.Fields[2].Default)
	assert.Equal(t, "Journal", *voucher.Fields[2].Default)
}

func TestLoadRegistry_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemas.json")
	doc := `{"version":"1","master":[{"name":"mst_group","collection":"Group","fields":[{"name":"name","field":"Name","type":"text"}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"mst_group"}, reg.Names())
}

func TestNewRegistry_Rejects(t *testing.T) {
	group := models.TableSchema{Name: "mst_group", Collection: "Group"}

	_, err := NewRegistry([]models.TableSchema{group, group})
	assert.ErrorContains(t, err, "duplicate table")

	_, err = NewRegistry([]models.TableSchema{{Name: "x"}})
	assert.ErrorContains(t, err, "collection path is empty")

	_, err = NewRegistry([]models.TableSchema{{
		Name: "x", Collection: "Ledger",
		Fields: []models.FieldSpec{{Name: "amount", Field: "Amount", Type: models.TypeAmount, SignField: "missing"}},
	}})
	assert.ErrorContains(t, err, "signField")
}

func TestRegistry_Select(t *testing.T) {
	reg, err := NewRegistry([]models.TableSchema{
		{Name: "mst_group", Collection: "Group"},
		{Name: "mst_ledger", Collection: "Ledger"},
		{Name: "trn_voucher", Collection: "Voucher"},
	})
	require.NoError(t, err)

	all, err := reg.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := reg.Select([]string{"trn_voucher", "mst_group", "trn_voucher"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "trn_voucher", some[0].Name)
	assert.Equal(t, "mst_group", some[1].Name)

	_, err = reg.Select([]string{"mst_missing"})
	assert.ErrorContains(t, err, "unknown table")
}
