package etl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/BartekS5/ledgerbridge/pkg/models"
)

func tenantRecord(guid string, fields DecodedRecord) DecodedRecord {
	rec := DecodedRecord{KeyCompanyID: "acme", KeyDivisionID: "north", KeyGUID: guid}
	for k, v := range fields {
		rec[k] = v
	}
	return rec
}

func TestColumnOrder(t *testing.T) {
	cols := columnOrder([]DecodedRecord{
		tenantRecord("a", DecodedRecord{"name": "x", "amount": 1.0}),
		tenantRecord("b", DecodedRecord{"parent": "y"}),
	}, DefaultConflictKey)

	assert.Equal(t, []string{"company_id", "division_id", "guid", "amount", "name", "parent"}, cols)
}

func TestCollapseByKey(t *testing.T) {
	records := []DecodedRecord{
		tenantRecord("a", DecodedRecord{"name": "first", "parent": "p"}),
		tenantRecord("b", DecodedRecord{"name": "other"}),
		tenantRecord("a", DecodedRecord{"name": "second", "parent": nil}),
	}

	replaced := collapseByKey(records, DefaultConflictKey, models.ModeReplace)
	require.Len(t, replaced, 2)
	assert.Equal(t, "second", replaced[0]["name"])
	assert.Nil(t, replaced[0]["parent"])

	merged := collapseByKey(records, DefaultConflictKey, models.ModeMerge)
	require.Len(t, merged, 2)
	assert.Equal(t, "second", merged[0]["name"])
	assert.Equal(t, "p", merged[0]["parent"])
}

func TestMemorySink_ReplaceIsIdempotent(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()
	records := []DecodedRecord{
		tenantRecord("a", DecodedRecord{"name": "Cash"}),
		tenantRecord("b", DecodedRecord{"name": "Bank"}),
	}

	for i := 0; i < 2; i++ {
		n, err := sink.Upsert(ctx, "mst_ledger", records, DefaultConflictKey, models.ModeReplace)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}
	assert.Equal(t, 2, sink.Count("mst_ledger"))

	_, err := sink.Upsert(ctx, "mst_ledger", []DecodedRecord{tenantRecord("a", DecodedRecord{})}, DefaultConflictKey, models.ModeReplace)
	require.NoError(t, err)
	rec, ok := sink.Get("mst_ledger", DefaultConflictKey, "acme", "north", "a")
	require.True(t, ok)
	_, hasName := rec["name"]
	assert.False(t, hasName)
}

func TestMemorySink_Merge(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	_, err := sink.Upsert(ctx, "mst_ledger", []DecodedRecord{tenantRecord("a", DecodedRecord{"name": "Cash", "parent": "Assets"})}, DefaultConflictKey, models.ModeMerge)
	require.NoError(t, err)
	_, err = sink.Upsert(ctx, "mst_ledger", []DecodedRecord{tenantRecord("a", DecodedRecord{"name": "Cash in Hand", "parent": nil})}, DefaultConflictKey, models.ModeMerge)
	require.NoError(t, err)

	rec, ok := sink.Get("mst_ledger", DefaultConflictKey, "acme", "north", "a")
	require.True(t, ok)
	assert.Equal(t, "Cash in Hand", rec["name"])
	assert.Equal(t, "Assets", rec["parent"])

	_, ok = sink.Get("mst_ledger", DefaultConflictKey, "acme", "south", "a")
	assert.False(t, ok)
}

func TestBuildMergeStatement(t *testing.T) {
	rows := []DecodedRecord{
		tenantRecord("a", DecodedRecord{"name": "Cash"}),
		tenantRecord("b", DecodedRecord{"name": "Bank"}),
	}
	cols := columnOrder(rows, DefaultConflictKey)

	query, args := buildMergeStatement("dbo", "mst_ledger", cols, DefaultConflictKey, models.ModeReplace, rows)
	assert.Len(t, args, 8)
	assert.Equal(t, "b", args[6])
	assert.Contains(t, query, "MERGE INTO [dbo].[mst_ledger] WITH (HOLDLOCK) AS T")
	assert.Contains(t, query, "USING (VALUES (@p1, @p2, @p3, @p4), (@p5, @p6, @p7, @p8)) AS S ([company_id], [division_id], [guid], [name])")
	assert.Contains(t, query, "ON T.[company_id] = S.[company_id] AND T.[division_id] = S.[division_id] AND T.[guid] = S.[guid]")
	assert.Contains(t, query, "WHEN MATCHED THEN UPDATE SET T.[name] = S.[name]")
	assert.Contains(t, query, "WHEN NOT MATCHED THEN INSERT ([company_id], [division_id], [guid], [name]) VALUES (S.[company_id], S.[division_id], S.[guid], S.[name]);")

	query, _ = buildMergeStatement("dbo", "mst_ledger", cols, DefaultConflictKey, models.ModeMerge, rows)
	assert.Contains(t, query, "T.[name] = COALESCE(S.[name], T.[name])")

	keyOnly := []DecodedRecord{tenantRecord("a", nil)}
	query, _ = buildMergeStatement("dbo", "x", columnOrder(keyOnly, DefaultConflictKey), DefaultConflictKey, models.ModeReplace, keyOnly)
	assert.NotContains(t, query, "WHEN MATCHED")
}

func TestBuildPostgresUpsert(t *testing.T) {
	cols := []string{"company_id", "division_id", "guid", "amount", "name"}

	query := buildPostgresUpsert("public", "trn_accounting", cols, DefaultConflictKey, models.ModeReplace)
	assert.Equal(t, `INSERT INTO "public"."trn_accounting" AS T ("company_id", "division_id", "guid", "amount", "name") VALUES ($1, $2, $3, $4, $5) `+
		`ON CONFLICT ("company_id", "division_id", "guid") DO UPDATE SET "amount" = EXCLUDED."amount", "name" = EXCLUDED."name"`, query)

	query = buildPostgresUpsert("public", "trn_accounting", cols, DefaultConflictKey, models.ModeMerge)
	assert.Contains(t, query, `"amount" = COALESCE(EXCLUDED."amount", T."amount")`)

	query = buildPostgresUpsert("public", "t", cols[:3], DefaultConflictKey, models.ModeReplace)
	assert.Contains(t, query, "DO NOTHING")
}

func TestMongoWriteModel(t *testing.T) {
	rec := tenantRecord("a", DecodedRecord{"name": "Cash", "parent": nil})

	replace, ok := mongoWriteModel(rec, DefaultConflictKey, models.ModeReplace).(*mongo.ReplaceOneModel)
	require.True(t, ok)
	require.NotNil(t, replace.Upsert)
	assert.True(t, *replace.Upsert)
	assert.Equal(t, bson.D{{Key: "company_id", Value: "acme"}, {Key: "division_id", Value: "north"}, {Key: "guid", Value: "a"}}, replace.Filter)
	assert.Equal(t, bson.M(rec), replace.Replacement)

	update, ok := mongoWriteModel(rec, DefaultConflictKey, models.ModeMerge).(*mongo.UpdateOneModel)
	require.True(t, ok)
	set := update.Update.(bson.M)["$set"].(bson.M)
	assert.Equal(t, "Cash", set["name"])
	_, hasParent := set["parent"]
	assert.False(t, hasParent)
}
