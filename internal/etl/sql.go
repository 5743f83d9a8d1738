package etl

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/samber/lo"

	"github.com/BartekS5/ledgerbridge/pkg/logger"
	"github.com/BartekS5/ledgerbridge/pkg/models"
)

// SQL Server caps a statement at 2100 parameters.
const mssqlMaxParams = 2000

// mssqlTransientErrors are server error numbers worth retrying: deadlock
// victim, timeout, and Azure SQL throttling or failover.
var mssqlTransientErrors = map[int32]bool{
	1205:  true,
	-2:    true,
	40613: true,
	40197: true,
	40501: true,
	49918: true,
}

// SQLServerSink upserts records into existing SQL Server tables with MERGE.
type SQLServerSink struct {
	DB     *sql.DB
	Schema string
}

func NewSQLServerSink(db *sql.DB) *SQLServerSink {
	return &SQLServerSink{DB: db, Schema: "dbo"}
}

func (l *SQLServerSink) Upsert(ctx context.Context, table string, records []DecodedRecord, key ConflictKey, mode models.ImportMode) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows := collapseByKey(records, key, mode)
	cols := columnOrder(rows, key)
	perStatement := mssqlMaxParams / len(cols)
	if perStatement < 1 {
		perStatement = 1
	}

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, classifySQLServerError(err)
	}
	for _, chunk := range lo.Chunk(rows, perStatement) {
		query, args := buildMergeStatement(l.Schema, table, cols, key, mode, chunk)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return 0, classifySQLServerError(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, classifySQLServerError(err)
	}
	logger.Debugf("SQL Server MERGE %s: %d records in %d row(s)", table, len(records), len(rows))
	return len(records), nil
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// buildMergeStatement renders one MERGE over a VALUES source. In merge mode
// NULL source values keep the stored value.
func buildMergeStatement(schema, table string, cols []string, key ConflictKey, mode models.ImportMode, rows []DecodedRecord) (string, []any) {
	quoted := lo.Map(cols, func(c string, _ int) string { return mssqlIdent(c) })

	args := make([]any, 0, len(rows)*len(cols))
	tuples := make([]string, 0, len(rows))
	for _, rec := range rows {
		ph := make([]string, len(cols))
		for i, c := range cols {
			args = append(args, rec[c])
			ph[i] = fmt.Sprintf("@p%d", len(args))
		}
		tuples = append(tuples, "("+strings.Join(ph, ", ")+")")
	}

	on := make([]string, len(key))
	for i, k := range key {
		on[i] = fmt.Sprintf("T.%s = S.%s", mssqlIdent(k), mssqlIdent(k))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s.%s WITH (HOLDLOCK) AS T\n", mssqlIdent(schema), mssqlIdent(table))
	fmt.Fprintf(&b, "USING (VALUES %s) AS S (%s)\n", strings.Join(tuples, ", "), strings.Join(quoted, ", "))
	fmt.Fprintf(&b, "ON %s\n", strings.Join(on, " AND "))

	if rest := nonKeyColumns(cols, key); len(rest) > 0 {
		set := make([]string, len(rest))
		for i, c := range rest {
			q := mssqlIdent(c)
			if mode == models.ModeMerge {
				set[i] = fmt.Sprintf("T.%s = COALESCE(S.%s, T.%s)", q, q, q)
			} else {
				set[i] = fmt.Sprintf("T.%s = S.%s", q, q)
			}
		}
		fmt.Fprintf(&b, "WHEN MATCHED THEN UPDATE SET %s\n", strings.Join(set, ", "))
	}

	sources := lo.Map(quoted, func(q string, _ int) string { return "S." + q })
	fmt.Fprintf(&b, "WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);", strings.Join(quoted, ", "), strings.Join(sources, ", "))
	return b.String(), args
}

func classifySQLServerError(err error) error {
	var me mssql.Error
	if errors.As(err, &me) && mssqlTransientErrors[me.Number] {
		return MarkTransient(err)
	}
	if errors.Is(err, driver.ErrBadConn) {
		return MarkTransient(err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return MarkTransient(err)
	}
	return err
}
