package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/BartekS5/ledgerbridge/pkg/logger"
	"github.com/BartekS5/ledgerbridge/pkg/models"
)

// PostgresSink upserts records into existing PostgreSQL tables with
// INSERT ... ON CONFLICT, one batched transaction per call.
type PostgresSink struct {
	Pool   *pgxpool.Pool
	Schema string
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{Pool: pool, Schema: "public"}
}

func (p *PostgresSink) Upsert(ctx context.Context, table string, records []DecodedRecord, key ConflictKey, mode models.ImportMode) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	cols := columnOrder(records, key)
	query := buildPostgresUpsert(p.Schema, table, cols, key, mode)

	batch := &pgx.Batch{}
	for _, rec := range records {
		args := make([]any, len(cols))
		for i, c := range cols {
			args[i] = rec[c]
		}
		batch.Queue(query, args...)
	}

	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return 0, classifyPostgresError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for i := range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("record %d: %w", i, classifyPostgresError(err))
		}
	}
	if err := br.Close(); err != nil {
		return 0, classifyPostgresError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, classifyPostgresError(err)
	}
	logger.Debugf("PostgreSQL upsert %s: %d records", table, len(records))
	return len(records), nil
}

func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// buildPostgresUpsert renders the per-record statement. In merge mode NULL
// values keep the stored value.
func buildPostgresUpsert(schema, table string, cols []string, key ConflictKey, mode models.ImportMode) string {
	quoted := lo.Map(cols, func(c string, _ int) string { return pgIdent(c) })
	placeholders := lo.Map(cols, func(_ string, i int) string { return fmt.Sprintf("$%d", i+1) })
	keyCols := lo.Map(key, func(k string, _ int) string { return pgIdent(k) })

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s AS T (%s) VALUES (%s) ON CONFLICT (%s) ",
		pgx.Identifier{schema, table}.Sanitize(),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(keyCols, ", "))

	rest := nonKeyColumns(cols, key)
	if len(rest) == 0 {
		b.WriteString("DO NOTHING")
		return b.String()
	}
	set := make([]string, len(rest))
	for i, c := range rest {
		q := pgIdent(c)
		if mode == models.ModeMerge {
			set[i] = fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, T.%s)", q, q, q)
		} else {
			set[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
		}
	}
	b.WriteString("DO UPDATE SET " + strings.Join(set, ", "))
	return b.String()
}

func classifyPostgresError(err error) error {
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return MarkTransient(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgErr.Code == pgerrcode.SerializationFailure,
			pgErr.Code == pgerrcode.DeadlockDetected:
			return MarkTransient(err)
		}
	}
	return err
}
