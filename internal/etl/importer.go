package etl

import (
	"context"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/BartekS5/ledgerbridge/internal/retry"
	"github.com/BartekS5/ledgerbridge/pkg/logger"
	"github.com/BartekS5/ledgerbridge/pkg/models"
)

const DefaultBatchSize = 1000

type ImportOptions struct {
	BatchSize int
	Retry     retry.Policy
	// Workers bounds concurrent batch writes. Batches are written in order
	// when Workers is 1.
	Workers int
	Key     ConflictKey
}

func (o ImportOptions) withDefaults() ImportOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if len(o.Key) == 0 {
		o.Key = DefaultConflictKey
	}
	return o
}

// BatchResult is the outcome of one sink write.
type BatchResult struct {
	Index    int
	Records  int
	Written  int
	Attempts int
	Err      error
}

// ImportResult aggregates the batches of one Import call.
type ImportResult struct {
	Imported int
	// Failed counts records rejected by validation or lost with a failed batch.
	Failed   int
	Rejected int
	Attempts int
	Batches  []BatchResult
	Errors   []error
}

// Importer writes decoded records to a Sink in fixed-size batches with
// retry on transient failures.
type Importer struct {
	sink      Sink
	opts      ImportOptions
	validator *Validator
}

func NewImporter(sink Sink, opts ImportOptions) *Importer {
	opts = opts.withDefaults()
	return &Importer{sink: sink, opts: opts, validator: NewValidator(opts.Key)}
}

// Import writes records for table. Batches already handed to the sink are
// allowed to finish when ctx is canceled; batches not yet started are
// reported as failed.
func (im *Importer) Import(ctx context.Context, table string, records []DecodedRecord, mode models.ImportMode) *ImportResult {
	res := &ImportResult{}
	log := logger.WithFields(logger.Fields{"table": table})

	valid := make([]DecodedRecord, 0, len(records))
	for _, rec := range records {
		if err := im.validator.ValidateRecord(rec); err != nil {
			res.Rejected++
			continue
		}
		valid = append(valid, rec)
	}
	if res.Rejected > 0 {
		log.Warnf("%d record(s) rejected before import: missing conflict key", res.Rejected)
	}

	batches := lo.Chunk(valid, im.opts.BatchSize)
	res.Batches = make([]BatchResult, len(batches))

	if im.opts.Workers == 1 {
		for i, batch := range batches {
			res.Batches[i] = im.writeBatch(ctx, table, i, batch, mode)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(im.opts.Workers)
		for i, batch := range batches {
			g.Go(func() error {
				res.Batches[i] = im.writeBatch(ctx, table, i, batch, mode)
				return nil
			})
		}
		_ = g.Wait()
	}

	res.Failed = res.Rejected
	for _, br := range res.Batches {
		res.Attempts += br.Attempts
		res.Imported += br.Written
		if br.Err != nil {
			res.Failed += br.Records
			res.Errors = append(res.Errors, br.Err)
		}
	}
	return res
}

func (im *Importer) writeBatch(ctx context.Context, table string, index int, batch []DecodedRecord, mode models.ImportMode) BatchResult {
	br := BatchResult{Index: index, Records: len(batch)}
	log := logger.WithFields(logger.Fields{"table": table, "batch": index})

	if err := ctx.Err(); err != nil {
		br.Err = &PersistenceError{Table: table, Batch: index, Records: len(batch), Err: err}
		return br
	}

	writeCtx := context.WithoutCancel(ctx)
	attempts, err := retry.Do(ctx, im.opts.Retry, IsTransient,
		func(int) error {
			n, err := im.sink.Upsert(writeCtx, table, batch, im.opts.Key, mode)
			if err == nil {
				br.Written = n
			}
			return err
		},
		func(attempt int, err error, wait time.Duration) {
			log.Warnf("write attempt %d failed, retrying in %s: %v", attempt, wait, err)
		},
	)
	br.Attempts = attempts
	if err != nil {
		br.Err = &PersistenceError{Table: table, Batch: index, Records: len(batch), Attempts: attempts, Err: err}
		log.Errorf("batch of %d record(s) failed: %v", len(batch), err)
		return br
	}
	log.Debugf("batch of %d record(s) written in %d attempt(s)", len(batch), attempts)
	return br
}
