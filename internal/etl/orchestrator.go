package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/BartekS5/ledgerbridge/internal/metrics"
	"github.com/BartekS5/ledgerbridge/internal/retry"
	"github.com/BartekS5/ledgerbridge/pkg/logger"
	"github.com/BartekS5/ledgerbridge/pkg/models"
)

// TableState is a step of the per-table state machine.
type TableState string

const (
	StatePending     TableState = "pending"
	StateQuerying    TableState = "querying"
	StateFetching    TableState = "fetching"
	StateNormalizing TableState = "normalizing"
	StateDecoding    TableState = "decoding"
	StateImporting   TableState = "importing"
	StateCompleted   TableState = "completed"
	StateFailed      TableState = "failed"
)

// JobRequest triggers a sync. An empty Tables list selects every registered
// dataset.
type JobRequest struct {
	CompanyID  string   `json:"companyId"`
	DivisionID string   `json:"divisionId"`
	Tables     []string `json:"tableNames,omitempty"`
}

type TableResult struct {
	Table           string     `json:"table"`
	State           TableState `json:"state"`
	RecordsFetched  int        `json:"recordsFetched"`
	RecordsImported int        `json:"recordsImported"`
	RecordsSkipped  int        `json:"recordsSkipped"`
	RecordsFailed   int        `json:"recordsFailed"`
	FetchAttempts   int        `json:"fetchAttempts"`
	ImportAttempts  int        `json:"importAttempts"`
	Batches         int        `json:"batches"`
	Errors          []string   `json:"errors,omitempty"`
	Duration        string     `json:"duration"`

	Elapsed time.Duration `json:"-"`
	Err     error         `json:"-"`
}

type JobSummary struct {
	Success         bool          `json:"success"`
	TablesProcessed int           `json:"tablesProcessed"`
	TotalRecords    int           `json:"totalRecords"`
	TotalInserted   int           `json:"totalInserted"`
	TotalSkipped    int           `json:"totalSkipped"`
	TotalErrors     int           `json:"totalErrors"`
	Duration        string        `json:"duration"`
	Results         []TableResult `json:"results"`
}

// Orchestrator drives every selected dataset through synthesis, fetch,
// normalization, decoding and import.
type Orchestrator struct {
	Schemas  SchemaSource
	Fetcher  Fetcher
	Importer *Importer
	// Vars scope every request (company, period).
	Vars StaticVariables
	// Retry bounds fetch attempts per table.
	Retry retry.Policy
	// Parallelism is the number of tables processed at once.
	Parallelism int
	Metrics     *metrics.Recorder
}

// Run executes the job. It returns an error only for configuration problems
// found before any table starts; table failures are reported in the summary.
func (o *Orchestrator) Run(ctx context.Context, req JobRequest) (*JobSummary, error) {
	start := time.Now()

	switch {
	case o.Fetcher == nil:
		return nil, &ConfigurationError{Op: "sync", Err: errors.New("no transport configured")}
	case o.Importer == nil:
		return nil, &ConfigurationError{Op: "sync", Err: errors.New("no importer configured")}
	case o.Schemas == nil:
		return nil, &ConfigurationError{Op: "sync", Err: errors.New("no schema source configured")}
	case strings.TrimSpace(req.CompanyID) == "":
		return nil, &ConfigurationError{Op: "sync", Err: errors.New("company id is required")}
	}
	if o.Importer.sink == nil {
		return nil, &ConfigurationError{Op: "sync", Err: errors.New("no storage sink configured")}
	}

	schemas, err := o.Schemas.Select(req.Tables)
	if err != nil {
		return nil, &ConfigurationError{Op: "select tables", Err: err}
	}
	if len(schemas) == 0 {
		return nil, &ConfigurationError{Op: "select tables", Err: errors.New("no tables selected")}
	}

	tenant := Tenant{CompanyID: req.CompanyID, DivisionID: req.DivisionID}
	logger.Infof("Starting sync of %d table(s) for company %s, division %s", len(schemas), req.CompanyID, req.DivisionID)

	parallelism := o.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	results := newResultCollector()
	var g errgroup.Group
	g.SetLimit(parallelism)
	for _, schema := range schemas {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results.add(o.canceled(schema.Name, err))
				return nil
			}
			results.add(o.runTable(ctx, schema, tenant))
			return nil
		})
	}
	_ = g.Wait()

	summary := &JobSummary{Success: true}
	for _, schema := range schemas {
		r := results.get(schema.Name)
		summary.Results = append(summary.Results, *r)
		summary.TablesProcessed++
		summary.TotalRecords += r.RecordsFetched
		summary.TotalInserted += r.RecordsImported
		summary.TotalSkipped += r.RecordsSkipped
		summary.TotalErrors += r.RecordsFailed
		if r.State != StateCompleted {
			summary.Success = false
		}
	}
	summary.Duration = time.Since(start).Round(time.Millisecond).String()

	logger.Infof("Sync finished in %s: %d table(s), %d record(s) fetched, %d imported, %d skipped, %d failed",
		summary.Duration, summary.TablesProcessed, summary.TotalRecords, summary.TotalInserted, summary.TotalSkipped, summary.TotalErrors)
	return summary, nil
}

// tableRun tracks one table through the state machine.
type tableRun struct {
	res   *TableResult
	start time.Time
	log   *logrus.Entry
}

func (t *tableRun) transition(state TableState) {
	t.log.Debugf("%s -> %s", t.res.State, state)
	t.res.State = state
}

func (t *tableRun) fail(err error) *TableResult {
	t.res.Err = err
	t.res.Errors = append(t.res.Errors, err.Error())
	t.log.Errorf("%s failed: %v", t.res.State, err)
	t.transition(StateFailed)
	return t.res
}

func (o *Orchestrator) runTable(ctx context.Context, schema models.TableSchema, tenant Tenant) (res *TableResult) {
	t := &tableRun{
		res:   &TableResult{Table: schema.Name, State: StatePending},
		start: time.Now(),
		log:   logger.WithFields(logger.Fields{"table": schema.Name}),
	}
	defer func() {
		res.Elapsed = time.Since(t.start)
		res.Duration = res.Elapsed.Round(time.Millisecond).String()
		o.Metrics.Table(res.Table, string(res.State), res.RecordsFetched, res.RecordsImported, res.RecordsSkipped, res.RecordsFailed, res.Elapsed)
		o.Metrics.Attempts(res.Table, "fetch", res.FetchAttempts)
		o.Metrics.Attempts(res.Table, "import", res.ImportAttempts)
	}()

	t.transition(StateQuerying)
	query := Synthesize(schema)
	body, err := query.Render(o.Vars)
	if err != nil {
		return t.fail(err)
	}

	t.transition(StateFetching)
	var payload []byte
	attempts, err := retry.Do(ctx, o.Retry, IsTransient,
		func(int) error {
			p, err := o.Fetcher.Fetch(ctx, body)
			if err == nil {
				payload = p
			}
			return err
		},
		func(attempt int, err error, wait time.Duration) {
			t.log.Warnf("fetch attempt %d failed, retrying in %s: %v", attempt, wait, err)
		},
	)
	t.res.FetchAttempts = attempts
	if err != nil {
		return t.fail(fmt.Errorf("fetch after %d attempt(s): %w", attempts, err))
	}

	t.transition(StateNormalizing)
	text, err := DecodePayload(payload)
	if err != nil {
		return t.fail(err)
	}
	rows, err := Normalize(text, len(schema.Fields))
	if err != nil {
		return t.fail(err)
	}
	t.res.RecordsFetched = len(rows)

	t.transition(StateDecoding)
	records, skips := NewDecoder(schema, tenant).DecodeAll(rows)
	t.res.RecordsSkipped = len(skips)
	if len(skips) > 0 {
		t.log.Warnf("%d of %d row(s) skipped during decoding", len(skips), len(rows))
	}

	t.transition(StateImporting)
	ir := o.Importer.Import(ctx, schema.Name, records, schema.Mode())
	t.res.RecordsImported = ir.Imported
	t.res.RecordsFailed = ir.Failed
	t.res.ImportAttempts = ir.Attempts
	t.res.Batches = len(ir.Batches)
	if len(ir.Errors) > 0 {
		for _, e := range ir.Errors[:len(ir.Errors)-1] {
			t.res.Errors = append(t.res.Errors, e.Error())
		}
		return t.fail(ir.Errors[len(ir.Errors)-1])
	}

	t.transition(StateCompleted)
	t.log.Infof("completed: %d fetched, %d imported, %d skipped, %d failed",
		t.res.RecordsFetched, t.res.RecordsImported, t.res.RecordsSkipped, t.res.RecordsFailed)
	return t.res
}

func (o *Orchestrator) canceled(table string, err error) *TableResult {
	res := &TableResult{
		Table:    table,
		State:    StateFailed,
		Err:      fmt.Errorf("canceled before start: %w", err),
		Duration: "0s",
	}
	res.Errors = []string{res.Err.Error()}
	logger.WithFields(logger.Fields{"table": table}).Warnf("not started: %v", err)
	o.Metrics.Table(table, string(StateFailed), 0, 0, 0, 0, 0)
	return res
}

// resultCollector is the single aggregation point shared by table workers.
type resultCollector struct {
	mu      sync.Mutex
	results map[string]*TableResult
}

func newResultCollector() *resultCollector {
	return &resultCollector{results: make(map[string]*TableResult)}
}

func (c *resultCollector) add(r *TableResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[r.Table] = r
}

func (c *resultCollector) get(table string) *TableResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[table]
}
