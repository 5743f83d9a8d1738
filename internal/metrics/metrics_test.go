package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Table(t *testing.T) {
	r := NewRecorder()
	r.Table("mst_ledger", "completed", 10, 8, 2, 0, 150*time.Millisecond)
	r.Table("mst_ledger", "completed", 5, 5, 0, 0, 50*time.Millisecond)

	assert.Equal(t, float64(15), testutil.ToFloat64(r.records.WithLabelValues("mst_ledger", "fetched")))
	assert.Equal(t, float64(13), testutil.ToFloat64(r.records.WithLabelValues("mst_ledger", "imported")))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.records.WithLabelValues("mst_ledger", "skipped")))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.tables.WithLabelValues("completed")))
}

func TestRecorder_Attempts(t *testing.T) {
	r := NewRecorder()
	r.Attempts("trn_voucher", "fetch", 3)
	r.Attempts("trn_voucher", "fetch", 0)

	assert.Equal(t, float64(3), testutil.ToFloat64(r.attempts.WithLabelValues("trn_voucher", "fetch")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.Table("x", "failed", 1, 0, 0, 1, time.Second)
	r.Attempts("x", "import", 2)
	require.NoError(t, r.Push("http://localhost:9091", "job"))

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestRecorder_PushWithoutGatewayIsNoop(t *testing.T) {
	require.NoError(t, NewRecorder().Push("", "job"))
}
