package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTransactions(t *testing.T) {
	before := testutil.ToFloat64(LedgerTransactionsTotal.WithLabelValues("prize"))
	RecordTransactions("prize", "prize")
	after := testutil.ToFloat64(LedgerTransactionsTotal.WithLabelValues("prize"))
	if after-before != 2 {
		t.Fatalf("expected 2 increments, got %v", after-before)
	}
}

func TestRecordHoldsIgnoresEmptyBatches(t *testing.T) {
	before := testutil.ToFloat64(HoldTransitionsTotal.WithLabelValues("expired"))
	RecordHolds("expired", 0)
	RecordHolds("expired", 3)
	after := testutil.ToFloat64(HoldTransitionsTotal.WithLabelValues("expired"))
	if after-before != 3 {
		t.Fatalf("expected 3 increments, got %v", after-before)
	}
}
