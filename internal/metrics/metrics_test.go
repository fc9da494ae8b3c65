package metrics

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/gradesheet/internal/model"
	"github.com/hitoshi/gradesheet/internal/sheets"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestObserveOperation_LabelsByResult は操作結果がエラー種別ごとのラベルで記録されることを検証する。
func TestObserveOperation_LabelsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveOperation("Users", "find", nil, 10*time.Millisecond)
	c.ObserveOperation("Users", "find", nil, 20*time.Millisecond)
	c.ObserveOperation("Users", "find", model.ErrNotFound, time.Millisecond)
	c.ObserveOperation("Users", "append", fmt.Errorf("%w: %w", model.ErrStoreUnavailable, errors.New("503")), time.Second)
	c.ObserveOperation("Grades", "update", fmt.Errorf("field x: %w", model.ErrSchemaMismatch), time.Millisecond)

	tests := []struct {
		sheet, op, result string
		want              float64
	}{
		{"Users", "find", "ok", 2},
		{"Users", "find", "not_found", 1},
		{"Users", "append", "unavailable", 1},
		{"Grades", "update", "schema_mismatch", 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(c.storeOps.WithLabelValues(tt.sheet, tt.op, tt.result))
		if got != tt.want {
			t.Errorf("store_operations_total{%s,%s,%s} = %v, want %v", tt.sheet, tt.op, tt.result, got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(c.storeLatency); n != 3 {
		t.Errorf("latency series = %d, want 3", n)
	}
}

// TestObserveResolution_CountsDegradedMode は縮退モードの解決が区別して数えられることを検証する。
func TestObserveResolution_CountsDegradedMode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveResolution("Users", sheets.TierHeader)
	c.ObserveResolution("Users", sheets.TierFixedPosition)
	c.ObserveResolution("Users", sheets.TierFixedPosition)

	if got := testutil.ToFloat64(c.resolutions.WithLabelValues("Users", "fixed_position")); got != 2 {
		t.Errorf("fixed_position = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.resolutions.WithLabelValues("Users", "header")); got != 1 {
		t.Errorf("header = %v, want 1", got)
	}
}

func TestRecordRetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRetry("get_rows")
	c.RecordRetry("get_rows")

	expected := `
# HELP gradesheet_sheets_retries_total Google Sheets呼び出しの再試行数
# TYPE gradesheet_sheets_retries_total counter
gradesheet_sheets_retries_total{op="get_rows"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "gradesheet_sheets_retries_total"); err != nil {
		t.Error(err)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(401)

	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("200")); got != 2 {
		t.Errorf("http_status_total{200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("401")); got != 1 {
		t.Errorf("http_status_total{401} = %v, want 1", got)
	}
}

func TestRecordTokenVerification(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenVerification("ok")
	c.RecordTokenVerification("revoked")
	c.RecordTokenVerification("revoked")

	if got := testutil.ToFloat64(c.tokenVerify.WithLabelValues("revoked")); got != 2 {
		t.Errorf("revoked = %v, want 2", got)
	}
}

func TestRecordRevocationsSwept(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRevocationsSwept(3)
	c.RecordRevocationsSwept(0)
	c.RecordRevocationsSwept(4)

	if got := testutil.ToFloat64(c.revokedSwept); got != 7 {
		t.Errorf("swept = %v, want 7", got)
	}
}

// TestNewCollector_DuplicateRegistrationPanics は同じレジストリへの二重登録でpanicすることを検証する。
func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	_ = NewCollector(reg)
}
