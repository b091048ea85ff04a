package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFrame(t *testing.T) {
	c := FramesTotal.WithLabelValues("in", "typing")
	before := testutil.ToFloat64(c)

	RecordFrame("in", "typing")
	RecordFrame("in", "typing")

	if got := testutil.ToFloat64(c) - before; got != 2 {
		t.Errorf("typing frames = %v, want 2", got)
	}
}

func TestRecordRequest(t *testing.T) {
	before := testutil.CollectAndCount(RequestDuration)
	RecordRequest("GET", "/metrics-test/{id}", "200", 0.01)
	if got := testutil.CollectAndCount(RequestDuration); got != before+1 {
		t.Errorf("series = %d, want %d", got, before+1)
	}
}
