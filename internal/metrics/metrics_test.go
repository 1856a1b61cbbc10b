package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordOutcome(t *testing.T) {
	before := testutil.ToFloat64(routerOutcomes.WithLabelValues("replied", "transaction"))
	RecordOutcome("replied", "transaction")
	RecordOutcome("replied", "transaction")
	after := testutil.ToFloat64(routerOutcomes.WithLabelValues("replied", "transaction"))
	assert.Equal(t, before+2, after)
}

func TestObserveHTTP(t *testing.T) {
	before := testutil.ToFloat64(httpReqTotal.WithLabelValues("POST", "/webhook", "200"))
	ObserveHTTP("POST", "/webhook", 200, 3*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(httpReqTotal.WithLabelValues("POST", "/webhook", "200")))
}

func TestRecordMirrorFailure(t *testing.T) {
	before := testutil.ToFloat64(mirrorFailures.WithLabelValues("sheets"))
	RecordMirrorFailure("sheets")
	assert.Equal(t, before+1, testutil.ToFloat64(mirrorFailures.WithLabelValues("sheets")))
}

func TestSetQueueDepth(t *testing.T) {
	SetQueueDepth(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(queueDepth))
}

func TestObserveClassifier(t *testing.T) {
	ObserveClassifier("intent", nil, time.Second)
	ObserveClassifier("intent", errors.New("x"), time.Second)
	assert.Equal(t, 2, testutil.CollectAndCount(classifierLatency))
}
