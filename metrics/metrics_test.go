package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordDispatch("image", "succeeded")
	m.RecordDispatch("image", "succeeded")
	m.RecordQuota("image", false)
	m.RecordStorageWrite("google", errors.New("x"))
	m.RecordFallback("validate")
	m.RecordPoll("deapi", "pending")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatchOutcomes.WithLabelValues("image", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quotaDecisions.WithLabelValues("image", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageWrites.WithLabelValues("google", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageFallbacks.WithLabelValues("validate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobPolls.WithLabelValues("deapi", "pending")))
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "unknown", sanitizeLabel(""))
	assert.Equal(t, "a_b", sanitizeLabel("a b"))
	assert.Len(t, sanitizeLabel(strings.Repeat("x", 100)), maxLabelLen)
}

func TestGetIsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
