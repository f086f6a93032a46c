package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(TransactionsSkipped.WithLabelValues("failed-tx"))
	TransactionsSkipped.WithLabelValues("failed-tx").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(TransactionsSkipped.WithLabelValues("failed-tx")))

	before = testutil.ToFloat64(NotificationsTotal.WithLabelValues("delivered"))
	NotificationsTotal.WithLabelValues("delivered").Add(2)
	assert.Equal(t, before+2, testutil.ToFloat64(NotificationsTotal.WithLabelValues("delivered")))
}
