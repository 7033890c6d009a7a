package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordPushDispatch(t *testing.T) {
	beforeDelivered := testutil.ToFloat64(PushDeliveries.WithLabelValues("delivered"))
	beforeFailed := testutil.ToFloat64(PushDeliveries.WithLabelValues("failed"))
	beforeRuns := testutil.ToFloat64(PushDispatches.WithLabelValues("note"))

	RecordPushDispatch("note", 2, 1, 0)

	require.Equal(t, beforeDelivered+2, testutil.ToFloat64(PushDeliveries.WithLabelValues("delivered")))
	require.Equal(t, beforeFailed+1, testutil.ToFloat64(PushDeliveries.WithLabelValues("failed")))
	require.Equal(t, beforeRuns+1, testutil.ToFloat64(PushDispatches.WithLabelValues("note")))
}

func TestRecordHTTPRequest_UnmatchedRoute(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("unmatched", "GET", "404"))
	RecordHTTPRequest("", "GET", 404, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("unmatched", "GET", "404")))
}
