package salesforce

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datastreamhq/forcetap/pkg/errors"
)

func usageHeader(value string) http.Header {
	h := make(http.Header)
	h.Set("Sforce-Limit-Info", value)
	return h
}

func TestRecordRestCallNoHeader(t *testing.T) {
	g := NewQuotaGovernor(25, 80, zap.NewNop())

	require.NoError(t, g.RecordRestCall(make(http.Header)))
	assert.Equal(t, int64(0), g.RequestsAttempted(),
		"responses without the usage header are not counted")
}

func TestRecordRestCallMalformedHeader(t *testing.T) {
	g := NewQuotaGovernor(25, 80, zap.NewNop())

	require.NoError(t, g.RecordRestCall(usageHeader("api-usage=whatever")))
	require.NoError(t, g.RecordRestCall(usageHeader("per-app-api-usage=1/100")))
	assert.Equal(t, int64(0), g.RequestsAttempted())
}

func TestRecordRestCallCountsRequests(t *testing.T) {
	g := NewQuotaGovernor(25, 80, zap.NewNop())

	for i := 0; i < 3; i++ {
		require.NoError(t, g.RecordRestCall(usageHeader("api-usage=10/100000")))
	}
	assert.Equal(t, int64(3), g.RequestsAttempted())
}

func TestRecordRestCallTotalThreshold(t *testing.T) {
	g := NewQuotaGovernor(25, 80, zap.NewNop())

	// First figure over the threshold percentage of the allotment trips
	// the total check
	err := g.RecordRestCall(usageHeader("api-usage=90/100"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuotaExceeded))

	// At exactly the threshold the check passes; the comparison is
	// strictly greater-than
	g = NewQuotaGovernor(25, 80, zap.NewNop())
	assert.NoError(t, g.RecordRestCall(usageHeader("api-usage=80/100")))
}

func TestRecordRestCallPerRunThreshold(t *testing.T) {
	// 25% of 100 allotted = 25 requests for this run
	g := NewQuotaGovernor(25, 80, zap.NewNop())

	for i := 0; i < 25; i++ {
		require.NoError(t, g.RecordRestCall(usageHeader("api-usage=1/100")))
	}

	err := g.RecordRestCall(usageHeader("api-usage=1/100"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuotaExceeded))
	assert.True(t, errors.IsFatal(err))
}

func TestRecordRestCallPerRunCeilingTruncates(t *testing.T) {
	// 25% of 10 allotted truncates to 2 requests, so the third trips
	g := NewQuotaGovernor(25, 80, zap.NewNop())

	require.NoError(t, g.RecordRestCall(usageHeader("api-usage=1/10")))
	require.NoError(t, g.RecordRestCall(usageHeader("api-usage=1/10")))
	assert.Error(t, g.RecordRestCall(usageHeader("api-usage=1/10")))
}
