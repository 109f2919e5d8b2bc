package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersWithoutStorage(t *testing.T) {
	assert.Equal(t, int64(1), Incr("test_memory_only"))
	assert.Equal(t, int64(2), Incr("test_memory_only"))
	assert.Equal(t, int64(2), GetCounter("test_memory_only"))

	points, err := Query("test_memory_only", time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestStorageRoundTrip(t *testing.T) {
	require.NoError(t, InitMetrics(t.TempDir()))
	defer func() { _ = Close() }()

	SetGauge("test_chain_available", 1)
	Incr("test_verify_verified")

	points, err := Query("test_chain_available", time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, float64(1), points[0].Value)

	missing, err := Query("test_never_written", time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
