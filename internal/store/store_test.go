package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/resilience"
)

// flakyStore fails AssignJobNo transiently a fixed number of times.
type flakyStore struct {
	Store
	failures int
	calls    int
}

func (f *flakyStore) AssignJobNo(ctx context.Context, itemID int64, jobNo string) error {
	f.calls++
	if f.calls <= f.failures {
		return resilience.NewTransientError(assert.AnError, 0)
	}
	return f.Store.AssignJobNo(ctx, itemID, jobNo)
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestWithRetry_RecoversFromTransientFailure(t *testing.T) {
	inner := newTestSQLiteStore(t)
	ctx := context.Background()

	stored := seedItems(t, inner,
		model.PendingItem{RequestNo: "110000001", ItemCategory: "Gold Ring", FirmID: "F1"},
	)

	flaky := &flakyStore{Store: inner, failures: 2}
	st := WithRetry(flaky, fastRetry())

	require.NoError(t, st.AssignJobNo(ctx, stored[0].ID, "120000001"))
	assert.Equal(t, 3, flaky.calls)

	items, err := st.ListPendingItems(ctx, ItemFilter{})
	require.NoError(t, err)
	assert.Equal(t, "120000001", items[0].JobNo)
}

func TestWithRetry_DoesNotRetryNotFound(t *testing.T) {
	inner := newTestSQLiteStore(t)

	flaky := &flakyStore{Store: inner}
	st := WithRetry(flaky, fastRetry())

	err := st.AssignJobNo(context.Background(), 9999, "120000001")
	require.Error(t, err)
	assert.Equal(t, 1, flaky.calls, "permanent errors must not burn retry attempts")
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	inner := newTestSQLiteStore(t)

	flaky := &flakyStore{Store: inner, failures: 10}
	st := WithRetry(flaky, fastRetry())

	err := st.AssignJobNo(context.Background(), 1, "120000001")
	require.Error(t, err)
	assert.Equal(t, 3, flaky.calls)
}

func TestGroupByRequest(t *testing.T) {
	items := []model.PendingItem{
		{ID: 1, RequestNo: "110000001"},
		{ID: 2, RequestNo: "110000002"},
		{ID: 3, RequestNo: "110000001"},
	}

	grouped := groupByRequest(items)
	require.Len(t, grouped, 2)
	assert.Len(t, grouped["110000001"], 2)
	assert.Len(t, grouped["110000002"], 1)

	// The pointers alias the backing slice, so a write through the group
	// is visible to the caller.
	grouped["110000001"][0].JobNo = "120000001"
	assert.Equal(t, "120000001", items[0].JobNo)
}
