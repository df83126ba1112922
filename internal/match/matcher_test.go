package match

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assayworks/hallmark-cli/internal/model"
)

type fakeUpdater struct {
	assigned map[int64]string
	fail     bool
}

func (f *fakeUpdater) AssignJobNo(_ context.Context, itemID int64, jobNo string) error {
	if f.fail {
		return eris.New("store down")
	}
	if f.assigned == nil {
		f.assigned = make(map[int64]string)
	}
	f.assigned[itemID] = jobNo
	return nil
}

func pendingItems() []*model.PendingItem {
	return []*model.PendingItem{
		{ID: 1, RequestNo: "110002001", ItemCategory: "Gold Ring", Status: model.ItemStatusPending},
		{ID: 2, RequestNo: "110002001", ItemCategory: "Gold Chain", Status: model.ItemStatusPending},
		{ID: 3, RequestNo: "110002001", ItemCategory: "Bangles", Status: model.ItemStatusPending},
	}
}

func TestMatcher_BestCandidateWins(t *testing.T) {
	store := &fakeUpdater{}
	m := NewMatcher(store)
	processed := map[string]struct{}{}

	remote := model.RemoteJobRecord{JobNo: "120001001", ItemCategoryText: "Ring"}
	got, err := m.Match(context.Background(), remote, pendingItems(), processed)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, "120001001", got.JobNo)
	assert.Equal(t, model.ItemStatusMatched, got.Status)
	assert.Equal(t, "120001001", store.assigned[1])
	assert.Contains(t, processed, "120001001")
}

func TestMatcher_IdempotentOnProcessedJob(t *testing.T) {
	store := &fakeUpdater{}
	m := NewMatcher(store)
	processed := map[string]struct{}{"120001001": {}}
	candidates := pendingItems()

	remote := model.RemoteJobRecord{JobNo: "120001001", ItemCategoryText: "Ring"}
	got, err := m.Match(context.Background(), remote, candidates, processed)
	require.NoError(t, err)

	assert.Nil(t, got)
	assert.Empty(t, store.assigned)
	for _, c := range candidates {
		assert.Empty(t, c.JobNo, "candidates must not be mutated")
	}
}

func TestMatcher_NoMatchBelowThreshold(t *testing.T) {
	store := &fakeUpdater{}
	m := NewMatcher(store)
	processed := map[string]struct{}{}

	remote := model.RemoteJobRecord{JobNo: "120001002", ItemCategoryText: "Qqqq"}
	got, err := m.Match(context.Background(), remote, pendingItems(), processed)
	require.NoError(t, err)

	assert.Nil(t, got)
	assert.Empty(t, store.assigned)
	assert.NotContains(t, processed, "120001002", "unmatched job stays available for a later pass")
}

func TestMatcher_FirstOfTiedCandidates(t *testing.T) {
	store := &fakeUpdater{}
	m := NewMatcher(store)
	candidates := []*model.PendingItem{
		{ID: 7, ItemCategory: "Gold Ring"},
		{ID: 8, ItemCategory: "Gold Ring"},
	}

	remote := model.RemoteJobRecord{JobNo: "120001003", ItemCategoryText: "Gold Ring"}
	got, err := m.Match(context.Background(), remote, candidates, map[string]struct{}{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.ID)
}

func TestMatcher_MatchedCandidateIsNeverReassigned(t *testing.T) {
	store := &fakeUpdater{}
	m := NewMatcher(store)
	processed := map[string]struct{}{}
	candidates := []*model.PendingItem{
		{ID: 1, ItemCategory: "Gold Ring"},
		{ID: 2, ItemCategory: "Ring"},
	}

	first := model.RemoteJobRecord{JobNo: "120001006", ItemCategoryText: "Gold Ring"}
	got, err := m.Match(context.Background(), first, candidates, processed)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, int64(1), got.ID)

	// A second record with the same category text must fall through to the
	// remaining candidate instead of overwriting item 1's assignment.
	second := model.RemoteJobRecord{JobNo: "120001007", ItemCategoryText: "Gold Ring"}
	got, err = m.Match(context.Background(), second, candidates, processed)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.ID)

	assert.Equal(t, "120001006", store.assigned[1])
	assert.Equal(t, "120001007", store.assigned[2])
	assert.Equal(t, "120001006", candidates[0].JobNo)
	assert.Equal(t, "120001007", candidates[1].JobNo)
}

func TestMatcher_AllCandidatesConsumedLeavesRecordUnmatched(t *testing.T) {
	store := &fakeUpdater{}
	m := NewMatcher(store)
	candidates := []*model.PendingItem{
		{ID: 1, ItemCategory: "Gold Ring", JobNo: "120001008", Status: model.ItemStatusMatched},
	}

	remote := model.RemoteJobRecord{JobNo: "120001009", ItemCategoryText: "Gold Ring"}
	got, err := m.Match(context.Background(), remote, candidates, map[string]struct{}{})
	require.NoError(t, err)

	assert.Nil(t, got)
	assert.Empty(t, store.assigned)
	assert.Equal(t, "120001008", candidates[0].JobNo)
}

func TestMatcher_StoreFailureDoesNotConsumeJob(t *testing.T) {
	store := &fakeUpdater{fail: true}
	m := NewMatcher(store)
	processed := map[string]struct{}{}
	candidates := pendingItems()

	remote := model.RemoteJobRecord{JobNo: "120001004", ItemCategoryText: "Gold Ring"}
	_, err := m.Match(context.Background(), remote, candidates, processed)
	require.Error(t, err)

	assert.NotContains(t, processed, "120001004")
	assert.Empty(t, candidates[0].JobNo)
}

func TestMatcher_Deterministic(t *testing.T) {
	remote := model.RemoteJobRecord{JobNo: "120001005", ItemCategoryText: "Gold Chain"}
	for i := 0; i < 5; i++ {
		m := NewMatcher(&fakeUpdater{})
		got, err := m.Match(context.Background(), remote, pendingItems(), map[string]struct{}{})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(2), got.ID)
	}
}
