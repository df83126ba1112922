package batch

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/assayworks/hallmark-cli/internal/config"
	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/portal"
	"github.com/assayworks/hallmark-cli/internal/portal/portaltest"
	"github.com/assayworks/hallmark-cli/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Portal: config.PortalConfig{BaseURL: "https://portal.example"},
		Scan:   config.ScanConfig{PageCap: 10, SkipCompleted: true, RatePerSec: 1000},
		Fill:   config.FillConfig{IterationCap: 10, HarvestHUID: true},
		Batch:  config.BatchConfig{MaxStoreWorkers: 2},
	}
}

func newTestRunner(t *testing.T, d *portaltest.FakeDriver) (*Runner, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "batch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	return NewRunner(testConfig(), st, portal.NewSession(d), nil), st
}

func seedItem(t *testing.T, st store.Store, requestNo, category string, pieces int) model.PendingItem {
	t.Helper()
	ctx := context.Background()
	_, err := st.UpsertPendingItems(ctx, []model.PendingItem{{
		RequestNo:      requestNo,
		ItemCategory:   category,
		Pieces:         pieces,
		DeclaredPurity: "22K916",
		DeclaredWeight: 10.0,
		FirmID:         "F1",
		Status:         model.ItemStatusPending,
	}})
	require.NoError(t, err)

	items, err := st.ListPendingItems(ctx, store.ItemFilter{RequestNo: requestNo})
	require.NoError(t, err)
	for _, it := range items {
		if it.ItemCategory == category {
			return it
		}
	}
	t.Fatalf("seeded item %s/%s not found", requestNo, category)
	return model.PendingItem{}
}
