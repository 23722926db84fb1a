package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R2i2Labs/fin-agent-ui/internal/dataset"
)

func TestSearchRanksByTokenOverlap(t *testing.T) {
	store, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stock_prices.csv"),
		[]byte("date,close,volume\n2024-01-02,100.5,1200\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "employees.csv"),
		[]byte("name,salary\nalice,90000\n"), 0o644))

	searcher := dataset.NewSearcher(store, 10)
	matches, err := searcher.Search("stock close volume", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	require.Equal(t, "stock_prices.csv", matches[0].Filename)
	require.Equal(t, []string{"date", "close", "volume"}, matches[0].Columns)
	for _, m := range matches {
		require.Greater(t, m.Score, 0.0)
	}
}

func TestSearchAppliesLimit(t *testing.T) {
	store, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "close_a.csv"), []byte("close\n1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "close_b.csv"), []byte("close\n2\n"), 0o644))

	searcher := dataset.NewSearcher(store, 10)
	matches, err := searcher.Search("close", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestSearchValidatesQuery(t *testing.T) {
	store, _ := newTestStore(t)
	searcher := dataset.NewSearcher(store, 10)

	_, err := searcher.Search("   ", 5)
	require.Error(t, err)
}

func TestSearchPropagatesMissingDirectory(t *testing.T) {
	store := dataset.NewStore(filepath.Join(t.TempDir(), "absent"), nil)
	defer store.Close()
	searcher := dataset.NewSearcher(store, 10)

	_, err := searcher.Search("close", 5)
	require.ErrorIs(t, err, dataset.ErrNoDatasetDir)
}
