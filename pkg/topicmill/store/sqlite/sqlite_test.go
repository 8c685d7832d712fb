package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/topicmill/pkg/topicmill/store"
	"github.com/cognicore/topicmill/pkg/topicmill/store/storetest"
)

var created = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func openTemp(t *testing.T) store.Store {
	t.Helper()
	st, err := Open(context.Background(), filepath.Join(t.TempDir(), "topics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, openTemp)
}

func rowCounts(t *testing.T, st store.Store) map[string]int {
	t.Helper()
	db := st.(*sqliteStore).db
	counts := map[string]int{}
	for _, table := range []string{"topic_models", "topics", "topic_document_weights", "topic_snippets"} {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		counts[table] = n
	}
	return counts
}

func TestFailedSaveWritesNoRows(t *testing.T) {
	st := openTemp(t)
	run := storetest.SampleRun("m1", "spring", created)
	run.Snippets[2].ID = run.Snippets[0].ID

	require.Error(t, st.SaveRun(context.Background(), run))
	for table, n := range rowCounts(t, st) {
		assert.Zero(t, n, table)
	}
}

func TestDeleteRemovesChildRows(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	require.NoError(t, st.SaveRun(ctx, storetest.SampleRun("m1", "spring", created)))

	before := rowCounts(t, st)
	assert.Equal(t, 1, before["topic_models"])
	assert.Equal(t, 2, before["topics"])
	assert.Equal(t, 4, before["topic_document_weights"])
	assert.Equal(t, 3, before["topic_snippets"])

	require.NoError(t, st.DeleteModel(ctx, "m1"))
	for table, n := range rowCounts(t, st) {
		assert.Zero(t, n, table)
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "topics.db")

	st, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, st.SaveRun(ctx, storetest.SampleRun("m1", "spring", created)))
	require.NoError(t, st.Close())

	st, err = Open(ctx, path)
	require.NoError(t, err)
	defer st.Close()
	m, ok, err := st.LatestModel(ctx, "spring")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m1", m.ID)
}
