package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/topicmill/pkg/topicmill/store"
	"github.com/cognicore/topicmill/pkg/topicmill/store/storetest"
)

// Set TOPICMILL_TEST_PG to a DSN of a scratch database to run these.
func openScratch(t *testing.T) store.Store {
	t.Helper()
	dsn := os.Getenv("TOPICMILL_TEST_PG")
	if dsn == "" {
		t.Skip("TOPICMILL_TEST_PG not set")
	}
	ctx := context.Background()
	st, err := Open(ctx, dsn)
	require.NoError(t, err)
	_, err = st.(*pgStore).pool.Exec(ctx, `TRUNCATE topic_models CASCADE`)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPostgresStore(t *testing.T) {
	if os.Getenv("TOPICMILL_TEST_PG") == "" {
		t.Skip("TOPICMILL_TEST_PG not set")
	}
	storetest.Run(t, openScratch)
}

type fakeRow struct {
	created time.Time
	err     error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = "01J0MODEL"
	*dest[3].(*time.Time) = r.created
	return nil
}

func TestScanModel(t *testing.T) {
	m, err := scanModel(fakeRow{err: errors.New("conn reset")})
	assert.EqualError(t, err, "conn reset")
	assert.Zero(t, m)

	local := time.Date(2026, 5, 4, 11, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	m, err = scanModel(fakeRow{created: local})
	require.NoError(t, err)
	assert.Equal(t, "01J0MODEL", m.ID)
	assert.Equal(t, time.UTC, m.CreatedAt.Location())
	assert.True(t, m.CreatedAt.Equal(local))
}
