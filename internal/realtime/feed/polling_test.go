package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/ordersync/internal/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestPollingFeedDeliversOnChange(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:pollingfeed?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE order_header (id TEXT PRIMARY KEY, status TEXT)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO order_header (id, status) VALUES ('o1', 'open')`).Error)

	f := NewPollingFeed(db, zap.NewNop(), PollingConfig{Interval: 10 * time.Millisecond})

	rows, err := f.Fetch(context.Background(), normalize.RelationOrders)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "o1", rows[0]["id"])

	var mu sync.Mutex
	var deliveries [][]normalize.Row
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.Watch(ctx, normalize.RelationOrders, func(rows []normalize.Row) {
		mu.Lock()
		deliveries = append(deliveries, rows)
		mu.Unlock()
	}))

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(deliveries)
	}
	require.Eventually(t, func() bool { return count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, count(), "unchanged table is not redelivered")

	require.NoError(t, db.Exec(`INSERT INTO order_header (id, status) VALUES ('o2', 'open')`).Error)
	require.Eventually(t, func() bool { return count() == 2 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Len(t, deliveries[1], 2)
	mu.Unlock()
}
