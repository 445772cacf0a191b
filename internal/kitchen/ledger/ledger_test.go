package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	kitchendomain "github.com/smallbiznis/ordersync/internal/kitchen/domain"
	"github.com/smallbiznis/ordersync/internal/localstore"
	orderdomain "github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func lines() []orderdomain.Line {
	return []orderdomain.Line{
		{ID: "a", ItemID: "tea", Status: orderdomain.LineDraft},
		{ID: "b", ItemID: "cake", Status: orderdomain.LineQueued},
		{ID: "c", ItemID: "soup", Status: orderdomain.LinePreparing},
		{ID: "d", ItemID: "", Status: orderdomain.LineDraft},
		{ID: "e", ItemID: "rice", Status: orderdomain.LineDraft},
	}
}

func ids(in []orderdomain.Line) []string {
	out := make([]string, 0, len(in))
	for _, l := range in {
		out = append(out, l.ID)
	}
	return out
}

func TestFilterAndMark(t *testing.T) {
	ctx := context.Background()
	l := New(Params{Log: zap.NewNop()})

	pending := l.Filter("o1", lines(), kitchendomain.LineKey{OrderID: "o1", LineID: "e"})
	assert.Equal(t, []string{"a", "b"}, ids(pending))

	require.NoError(t, l.Mark(ctx, []kitchendomain.LineKey{{OrderID: "o1", LineID: "a"}}))
	assert.True(t, l.Seen(kitchendomain.LineKey{OrderID: "o1", LineID: "a"}))
	assert.False(t, l.Seen(kitchendomain.LineKey{OrderID: "o2", LineID: "a"}))

	pending = l.Filter("o1", lines())
	assert.Equal(t, []string{"b", "e"}, ids(pending))
	assert.Len(t, l.Filter("o2", lines()), 3)
}

func TestLedgerSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	conn, err := gorm.Open(sqlite.Open("file:ledger?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	store, err := localstore.NewGormStore(conn, zap.NewNop(), func() time.Time { return time.Unix(0, 0) })
	require.NoError(t, err)

	first := New(Params{Log: zap.NewNop(), Store: store})
	require.NoError(t, first.Mark(ctx, []kitchendomain.LineKey{
		{OrderID: "o1", LineID: "a"},
		{OrderID: "o1", LineID: "b"},
		{OrderID: "o2", LineID: "x"},
	}))

	second := New(Params{Log: zap.NewNop(), Store: store})
	assert.True(t, second.Seen(kitchendomain.LineKey{OrderID: "o1", LineID: "b"}))
	assert.True(t, second.Seen(kitchendomain.LineKey{OrderID: "o2", LineID: "x"}))
	assert.Equal(t, []string{"e"}, ids(second.Filter("o1", lines())))
}
